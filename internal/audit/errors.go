package audit

import (
	"fmt"
	"net/http"
)

// Kind identifies a pipeline rejection or failure class.
type Kind string

// Pipeline error kinds.
const (
	KindUnauthenticated        Kind = "UNAUTHENTICATED"
	KindAccountSuspended       Kind = "ACCOUNT_SUSPENDED"
	KindAccountDisabled        Kind = "ACCOUNT_DISABLED"
	KindAccountInactive        Kind = "ACCOUNT_INACTIVE"
	KindContentPolicyViolation Kind = "CONTENT_POLICY_VIOLATION"
	KindQuotaExceeded          Kind = "QUOTA_EXCEEDED"
	KindNoCredits              Kind = "NO_CREDITS"
	KindInsufficientCredits    Kind = "INSUFFICIENT_CREDITS"
	KindModerationUnavailable  Kind = "MODERATION_UNAVAILABLE"
	KindSynthesisFailed        Kind = "SYNTHESIS_FAILED"
	KindBadRequest             Kind = "BAD_REQUEST"
	KindInternal               Kind = "INTERNAL"
)

// Error is a pipeline failure carrying an HTTP status and a human-readable
// detail string distinct from the kind, so the front end can render an
// actionable message without a lookup table.
type Error struct {
	Kind   Kind
	Status int
	Detail string
	Err    error // Underlying cause, when one exists.
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, status int, detail string) *Error {
	return &Error{Kind: kind, Status: status, Detail: detail}
}

// ErrUnauthenticated rejects requests without a valid credential.
func ErrUnauthenticated() *Error {
	return newError(KindUnauthenticated, http.StatusUnauthorized, "A valid account credential is required to run an audit.")
}

// ErrAccountSuspended rejects banned accounts with the recorded reason.
func ErrAccountSuspended(reason, since string) *Error {
	detail := "Your account has been suspended."
	if reason != "" {
		detail = fmt.Sprintf("Your account has been suspended: %s (since %s).", reason, since)
	}
	return newError(KindAccountSuspended, http.StatusForbidden, detail)
}

// ErrAccountDisabled rejects disabled accounts.
func ErrAccountDisabled() *Error {
	return newError(KindAccountDisabled, http.StatusForbidden, "This account has been disabled. Contact support to restore access.")
}

// ErrAccountInactive rejects accounts that never completed activation.
func ErrAccountInactive() *Error {
	return newError(KindAccountInactive, http.StatusForbidden, "This account is not active yet. Complete activation before running audits.")
}

// ErrContentPolicyViolation rejects prompts flagged by moderation.
func ErrContentPolicyViolation(categories string) *Error {
	detail := "The prompt was rejected by content policy."
	if categories != "" {
		detail = fmt.Sprintf("The prompt was rejected by content policy (matched: %s). No credits were charged.", categories)
	}
	return newError(KindContentPolicyViolation, http.StatusForbidden, detail)
}

// ErrModerationUnavailable rejects requests when moderation is down and the
// gate is configured to fail closed.
func ErrModerationUnavailable(cause error) *Error {
	e := newError(KindModerationUnavailable, http.StatusServiceUnavailable, "Content moderation is temporarily unavailable. Please retry shortly.")
	e.Err = cause
	return e
}

// ErrQuotaExceeded rejects requests past the tier's monthly audit quota.
func ErrQuotaExceeded(used, limit int64, tier string) *Error {
	return newError(KindQuotaExceeded, http.StatusForbidden,
		fmt.Sprintf("Monthly audit limit reached (%d of %d on the %s tier). Upgrade the plan or wait for the monthly reset.", used, limit, tier))
}

// ErrNoCredits rejects accounts with a zero or negative balance.
func ErrNoCredits() *Error {
	return newError(KindNoCredits, http.StatusPaymentRequired, "Your credit balance is empty. Add credits to run audits.")
}

// ErrInsufficientCredits rejects runs the balance cannot cover, reporting both
// figures so the caller can decide how much to top up.
func ErrInsufficientCredits(balance, estimate string) *Error {
	return newError(KindInsufficientCredits, http.StatusPaymentRequired,
		fmt.Sprintf("Insufficient credits: balance $%s, estimated cost $%s. Add at least the difference to proceed.", balance, estimate))
}

// ErrSynthesisFailed aborts a run whose auditor call failed. The provider
// error is attached for diagnosis; no credits are charged.
func ErrSynthesisFailed(cause error) *Error {
	e := newError(KindSynthesisFailed, http.StatusBadGateway, "The auditor model failed to produce a verdict. No credits were charged.")
	e.Err = cause
	return e
}

// ErrBadRequest rejects malformed input.
func ErrBadRequest(detail string) *Error {
	return newError(KindBadRequest, http.StatusBadRequest, detail)
}

// ErrInternal wraps an unexpected failure. Handlers map this kind to an HTTP
// 200 response with an error body, matching the established caller contract.
func ErrInternal(detail string, cause error) *Error {
	e := newError(KindInternal, http.StatusInternalServerError, detail)
	e.Err = cause
	return e
}
