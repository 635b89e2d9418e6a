// Package mailer sends transactional email over SMTP. All mail in the
// pipeline is best-effort; an unconfigured mailer silently drops messages so
// local development works without an SMTP server.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/councilhq/councilapi/internal/config"
	log "github.com/sirupsen/logrus"
)

// Mailer delivers a single HTML message.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailer sends mail through a plain-auth SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// New constructs an SMTPMailer from configuration.
func New(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// IsConfigured reports whether enough settings exist to attempt delivery.
func (m *SMTPMailer) IsConfigured() bool {
	return m.cfg.Host != "" && m.cfg.From != ""
}

// Send delivers one message. Unconfigured mailers log and return nil so
// callers never treat missing SMTP settings as a task failure.
func (m *SMTPMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	if !m.IsConfigured() {
		log.WithField("subject", subject).Debug("smtp not configured, dropping email")
		return nil
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("empty recipient")
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg.Bytes())
}

var lowBalanceTemplate = template.Must(template.New("low_balance").Parse(
	"<p>Your credit balance has dropped to <strong>${{.Balance}}</strong>, below your alert threshold of ${{.Threshold}}.</p>" +
		"<p>Top up your balance or enable auto-recharge to keep your audits running.</p>"))

var costAlertTemplate = template.Must(template.New("cost_alert").Parse(
	"<p>Your <strong>{{.AlertType}}</strong> spending threshold was exceeded.</p>" +
		"<p>Observed: ${{.Cost}} &mdash; threshold: ${{.Threshold}}.</p>"))

var verdictTemplate = template.Must(template.New("verdict").Parse(
	"<p>Your audit has finished. Conversation: {{.ConversationID}}</p>" +
		"<blockquote>{{.Verdict}}</blockquote>"))

// RenderLowBalance renders the low-balance notification body.
func RenderLowBalance(balance, threshold string) (string, error) {
	return render(lowBalanceTemplate, map[string]string{"Balance": balance, "Threshold": threshold})
}

// RenderCostAlert renders the spending alert body.
func RenderCostAlert(alertType, cost, threshold string) (string, error) {
	return render(costAlertTemplate, map[string]string{"AlertType": alertType, "Cost": cost, "Threshold": threshold})
}

// RenderVerdict renders the verdict delivery body.
func RenderVerdict(conversationID, verdict string) (string, error) {
	return render(verdictTemplate, map[string]string{"ConversationID": conversationID, "Verdict": verdict})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if errExec := t.Execute(&buf, data); errExec != nil {
		return "", errExec
	}
	return buf.String(), nil
}
