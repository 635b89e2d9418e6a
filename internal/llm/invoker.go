// Package llm abstracts the model-invocation, moderation, and document
// extraction capabilities consumed by the audit pipeline. Vendor wire formats
// stay behind these interfaces.
package llm

import "context"

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat message sent to a model.
type Message struct {
	Role    string // RoleSystem or RoleUser.
	Content string
}

// Result is the outcome of a successful model invocation.
type Result struct {
	Text      string // Model output text.
	LatencyMS int64  // Wall-clock call latency in milliseconds.
}

// Invoker invokes a model with a message list and returns its text output.
type Invoker interface {
	Invoke(ctx context.Context, modelID string, messages []Message) (Result, error)
}

// ModerationResult is the verdict of the content moderation capability.
type ModerationResult struct {
	Flagged    bool
	Categories []string           // Matched category names.
	Scores     map[string]float64 // Raw per-category scores.
}

// Moderator screens text against content policy.
type Moderator interface {
	Moderate(ctx context.Context, text string) (ModerationResult, error)
}

// Extractor pulls text out of a remote document using a vision-capable model.
type Extractor interface {
	ExtractDocument(ctx context.Context, fileURL, instruction string) (string, error)
}
