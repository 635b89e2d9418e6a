package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/councilhq/councilapi/internal/llm"
)

const synthesisInstruction = "You are the auditor of a council of language models. Compare the drafts below, " +
	"flag conflicts and factual errors between them, and produce a single consolidated verdict that answers " +
	"the user's prompt. Drafts marked as failed responses carry no signal; ignore them. " +
	"Respect the brand guidelines when they are present."

// Synthesizer runs the single consolidating auditor call.
type Synthesizer struct {
	invoker llm.Invoker
}

// NewSynthesizer constructs a Synthesizer.
func NewSynthesizer(invoker llm.Invoker) *Synthesizer {
	return &Synthesizer{invoker: invoker}
}

// Verdict is the auditor's consolidated output.
type Verdict struct {
	Text      string
	LatencyMS int64
}

// Synthesize asks the auditor to consolidate all drafts into one verdict.
// Unlike drafter failures, a failure here is fatal: the verdict is the
// product, and the auditor is not substitutable.
func (s *Synthesizer) Synthesize(ctx context.Context, auditor Slot, assembled AssembledContext, wrappedPrompt string, drafts []Draft) (Verdict, *Error) {
	var sb strings.Builder
	sb.WriteString(synthesisInstruction)
	sb.WriteString("\n\n")
	sb.WriteString(wrappedPrompt)
	sb.WriteString("\n\n")
	for i, draft := range drafts {
		fmt.Fprintf(&sb, "--- DRAFT %d (%s) ---\n%s\n\n", i+1, draft.Slot.DisplayName, draft.Text)
	}
	sb.WriteString("Produce the consolidated verdict now.")

	messages := make([]llm.Message, 0, 2)
	if directive := assembled.SystemDirective(); directive != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: directive})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: sb.String()})

	started := time.Now()
	result, errInvoke := s.invoker.Invoke(ctx, auditor.ModelID, messages)
	latency := result.LatencyMS
	if latency == 0 {
		latency = time.Since(started).Milliseconds()
	}
	if errInvoke != nil {
		return Verdict{LatencyMS: latency}, ErrSynthesisFailed(errInvoke)
	}
	return Verdict{Text: result.Text, LatencyMS: latency}, nil
}
