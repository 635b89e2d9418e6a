package audit

import (
	"context"
	"strings"
	"testing"

	"github.com/councilhq/councilapi/internal/llm"
)

func TestRunDraftersPreservesSlotOrder(t *testing.T) {
	invoker := &stubInvoker{responses: map[string]string{
		"model-a": "alpha",
		"model-b": "beta",
	}}
	executor := NewExecutor(invoker, 0)

	council := testCouncil()
	drafts := executor.RunDrafters(context.Background(), council.Drafters, []llm.Message{{Role: llm.RoleUser, Content: "prompt"}})
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	if drafts[0].Text != "alpha" || drafts[1].Text != "beta" {
		t.Fatalf("drafts out of order: %q, %q", drafts[0].Text, drafts[1].Text)
	}
	for _, draft := range drafts {
		if draft.Failed {
			t.Fatalf("unexpected failure: %+v", draft)
		}
	}
}

func TestRunDraftersSubstitutesPlaceholderOnFailure(t *testing.T) {
	invoker := &stubInvoker{
		responses: map[string]string{"model-a": "alpha"},
		fail:      map[string]bool{"model-b": true},
	}
	executor := NewExecutor(invoker, 0)

	council := testCouncil()
	drafts := executor.RunDrafters(context.Background(), council.Drafters, []llm.Message{{Role: llm.RoleUser, Content: "prompt"}})
	if drafts[0].Failed {
		t.Fatalf("model-a should have succeeded")
	}
	if !drafts[1].Failed {
		t.Fatalf("model-b should have failed")
	}
	if drafts[1].Text != DraftPlaceholder("model-b") {
		t.Fatalf("expected placeholder text, got %q", drafts[1].Text)
	}
}

func TestSynthesizeFailureIsFatal(t *testing.T) {
	invoker := &stubInvoker{fail: map[string]bool{"model-c": true}}
	synthesizer := NewSynthesizer(invoker)

	council := testCouncil()
	_, errSynth := synthesizer.Synthesize(context.Background(), council.Auditor, AssembledContext{}, WrapPrompt("prompt"), nil)
	if errSynth == nil || errSynth.Kind != KindSynthesisFailed {
		t.Fatalf("expected SYNTHESIS_FAILED, got %v", errSynth)
	}
}

func TestSynthesizeIncludesAllDrafts(t *testing.T) {
	invoker := &captureInvoker{text: "verdict"}
	synthesizer := NewSynthesizer(invoker)

	council := testCouncil()
	drafts := []Draft{
		{Slot: council.Drafters[0], Text: "alpha"},
		{Slot: council.Drafters[1], Text: DraftPlaceholder("model-b"), Failed: true},
	}
	verdict, errSynth := synthesizer.Synthesize(context.Background(), council.Auditor, AssembledContext{}, WrapPrompt("prompt"), drafts)
	if errSynth != nil {
		t.Fatalf("synthesize: %v", errSynth)
	}
	if verdict.Text != "verdict" {
		t.Fatalf("expected verdict text, got %q", verdict.Text)
	}
	prompt := invoker.lastUserContent
	for _, want := range []string{"alpha", DraftPlaceholder("model-b"), "DRAFT 1", "DRAFT 2"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("synthesis prompt missing %q:\n%s", want, prompt)
		}
	}
}

// captureInvoker records the last user message it received.
type captureInvoker struct {
	text            string
	lastUserContent string
}

func (c *captureInvoker) Invoke(_ context.Context, _ string, messages []llm.Message) (llm.Result, error) {
	for _, msg := range messages {
		if msg.Role == llm.RoleUser {
			c.lastUserContent = msg.Content
		}
	}
	return llm.Result{Text: c.text, LatencyMS: 3}, nil
}
