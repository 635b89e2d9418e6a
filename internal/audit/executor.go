package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/councilhq/councilapi/internal/llm"
	log "github.com/sirupsen/logrus"
)

// Draft is one drafter's settled outcome. Failed calls carry the placeholder
// text instead of aborting the run.
type Draft struct {
	Slot      Slot
	Text      string
	LatencyMS int64
	Failed    bool
}

// DraftPlaceholder is the response substituted for a failed drafter.
func DraftPlaceholder(modelID string) string {
	return fmt.Sprintf("[%s failed to respond]", modelID)
}

// Executor fans a prompt out to all drafters concurrently and joins on all of
// them settling. There is no early return on first failure or first success.
type Executor struct {
	invoker llm.Invoker
	timeout time.Duration
}

// NewExecutor constructs an Executor. timeout bounds each drafter call
// independently; zero means no per-call bound beyond the request context.
func NewExecutor(invoker llm.Invoker, timeout time.Duration) *Executor {
	return &Executor{invoker: invoker, timeout: timeout}
}

// RunDrafters invokes every drafter concurrently with the same messages and
// waits for all of them to settle. Results are returned in slot order.
func (e *Executor) RunDrafters(ctx context.Context, drafters []Slot, messages []llm.Message) []Draft {
	drafts := make([]Draft, len(drafters))

	var wg sync.WaitGroup
	for i, slot := range drafters {
		wg.Add(1)
		go func(i int, slot Slot) {
			defer wg.Done()
			drafts[i] = e.runOne(ctx, slot, messages)
		}(i, slot)
	}
	wg.Wait()

	return drafts
}

func (e *Executor) runOne(ctx context.Context, slot Slot, messages []llm.Message) Draft {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()
	result, errInvoke := e.invoker.Invoke(callCtx, slot.ModelID, messages)
	latency := result.LatencyMS
	if latency == 0 {
		latency = time.Since(started).Milliseconds()
	}
	if errInvoke != nil {
		log.WithError(errInvoke).Warnf("drafter %s failed, substituting placeholder", slot.ModelID)
		return Draft{
			Slot:      slot,
			Text:      DraftPlaceholder(slot.ModelID),
			LatencyMS: latency,
			Failed:    true,
		}
	}
	return Draft{Slot: slot, Text: result.Text, LatencyMS: latency}
}
