package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/councilhq/councilapi/internal/llm"
	"github.com/councilhq/councilapi/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Request is one audit run as submitted by the caller. CouncilConfig is
// optional; an empty slice selects the persisted default council.
type Request struct {
	Prompt         string      `json:"prompt"`
	FileURL        string      `json:"fileUrl"`
	ConversationID string      `json:"conversationId"`
	CouncilConfig  []SlotInput `json:"councilConfig"`
	CouncilSource  string      `json:"councilSource"`
	NotifyByEmail  bool        `json:"notifyByEmail"`
	TurboMode      bool        `json:"turboMode"`
}

// DraftPayload is one drafter's contribution in the response.
type DraftPayload struct {
	Agent    string `json:"agent"`
	Name     string `json:"name"`
	Response string `json:"response"`
}

// ComputeStats summarizes the run's footprint.
type ComputeStats struct {
	TotalTokens   int64   `json:"totalTokens"`
	EstimatedCost float64 `json:"estimatedCost"`
	ModelCount    int     `json:"modelCount"`
}

// Response is the success payload of an audit run.
type Response struct {
	Drafts            []DraftPayload `json:"drafts"`
	Verdict           string         `json:"verdict"`
	LibrarianAnalysis *string        `json:"librarianAnalysis"`
	RemainingAudits   int64          `json:"remainingAudits"`
	TrainingDatasetID *string        `json:"trainingDatasetId"`
	ComputeStats      ComputeStats   `json:"computeStats"`
}

// Pipeline chains the full audit run: admission, costing, context assembly,
// drafter fan-out, synthesis, ledger commit, and telemetry.
type Pipeline struct {
	db          *gorm.DB
	gate        *Gate
	estimator   *Estimator
	assembler   *Assembler
	executor    *Executor
	synthesizer *Synthesizer
	updater     *Updater
	recorder    *Recorder
	dispatcher  TaskDispatcher
}

// NewPipeline wires the pipeline stages together.
func NewPipeline(db *gorm.DB, gate *Gate, estimator *Estimator, assembler *Assembler, executor *Executor, synthesizer *Synthesizer, updater *Updater, recorder *Recorder, dispatcher TaskDispatcher) *Pipeline {
	return &Pipeline{
		db:          db,
		gate:        gate,
		estimator:   estimator,
		assembler:   assembler,
		executor:    executor,
		synthesizer: synthesizer,
		updater:     updater,
		recorder:    recorder,
		dispatcher:  dispatcher,
	}
}

// Run executes one audit for userID. Rejections before the drafter fan-out
// charge nothing; a synthesis failure after successful drafts also charges
// nothing. The ledger is written exactly once, after the verdict exists.
func (p *Pipeline) Run(ctx context.Context, userID uint64, req Request) (*Response, *Error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrBadRequest("A prompt is required.")
	}

	admission, errGate := p.gate.Check(ctx, userID, prompt)
	if errGate != nil {
		p.logRejection(ctx, userID, req.ConversationID, errGate)
		return nil, errGate
	}

	council, errCouncil := p.resolveCouncil(ctx, req)
	if errCouncil != nil {
		p.logRejection(ctx, userID, req.ConversationID, errCouncil)
		return nil, errCouncil
	}

	estimate := p.estimator.Estimate(council)
	if errBalance := p.estimator.CheckBalance(admission.Ledger, estimate); errBalance != nil {
		p.logRejection(ctx, userID, req.ConversationID, errBalance)
		return nil, errBalance
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	assembled := p.assembler.Assemble(ctx, userID, req.FileURL, conversationID)
	wrapped := WrapPrompt(prompt)

	messages := make([]llm.Message, 0, 2)
	if directive := assembled.SystemDirective(); directive != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: directive})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: wrapped})

	drafts := p.executor.RunDrafters(ctx, council.Drafters, messages)

	verdict, errSynth := p.synthesizer.Synthesize(ctx, council.Auditor, assembled, wrapped, drafts)
	if errSynth != nil {
		p.logRejection(ctx, userID, conversationID, errSynth)
		return nil, errSynth
	}

	description := fmt.Sprintf("Audit run: %d drafters + %s", len(council.Drafters), council.Auditor.ModelID)
	ledgerResult, errLedger := p.updater.Apply(ctx, admission, estimate, description)
	if errLedger != nil {
		p.logRejection(ctx, userID, conversationID, errLedger)
		return nil, errLedger
	}

	run := RunRecord{
		Admission:      admission,
		Council:        council,
		Drafts:         drafts,
		Verdict:        verdict,
		WrappedPrompt:  wrapped,
		Estimate:       estimate,
		ConversationID: conversationID,
	}
	p.recorder.Record(ctx, run)

	trainingID := p.enqueueTrainingCapture(ctx, userID, prompt, council, drafts, verdict)
	if req.NotifyByEmail {
		p.enqueueVerdictEmail(ctx, admission, conversationID, verdict)
	}

	return p.buildResponse(admission, council, drafts, verdict, assembled, estimate, ledgerResult, trainingID), nil
}

// resolveCouncil picks the caller's council or the persisted default. Turbo
// mode trims the run to the first drafter plus the auditor.
func (p *Pipeline) resolveCouncil(ctx context.Context, req Request) (Council, *Error) {
	var council Council
	var errResolve *Error
	if len(req.CouncilConfig) > 0 {
		source := strings.TrimSpace(req.CouncilSource)
		if source == "" {
			source = "custom"
		}
		council, errResolve = ResolveCouncil(req.CouncilConfig, source)
	} else {
		council, errResolve = LoadDefaultCouncil(ctx, p.db)
	}
	if errResolve != nil {
		return Council{}, errResolve
	}
	if req.TurboMode && len(council.Drafters) > 1 {
		council.Drafters = council.Drafters[:1]
	}
	return council, nil
}

func (p *Pipeline) buildResponse(admission Admission, council Council, drafts []Draft, verdict Verdict, assembled AssembledContext, estimate decimal.Decimal, ledgerResult LedgerResult, trainingID *string) *Response {
	payloads := make([]DraftPayload, 0, len(drafts))
	totalTokens := llm.EstimateTokens(verdict.Text)
	for _, draft := range drafts {
		payloads = append(payloads, DraftPayload{
			Agent:    draft.Slot.ModelID,
			Name:     draft.Slot.DisplayName,
			Response: draft.Text,
		})
		totalTokens += llm.EstimateTokens(draft.Text)
	}

	var analysis *string
	if assembled.LibrarianAnalysis != "" {
		text := assembled.LibrarianAnalysis
		analysis = &text
	}

	remaining := int64(-1)
	if !admission.User.Premium {
		remaining = MonthlyQuota(admission.Counters.Tier) - ledgerResult.AuditsThisMonth
		if remaining < 0 {
			remaining = 0
		}
	}

	cost, _ := estimate.Float64()
	return &Response{
		Drafts:            payloads,
		Verdict:           verdict.Text,
		LibrarianAnalysis: analysis,
		RemainingAudits:   remaining,
		TrainingDatasetID: trainingID,
		ComputeStats: ComputeStats{
			TotalTokens:   totalTokens,
			EstimatedCost: cost,
			ModelCount:    len(council.Drafters) + 1,
		},
	}
}

// enqueueTrainingCapture schedules a best-effort training snapshot of the
// prompt, the first two drafts, and the verdict. Runs with a single drafter
// are not captured. Returns the dataset id handed back to the caller, or nil.
func (p *Pipeline) enqueueTrainingCapture(ctx context.Context, userID uint64, prompt string, council Council, drafts []Draft, verdict Verdict) *string {
	if len(drafts) < 2 {
		return nil
	}
	datasetID := uuid.NewString()
	payload := map[string]any{
		"dataset_id":      datasetID,
		"prompt":          prompt,
		"draft_one_model": drafts[0].Slot.ModelID,
		"draft_one_text":  drafts[0].Text,
		"draft_two_model": drafts[1].Slot.ModelID,
		"draft_two_text":  drafts[1].Text,
		"verdict_model":   council.Auditor.ModelID,
		"verdict_text":    verdict.Text,
		"council_source":  council.Source,
	}
	if errEnqueue := p.dispatcher.Enqueue(ctx, userID, models.TaskTypeTrainingCapture, payload); errEnqueue != nil {
		log.WithError(errEnqueue).Warn("training capture enqueue failed")
		return nil
	}
	return &datasetID
}

func (p *Pipeline) enqueueVerdictEmail(ctx context.Context, admission Admission, conversationID string, verdict Verdict) {
	payload := map[string]any{
		"email":           admission.User.Email,
		"conversation_id": conversationID,
		"verdict":         verdict.Text,
	}
	if errEnqueue := p.dispatcher.Enqueue(ctx, admission.User.ID, models.TaskTypeVerdictEmail, payload); errEnqueue != nil {
		log.WithError(errEnqueue).Warn("verdict email enqueue failed")
	}
}

// logRejection records a rejected or failed run. Unauthenticated requests
// have no owner row to attach the entry to and are skipped.
func (p *Pipeline) logRejection(ctx context.Context, userID uint64, conversationID string, cause *Error) {
	if userID == 0 {
		return
	}
	metadata, _ := json.Marshal(map[string]any{"kind": string(cause.Kind)})
	entry := models.ActivityLog{
		UserID:         userID,
		Event:          models.ActivityAuditRejected,
		Description:    cause.Detail,
		ConversationID: conversationID,
		Metadata:       datatypes.JSON(metadata),
	}
	if errCreate := p.db.WithContext(ctx).Create(&entry).Error; errCreate != nil {
		log.WithError(errCreate).Warn("rejection log write failed")
	}
}
