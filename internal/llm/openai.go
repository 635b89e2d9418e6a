package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient invokes models through an OpenAI-compatible chat completions
// endpoint and provides the moderation capability.
type OpenAIClient struct {
	client          openai.Client
	moderationModel string
}

// NewOpenAIClient constructs an OpenAIClient. baseURL may be empty for the
// default endpoint; moderationModel may be empty to use the vendor default.
func NewOpenAIClient(apiKey, baseURL, moderationModel string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client:          openai.NewClient(opts...),
		moderationModel: strings.TrimSpace(moderationModel),
	}
}

// Invoke sends the messages to the model and returns its text output.
func (c *OpenAIClient) Invoke(ctx context.Context, modelID string, messages []Message) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}

	started := time.Now()
	completion, errNew := c.client.Chat.Completions.New(ctx, params)
	latency := time.Since(started).Milliseconds()
	if errNew != nil {
		return Result{LatencyMS: latency}, fmt.Errorf("openai: invoke %s: %w", modelID, errNew)
	}
	if len(completion.Choices) == 0 {
		return Result{LatencyMS: latency}, fmt.Errorf("openai: invoke %s: empty choices", modelID)
	}
	return Result{
		Text:      completion.Choices[0].Message.Content,
		LatencyMS: latency,
	}, nil
}

// Moderate screens text through the moderation endpoint.
func (c *OpenAIClient) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	params := openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if c.moderationModel != "" {
		params.Model = c.moderationModel
	}

	resp, errNew := c.client.Moderations.New(ctx, params)
	if errNew != nil {
		return ModerationResult{}, fmt.Errorf("openai: moderate: %w", errNew)
	}
	if len(resp.Results) == 0 {
		return ModerationResult{}, fmt.Errorf("openai: moderate: empty results")
	}

	entry := resp.Results[0]
	out := ModerationResult{
		Flagged:    entry.Flagged,
		Scores:     scoreMap(entry.CategoryScores),
		Categories: flaggedCategories(entry.Categories),
	}
	return out, nil
}

// flaggedCategories lists category names whose flag is set. The vendor struct
// is flattened through JSON so new categories pass through without code changes.
func flaggedCategories(categories openai.ModerationCategories) []string {
	raw, errMarshal := json.Marshal(categories)
	if errMarshal != nil {
		return nil
	}
	var flags map[string]bool
	if errUnmarshal := json.Unmarshal(raw, &flags); errUnmarshal != nil {
		return nil
	}
	var out []string
	for name, flagged := range flags {
		if flagged {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func scoreMap(scores openai.ModerationCategoryScores) map[string]float64 {
	raw, errMarshal := json.Marshal(scores)
	if errMarshal != nil {
		return nil
	}
	var out map[string]float64
	if errUnmarshal := json.Unmarshal(raw, &out); errUnmarshal != nil {
		return nil
	}
	return out
}
