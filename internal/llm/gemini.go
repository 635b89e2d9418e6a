package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// maxDocumentBytes caps attachment downloads for vision extraction.
const maxDocumentBytes = 20 << 20

// GeminiClient invokes Gemini models and performs vision-based document
// extraction for attached files and brand-guideline documents.
type GeminiClient struct {
	client      *genai.Client
	visionModel string
	httpClient  *http.Client
}

// NewGeminiClient constructs a GeminiClient.
func NewGeminiClient(ctx context.Context, apiKey, visionModel string) (*GeminiClient, error) {
	client, errNew := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if errNew != nil {
		return nil, fmt.Errorf("gemini: new client: %w", errNew)
	}
	return &GeminiClient{
		client:      client,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Close releases the underlying client.
func (c *GeminiClient) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Invoke sends the messages to the model and returns its text output.
// System messages become the model's system instruction.
func (c *GeminiClient) Invoke(ctx context.Context, modelID string, messages []Message) (Result, error) {
	model := c.client.GenerativeModel(modelID)

	var systemParts []genai.Part
	var userParts []genai.Part
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, genai.Text(msg.Content))
			continue
		}
		userParts = append(userParts, genai.Text(msg.Content))
	}
	if len(systemParts) > 0 {
		model.SystemInstruction = &genai.Content{Parts: systemParts}
	}
	if len(userParts) == 0 {
		return Result{}, fmt.Errorf("gemini: invoke %s: no user content", modelID)
	}

	started := time.Now()
	resp, errGenerate := model.GenerateContent(ctx, userParts...)
	latency := time.Since(started).Milliseconds()
	if errGenerate != nil {
		return Result{LatencyMS: latency}, fmt.Errorf("gemini: invoke %s: %w", modelID, errGenerate)
	}
	text := responseText(resp)
	if text == "" {
		return Result{LatencyMS: latency}, fmt.Errorf("gemini: invoke %s: empty response", modelID)
	}
	return Result{Text: text, LatencyMS: latency}, nil
}

// ExtractDocument downloads a document and asks the vision model to extract
// text according to the instruction.
func (c *GeminiClient) ExtractDocument(ctx context.Context, fileURL, instruction string) (string, error) {
	data, mimeType, errFetch := c.fetchDocument(ctx, fileURL)
	if errFetch != nil {
		return "", errFetch
	}

	model := c.client.GenerativeModel(c.visionModel)
	resp, errGenerate := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(instruction),
	)
	if errGenerate != nil {
		return "", fmt.Errorf("gemini: extract %s: %w", fileURL, errGenerate)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini: extract %s: empty response", fileURL)
	}
	return text, nil
}

func (c *GeminiClient) fetchDocument(ctx context.Context, fileURL string) ([]byte, string, error) {
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if errReq != nil {
		return nil, "", fmt.Errorf("gemini: fetch %s: %w", fileURL, errReq)
	}
	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return nil, "", fmt.Errorf("gemini: fetch %s: %w", fileURL, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("gemini: fetch %s: status %d", fileURL, resp.StatusCode)
	}
	data, errRead := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if errRead != nil {
		return nil, "", fmt.Errorf("gemini: fetch %s: %w", fileURL, errRead)
	}

	mimeType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return data, mimeType, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	return strings.TrimSpace(sb.String())
}
