package audit

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/councilhq/councilapi/internal/models"
)

// stubExtractor returns a canned extraction per file URL.
type stubExtractor struct {
	byURL map[string]string
	err   error
	calls int
}

func (s *stubExtractor) ExtractDocument(_ context.Context, fileURL, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if text, ok := s.byURL[fileURL]; ok {
		return text, nil
	}
	return "extracted " + fileURL, nil
}

func TestAssembleFreshFileIsExtractedAndPersisted(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, nil)
	extractor := &stubExtractor{byURL: map[string]string{"https://cdn/report.pdf": "Q3 revenue was 1.2M."}}
	assembler := NewAssembler(conn, extractor)

	out := assembler.Assemble(context.Background(), user.ID, "https://cdn/report.pdf", "conv-1")
	if out.DocumentContext != "Q3 revenue was 1.2M." {
		t.Fatalf("unexpected document context: %q", out.DocumentContext)
	}
	if out.LibrarianAnalysis != out.DocumentContext {
		t.Fatalf("fresh extraction should be surfaced to the caller")
	}

	var stored models.ConversationContext
	if errFind := conn.Where("conversation_id = ?", "conv-1").First(&stored).Error; errFind != nil {
		t.Fatalf("expected persisted conversation context: %v", errFind)
	}
	if stored.Context != "Q3 revenue was 1.2M." || stored.UserID != user.ID {
		t.Fatalf("unexpected stored context: %+v", stored)
	}
}

func TestAssembleRecallsPersistedContextWithoutFile(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, nil)
	stored := models.ConversationContext{UserID: user.ID, ConversationID: "conv-2", Context: "earlier findings"}
	if errCreate := conn.Create(&stored).Error; errCreate != nil {
		t.Fatalf("create context: %v", errCreate)
	}
	extractor := &stubExtractor{}
	assembler := NewAssembler(conn, extractor)

	out := assembler.Assemble(context.Background(), user.ID, "", "conv-2")
	if out.DocumentContext != "earlier findings" {
		t.Fatalf("expected recalled context, got %q", out.DocumentContext)
	}
	if out.LibrarianAnalysis != "" {
		t.Fatalf("recalled context must not be reported as a fresh extraction")
	}
	if extractor.calls != 0 {
		t.Fatalf("no extraction should happen without a file, got %d calls", extractor.calls)
	}
}

func TestAssembleFileTakesPrecedenceOverRecalledContext(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, nil)
	stored := models.ConversationContext{UserID: user.ID, ConversationID: "conv-3", Context: "stale"}
	if errCreate := conn.Create(&stored).Error; errCreate != nil {
		t.Fatalf("create context: %v", errCreate)
	}
	extractor := &stubExtractor{byURL: map[string]string{"https://cdn/new.pdf": "fresh"}}
	assembler := NewAssembler(conn, extractor)

	out := assembler.Assemble(context.Background(), user.ID, "https://cdn/new.pdf", "conv-3")
	if out.DocumentContext != "fresh" {
		t.Fatalf("file extraction should win, got %q", out.DocumentContext)
	}

	var reloaded models.ConversationContext
	if errFind := conn.Where("conversation_id = ?", "conv-3").First(&reloaded).Error; errFind != nil {
		t.Fatalf("reload context: %v", errFind)
	}
	if reloaded.Context != "fresh" {
		t.Fatalf("persisted context should be replaced, got %q", reloaded.Context)
	}
}

func TestAssembleExtractionFailureDegradesToTextOnly(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, nil)
	extractor := &stubExtractor{err: fmt.Errorf("vision model unavailable")}
	assembler := NewAssembler(conn, extractor)

	out := assembler.Assemble(context.Background(), user.ID, "https://cdn/broken.pdf", "conv-4")
	if out.DocumentContext != "" || out.LibrarianAnalysis != "" {
		t.Fatalf("failed extraction must degrade to empty context, got %+v", out)
	}

	var count int64
	conn.Model(&models.ConversationContext{}).Count(&count)
	if count != 0 {
		t.Fatalf("nothing should be persisted after a failed extraction")
	}
}

func TestAssembleBrandGuidelinesUseCachedSummary(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, nil)
	doc := models.BrandDocument{UserID: user.ID, FileURL: "https://cdn/brand.pdf", Summary: "Friendly, concise.", IsActive: true}
	if errCreate := conn.Create(&doc).Error; errCreate != nil {
		t.Fatalf("create brand document: %v", errCreate)
	}
	extractor := &stubExtractor{}
	assembler := NewAssembler(conn, extractor)

	out := assembler.Assemble(context.Background(), user.ID, "", "")
	if out.BrandGuidelines != "Friendly, concise." {
		t.Fatalf("expected cached summary, got %q", out.BrandGuidelines)
	}
	if extractor.calls != 0 {
		t.Fatalf("cached summary must not trigger extraction")
	}

	directive := out.SystemDirective()
	if !strings.Contains(directive, "Friendly, concise.") {
		t.Fatalf("system directive should carry the guidelines: %q", directive)
	}
}

func TestAssembleBrandGuidelinesExtractedAndCached(t *testing.T) {
	conn := openTestDB(t)
	user := createTestUser(t, conn, nil)
	doc := models.BrandDocument{UserID: user.ID, FileURL: "https://cdn/brand.pdf", IsActive: true}
	if errCreate := conn.Create(&doc).Error; errCreate != nil {
		t.Fatalf("create brand document: %v", errCreate)
	}
	extractor := &stubExtractor{byURL: map[string]string{"https://cdn/brand.pdf": "Bold and direct."}}
	assembler := NewAssembler(conn, extractor)

	out := assembler.Assemble(context.Background(), user.ID, "", "")
	if out.BrandGuidelines != "Bold and direct." {
		t.Fatalf("expected extracted guidelines, got %q", out.BrandGuidelines)
	}

	var reloaded models.BrandDocument
	if errFind := conn.First(&reloaded, doc.ID).Error; errFind != nil {
		t.Fatalf("reload brand document: %v", errFind)
	}
	if reloaded.Summary != "Bold and direct." {
		t.Fatalf("summary should be cached on the row, got %q", reloaded.Summary)
	}
}

func TestWrapPromptFencesUserText(t *testing.T) {
	wrapped := WrapPrompt("audit this claim")
	if !strings.Contains(wrapped, "audit this claim") {
		t.Fatalf("prompt text missing from wrapper: %q", wrapped)
	}
	if !strings.HasPrefix(wrapped, promptBoundaryOpen) || !strings.HasSuffix(wrapped, promptBoundaryClose) {
		t.Fatalf("boundary markers missing: %q", wrapped)
	}
}
