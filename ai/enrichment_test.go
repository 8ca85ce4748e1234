package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/docuflow/docuflow/document"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLLM returns canned responses keyed on a substring of the system prompt.
type fakeLLM struct {
	responses map[string]string
	err       error
	requests  []CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	for key, resp := range f.responses {
		if strings.Contains(req.System, key) {
			return resp, nil
		}
	}
	return "", errors.New("no canned response")
}

func TestClassifyDocument(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"classification": `{"document_type": "invoice", "confidence": 0.95, "reasoning": "has line items"}`,
	}}
	e := NewEnricher(llm, testLogger())

	docType, confidence, err := e.ClassifyDocument(context.Background(), "Invoice #123 for services rendered")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docType != document.TypeInvoice {
		t.Errorf("expected invoice, got %s", docType)
	}
	if confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", confidence)
	}
}

func TestClassifyDocumentStripsCodeFences(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"classification": "```json\n{\"document_type\": \"contract\", \"confidence\": 0.8}\n```",
	}}
	e := NewEnricher(llm, testLogger())

	docType, confidence, _ := e.ClassifyDocument(context.Background(), "This agreement is between")

	if docType != document.TypeContract || confidence != 0.8 {
		t.Errorf("expected (contract, 0.8), got (%s, %f)", docType, confidence)
	}
}

func TestClassifyDocumentMalformedResponse(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"classification": "I think this is an invoice.",
	}}
	e := NewEnricher(llm, testLogger())

	docType, confidence, err := e.ClassifyDocument(context.Background(), "some text")

	if err == nil {
		t.Error("expected degradation to be reported")
	}
	if docType != document.TypeOther || confidence != 0.0 {
		t.Errorf("expected (other, 0.0) fallback, got (%s, %f)", docType, confidence)
	}
}

func TestClassifyDocumentUnknownCategory(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"classification": `{"document_type": "novel", "confidence": 0.9}`,
	}}
	e := NewEnricher(llm, testLogger())

	docType, _, _ := e.ClassifyDocument(context.Background(), "some text")

	if docType != document.TypeOther {
		t.Errorf("expected unlisted category to fall back to other, got %s", docType)
	}
}

func TestExtractStructuredDataError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model unavailable")}
	e := NewEnricher(llm, testLogger())

	data, err := e.ExtractStructuredData(context.Background(), "text", document.TypeInvoice)

	if err == nil {
		t.Error("expected degradation to be reported")
	}
	if data["error"] != "model unavailable" {
		t.Errorf("expected error payload, got %v", data)
	}
}

func TestGenerateSummaryErrorFallsBackToEmpty(t *testing.T) {
	llm := &fakeLLM{err: errors.New("model unavailable")}
	e := NewEnricher(llm, testLogger())

	summary, err := e.GenerateSummary(context.Background(), "text")
	if err == nil {
		t.Error("expected degradation to be reported")
	}
	if summary != "" {
		t.Errorf("expected empty summary on error, got %q", summary)
	}
}

func TestTruncateText(t *testing.T) {
	e := NewEnricher(&fakeLLM{}, testLogger())

	short := "brief text"
	if got := e.TruncateText(short, 100); got != short {
		t.Errorf("expected short text untouched, got %q", got)
	}

	long := strings.Repeat("a", 1000)
	got := e.TruncateText(long, 100)
	if !strings.HasSuffix(got, "[... text truncated due to length ...]") {
		t.Errorf("expected truncation marker, got suffix %q", got[len(got)-50:])
	}
	if !strings.HasPrefix(got, strings.Repeat("a", 400)) {
		t.Error("expected 400 characters retained for 100 tokens")
	}
}

func TestCountTokens(t *testing.T) {
	e := NewEnricher(&fakeLLM{}, testLogger())

	if got := e.CountTokens(strings.Repeat("x", 400)); got != 100 {
		t.Errorf("expected 100 tokens for 400 chars, got %d", got)
	}
}

func TestCalculateCost(t *testing.T) {
	e := NewEnricher(&fakeLLM{}, testLogger())

	// 2000 input tokens at $0.01/1K plus 500 output tokens at $0.03/1K.
	got := e.CalculateCost(2000, 500)
	want := 0.035
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected cost %f, got %f", want, got)
	}
}

func TestProcessDocumentNeverFails(t *testing.T) {
	llm := &fakeLLM{err: errors.New("total outage")}
	e := NewEnricher(llm, testLogger())

	result := e.ProcessDocument(context.Background(), "a perfectly fine document body")

	if result.DocumentType != document.TypeOther {
		t.Errorf("expected other, got %s", result.DocumentType)
	}
	if result.Confidence != 0.0 {
		t.Errorf("expected zero confidence, got %f", result.Confidence)
	}
	if result.Summary != "" {
		t.Errorf("expected empty summary, got %q", result.Summary)
	}
	if result.ExtractedData["error"] == nil {
		t.Errorf("expected error payload in extracted data, got %v", result.ExtractedData)
	}
	// Nothing completed, nothing billed.
	if result.Cost != 0.0 {
		t.Errorf("expected zero cost for fully degraded enrichment, got %f", result.Cost)
	}
}

func TestProcessDocumentPartialDegradeStillBills(t *testing.T) {
	// Classification succeeds; extraction and summary degrade.
	llm := &fakeLLM{responses: map[string]string{
		"classification": `{"document_type": "letter", "confidence": 0.7}`,
	}}
	e := NewEnricher(llm, testLogger())

	result := e.ProcessDocument(context.Background(), "Dear Sir or Madam, I write regarding the matter below.")

	if result.DocumentType != document.TypeLetter {
		t.Errorf("expected letter, got %s", result.DocumentType)
	}
	if result.Cost <= 0 {
		t.Errorf("expected cost for the completed call, got %f", result.Cost)
	}
}

func TestProcessDocumentFullRun(t *testing.T) {
	llm := &fakeLLM{responses: map[string]string{
		"classification": `{"document_type": "receipt", "confidence": 0.9}`,
		"data extraction": `{"store_name": "Coffee Shop", "total": 12.5}`,
		"summarization":   "A receipt from a coffee shop. It totals $12.50. Paid by card.",
	}}
	e := NewEnricher(llm, testLogger())

	result := e.ProcessDocument(context.Background(), "Coffee Shop receipt total 12.50")

	if result.DocumentType != document.TypeReceipt {
		t.Errorf("expected receipt, got %s", result.DocumentType)
	}
	if result.ExtractedData["store_name"] != "Coffee Shop" {
		t.Errorf("unexpected extracted data: %v", result.ExtractedData)
	}
	if !strings.Contains(result.Summary, "coffee shop") {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if len(llm.requests) != 3 {
		t.Errorf("expected 3 model calls, got %d", len(llm.requests))
	}
}
