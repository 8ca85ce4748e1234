package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docuflow/docuflow/document"
)

// Result carries everything the AI stage produced for one document. When the
// stage degrades, the fields hold the documented defaults instead of being
// absent.
type Result struct {
	DocumentType  document.Type
	Confidence    float64
	ExtractedData map[string]interface{}
	Summary       string
	Cost          float64
}

// Enricher runs classification, structured extraction and summarization over
// extracted text. ProcessDocument never returns an error: enrichment is
// best-effort relative to extraction, and any failure degrades to defaults.
type Enricher struct {
	llm    LLMService
	logger *slog.Logger
}

func NewEnricher(llm LLMService, logger *slog.Logger) *Enricher {
	return &Enricher{
		llm:    llm,
		logger: logger,
	}
}

// CountTokens estimates the token count of a text. Exact tokenization is not
// available here, so the standard ~4 characters per token heuristic is used.
func (e *Enricher) CountTokens(text string) int {
	return len(text) / 4
}

// TruncateText cuts the text down to roughly maxTokens, appending a marker
// when anything was dropped.
func (e *Enricher) TruncateText(text string, maxTokens int) string {
	tokenCount := e.CountTokens(text)
	if tokenCount <= maxTokens {
		return text
	}

	charLimit := maxTokens * 4
	truncated := text[:charLimit]

	e.logger.Warn("Text truncated for model call",
		slog.Int("original_tokens", tokenCount),
		slog.Int("max_tokens", maxTokens))

	return truncated + "\n\n[... text truncated due to length ...]"
}

// ClassifyDocument asks the model to categorize the text, returning the type
// and a confidence score. Failures fall back to ("other", 0.0); the returned
// error reports what degraded the call, it never aborts enrichment.
func (e *Enricher) ClassifyDocument(ctx context.Context, text string) (document.Type, float64, error) {
	text = e.TruncateText(text, 3000)

	prompt := fmt.Sprintf(`Analyze the following document and classify it into one of these categories:
- invoice: Bills, invoices, payment requests
- contract: Legal agreements, contracts, terms of service
- resume: CVs, resumes, job applications
- receipt: Sales receipts, purchase confirmations
- form: Application forms, questionnaires, surveys
- letter: Business letters, correspondence
- report: Reports, analyses, white papers
- other: Anything else

Document text:
%s

Respond ONLY with a JSON object in this exact format:
{
    "document_type": "invoice",
    "confidence": 0.95,
    "reasoning": "Brief explanation"
}`, text)

	response, err := e.llm.Complete(ctx, CompletionRequest{
		System:      "You are a document classification expert. Always respond with valid JSON only.",
		Prompt:      prompt,
		MaxTokens:   200,
		Temperature: 0.3,
	})
	if err != nil {
		e.logger.Error("Error classifying document",
			slog.String("error", err.Error()))
		return document.TypeOther, 0.0, err
	}

	var result struct {
		DocumentType string  `json:"document_type"`
		Confidence   float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &result); err != nil {
		e.logger.Error("Malformed classification response",
			slog.String("error", err.Error()))
		return document.TypeOther, 0.0, err
	}

	docType := document.Type(result.DocumentType)
	if !validDocumentType(docType) {
		docType = document.TypeOther
	}

	e.logger.Info("Document classified",
		slog.String("document_type", string(docType)),
		slog.Float64("confidence", result.Confidence))

	return docType, result.Confidence, nil
}

// ExtractStructuredData pulls type-specific fields out of the text. Failures
// yield a payload carrying the error instead of propagating it; the returned
// error reports the degradation.
func (e *Enricher) ExtractStructuredData(ctx context.Context, text string, docType document.Type) (map[string]interface{}, error) {
	text = e.TruncateText(text, 4000)

	fields, example := extractionSchema(docType)
	exampleJSON, _ := json.MarshalIndent(example, "", "  ")

	prompt := fmt.Sprintf(`Extract structured data from this %s document.

Extract these fields: %s

Example format:
%s

Document text:
%s

Respond ONLY with a JSON object containing the extracted data. If a field is not found, use null.`,
		docType, strings.Join(fields, ", "), exampleJSON, text)

	response, err := e.llm.Complete(ctx, CompletionRequest{
		System:      "You are a data extraction expert. Extract information accurately and respond with valid JSON only.",
		Prompt:      prompt,
		MaxTokens:   1500,
		Temperature: 0.2,
	})
	if err != nil {
		e.logger.Error("Error extracting structured data",
			slog.String("error", err.Error()))
		return map[string]interface{}{"error": err.Error()}, err
	}

	var extracted map[string]interface{}
	if err := json.Unmarshal([]byte(stripCodeFences(response)), &extracted); err != nil {
		e.logger.Error("Malformed structured data response",
			slog.String("error", err.Error()))
		return map[string]interface{}{"error": err.Error()}, err
	}

	e.logger.Info("Extracted structured data",
		slog.Int("field_count", len(extracted)),
		slog.String("document_type", string(docType)))

	return extracted, nil
}

// GenerateSummary produces a short summary of the document. Failures fall
// back to an empty summary; the returned error reports the degradation.
func (e *Enricher) GenerateSummary(ctx context.Context, text string) (string, error) {
	text = e.TruncateText(text, 4000)

	prompt := fmt.Sprintf(`Summarize the following document in exactly 3 clear, concise sentences.
Focus on the most important information.

Document text:
%s

Summary:`, text)

	summary, err := e.llm.Complete(ctx, CompletionRequest{
		System:      "You are a document summarization expert. Create clear, concise summaries.",
		Prompt:      prompt,
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		e.logger.Error("Error generating summary",
			slog.String("error", err.Error()))
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

// CalculateCost estimates the dollar cost of the model calls.
// GPT-4 Turbo pricing: $0.01 per 1K input tokens, $0.03 per 1K output tokens.
func (e *Enricher) CalculateCost(inputTokens, outputTokens int) float64 {
	inputCost := float64(inputTokens) / 1000 * 0.01
	outputCost := float64(outputTokens) / 1000 * 0.03
	return inputCost + outputCost
}

// ProcessDocument runs the full enrichment: classification, structured
// extraction and summary, plus a rough cost estimate. It never fails; a bad
// model response degrades to the default low-confidence result. Cost accrues
// only for sub-steps whose model call succeeded, so a total outage reports a
// cost of exactly zero.
func (e *Enricher) ProcessDocument(ctx context.Context, text string) Result {
	docType, confidence, classifyErr := e.ClassifyDocument(ctx, text)
	extracted, extractErr := e.ExtractStructuredData(ctx, text, docType)
	summary, summaryErr := e.GenerateSummary(ctx, text)

	// The text is sent on each of the three calls; outputs are small.
	completed := 0
	for _, err := range []error{classifyErr, extractErr, summaryErr} {
		if err == nil {
			completed++
		}
	}
	cost := 0.0
	if completed > 0 {
		inputTokens := e.CountTokens(text) * completed
		outputTokens := 500
		cost = e.CalculateCost(inputTokens, outputTokens)
	}

	return Result{
		DocumentType:  docType,
		Confidence:    confidence,
		ExtractedData: extracted,
		Summary:       summary,
		Cost:          cost,
	}
}

// stripCodeFences removes markdown code fences some models wrap JSON in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func validDocumentType(t document.Type) bool {
	switch t {
	case document.TypeInvoice, document.TypeContract, document.TypeResume,
		document.TypeReceipt, document.TypeForm, document.TypeLetter,
		document.TypeReport, document.TypeOther:
		return true
	}
	return false
}

func extractionSchema(docType document.Type) ([]string, map[string]interface{}) {
	switch docType {
	case document.TypeInvoice:
		return []string{
				"invoice_number", "date", "due_date", "vendor_name", "vendor_address",
				"customer_name", "customer_address", "subtotal", "tax", "total", "currency", "line_items",
			}, map[string]interface{}{
				"invoice_number": "INV-2024-001",
				"date":           "2024-01-15",
				"vendor_name":    "Acme Corp",
				"total":          1234.56,
				"currency":       "USD",
				"line_items": []map[string]interface{}{
					{"description": "Service A", "quantity": 2, "price": 100.00},
				},
			}
	case document.TypeContract:
		return []string{
				"contract_type", "parties", "effective_date", "expiration_date",
				"contract_value", "key_terms", "termination_clause",
			}, map[string]interface{}{
				"contract_type":  "Service Agreement",
				"parties":        []string{"Company A", "Company B"},
				"effective_date": "2024-01-01",
				"contract_value": 50000.00,
			}
	case document.TypeResume:
		return []string{
				"name", "email", "phone", "location", "summary", "skills",
				"work_experience", "education", "certifications",
			}, map[string]interface{}{
				"name":   "John Doe",
				"email":  "john@example.com",
				"skills": []string{"Python", "JavaScript", "SQL"},
				"work_experience": []map[string]interface{}{
					{"company": "Tech Corp", "role": "Developer", "duration": "2020-2023"},
				},
			}
	case document.TypeReceipt:
		return []string{
				"store_name", "date", "time", "items", "subtotal", "tax", "total", "payment_method",
			}, map[string]interface{}{
				"store_name": "Coffee Shop",
				"date":       "2024-01-15",
				"total":      12.50,
				"items": []map[string]interface{}{
					{"name": "Coffee", "price": 4.50},
				},
			}
	default:
		return []string{
				"key_information", "important_dates", "amounts", "parties_involved",
			}, map[string]interface{}{
				"key_information": "Main content summary",
			}
	}
}
