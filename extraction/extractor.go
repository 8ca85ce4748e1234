package extraction

import (
	"fmt"
	"log/slog"
	"strings"
)

// Result is the output of a successful extraction. Method tags which strategy
// produced the text (pdf_text, ocr, docx, xlsx, html). PageCount is zero for
// unpaginated formats.
type Result struct {
	Text      string
	PageCount int
	Method    string
}

// UnsupportedTypeError is returned for mime types no strategy handles.
type UnsupportedTypeError struct {
	MimeType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type for extraction: %s", e.MimeType)
}

// Extractor converts raw file bytes into plain text, routing by mime type.
// It never mutates job state; it just returns a result or an error.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger: logger,
	}
}

func (e *Extractor) Extract(data []byte, mimeType string) (Result, error) {
	switch strings.ToLower(mimeType) {
	case "application/pdf":
		return e.extractFromPDF(data)

	case "image/png", "image/jpeg", "image/jpg":
		text, err := e.extractFromImage(data)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, Method: "ocr"}, nil

	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		text, err := e.extractFromWord(data)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, Method: "docx"}, nil

	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		text, err := e.extractFromSpreadsheet(data)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, Method: "xlsx"}, nil

	case "text/html":
		text, err := e.extractFromHTML(data)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: text, Method: "html"}, nil

	default:
		return Result{}, &UnsupportedTypeError{MimeType: mimeType}
	}
}
