package extraction

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/ledongthuc/pdf"
)

// pageSource abstracts a paginated document so the per-page skip logic can be
// exercised without real PDF bytes.
type pageSource interface {
	pageCount() int
	pageText(n int) (string, error)
}

func (e *Extractor) extractFromPDF(data []byte) (Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.logger.Error("Failed to create PDF reader",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return Result{}, fmt.Errorf("failed to create PDF reader: %v", err)
	}

	src := &ledongthucSource{reader: reader}
	text, pageCount := e.extractPages(src)

	// No text layer: likely a scanned document, fall back to OCR.
	method := "pdf_text"
	if strings.TrimSpace(text) == "" {
		e.logger.Info("No text found in PDF, attempting OCR",
			slog.Int("total_pages", pageCount))
		text = e.ocrPDF(data)
		method = "ocr"
	}

	return Result{Text: strings.TrimSpace(text), PageCount: pageCount, Method: method}, nil
}

// extractPages walks every page, skipping pages that fail so partial text
// from the rest of the document is still returned. The reported page count is
// the document's total, skipped pages included.
func (e *Extractor) extractPages(src pageSource) (string, int) {
	var b strings.Builder
	total := src.pageCount()

	for pageNum := 1; pageNum <= total; pageNum++ {
		text, err := src.pageText(pageNum)
		if err != nil {
			e.logger.Warn("Error extracting text from page, skipping",
				slog.Int("page_number", pageNum),
				slog.String("error", err.Error()))
			continue
		}
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- Page %d ---\n%s", pageNum, text)
	}
	return b.String(), total
}

func (e *Extractor) ocrPDF(data []byte) string {
	res, err := docconv.Convert(bytes.NewReader(data), "application/pdf", true)
	if err != nil {
		e.logger.Error("PDF OCR fallback failed",
			slog.String("error", err.Error()))
		return ""
	}
	return res.Body
}

type ledongthucSource struct {
	reader *pdf.Reader
}

func (s *ledongthucSource) pageCount() int {
	return s.reader.NumPage()
}

func (s *ledongthucSource) pageText(n int) (text string, err error) {
	// The pdf library can panic on malformed page content streams; contain it
	// so one bad page does not take down the whole extraction.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading page %d: %v", n, r)
		}
	}()

	page := s.reader.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("null page %d", n)
	}
	return page.GetPlainText(nil)
}
