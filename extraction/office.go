package extraction

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/otiai10/gosseract/v2"
)

func (e *Extractor) extractFromWord(data []byte) (string, error) {
	mimeType := "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		e.logger.Error("Failed to convert Word document",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return "", fmt.Errorf("failed to convert Word document: %v", err)
	}

	if len(res.Body) == 0 {
		return "", fmt.Errorf("no text content extracted from Word document")
	}
	return strings.TrimSpace(res.Body), nil
}

func (e *Extractor) extractFromImage(data []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to load image for OCR: %v", err)
	}

	text, err := client.Text()
	if err != nil {
		e.logger.Error("OCR failed",
			slog.String("error", err.Error()),
			slog.Int("data_size", len(data)))
		return "", fmt.Errorf("failed to OCR image: %v", err)
	}
	return strings.TrimSpace(text), nil
}
