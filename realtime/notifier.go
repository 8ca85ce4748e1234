package realtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/docuflow/docuflow/document"
)

// StatusEvent is the transient message pushed to clients on every pipeline
// milestone. Progress values are a fixed contract relied on by client
// progress bars: 0 failed, 10 extraction started, 40 extraction done,
// 50 AI started, 70 classification done, 100 completed.
type StatusEvent struct {
	Type       string                 `json:"type"`
	DocumentID int64                  `json:"document_id"`
	Status     document.Status        `json:"status"`
	Message    string                 `json:"message,omitempty"`
	Progress   *int                   `json:"progress,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Notifier translates pipeline milestones into status events and routes them
// through the registry: document subscribers first, then the global set.
type Notifier struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
}

func NewNotifier(registry *Registry, logger *slog.Logger) *Notifier {
	return &Notifier{
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

func (n *Notifier) notifyDocumentStatus(documentID int64, status document.Status, message string, progress int, metadata map[string]interface{}) {
	event := StatusEvent{
		Type:       "document_status",
		DocumentID: documentID,
		Status:     status,
		Message:    message,
		Progress:   &progress,
		Metadata:   metadata,
		Timestamp:  n.now().UTC().Format(time.RFC3339Nano),
	}

	n.registry.BroadcastToDocument(documentID, event)
	n.registry.Broadcast(event)

	n.logger.Info("Notified status change",
		slog.Int64("document_id", documentID),
		slog.String("status", string(status)),
		slog.Int("progress", progress))
}

func (n *Notifier) ExtractionStarted(documentID int64) {
	n.notifyDocumentStatus(documentID, document.StatusProcessing, "Text extraction started", 10, nil)
}

func (n *Notifier) ExtractionCompleted(documentID int64, method string, pageCount int) {
	metadata := map[string]interface{}{"extraction_method": method}
	if pageCount > 0 {
		metadata["page_count"] = pageCount
	}
	n.notifyDocumentStatus(documentID, document.StatusProcessing, "Text extraction completed", 40, metadata)
}

func (n *Notifier) AIProcessingStarted(documentID int64) {
	n.notifyDocumentStatus(documentID, document.StatusProcessing, "AI processing started", 50, nil)
}

func (n *Notifier) ClassificationCompleted(documentID int64, documentType document.Type, confidence float64) {
	n.notifyDocumentStatus(documentID, document.StatusProcessing,
		fmt.Sprintf("Document classified as %s", documentType), 70,
		map[string]interface{}{
			"document_type": documentType,
			"confidence":    confidence,
		})
}

func (n *Notifier) ProcessingCompleted(documentID int64, processingTime float64, documentType document.Type) {
	metadata := map[string]interface{}{"processing_time": processingTime}
	if documentType != "" && documentType != document.TypeUnknown {
		metadata["document_type"] = documentType
	}
	n.notifyDocumentStatus(documentID, document.StatusCompleted, "Processing completed successfully", 100, metadata)
}

func (n *Notifier) ProcessingFailed(documentID int64, cause string) {
	n.notifyDocumentStatus(documentID, document.StatusFailed,
		fmt.Sprintf("Processing failed: %s", cause), 0,
		map[string]interface{}{"error": cause})
}
