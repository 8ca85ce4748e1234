package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/docuflow/docuflow/ai"
	"github.com/docuflow/docuflow/document"
	"github.com/docuflow/docuflow/extraction"
)

const (
	// maxRetries bounds the retry envelope; once the persisted counter
	// reaches it the job is terminally failed.
	maxRetries = 3

	// retryBackoffUnit scales linearly with the retry counter: 60s, 120s, 180s.
	retryBackoffUnit = 60 * time.Second

	// minTextLengthForAI is the minimum trimmed text length worth sending to
	// the model.
	minTextLengthForAI = 50
)

// DocumentStore is the persistence collaborator for job state.
type DocumentStore interface {
	Get(ctx context.Context, id int64) (*document.Document, error)
	MarkProcessing(ctx context.Context, id int64, taskID string) error
	SaveExtraction(ctx context.Context, id int64, text string, pageCount int, method string) error
	RecordExtractionFailure(ctx context.Context, id int64, extractionErr string, elapsed time.Duration) error
	SaveEnrichment(ctx context.Context, id int64, docType document.Type, confidence float64, extractedData map[string]interface{}, summary string, cost float64) error
	MarkCompleted(ctx context.Context, id int64, elapsed time.Duration) error
	IncrementRetry(ctx context.Context, id int64, cause string, elapsed time.Duration) (int, error)
	MarkFailed(ctx context.Context, id int64) error
}

// ObjectStorage fetches raw file bytes.
type ObjectStorage interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// TextExtractor converts file bytes to plain text.
type TextExtractor interface {
	Extract(data []byte, mimeType string) (extraction.Result, error)
}

// Enricher runs the AI stage; it never fails, only degrades.
type Enricher interface {
	ProcessDocument(ctx context.Context, text string) ai.Result
}

// Indexer rebuilds search indexes, best-effort.
type Indexer interface {
	Reindex(ctx context.Context, documentID int64) error
}

// Notifier pushes milestone events to subscribed clients.
type Notifier interface {
	ExtractionStarted(documentID int64)
	ExtractionCompleted(documentID int64, method string, pageCount int)
	AIProcessingStarted(documentID int64)
	ClassificationCompleted(documentID int64, documentType document.Type, confidence float64)
	ProcessingCompleted(documentID int64, processingTime float64, documentType document.Type)
	ProcessingFailed(documentID int64, cause string)
}

// Scheduler re-queues a job after a backoff delay.
type Scheduler interface {
	ScheduleRetry(ctx context.Context, documentID int64, useAI bool, delay time.Duration) error
}

// Deps wires the processor's collaborators.
type Deps struct {
	Store     DocumentStore
	Storage   ObjectStorage
	Extractor TextExtractor
	Enricher  Enricher
	Indexer   Indexer
	Notifier  Notifier
	Scheduler Scheduler
	Logger    *slog.Logger
}

// Processor drives one document's lifecycle through
// UPLOADED -> PROCESSING -> {COMPLETED | FAILED}, emitting ordered progress
// events at each milestone. Each invocation owns its document's state
// exclusively; many distinct documents may be processed concurrently.
type Processor struct {
	store     DocumentStore
	storage   ObjectStorage
	extractor TextExtractor
	enricher  Enricher
	indexer   Indexer
	notifier  Notifier
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessor(deps Deps) *Processor {
	return &Processor{
		store:     deps.Store,
		storage:   deps.Storage,
		extractor: deps.Extractor,
		enricher:  deps.Enricher,
		indexer:   deps.Indexer,
		notifier:  deps.Notifier,
		scheduler: deps.Scheduler,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// ProcessDocument runs the full pipeline for one queued job. A returned error
// means the job is terminally failed (or unprocessable); retryable failures
// are rescheduled internally and return nil so the queue considers the
// delivery consumed.
func (p *Processor) ProcessDocument(ctx context.Context, documentID int64, useAI bool, taskID string) error {
	start := p.now()

	doc, err := p.store.Get(ctx, documentID)
	if errors.Is(err, document.ErrNotFound) {
		// Nothing to retry against; drop the job.
		p.logger.Error("Document not found, dropping job",
			slog.Int64("document_id", documentID))
		return nil
	}
	if err != nil {
		return p.retryOrFail(ctx, documentID, useAI, start, err)
	}

	if err := p.store.MarkProcessing(ctx, documentID, taskID); err != nil {
		return p.retryOrFail(ctx, documentID, useAI, start, err)
	}

	p.logger.Info("Starting document processing",
		slog.Int64("document_id", documentID),
		slog.String("task_id", taskID))

	data, err := p.storage.Download(ctx, doc.StoragePath)
	if err != nil {
		return p.retryOrFail(ctx, documentID, useAI, start, err)
	}

	p.notifier.ExtractionStarted(documentID)

	res, err := p.extractor.Extract(data, doc.FileType)
	if err != nil {
		elapsed := p.now().Sub(start)
		if storeErr := p.store.RecordExtractionFailure(ctx, documentID, err.Error(), elapsed); storeErr != nil {
			p.logger.Error("Failed to persist extraction failure",
				slog.Int64("document_id", documentID),
				slog.String("error", storeErr.Error()))
		}
		p.notifier.ProcessingFailed(documentID, err.Error())
		p.logger.Error("Extraction failed",
			slog.Int64("document_id", documentID),
			slog.String("error", err.Error()))
		return p.retryOrFail(ctx, documentID, useAI, start, err)
	}

	if err := p.store.SaveExtraction(ctx, documentID, res.Text, res.PageCount, res.Method); err != nil {
		return p.retryOrFail(ctx, documentID, useAI, start, err)
	}
	p.notifier.ExtractionCompleted(documentID, res.Method, res.PageCount)

	p.logger.Info("Text extraction completed",
		slog.Int64("document_id", documentID),
		slog.String("method", res.Method),
		slog.Int("page_count", res.PageCount))

	docType := document.TypeUnknown
	if useAI && len(strings.TrimSpace(res.Text)) > minTextLengthForAI {
		p.notifier.AIProcessingStarted(documentID)

		result := p.enricher.ProcessDocument(ctx, res.Text)
		if err := p.store.SaveEnrichment(ctx, documentID, result.DocumentType, result.Confidence,
			result.ExtractedData, result.Summary, result.Cost); err != nil {
			return p.retryOrFail(ctx, documentID, useAI, start, err)
		}
		docType = result.DocumentType

		p.notifier.ClassificationCompleted(documentID, result.DocumentType, result.Confidence)

		p.logger.Info("AI processing completed",
			slog.Int64("document_id", documentID),
			slog.String("document_type", string(result.DocumentType)),
			slog.Float64("confidence", result.Confidence),
			slog.Float64("cost", result.Cost))
	}

	elapsed := p.now().Sub(start)
	if err := p.store.MarkCompleted(ctx, documentID, elapsed); err != nil {
		return p.retryOrFail(ctx, documentID, useAI, start, err)
	}

	// Indexing is fire-and-forget: a search index that lags behind never
	// fails the job.
	if err := p.indexer.Reindex(ctx, documentID); err != nil {
		p.logger.Error("Error generating search indexes",
			slog.Int64("document_id", documentID),
			slog.String("error", err.Error()))
	}

	p.notifier.ProcessingCompleted(documentID, elapsed.Seconds(), docType)

	p.logger.Info("Processing completed",
		slog.Int64("document_id", documentID),
		slog.Float64("processing_time", elapsed.Seconds()))
	return nil
}

// retryOrFail is the outer failure envelope: bump the persisted retry
// counter, then either reschedule with linear backoff or mark the job
// terminally failed once the budget is spent.
func (p *Processor) retryOrFail(ctx context.Context, documentID int64, useAI bool, start time.Time, cause error) error {
	elapsed := p.now().Sub(start)

	retryCount, err := p.store.IncrementRetry(ctx, documentID, cause.Error(), elapsed)
	if err != nil {
		p.logger.Error("Failed to record retry",
			slog.Int64("document_id", documentID),
			slog.String("error", err.Error()))
		return cause
	}

	if retryCount >= maxRetries {
		if err := p.store.MarkFailed(ctx, documentID); err != nil {
			p.logger.Error("Failed to mark document failed",
				slog.Int64("document_id", documentID),
				slog.String("error", err.Error()))
		}
		p.notifier.ProcessingFailed(documentID, cause.Error())
		p.logger.Error("Max retries reached, job failed terminally",
			slog.Int64("document_id", documentID),
			slog.Int("retry_count", retryCount),
			slog.String("error", cause.Error()))
		return cause
	}

	delay := time.Duration(retryCount) * retryBackoffUnit
	if err := p.scheduler.ScheduleRetry(ctx, documentID, useAI, delay); err != nil {
		p.logger.Error("Failed to reschedule job",
			slog.Int64("document_id", documentID),
			slog.String("error", err.Error()))
		return cause
	}

	p.logger.Warn("Job failed, rescheduled",
		slog.Int64("document_id", documentID),
		slog.Int("retry_count", retryCount),
		slog.Duration("backoff", delay),
		slog.String("error", cause.Error()))
	return nil
}
