package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists Document job state in PostgreSQL.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(db *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the documents table and its indexes if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS documents (
            id                       BIGSERIAL PRIMARY KEY,
            filename                 VARCHAR(255) NOT NULL,
            original_filename        VARCHAR(255) NOT NULL,
            file_size                BIGINT NOT NULL,
            file_type                VARCHAR(100) NOT NULL,
            storage_path             VARCHAR(500) NOT NULL,
            status                   VARCHAR(20) NOT NULL DEFAULT 'uploaded',
            extracted_text           TEXT,
            page_count               INTEGER,
            extraction_method        VARCHAR(50),
            extraction_error         TEXT,
            task_id                  VARCHAR(255),
            retry_count              INTEGER NOT NULL DEFAULT 0,
            processing_time          DOUBLE PRECISION,
            document_type            VARCHAR(20) NOT NULL DEFAULT 'unknown',
            document_type_confidence DOUBLE PRECISION,
            extracted_data           JSONB,
            summary                  TEXT,
            ai_processing_cost       DOUBLE PRECISION,
            search_vector            tsvector,
            embedding                vector(1536),
            created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
        )`)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)",
		"CREATE INDEX IF NOT EXISTS idx_documents_type ON documents (document_type)",
		"CREATE INDEX IF NOT EXISTS idx_documents_search_vector ON documents USING gin (search_vector)",
	}
	for _, stmt := range indexes {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Create inserts a freshly uploaded document and returns its id.
func (s *Store) Create(ctx context.Context, doc *Document) (int64, error) {
	query := `
        INSERT INTO documents (filename, original_filename, file_size, file_type, storage_path, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`

	var id int64
	err := s.db.QueryRow(ctx, query,
		doc.Filename, doc.OriginalFilename, doc.FileSize, doc.FileType, doc.StoragePath, StatusUploaded,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

// Get loads one document by id. Returns ErrNotFound when the row does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*Document, error) {
	query := `
        SELECT id, filename, original_filename, file_size, file_type, storage_path, status,
               COALESCE(extracted_text, ''), COALESCE(page_count, 0),
               COALESCE(extraction_method, ''), COALESCE(extraction_error, ''),
               COALESCE(task_id, ''), retry_count, COALESCE(processing_time, 0),
               document_type, COALESCE(document_type_confidence, 0),
               COALESCE(extracted_data, 'null'::jsonb), COALESCE(summary, ''),
               COALESCE(ai_processing_cost, 0), created_at, updated_at
        FROM documents
        WHERE id = $1`

	var doc Document
	var extractedData []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.FileSize, &doc.FileType,
		&doc.StoragePath, &doc.Status, &doc.ExtractedText, &doc.PageCount,
		&doc.ExtractionMethod, &doc.ExtractionError, &doc.TaskID, &doc.RetryCount,
		&doc.ProcessingTime, &doc.DocumentType, &doc.Confidence, &extractedData,
		&doc.Summary, &doc.AICost, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", id, err)
	}

	if len(extractedData) > 0 && string(extractedData) != "null" {
		if err := json.Unmarshal(extractedData, &doc.ExtractedData); err != nil {
			s.logger.Error("Failed to parse extracted_data",
				slog.Int64("document_id", id),
				slog.String("error", err.Error()))
		}
	}
	return &doc, nil
}

// List returns a page of documents, newest first, optionally filtered by
// status. The heavy columns (extracted text, structured data) are left out;
// Get loads the full row.
func (s *Store) List(ctx context.Context, status Status, limit, offset int) ([]*Document, error) {
	query := `
        SELECT id, filename, original_filename, file_size, file_type, storage_path, status,
               COALESCE(page_count, 0), COALESCE(extraction_method, ''), retry_count,
               COALESCE(processing_time, 0), document_type,
               COALESCE(document_type_confidence, 0), COALESCE(summary, ''),
               COALESCE(ai_processing_cost, 0), created_at, updated_at
        FROM documents
        WHERE ($1 = '' OR status = $1)
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.FileSize, &doc.FileType,
			&doc.StoragePath, &doc.Status, &doc.PageCount, &doc.ExtractionMethod,
			&doc.RetryCount, &doc.ProcessingTime, &doc.DocumentType, &doc.Confidence,
			&doc.Summary, &doc.AICost, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("document rows error: %w", err)
	}
	return docs, nil
}

// Delete removes the document row. Returns ErrNotFound when the id does not
// exist. The caller is responsible for removing the stored blob first.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkProcessing flips the document into the processing state and records the
// queue task id driving this attempt.
func (s *Store) MarkProcessing(ctx context.Context, id int64, taskID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $1, task_id = $2, updated_at = now() WHERE id = $3`,
		StatusProcessing, taskID, id)
	if err != nil {
		return fmt.Errorf("failed to mark document %d processing: %w", id, err)
	}
	return nil
}

// SaveExtraction persists the extraction stage output.
func (s *Store) SaveExtraction(ctx context.Context, id int64, text string, pageCount int, method string) error {
	_, err := s.db.Exec(ctx, `
        UPDATE documents
        SET extracted_text = $1, page_count = NULLIF($2, 0), extraction_method = $3, updated_at = now()
        WHERE id = $4`,
		text, pageCount, method, id)
	if err != nil {
		return fmt.Errorf("failed to save extraction for document %d: %w", id, err)
	}
	return nil
}

// RecordExtractionFailure marks the document failed with the extraction error
// and the elapsed time of the attempt.
func (s *Store) RecordExtractionFailure(ctx context.Context, id int64, extractionErr string, elapsed time.Duration) error {
	_, err := s.db.Exec(ctx, `
        UPDATE documents
        SET status = $1, extraction_error = $2, processing_time = $3, updated_at = now()
        WHERE id = $4`,
		StatusFailed, extractionErr, elapsed.Seconds(), id)
	if err != nil {
		return fmt.Errorf("failed to record extraction failure for document %d: %w", id, err)
	}
	return nil
}

// SaveEnrichment persists the AI stage output. Called even when the enrichment
// degraded to defaults; the fields carry whatever the stage produced.
func (s *Store) SaveEnrichment(ctx context.Context, id int64, docType Type, confidence float64, extractedData map[string]interface{}, summary string, cost float64) error {
	data, err := json.Marshal(extractedData)
	if err != nil {
		return fmt.Errorf("failed to marshal extracted data: %w", err)
	}

	_, err = s.db.Exec(ctx, `
        UPDATE documents
        SET document_type = $1, document_type_confidence = $2, extracted_data = $3,
            summary = $4, ai_processing_cost = $5, updated_at = now()
        WHERE id = $6`,
		docType, confidence, data, summary, cost, id)
	if err != nil {
		return fmt.Errorf("failed to save enrichment for document %d: %w", id, err)
	}
	return nil
}

// MarkCompleted records the terminal success state, clearing any error left
// over from earlier attempts.
func (s *Store) MarkCompleted(ctx context.Context, id int64, elapsed time.Duration) error {
	_, err := s.db.Exec(ctx, `
        UPDATE documents
        SET status = $1, extraction_error = NULL, processing_time = $2, updated_at = now()
        WHERE id = $3`,
		StatusCompleted, elapsed.Seconds(), id)
	if err != nil {
		return fmt.Errorf("failed to mark document %d completed: %w", id, err)
	}
	return nil
}

// IncrementRetry bumps the retry counter, stores the failure cause and elapsed
// time, and returns the new counter value.
func (s *Store) IncrementRetry(ctx context.Context, id int64, cause string, elapsed time.Duration) (int, error) {
	var retryCount int
	err := s.db.QueryRow(ctx, `
        UPDATE documents
        SET retry_count = retry_count + 1, extraction_error = $1, processing_time = $2, updated_at = now()
        WHERE id = $3
        RETURNING retry_count`,
		cause, elapsed.Seconds(), id).Scan(&retryCount)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry for document %d: %w", id, err)
	}
	return retryCount, nil
}

// MarkFailed records the terminal failure state after the retry budget is spent.
func (s *Store) MarkFailed(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $1, updated_at = now() WHERE id = $2`,
		StatusFailed, id)
	if err != nil {
		return fmt.Errorf("failed to mark document %d failed: %w", id, err)
	}
	return nil
}
