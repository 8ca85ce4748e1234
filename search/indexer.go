package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Indexer maintains the full-text search vector and the semantic embedding
// for processed documents. Reindex is idempotent and safe to call repeatedly;
// the pipeline treats indexing as best-effort.
type Indexer struct {
	db        *pgxpool.Pool
	embedding *EmbeddingService
	logger    *slog.Logger
}

func NewIndexer(db *pgxpool.Pool, embedding *EmbeddingService, logger *slog.Logger) *Indexer {
	return &Indexer{
		db:        db,
		embedding: embedding,
		logger:    logger,
	}
}

// Reindex rebuilds both indexes for one document.
func (ix *Indexer) Reindex(ctx context.Context, documentID int64) error {
	if err := ix.UpdateSearchVector(ctx, documentID); err != nil {
		return err
	}
	return ix.UpdateEmbedding(ctx, documentID)
}

// UpdateSearchVector recomputes the weighted tsvector: filename weighs most,
// then summary, then the extracted text.
func (ix *Indexer) UpdateSearchVector(ctx context.Context, documentID int64) error {
	_, err := ix.db.Exec(ctx, `
        UPDATE documents
        SET search_vector =
            setweight(to_tsvector('english', COALESCE(original_filename, '')), 'A') ||
            setweight(to_tsvector('english', COALESCE(summary, '')), 'B') ||
            setweight(to_tsvector('english', COALESCE(extracted_text, '')), 'C')
        WHERE id = $1`,
		documentID)
	if err != nil {
		return fmt.Errorf("failed to update search vector for document %d: %w", documentID, err)
	}

	ix.logger.Info("Updated search vector",
		slog.Int64("document_id", documentID))
	return nil
}

// UpdateEmbedding generates and stores the semantic embedding from the
// filename, summary and the first slice of extracted text.
func (ix *Indexer) UpdateEmbedding(ctx context.Context, documentID int64) error {
	var originalFilename, summary, extractedText string
	err := ix.db.QueryRow(ctx, `
        SELECT original_filename, COALESCE(summary, ''), COALESCE(extracted_text, '')
        FROM documents WHERE id = $1`,
		documentID).Scan(&originalFilename, &summary, &extractedText)
	if err != nil {
		return fmt.Errorf("failed to load document %d for embedding: %w", documentID, err)
	}

	if strings.TrimSpace(extractedText) == "" {
		ix.logger.Warn("Skipping embedding, document has no text",
			slog.Int64("document_id", documentID))
		return nil
	}

	parts := []string{originalFilename}
	if summary != "" {
		parts = append(parts, summary)
	}
	if len(extractedText) > 3000 {
		extractedText = extractedText[:3000]
	}
	parts = append(parts, extractedText)

	vector, tokenCount, err := ix.embedding.Generate(ctx, strings.Join(parts, " "))
	if err != nil {
		return fmt.Errorf("failed to generate embedding for document %d: %w", documentID, err)
	}

	_, err = ix.db.Exec(ctx,
		`UPDATE documents SET embedding = $1 WHERE id = $2`,
		vector, documentID)
	if err != nil {
		return fmt.Errorf("failed to store embedding for document %d: %w", documentID, err)
	}

	ix.logger.Info("Updated embedding",
		slog.Int64("document_id", documentID),
		slog.Int("token_count", tokenCount))
	return nil
}
