package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuflow/docuflow/document"
)

// ResultItem is one search hit with its relevance score.
type ResultItem struct {
	DocumentID       int64           `json:"document_id"`
	OriginalFilename string          `json:"original_filename"`
	DocumentType     document.Type   `json:"document_type"`
	Status           document.Status `json:"status"`
	Summary          string          `json:"summary,omitempty"`
	Score            float64         `json:"score"`
}

// Service answers full-text, semantic and hybrid search queries.
type Service struct {
	db        *pgxpool.Pool
	embedding *EmbeddingService
	logger    *slog.Logger
}

func NewService(db *pgxpool.Pool, embedding *EmbeddingService, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		embedding: embedding,
		logger:    logger,
	}
}

// FullText runs a ranked tsvector search.
func (s *Service) FullText(ctx context.Context, query string, limit, offset int) ([]ResultItem, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, original_filename, document_type, status, COALESCE(summary, ''),
               ts_rank(search_vector, plainto_tsquery('english', $1)) AS rank
        FROM documents
        WHERE search_vector IS NOT NULL
          AND search_vector @@ plainto_tsquery('english', $1)
        ORDER BY rank DESC, created_at DESC
        LIMIT $2 OFFSET $3`,
		query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Full-text search",
		slog.String("query", query),
		slog.Int("results", len(results)))
	return results, nil
}

// Semantic runs a cosine-similarity search over document embeddings.
func (s *Service) Semantic(ctx context.Context, query string, limit, offset int, similarityThreshold float64) ([]ResultItem, error) {
	queryEmbedding, _, err := s.embedding.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}

	rows, err := s.db.Query(ctx, `
        SELECT id, original_filename, document_type, status, COALESCE(summary, ''),
               1 - (embedding <=> $1) AS similarity
        FROM documents
        WHERE embedding IS NOT NULL
          AND 1 - (embedding <=> $1) >= $2
        ORDER BY embedding <=> $1
        LIMIT $3 OFFSET $4`,
		queryEmbedding, similarityThreshold, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Semantic search",
		slog.String("query", query),
		slog.Int("results", len(results)))
	return results, nil
}

// Hybrid combines full-text and semantic results with weighted rank fusion.
func (s *Service) Hybrid(ctx context.Context, query string, limit, offset int, textWeight, semanticWeight float64) ([]ResultItem, error) {
	textResults, err := s.FullText(ctx, query, 100, 0)
	if err != nil {
		return nil, err
	}
	semanticResults, err := s.Semantic(ctx, query, 100, 0, 0.3)
	if err != nil {
		// Semantic side is optional when embeddings are unavailable.
		s.logger.Warn("Semantic side of hybrid search failed",
			slog.String("error", err.Error()))
		semanticResults = nil
	}

	scores := make(map[int64]float64)
	items := make(map[int64]ResultItem)

	for i, item := range textResults {
		score := (1.0 - float64(i)/float64(max(len(textResults), 1))) * textWeight
		scores[item.DocumentID] = score
		items[item.DocumentID] = item
	}
	for _, item := range semanticResults {
		scores[item.DocumentID] += item.Score * semanticWeight
		if _, seen := items[item.DocumentID]; !seen {
			items[item.DocumentID] = item
		}
	}

	combined := make([]ResultItem, 0, len(items))
	for id, item := range items {
		item.Score = scores[id]
		combined = append(combined, item)
	}
	sort.Slice(combined, func(i, j int) bool {
		return combined[i].Score > combined[j].Score
	})

	if offset >= len(combined) {
		return []ResultItem{}, nil
	}
	end := offset + limit
	if end > len(combined) {
		end = len(combined)
	}
	return combined[offset:end], nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanResults(rows pgxRows) ([]ResultItem, error) {
	results := make([]ResultItem, 0)
	for rows.Next() {
		var item ResultItem
		if err := rows.Scan(&item.DocumentID, &item.OriginalFilename, &item.DocumentType,
			&item.Status, &item.Summary, &item.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows error: %w", err)
	}
	return results, nil
}
