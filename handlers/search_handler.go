package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docuflow/docuflow/search"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50

	defaultSimilarityThreshold = 0.3
	defaultTextWeight          = 0.6
	defaultSemanticWeight      = 0.4
)

type searchRequest struct {
	Query               string  `json:"query"`
	Mode                string  `json:"mode"`
	Limit               int     `json:"limit"`
	Offset              int     `json:"offset"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// SearchHandler serves the document search endpoint.
type SearchHandler struct {
	service *search.Service
	logger  *slog.Logger
}

func NewSearchHandler(service *search.Service, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: service,
		logger:  logger,
	}
}

// Search runs a full-text, semantic or hybrid query depending on the requested
// mode. Hybrid is the default.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		http.Error(w, "Query must not be empty", http.StatusBadRequest)
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}
	if req.Limit > maxSearchLimit {
		req.Limit = maxSearchLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.SimilarityThreshold <= 0 {
		req.SimilarityThreshold = defaultSimilarityThreshold
	}

	var (
		results []search.ResultItem
		err     error
	)
	switch req.Mode {
	case "fulltext":
		results, err = h.service.FullText(r.Context(), req.Query, req.Limit, req.Offset)
	case "semantic":
		results, err = h.service.Semantic(r.Context(), req.Query, req.Limit, req.Offset, req.SimilarityThreshold)
	case "hybrid", "":
		results, err = h.service.Hybrid(r.Context(), req.Query, req.Limit, req.Offset, defaultTextWeight, defaultSemanticWeight)
	default:
		http.Error(w, "Unknown search mode: "+req.Mode, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("Search failed",
			slog.String("query", req.Query),
			slog.String("mode", req.Mode),
			slog.String("error", err.Error()))
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}
