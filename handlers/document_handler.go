package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/docuflow/docuflow/document"
)

// allowedMimeTypes maps accepted upload content types to their canonical
// extension.
var allowedMimeTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"text/html": ".html",
}

// DocumentStore is the persistence surface the document endpoints need.
type DocumentStore interface {
	Create(ctx context.Context, doc *document.Document) (int64, error)
	Get(ctx context.Context, id int64) (*document.Document, error)
	List(ctx context.Context, status document.Status, limit, offset int) ([]*document.Document, error)
	Delete(ctx context.Context, id int64) error
}

// BlobStore is the object storage surface the document endpoints need.
type BlobStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, objectName string) error
	PresignedURL(ctx context.Context, objectName string, expires time.Duration) (string, error)
}

// TaskQueue dispatches processing jobs.
type TaskQueue interface {
	EnqueueProcess(ctx context.Context, documentID int64, useAI bool) (string, error)
}

// DocumentHandler serves the document upload and lifecycle endpoints.
type DocumentHandler struct {
	store       DocumentStore
	storage     BlobStore
	queue       TaskQueue
	maxFileSize int64
	logger      *slog.Logger
}

func NewDocumentHandler(store DocumentStore, storageSvc BlobStore, queueClient TaskQueue, maxFileSize int64, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		store:       store,
		storage:     storageSvc,
		queue:       queueClient,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Upload accepts a multipart file, stores the blob, creates the job record and
// queues it for processing.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		http.Error(w, "Unable to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		http.Error(w, fmt.Sprintf("File exceeds maximum size of %d bytes", h.maxFileSize), http.StatusRequestEntityTooLarge)
		return
	}

	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedMimeTypes[contentType]
	if !ok {
		http.Error(w, fmt.Sprintf("Unsupported file type: %s", contentType), http.StatusUnsupportedMediaType)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded file",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	// Stored object names are opaque; the original filename only lives in the
	// database row.
	objectName := uuid.New().String() + ext
	if _, err := h.storage.Upload(r.Context(), objectName, data, contentType); err != nil {
		h.logger.Error("Failed to store uploaded file",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	doc := &document.Document{
		Filename:         objectName,
		OriginalFilename: filepath.Base(header.Filename),
		FileSize:         int64(len(data)),
		FileType:         contentType,
		StoragePath:      objectName,
	}
	id, err := h.store.Create(r.Context(), doc)
	if err != nil {
		h.logger.Error("Failed to create document record",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to create document", http.StatusInternalServerError)
		return
	}

	useAI := true
	if v := r.FormValue("use_ai"); v != "" {
		useAI = strings.EqualFold(v, "true") || v == "1"
	}

	taskID, err := h.queue.EnqueueProcess(r.Context(), id, useAI)
	if err != nil {
		h.logger.Error("Failed to enqueue document",
			slog.Int64("document_id", id),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to queue document for processing", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Document uploaded",
		slog.Int64("document_id", id),
		slog.String("original_filename", doc.OriginalFilename),
		slog.Int64("file_size", doc.FileSize),
		slog.Bool("use_ai", useAI))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"document_id":       id,
		"original_filename": doc.OriginalFilename,
		"status":            document.StatusUploaded,
		"task_id":           taskID,
	})
}

// List returns a page of documents, newest first. Supports ?status=, ?limit=
// and ?offset= query parameters.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := document.Status(q.Get("status"))
	switch status {
	case "", document.StatusUploaded, document.StatusProcessing, document.StatusCompleted, document.StatusFailed:
	default:
		http.Error(w, "Invalid status filter: "+string(status), http.StatusBadRequest)
		return
	}

	limit := 20
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}

	docs, err := h.store.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list documents",
			slog.String("error", err.Error()))
		http.Error(w, "Failed to list documents", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// Delete removes a document's stored blob and its record.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid document id", http.StatusBadRequest)
		return
	}

	doc, err := h.store.Get(r.Context(), id)
	if errors.Is(err, document.ErrNotFound) {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load document", http.StatusInternalServerError)
		return
	}

	// An orphaned blob is recoverable, an orphaned row is not, so the blob
	// goes first and its failure does not block the row delete.
	if err := h.storage.Delete(r.Context(), doc.StoragePath); err != nil {
		h.logger.Warn("Failed to delete stored file, continuing",
			slog.Int64("document_id", id),
			slog.String("object", doc.StoragePath),
			slog.String("error", err.Error()))
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to delete document",
			slog.Int64("document_id", id),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to delete document", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Document deleted",
		slog.Int64("document_id", id),
		slog.String("original_filename", doc.OriginalFilename))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": id,
		"deleted":     true,
	})
}

// Get returns the full job state for one document.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid document id", http.StatusBadRequest)
		return
	}

	doc, err := h.store.Get(r.Context(), id)
	if errors.Is(err, document.ErrNotFound) {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to load document",
			slog.Int64("document_id", id),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to load document", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// Reprocess re-queues an existing document through the pipeline.
func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid document id", http.StatusBadRequest)
		return
	}

	if _, err := h.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load document", http.StatusInternalServerError)
		return
	}

	useAI := true
	if v := r.URL.Query().Get("use_ai"); v != "" {
		useAI = strings.EqualFold(v, "true") || v == "1"
	}

	taskID, err := h.queue.EnqueueProcess(r.Context(), id, useAI)
	if err != nil {
		h.logger.Error("Failed to enqueue reprocessing",
			slog.Int64("document_id", id),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to queue document for processing", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Document queued for reprocessing",
		slog.Int64("document_id", id),
		slog.Bool("use_ai", useAI))

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"document_id": id,
		"task_id":     taskID,
	})
}

// Download redirects the caller to a time-limited URL for the stored file.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid document id", http.StatusBadRequest)
		return
	}

	doc, err := h.store.Get(r.Context(), id)
	if errors.Is(err, document.ErrNotFound) {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load document", http.StatusInternalServerError)
		return
	}

	u, err := h.storage.PresignedURL(r.Context(), doc.StoragePath, 15*time.Minute)
	if err != nil {
		h.logger.Error("Failed to presign download",
			slog.Int64("document_id", id),
			slog.String("error", err.Error()))
		http.Error(w, "Failed to generate download link", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, u, http.StatusTemporaryRedirect)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
