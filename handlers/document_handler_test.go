package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/docuflow/docuflow/document"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDocumentStore struct {
	docs       map[int64]*document.Document
	listStatus document.Status
	deleted    []int64
}

func (s *fakeDocumentStore) Create(ctx context.Context, doc *document.Document) (int64, error) {
	id := int64(len(s.docs) + 1)
	if s.docs == nil {
		s.docs = map[int64]*document.Document{}
	}
	doc.ID = id
	s.docs[id] = doc
	return id, nil
}

func (s *fakeDocumentStore) Get(ctx context.Context, id int64) (*document.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	return doc, nil
}

func (s *fakeDocumentStore) List(ctx context.Context, status document.Status, limit, offset int) ([]*document.Document, error) {
	s.listStatus = status
	docs := make([]*document.Document, 0)
	for _, doc := range s.docs {
		if status == "" || doc.Status == status {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *fakeDocumentStore) Delete(ctx context.Context, id int64) error {
	if _, ok := s.docs[id]; !ok {
		return document.ErrNotFound
	}
	delete(s.docs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeBlobStore struct {
	uploaded []string
	deleted  []string
}

func (b *fakeBlobStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	b.uploaded = append(b.uploaded, objectName)
	return objectName, nil
}

func (b *fakeBlobStore) Delete(ctx context.Context, objectName string) error {
	b.deleted = append(b.deleted, objectName)
	return nil
}

func (b *fakeBlobStore) PresignedURL(ctx context.Context, objectName string, expires time.Duration) (string, error) {
	return "https://blobs.local/" + objectName, nil
}

type fakeTaskQueue struct {
	enqueued []int64
}

func (q *fakeTaskQueue) EnqueueProcess(ctx context.Context, documentID int64, useAI bool) (string, error) {
	q.enqueued = append(q.enqueued, documentID)
	return "task-" + strconv.FormatInt(documentID, 10), nil
}

func newHandlerFixture() (*DocumentHandler, *fakeDocumentStore, *fakeBlobStore, *fakeTaskQueue) {
	store := &fakeDocumentStore{docs: map[int64]*document.Document{}}
	blobs := &fakeBlobStore{}
	tasks := &fakeTaskQueue{}
	h := NewDocumentHandler(store, blobs, tasks, 1<<20, testLogger())
	return h, store, blobs, tasks
}

func testRouter(h *DocumentHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/documents", h.List).Methods("GET")
	r.HandleFunc("/api/v1/documents/{id:[0-9]+}", h.Get).Methods("GET")
	r.HandleFunc("/api/v1/documents/{id:[0-9]+}", h.Delete).Methods("DELETE")
	return r
}

func TestDeleteRemovesBlobAndRecord(t *testing.T) {
	h, store, blobs, _ := newHandlerFixture()
	store.docs[7] = &document.Document{ID: 7, StoragePath: "abc.pdf", OriginalFilename: "report.pdf"}

	req := httptest.NewRequest("DELETE", "/api/v1/documents/7", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != "abc.pdf" {
		t.Errorf("expected blob abc.pdf deleted, got %v", blobs.deleted)
	}
	if len(store.deleted) != 1 || store.deleted[0] != 7 {
		t.Errorf("expected record 7 deleted, got %v", store.deleted)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["deleted"] != true {
		t.Errorf("unexpected response: %v", body)
	}
}

func TestDeleteMissingDocumentReturns404(t *testing.T) {
	h, _, blobs, _ := newHandlerFixture()

	req := httptest.NewRequest("DELETE", "/api/v1/documents/99", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if len(blobs.deleted) != 0 {
		t.Errorf("expected no blob deletes, got %v", blobs.deleted)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	h, store, _, _ := newHandlerFixture()
	store.docs[1] = &document.Document{ID: 1, Status: document.StatusCompleted}
	store.docs[2] = &document.Document{ID: 2, Status: document.StatusFailed}

	req := httptest.NewRequest("GET", "/api/v1/documents?status=completed", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.listStatus != document.StatusCompleted {
		t.Errorf("expected status filter passed through, got %q", store.listStatus)
	}

	var body struct {
		Count     int                  `json:"count"`
		Documents []*document.Document `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body.Count != 1 || len(body.Documents) != 1 || body.Documents[0].ID != 1 {
		t.Errorf("expected only the completed document, got %+v", body)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	h, _, _, _ := newHandlerFixture()

	req := httptest.NewRequest("GET", "/api/v1/documents?status=bogus", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetReturnsDocument(t *testing.T) {
	h, store, _, _ := newHandlerFixture()
	store.docs[3] = &document.Document{ID: 3, OriginalFilename: "cv.docx", Status: document.StatusCompleted}

	req := httptest.NewRequest("GET", "/api/v1/documents/3", nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc document.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if doc.ID != 3 || doc.OriginalFilename != "cv.docx" {
		t.Errorf("unexpected document: %+v", doc)
	}
}
