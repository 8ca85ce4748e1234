package document

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a document's processing job.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Type is the AI-assigned document category.
type Type string

const (
	TypeUnknown  Type = "unknown"
	TypeInvoice  Type = "invoice"
	TypeContract Type = "contract"
	TypeResume   Type = "resume"
	TypeReceipt  Type = "receipt"
	TypeForm     Type = "form"
	TypeLetter   Type = "letter"
	TypeReport   Type = "report"
	TypeOther    Type = "other"
)

// ErrNotFound is returned by the store when a document id does not exist.
// The pipeline treats it as a permanent failure (no retry).
var ErrNotFound = errors.New("document not found")

// Document is the persisted job state for one file's run through the pipeline.
type Document struct {
	ID               int64                  `json:"id"`
	Filename         string                 `json:"filename"`
	OriginalFilename string                 `json:"original_filename"`
	FileSize         int64                  `json:"file_size"`
	FileType         string                 `json:"file_type"`
	StoragePath      string                 `json:"storage_path"`
	Status           Status                 `json:"status"`
	ExtractedText    string                 `json:"extracted_text,omitempty"`
	PageCount        int                    `json:"page_count,omitempty"`
	ExtractionMethod string                 `json:"extraction_method,omitempty"`
	ExtractionError  string                 `json:"extraction_error,omitempty"`
	TaskID           string                 `json:"task_id,omitempty"`
	RetryCount       int                    `json:"retry_count"`
	ProcessingTime   float64                `json:"processing_time,omitempty"`
	DocumentType     Type                   `json:"document_type"`
	Confidence       float64                `json:"document_type_confidence,omitempty"`
	ExtractedData    map[string]interface{} `json:"extracted_data,omitempty"`
	Summary          string                 `json:"summary,omitempty"`
	AICost           float64                `json:"ai_processing_cost,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}
