package model

import "time"

// OCR status values for a document.
const (
	OCRPending  = "pending"
	OCRDone     = "done"
	OCRFailed   = "failed"
	OCRDeferred = "deferred"
)

// Upload status values. Documents created for a direct (presigned) upload
// stay pending and invisible until the client confirms the transfer.
const (
	UploadPending   = "pending"
	UploadConfirmed = "confirmed"
)

// Document represents a stored file. This is a pure domain model with no
// database-specific dependencies or tags.
type Document struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	StorageKey   string    `json:"storage_key"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	FolderID     *string   `json:"folder_id,omitempty"`
	OCRStatus    string    `json:"ocr_status"`
	UploadStatus string    `json:"upload_status"`
	UploadedByID string    `json:"uploaded_by_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Folder is a tenant-scoped node in the folder tree. ParentID nil means root.
type Folder struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
