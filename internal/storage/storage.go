package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Package storage contains the object storage gateway: a uniform interface
// over an S3-compatible backend plus an in-memory fallback for environments
// without one. Implementations must avoid local disk and rely on streaming
// I/O only.

// MaxSinglePutBytes is the single-PUT ceiling enforced at presign time.
// Larger uploads must go through multipart and are rejected here.
const MaxSinglePutBytes = 5 << 30

// ErrPayloadTooLarge is returned by PresignPut when the declared size exceeds
// the single-PUT ceiling. The caller should switch to a multipart upload.
var ErrPayloadTooLarge = errors.New("payload exceeds single-put ceiling")

// ErrNotFound is returned when no object exists under the requested key.
var ErrNotFound = errors.New("object not found")

// ErrPermanent marks backend failures no retry can fix: denied access,
// missing bucket, rejected credentials. Callers surface these as fatal
// instead of retryable.
var ErrPermanent = errors.New("permanent storage backend failure")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1
// and the implementation will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
// Mock is true when the object lives in the non-durable in-memory backend,
// so callers never mistake dev storage for durable storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
	Mock         bool
}

// PresignedPut is a short-lived URL an external client can PUT bytes to
// directly, bypassing the server proxy.
type PresignedPut struct {
	URL     string
	Headers map[string]string
	Expires time.Time
	Mock    bool
}

// Storage is a reusable, S3-compatible object storage client interface.
// Methods use context and streaming readers/writers; no local disk is used.
type Storage interface {
	// Put uploads an object under the given key using the provided reader and options.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// Stat returns object info without fetching content. The direct-upload
	// confirm step uses it to verify the transfer actually happened.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// PresignGet returns a time-limited URL that can be used to download the object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	// PresignPut returns a time-limited upload URL for direct uploads. The
	// declared size is validated against MaxSinglePutBytes and scales the TTL.
	PresignPut(ctx context.Context, key string, contentType string, size int64) (PresignedPut, error)
}

// PresignTTL scales the presigned-PUT lifetime with the declared file size:
// small files get a short exposure window for leaked URLs, large files get
// enough time to finish the transfer.
func PresignTTL(size int64) time.Duration {
	switch {
	case size <= 10<<20:
		return 5 * time.Minute
	case size <= 500<<20:
		return 30 * time.Minute
	default:
		return 2 * time.Hour
	}
}
