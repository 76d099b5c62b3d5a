package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

// memoryStorage is a non-durable in-memory Storage for local development and
// tests. Every ObjectInfo and PresignedPut it returns carries Mock=true so
// nothing downstream mistakes it for durable storage.
type memoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	etag        string
	modified    time.Time
}

// NewMemory creates an in-memory storage backend. baseURL is used to mint
// fake presigned URLs; it may be empty.
func NewMemory(baseURL string) Storage {
	if baseURL == "" {
		baseURL = "mock://storage"
	}
	return &memoryStorage{
		objects: make(map[string]memoryObject),
		baseURL: baseURL,
	}
}

func (m *memoryStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ObjectInfo{}, err
	}
	if opt.Size >= 0 && int64(len(data)) != opt.Size {
		return ObjectInfo{}, fmt.Errorf("declared size %d does not match payload size %d", opt.Size, len(data))
	}
	sum := md5.Sum(data)
	obj := memoryObject{
		data:        data,
		contentType: opt.ContentType,
		metadata:    opt.Metadata,
		etag:        hex.EncodeToString(sum[:]),
		modified:    time.Now(),
	}

	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()

	return m.info(key, obj), nil
}

func (m *memoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ObjectInfo{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), m.info(key, obj), nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return m.info(key, obj), nil
}

func (m *memoryStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("%s/%s?mock=1", m.baseURL, key), nil
}

func (m *memoryStorage) PresignPut(ctx context.Context, key string, contentType string, size int64) (PresignedPut, error) {
	if size > MaxSinglePutBytes {
		return PresignedPut{}, ErrPayloadTooLarge
	}
	ttl := PresignTTL(size)
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return PresignedPut{
		URL:     fmt.Sprintf("%s/%s?mock=1&upload=1", m.baseURL, key),
		Headers: headers,
		Expires: time.Now().Add(ttl),
		Mock:    true,
	}, nil
}

func (m *memoryStorage) info(key string, obj memoryObject) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		ContentType:  obj.contentType,
		Metadata:     obj.metadata,
		LastModified: obj.modified,
		Mock:         true,
	}
}
