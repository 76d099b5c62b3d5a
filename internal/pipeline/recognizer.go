package pipeline

import (
	"context"
	"path"
	"strings"
)

// Result is the outcome of content recognition for one document.
type Result struct {
	// Category is the detected document class, used as the target folder
	// name for automatic placement.
	Category string
	// Confidence in [0, 1]. Results under the configured threshold are
	// routed to manual sorting instead of automatic placement.
	Confidence float64
	// Pages recognized; drives the unit debit.
	Pages int
}

// Recognizer runs content recognition on a stored object. Implementations
// classify failures as Retryable or Fatal through apperr so the retry
// wrapper and the recovery flow can tell them apart.
type Recognizer interface {
	Recognize(ctx context.Context, key, contentType string) (*Result, error)
}

// StubRecognizer classifies by file extension with fixed confidence. It
// stands in for an OCR/ML backend in development.
type StubRecognizer struct{}

var _ Recognizer = (*StubRecognizer)(nil)

func (StubRecognizer) Recognize(ctx context.Context, key, contentType string) (*Result, error) {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".pdf":
		return &Result{Category: "Documents", Confidence: 0.9, Pages: 1}, nil
	case ".jpg", ".jpeg", ".png":
		return &Result{Category: "Scans", Confidence: 0.8, Pages: 1}, nil
	default:
		return &Result{Category: "Other", Confidence: 0.4, Pages: 1}, nil
	}
}
