// Package ocr wraps the text-extraction service: scanned pages in,
// per-page text out.
package ocr

import (
	"context"
	"errors"

	"github.com/educheck/educheck/internal/model"
)

// ErrUnsupportedFormat marks files the extractor cannot rasterize; the
// pipeline logs and skips them instead of failing the batch.
var ErrUnsupportedFormat = errors.New("ocr: unsupported file format")

// Extractor turns one uploaded file into an ordered list of page texts. A
// corrupt or unreadable page yields an empty-text page, not an error; errors
// are reserved for the file being unusable as a whole.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]model.Page, error)
}
