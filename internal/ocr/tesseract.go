package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/educheck/educheck/internal/model"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// Tesseract is the default Extractor, backed by the gosseract client. One
// image file is one page; a directory of images is a multi-page document,
// pages ordered by filename.
type Tesseract struct {
	Languages []string

	clientFactory func() *gosseract.Client
}

// NewTesseract constructs a Tesseract-backed extractor.
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{Languages: languages, clientFactory: gosseract.NewClient}
}

// Extract implements Extractor.
func (t *Tesseract) Extract(ctx context.Context, path string) ([]model.Page, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		return t.extractDir(ctx, path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !imageExts[ext] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	page := t.recognize(ctx, path, 1)
	return []model.Page{page}, nil
}

func (t *Tesseract) extractDir(ctx context.Context, dir string) ([]model.Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no page images in %s", ErrUnsupportedFormat, dir)
	}
	sort.Strings(files)

	pages := make([]model.Page, 0, len(files))
	for i, name := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		pages = append(pages, t.recognize(ctx, filepath.Join(dir, name), i+1))
	}
	return pages, nil
}

// recognize runs OCR on a single page image. Recognition failures produce an
// empty page: one bad scan must not sink the document.
func (t *Tesseract) recognize(_ context.Context, path string, number int) model.Page {
	c := t.clientFactory()
	defer c.Close()

	if err := c.SetImage(path); err != nil {
		slog.Warn("ocr: set image failed, emitting empty page", "path", path, "error", err)
		return model.Page{Number: number}
	}
	if len(t.Languages) > 0 {
		if err := c.SetLanguage(t.Languages...); err != nil {
			slog.Warn("ocr: set language failed", "languages", t.Languages, "error", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		slog.Warn("ocr: recognition failed, emitting empty page", "path", path, "error", err)
		return model.Page{Number: number}
	}
	return model.Page{Number: number, Text: strings.TrimSpace(text)}
}
