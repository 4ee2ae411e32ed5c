// Package pipeline orchestrates ingestion and evaluation: OCR, structured
// parse, canonical indexing, alignment, scoring and persistence. Per-file
// failures are logged and skipped; a batch never dies on one bad scan.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/educheck/educheck/internal/canon"
	"github.com/educheck/educheck/internal/llm"
	"github.com/educheck/educheck/internal/model"
	"github.com/educheck/educheck/internal/ocr"
	"github.com/educheck/educheck/internal/scoring"
	"github.com/educheck/educheck/internal/store"
)

// Collaborator is the slice of the text-generation client the ingestion
// path uses.
type Collaborator interface {
	Available() bool
	ParseStructure(ctx context.Context, pages []model.Page) (*model.Structured, error)
	ExtractMetadata(ctx context.Context, pages []model.Page) model.Metadata
	CorrectText(ctx context.Context, raw string) string
}

// Checkpointer records per-run evaluation progress.
type Checkpointer interface {
	MarkEvaluated(runID, studentFilename string) error
	Evaluated(runID string) (map[string]bool, error)
	SetMeta(key, value string) error
}

// Pipeline wires the services together. All fields are required except
// Checkpoints, which may be nil (no resume support).
type Pipeline struct {
	OCR         ocr.Extractor
	LLM         Collaborator
	Docs        store.DocumentStore
	Checkpoints Checkpointer
	Engine      *scoring.Engine
}

// ProcessStats counts the outcome of one ingestion batch.
type ProcessStats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// ProcessDir ingests every document in dir: classify, OCR, parse, index,
// align, persist. Files that fail extraction are skipped and counted.
func (p *Pipeline) ProcessDir(ctx context.Context, dir string) (ProcessStats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ProcessStats{}, fmt.Errorf("read upload dir: %w", err)
	}

	var stats ProcessStats
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		docType := ClassifyFile(e.Name())
		if docType == model.DocMisc {
			slog.Info("skipping unrecognized file", "file", e.Name())
			stats.Skipped++
			continue
		}
		if err := p.processFile(ctx, filepath.Join(dir, e.Name()), docType); err != nil {
			slog.Warn("processing failed, skipping file", "file", e.Name(), "error", err)
			stats.Skipped++
			continue
		}
		stats.Processed++
	}
	slog.Info("processing batch done", "processed", stats.Processed, "skipped", stats.Skipped)
	return stats, nil
}

func (p *Pipeline) processFile(ctx context.Context, path string, docType model.DocType) error {
	pages, err := p.OCR.Extract(ctx, path)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	raw := joinPages(pages)

	structured := p.parse(ctx, pages)
	meta := structured.Metadata
	if metadataSparse(meta) {
		meta = p.LLM.ExtractMetadata(ctx, pages)
	}

	// An answer sheet whose parse produced nothing may still be a scanned
	// MCQ grid.
	if structured.AnswerMap.Len() == 0 {
		if mcq := llm.ExtractMCQ(raw); mcq != nil {
			structured.AnswerMap = mcq
		}
	}

	doc := &model.Document{
		Filename:        filepath.Base(path),
		Filepath:        path,
		Type:            docType,
		Pages:           pages,
		RawText:         raw,
		Metadata:        meta,
		PartsJSON:       string(structured.PartsJSON),
		Confidence:      structured.Confidence,
		AnswersOriginal: structured.AnswerMap,
	}
	if docType == model.DocStudentAnswer {
		doc.CorrectedText = p.LLM.CorrectText(ctx, raw)
	}

	// Question papers and keys carry their own canonical artifacts so a
	// later evaluation run can reuse the ordering without reparsing.
	if docType == model.DocQuestionPaper || docType == model.DocAnswerKey {
		labels := canon.Flatten(canon.DecodeParts(structured.PartsJSON))
		if len(labels) > 0 {
			idx := canon.BuildIndex(labels)
			doc.OrderedOriginal = idx.Ordered
			doc.OrderedCanonical = idx.Canonical
			doc.LabelToCanonical = idx.LabelToCanonical
			doc.CanonicalToLabel = idx.CanonicalToLabel

			aligned := canon.Align(idx.Ordered, structured.AnswerMap)
			doc.AnswersAligned = aligned
			doc.MissingPositions = canon.MissingPositions(idx, aligned)
		}
	}

	if err := p.Docs.InsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	slog.Info("processed document",
		"file", doc.Filename, "type", doc.Type,
		"pages", len(pages), "answers", doc.AnswersOriginal.Len(),
		"confidence", doc.Confidence)
	return nil
}

// parse runs the structured-parse collaborator and falls back to the regex
// parser on any failure. The result always has a non-nil answer map.
func (p *Pipeline) parse(ctx context.Context, pages []model.Page) *model.Structured {
	if p.LLM.Available() {
		s, err := p.LLM.ParseStructure(ctx, pages)
		if err == nil {
			if s.AnswerMap == nil {
				s.AnswerMap = model.NewAnswerMap()
			}
			return s
		}
		slog.Warn("structured parse failed, using regex fallback", "error", err)
	}
	return llm.FallbackParse(pages)
}

func metadataSparse(m model.Metadata) bool {
	return m.CourseCode == "" && m.Roll == "" && m.Name == "" && m.TotalMarks == ""
}

func joinPages(pages []model.Page) string {
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// partsLabels reads the stored parts JSON of a persisted document.
func partsLabels(doc *model.Document) []string {
	if doc == nil || doc.PartsJSON == "" {
		return nil
	}
	return canon.Flatten(canon.DecodeParts(json.RawMessage(doc.PartsJSON)))
}
