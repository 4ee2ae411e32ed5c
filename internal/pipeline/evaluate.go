package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/educheck/educheck/internal/canon"
	"github.com/educheck/educheck/internal/model"
)

// ErrNoAuthoritativeDocument means no question paper or answer key could
// provide a question ordering; evaluation aborts before writing anything.
var ErrNoAuthoritativeDocument = errors.New("pipeline: no authoritative document for question ordering")

// EvaluateStats counts the outcome of one evaluation run.
type EvaluateStats struct {
	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Evaluate scores every stored student sheet against the latest answer key.
// The canonical index comes from the latest question paper, falling back to
// the key's own ordering, then to a degraded index over the key's labels.
// The index is built once and only read afterwards. Students already
// checkpointed under runID are skipped, so an interrupted run resumes at
// the per-student boundary.
func (p *Pipeline) Evaluate(ctx context.Context, runID string) (EvaluateStats, error) {
	keyDoc, err := p.Docs.LatestDocument(ctx, model.DocAnswerKey)
	if err != nil {
		return EvaluateStats{}, fmt.Errorf("load answer key: %w", err)
	}
	if keyDoc == nil {
		return EvaluateStats{}, ErrNoAuthoritativeDocument
	}
	paperDoc, err := p.Docs.LatestDocument(ctx, model.DocQuestionPaper)
	if err != nil {
		return EvaluateStats{}, fmt.Errorf("load question paper: %w", err)
	}

	idx, err := buildAuthoritativeIndex(paperDoc, keyDoc)
	if err != nil {
		return EvaluateStats{}, err
	}
	slog.Info("canonical index built",
		"questions", idx.Len(), "degraded", idx.Degraded, "run_id", runID)

	keyAligned := canon.Align(idx.Ordered, keyDoc.AnswersOriginal)

	totalMarks := 0.0
	if paperDoc != nil {
		if v, ok := paperDoc.Metadata.TotalMarksValue(); ok {
			totalMarks = v
		}
	}
	if totalMarks == 0 {
		if v, ok := keyDoc.Metadata.TotalMarksValue(); ok {
			totalMarks = v
		}
	}

	done := map[string]bool{}
	if p.Checkpoints != nil {
		if done, err = p.Checkpoints.Evaluated(runID); err != nil {
			return EvaluateStats{}, fmt.Errorf("load checkpoints: %w", err)
		}
	}

	students, err := p.Docs.StudentDocuments(ctx)
	if err != nil {
		return EvaluateStats{}, fmt.Errorf("load student sheets: %w", err)
	}

	var stats EvaluateStats
	for _, s := range students {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if done[s.Filename] {
			stats.Skipped++
			continue
		}

		aligned := canon.Align(idx.Ordered, s.AnswersOriginal)
		res := p.Engine.ScoreStudent(ctx, idx, keyAligned, aligned, totalMarks)
		res.RunID = runID
		res.StudentFilename = s.Filename
		res.StudentInfo = model.StudentInfo{Name: s.Metadata.Name, Roll: s.Metadata.Roll}

		if err := p.Docs.InsertResult(ctx, res); err != nil {
			slog.Warn("result insert failed", "student", s.Filename, "error", err)
			stats.Failed++
			continue
		}
		if p.Checkpoints != nil {
			if err := p.Checkpoints.MarkEvaluated(runID, s.Filename); err != nil {
				slog.Warn("checkpoint write failed", "student", s.Filename, "error", err)
			}
		}
		stats.Evaluated++
		slog.Info("student evaluated",
			"student", s.Filename, "obtained", res.TotalObtained,
			"total", res.TotalMarks, "percentage", res.Percentage,
			"missed", len(res.MissedQuestions))
	}

	if p.Checkpoints != nil {
		if err := p.Checkpoints.SetMeta("last_run_id", runID); err != nil {
			slog.Warn("run metadata write failed", "error", err)
		}
	}
	return stats, nil
}

// buildAuthoritativeIndex picks the question ordering: question paper
// structure, then answer key structure, then the key's raw labels in
// natural order (degraded).
func buildAuthoritativeIndex(paperDoc, keyDoc *model.Document) (*canon.Index, error) {
	if paperDoc != nil {
		if labels := orderedLabels(paperDoc); len(labels) > 0 {
			return canon.BuildIndex(labels), nil
		}
	}
	if labels := orderedLabels(keyDoc); len(labels) > 0 {
		return canon.BuildIndex(labels), nil
	}
	if keyDoc.AnswersOriginal.Len() > 0 {
		return canon.BuildDegradedIndex(keyDoc.AnswersOriginal), nil
	}
	return nil, ErrNoAuthoritativeDocument
}

func orderedLabels(doc *model.Document) []string {
	if doc == nil {
		return nil
	}
	if len(doc.OrderedOriginal) > 0 {
		return doc.OrderedOriginal
	}
	return partsLabels(doc)
}
