package scoring

import (
	"context"
	"log/slog"
	"strings"

	"github.com/educheck/educheck/internal/i18n"
	"github.com/educheck/educheck/internal/model"
	"github.com/educheck/educheck/internal/store"
)

// Summarizer produces whole-paper feedback from per-question results.
type Summarizer interface {
	Summarize(ctx context.Context, perQuestion []model.QuestionResult) (string, error)
}

// BackfillFeedback fills in feedback for every stored result that does not
// have it yet. Idempotent: results already marked generated are never
// touched, and a record is marked only after its feedback is stored, so a
// failed paper is retried on the next pass. Returns how many records were
// updated.
func BackfillFeedback(ctx context.Context, docs store.DocumentStore, summarizer Summarizer) (int, error) {
	pending, err := docs.ResultsMissingFeedback(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, res := range pending {
		feedback := concatFeedback(res.PerQuestion)
		if feedback == "" && summarizer != nil {
			feedback, err = summarizer.Summarize(ctx, res.PerQuestion)
			if err != nil {
				slog.Warn("feedback generation failed, will retry next pass",
					"result_id", res.ID, "student", res.StudentFilename, "error", err)
				continue
			}
		}
		if feedback == "" {
			feedback = i18n.T(ctx, "FeedbackUnavailable")
		}
		feedback = feedback + "\n" + resultLine(ctx, res)
		if err := docs.SetFeedback(ctx, res.ID, feedback); err != nil {
			slog.Warn("feedback store failed", "result_id", res.ID, "error", err)
			continue
		}
		updated++
	}
	return updated, nil
}

// resultLine renders the localized score summary appended to every
// feedback text, plus a missed-question note when any position was left
// blank.
func resultLine(ctx context.Context, res *model.StudentResult) string {
	line := i18n.Td(ctx, "ResultLine", map[string]any{
		"Obtained": res.TotalObtained,
		"Total":    res.TotalMarks,
		"Percent":  res.Percentage,
	})
	if n := len(res.MissedQuestions); n > 0 {
		line += " " + i18n.Tp(ctx, "MissedQuestions", n)
	}
	return line
}

// concatFeedback joins per-question feedback lines prefixed with their
// labels. Empty when no question carries feedback.
func concatFeedback(perQuestion []model.QuestionResult) string {
	var lines []string
	for _, q := range perQuestion {
		if strings.TrimSpace(q.Feedback) == "" {
			continue
		}
		lines = append(lines, q.Label+": "+q.Feedback)
	}
	return strings.Join(lines, "\n")
}
