// Package scoring turns aligned answers into per-question and aggregate
// results. The decision order per canonical position: empty student answer,
// then empty key, then MCQ exact match, then the blended descriptive score.
package scoring

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/educheck/educheck/internal/cache"
	"github.com/educheck/educheck/internal/canon"
	"github.com/educheck/educheck/internal/i18n"
	"github.com/educheck/educheck/internal/model"
	"github.com/educheck/educheck/internal/textmatch"
)

// IndependentWeight is the share of the descriptive score contributed by the
// standalone quality judgment; the rest comes from key similarity.
const IndependentWeight = 0.6

// QualityScorer judges an answer standalone, 0-100 plus one-line feedback.
type QualityScorer interface {
	Quality(ctx context.Context, answer string) (float64, string, error)
}

// SimilarityScorer compares a student answer to one key answer, 0-100.
type SimilarityScorer interface {
	Similarity(ctx context.Context, student, key string) (float64, error)
}

// Engine scores one student sheet against the canonical index and the
// aligned answer key. Collaborator failures degrade to local heuristics;
// scoring never fails a whole sheet.
type Engine struct {
	Quality    QualityScorer
	Similarity SimilarityScorer
	Cache      cache.ScoreCache
}

func NewEngine(quality QualityScorer, similarity SimilarityScorer, scores cache.ScoreCache) *Engine {
	if scores == nil {
		scores = cache.NewScoreCache(nil)
	}
	return &Engine{Quality: quality, Similarity: similarity, Cache: scores}
}

// ScoreStudent scores every canonical position. keyAnswers and
// studentAnswers must be aligned to idx.Ordered (one entry per label).
// totalMarks distributes evenly over the positions; zero or negative means
// one mark per question.
func (e *Engine) ScoreStudent(ctx context.Context, idx *canon.Index, keyAnswers, studentAnswers *model.AnswerMap, totalMarks float64) *model.StudentResult {
	n := idx.Len()
	perQ := 1.0
	if totalMarks > 0 && n > 0 {
		perQ = totalMarks / float64(n)
	}

	res := &model.StudentResult{
		PerQuestion:      make([]model.QuestionResult, 0, n),
		DegradedOrdering: idx.Degraded,
		EvaluatedAt:      time.Now().UTC(),
	}

	for i := 0; i < n; i++ {
		label := idx.Ordered[i]
		canonical := idx.Canonical[i]

		var keyVals []string
		if entry, ok := keyAnswers.Get(label); ok {
			keyVals = keyAlternatives(entry.Answers)
		}
		student := ""
		if entry, ok := studentAnswers.Get(label); ok {
			student = strings.TrimSpace(entry.First())
		}

		qr := e.scoreQuestion(ctx, student, keyVals, perQ)
		qr.Canonical = canonical
		qr.Label = label
		res.PerQuestion = append(res.PerQuestion, qr)

		if student == "" {
			res.MissedQuestions = append(res.MissedQuestions, canonical)
		}
		res.TotalObtained += qr.Awarded
	}

	res.TotalObtained = round2(res.TotalObtained)
	res.TotalMarks = round2(perQ * float64(n))
	if res.TotalMarks > 0 {
		res.Percentage = round2(res.TotalObtained / res.TotalMarks * 100)
	}
	return res
}

func (e *Engine) scoreQuestion(ctx context.Context, student string, keyVals []string, perQ float64) model.QuestionResult {
	qr := model.QuestionResult{
		StudentAnswer: student,
		KeyAnswers:    keyVals,
		MaxMarks:      round2(perQ),
	}

	if student == "" {
		qr.Reason = model.ReasonNoStudentAnswer
		qr.Feedback = i18n.T(ctx, "NoStudentAnswer")
		return qr
	}
	if len(keyVals) == 0 {
		qr.Reason = model.ReasonNoAnswerKey
		qr.Feedback = i18n.T(ctx, "NoAnswerKey")
		return qr
	}

	if isMCQKey(keyVals) {
		letter := firstSegment(student)
		if isOptionLetter(letter) {
			if matchesOption(letter, keyVals) {
				qr.Reason = model.ReasonMCQCorrect
				qr.Feedback = i18n.T(ctx, "MCQCorrect")
				qr.FinalPercent = 100
				qr.Awarded = round2(perQ)
			} else {
				qr.Reason = model.ReasonMCQIncorrect
				qr.Feedback = i18n.T(ctx, "MCQIncorrect")
			}
			return qr
		}
		// A written answer against an option-letter key still gets the
		// descriptive treatment; the letter alone carries no meaning to
		// compare prose against.
		qr.Reason = model.ReasonMCQFormatMismatch
	} else {
		qr.Reason = model.ReasonDescriptive
	}

	// Choose-any questions credit the first attempt only, so the quality
	// and similarity judgments see just the first answer segment.
	attempt := firstSegment(student)
	quality, feedback := e.qualityScore(ctx, attempt)
	similarity := e.bestSimilarity(ctx, attempt, keyVals)

	qr.IndependentPercent = round2(quality)
	qr.SimilarityPercent = round2(similarity)
	qr.FinalPercent = round2(IndependentWeight*quality + (1-IndependentWeight)*similarity)
	qr.Awarded = round2(qr.FinalPercent / 100 * perQ)
	if qr.Reason == model.ReasonMCQFormatMismatch {
		qr.Feedback = i18n.T(ctx, "MCQFormatMismatch")
	} else if feedback != "" {
		qr.Feedback = feedback
	} else {
		qr.Feedback = i18n.T(ctx, "DescriptiveDefault")
	}
	return qr
}

func (e *Engine) qualityScore(ctx context.Context, answer string) (float64, string) {
	if pct, feedback, ok := e.Cache.GetQuality(ctx, answer); ok {
		return pct, feedback
	}
	if e.Quality != nil {
		pct, feedback, err := e.Quality.Quality(ctx, answer)
		if err == nil {
			e.Cache.SetQuality(ctx, answer, pct, feedback)
			return pct, feedback
		}
		slog.Warn("scoring: quality judgment degraded to length heuristic", "error", err)
	}
	return textmatch.LengthHeuristic(answer), ""
}

// bestSimilarity takes the best match across key alternatives, so a
// choose-any question credits whichever alternative the student answered.
func (e *Engine) bestSimilarity(ctx context.Context, student string, keyVals []string) float64 {
	best := 0.0
	for _, key := range keyVals {
		pct, ok := e.Cache.GetSimilarity(ctx, student, key)
		if !ok {
			if e.Similarity != nil {
				var err error
				pct, err = e.Similarity.Similarity(ctx, student, key)
				if err != nil {
					slog.Warn("scoring: similarity degraded to edit distance", "error", err)
					pct = textmatch.Ratio(student, key)
				} else {
					e.Cache.SetSimilarity(ctx, student, key, pct)
				}
			} else {
				pct = textmatch.Ratio(student, key)
			}
		}
		if pct > best {
			best = pct
		}
	}
	return best
}

// isMCQKey reports whether every key alternative is a single option letter.
func isMCQKey(keyVals []string) bool {
	for _, k := range keyVals {
		if !isOptionLetter(k) {
			return false
		}
	}
	return len(keyVals) > 0
}

func isOptionLetter(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 1 {
		return false
	}
	c := s[0]
	return (c >= 'A' && c <= 'D') || (c >= 'a' && c <= 'd')
}

func matchesOption(student string, keyVals []string) bool {
	for _, k := range keyVals {
		if strings.EqualFold(strings.TrimSpace(student), strings.TrimSpace(k)) {
			return true
		}
	}
	return false
}

// keyAlternatives expands key answers into acceptable alternatives. A single
// value like "A, C" splits into option letters, and a comma-joined prose key
// ("osmosis, diffusion") splits into one alternative per part.
func keyAlternatives(vals []string) []string {
	var out []string
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if letters := splitOptionList(v); letters != nil {
			out = append(out, letters...)
			continue
		}
		if strings.Contains(v, ",") {
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			continue
		}
		out = append(out, v)
	}
	return out
}

// splitOptionList splits "A, C" or "B/D" into letters; nil when the value is
// not a pure option list.
func splitOptionList(v string) []string {
	parts := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == '/'
	})
	if len(parts) < 2 {
		return nil
	}
	var letters []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !isOptionLetter(p) {
			return nil
		}
		letters = append(letters, p)
	}
	return letters
}

// firstSegment takes the first answer a student wrote when several are
// separated by newlines or list punctuation. Falls back to the whole trimmed
// string when the first segment is blank.
func firstSegment(s string) string {
	cut := len(s)
	for _, sep := range []string{"\n", ";", ",", "/"} {
		if i := strings.Index(s, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	if first := strings.TrimSpace(s[:cut]); first != "" {
		return first
	}
	return strings.TrimSpace(s)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
