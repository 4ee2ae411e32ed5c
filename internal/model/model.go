package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DocType identifies which collection a processed document belongs to.
type DocType string

const (
	DocQuestionPaper DocType = "question_paper"
	DocAnswerKey     DocType = "answer_key"
	DocStudentAnswer DocType = "student_answer"
	DocMisc          DocType = "misc"
)

// Reason codes attached to every scored question.
type Reason string

const (
	ReasonNoStudentAnswer   Reason = "no_student_answer"
	ReasonNoAnswerKey       Reason = "no_answer_key"
	ReasonMCQCorrect        Reason = "mcq_correct"
	ReasonMCQIncorrect      Reason = "mcq_incorrect"
	ReasonMCQFormatMismatch Reason = "mcq_format_mismatch"
	ReasonDescriptive       Reason = "descriptive_combined"
)

// Confidence of a structured parse. Low means the regex fallback produced it.
const (
	ConfidenceHigh = "high"
	ConfidenceLow  = "low"
)

// Page is one OCR'd page of a scanned document.
type Page struct {
	Number int    `bson:"page" json:"page"`
	Text   string `bson:"text" json:"text"`
}

// Metadata holds exam header fields extracted from a document. Values are
// kept as strings exactly as they appeared; interpretation happens at
// scoring time.
type Metadata struct {
	CourseCode  string    `bson:"course_code" json:"course_code"`
	TotalMarks  string    `bson:"total_marks" json:"total_marks"`
	Subject     string    `bson:"subject" json:"subject"`
	Date        string    `bson:"date" json:"date"`
	Name        string    `bson:"name" json:"name"`
	Roll        string    `bson:"roll" json:"roll"`
	ExamType    string    `bson:"exam_type" json:"exam_type"`
	ExtractedAt time.Time `bson:"extracted_at" json:"extracted_at"`
}

// TotalMarksValue parses the total-marks header field. The second return is
// false when the field is absent or not numeric.
func (m Metadata) TotalMarksValue() (float64, bool) {
	s := strings.TrimSpace(m.TotalMarks)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// UnmarshalJSON tolerates numeric and null values for the string fields,
// since the parse collaborator does not reliably quote them.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.CourseCode = flexString(raw["course_code"])
	m.TotalMarks = flexString(raw["total_marks"])
	m.Subject = flexString(raw["subject"])
	m.Date = flexString(raw["date"])
	m.Name = flexString(raw["name"])
	m.Roll = flexString(raw["roll"])
	m.ExamType = flexString(raw["exam_type"])
	return nil
}

func flexString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strings.TrimSpace(strings.Trim(string(raw), `"`))
}

// Structured is the output of the structured-parse collaborator: header
// metadata, a nested parts tree (kept as raw JSON so document order
// survives), and the label-to-answer map.
type Structured struct {
	Metadata   Metadata        `bson:"metadata" json:"metadata"`
	PartsJSON  json.RawMessage `bson:"-" json:"parts"`
	AnswerMap  *AnswerMap      `bson:"answer_map" json:"answer_map"`
	Confidence string          `bson:"confidence" json:"confidence"`
}

// Document is one processed upload, persisted per document type.
type Document struct {
	ID              string     `bson:"_id,omitempty" json:"id"`
	Filename        string     `bson:"filename" json:"filename"`
	Filepath        string     `bson:"filepath" json:"filepath"`
	Type            DocType    `bson:"type" json:"type"`
	UploadedAt      time.Time  `bson:"uploaded_at" json:"uploaded_at"`
	Pages           []Page     `bson:"pages" json:"pages"`
	RawText         string     `bson:"raw_text" json:"raw_text"`
	CorrectedText   string     `bson:"corrected_text" json:"corrected_text"`
	Metadata        Metadata   `bson:"metadata" json:"metadata"`
	PartsJSON       string     `bson:"parts_json" json:"parts_json"`
	Confidence      string     `bson:"confidence" json:"confidence"`
	AnswersOriginal *AnswerMap `bson:"answers_original,omitempty" json:"answers_original,omitempty"`
	AnswersAligned  *AnswerMap `bson:"answers_aligned,omitempty" json:"answers_aligned,omitempty"`

	// Canonical index artifacts, present on authoritative documents.
	OrderedOriginal  []string          `bson:"ordered_questions_original,omitempty" json:"ordered_questions_original,omitempty"`
	OrderedCanonical []string          `bson:"ordered_questions_canonical,omitempty" json:"ordered_questions_canonical,omitempty"`
	LabelToCanonical map[string]string `bson:"label_to_canonical,omitempty" json:"label_to_canonical,omitempty"`
	CanonicalToLabel map[string]string `bson:"canonical_to_label,omitempty" json:"canonical_to_label,omitempty"`
	DegradedOrdering bool              `bson:"degraded_ordering" json:"degraded_ordering"`

	// Canonical positions with no aligned answer (answer keys and students).
	MissingPositions []string `bson:"missing_positions,omitempty" json:"missing_positions,omitempty"`
}

// APIToken is a named API credential; only the bcrypt hash is stored.
type APIToken struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Hash      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// StudentInfo is the minimal identity carried into a result record.
type StudentInfo struct {
	Name string `bson:"name" json:"name"`
	Roll string `bson:"roll" json:"roll"`
}

// QuestionResult is the outcome of scoring one canonical position for one
// student. Immutable once stored; re-evaluation writes a new StudentResult.
type QuestionResult struct {
	Canonical          string   `bson:"canonical" json:"canonical"`
	Label              string   `bson:"label" json:"label"`
	StudentAnswer      string   `bson:"student_answer" json:"student_answer"`
	KeyAnswers         []string `bson:"key_answers" json:"key_answers"`
	Awarded            float64  `bson:"awarded" json:"awarded"`
	MaxMarks           float64  `bson:"max_marks" json:"max_marks"`
	FinalPercent       float64  `bson:"final_percent" json:"final_percent"`
	IndependentPercent float64  `bson:"independent_percent" json:"independent_percent"`
	SimilarityPercent  float64  `bson:"similarity_percent" json:"similarity_percent"`
	Feedback           string   `bson:"feedback" json:"feedback"`
	Reason             Reason   `bson:"reason" json:"reason"`
}

// StudentResult aggregates all QuestionResults for one student in one
// evaluation run.
type StudentResult struct {
	ID               string           `bson:"_id,omitempty" json:"id"`
	RunID            string           `bson:"run_id" json:"run_id"`
	StudentFilename  string           `bson:"student_filename" json:"student_filename"`
	StudentInfo      StudentInfo      `bson:"student_info" json:"student_info"`
	PerQuestion      []QuestionResult `bson:"per_question" json:"per_question"`
	MissedQuestions  []string         `bson:"missed_questions" json:"missed_questions"`
	TotalObtained    float64          `bson:"total_obtained" json:"total_obtained"`
	TotalMarks       float64          `bson:"total_marks" json:"total_marks"`
	Percentage       float64          `bson:"percentage" json:"percentage"`
	DegradedOrdering bool             `bson:"degraded_ordering" json:"degraded_ordering"`
	EvaluatedAt      time.Time        `bson:"evaluated_at" json:"evaluated_at"`

	Feedback            string     `bson:"feedback" json:"feedback"`
	FeedbackGenerated   bool       `bson:"feedback_generated" json:"feedback_generated"`
	FeedbackGeneratedAt *time.Time `bson:"feedback_generated_at,omitempty" json:"feedback_generated_at,omitempty"`
}
