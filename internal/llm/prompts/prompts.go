// Package prompts builds the collaborator prompts from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	answerTagRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	instructionTagRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

var templates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

const maxAnswerRunes = 10000

// ParseData holds template data for the structured-parse prompt.
type ParseData struct {
	DocumentText string
}

// PairData holds template data for the similarity prompt.
type PairData struct {
	StudentAnswer string
	KeyAnswer     string
}

// TextData holds template data for single-text prompts.
type TextData struct {
	Text string
}

// ParseStructure builds the prompt that turns OCR text into metadata, a
// nested parts tree and a label-to-answer map.
func ParseStructure(documentText string) string {
	return render("parse.txt", ParseData{DocumentText: sanitize(documentText)})
}

// Metadata builds the exam-header extraction prompt.
func Metadata(documentText string) string {
	return render("metadata.txt", TextData{Text: sanitize(documentText)})
}

// Correction builds the OCR-cleanup prompt.
func Correction(rawText string) string {
	return render("correction.txt", TextData{Text: sanitize(rawText)})
}

// Quality builds the standalone answer-quality prompt.
func Quality(answer string) string {
	return render("quality.txt", TextData{Text: sanitize(answer)})
}

// Similarity builds the student-versus-key comparison prompt.
func Similarity(student, key string) string {
	return render("similarity.txt", PairData{
		StudentAnswer: sanitize(student),
		KeyAnswer:     sanitize(key),
	})
}

// Summary builds the whole-paper feedback prompt from per-question results
// serialized as JSON.
func Summary(resultsJSON string) string {
	return render("summary.txt", TextData{Text: resultsJSON})
}

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		// Templates are embedded and parsed at init; execution only fails
		// on a template bug, which tests catch.
		return ""
	}
	return buf.String()
}

func sanitize(text string) string {
	text = answerTagRegex.ReplaceAllString(text, "")
	text = instructionTagRegex.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if text == "" {
		return "[No text provided]"
	}

	if utf8.RuneCountInString(text) > maxAnswerRunes {
		runes := []rune(text)
		runes = runes[:maxAnswerRunes]
		text = string(runes) + "\n\n[Text truncated due to length]"
	}

	return text
}
