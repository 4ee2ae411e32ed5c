package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/educheck/educheck/internal/model"
)

// Regex-first extraction. These run before (and instead of, when the
// collaborator is unavailable) any model call, so routine documents never
// spend a credential.

var (
	courseCodeRegex = regexp.MustCompile(`(?im)^.*?(?:course|subject)\s*code\s*[:\-]?\s*([A-Z]{2,}[\s\-]?\d{2,4}[A-Z]?)`)
	totalMarksRegex = regexp.MustCompile(`(?im)(?:total\s*marks|maximum\s*marks|max\.?\s*marks|full\s*marks)\s*[:\-]?\s*(\d+(?:\.\d+)?)`)
	subjectRegex    = regexp.MustCompile(`(?im)^\s*subject\s*[:\-]\s*(.+)$`)
	dateRegex       = regexp.MustCompile(`(?im)(?:date|dated)\s*[:\-]?\s*(\d{1,2}[\/\-.]\d{1,2}[\/\-.]\d{2,4})`)
	nameRegex       = regexp.MustCompile(`(?im)^\s*(?:student\s*)?name\s*[:\-]\s*(.+)$`)
	rollRegex       = regexp.MustCompile(`(?im)(?:roll\s*(?:no|number)?|reg(?:istration)?\.?\s*(?:no|number)?)\s*[:\-.]?\s*([A-Za-z0-9\/\-]{2,})`)

	questionLineRegex = regexp.MustCompile(`^\s*(?:Q(?:uestion)?\s*\.?\s*)?(\d+[a-z]?(?:\s*\([ivxlc0-9a-z]+\))?)\s*[.):\-]\s*(.*)$`)

	mcqLineRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(?:Q(?:uestion)?\s*\.?\s*)?(\d+)\s*[.):\-]\s*(?:Ans(?:wer)?\s*[:\-]?\s*)?\(?([A-Da-d])\)?\s*$`),
		regexp.MustCompile(`(?i)^\s*Ans(?:wer)?\s*\.?\s*(\d+)\s*[.):\-]?\s*\(?([A-Da-d])\)?\s*$`),
	}
)

// combinePages joins page texts in page order with page breaks.
func combinePages(pages []model.Page) string {
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// regexMetadata pulls header fields that follow common exam conventions.
func regexMetadata(text string) model.Metadata {
	var meta model.Metadata
	if m := courseCodeRegex.FindStringSubmatch(text); m != nil {
		meta.CourseCode = strings.TrimSpace(m[1])
	}
	if m := totalMarksRegex.FindStringSubmatch(text); m != nil {
		meta.TotalMarks = m[1]
	}
	if m := subjectRegex.FindStringSubmatch(text); m != nil {
		meta.Subject = strings.TrimSpace(m[1])
	}
	if m := dateRegex.FindStringSubmatch(text); m != nil {
		meta.Date = m[1]
	}
	if m := nameRegex.FindStringSubmatch(text); m != nil {
		meta.Name = strings.TrimSpace(m[1])
	}
	if m := rollRegex.FindStringSubmatch(text); m != nil {
		meta.Roll = strings.TrimSpace(m[1])
	}
	return meta
}

// FallbackParse builds a structured parse from the OCR text alone, without a
// model call. It scans for numbered question lines, takes the text between a
// label and the next label as that question's answer, and marks the result
// low confidence so downstream consumers know to tolerate gaps.
func FallbackParse(pages []model.Page) *model.Structured {
	text := combinePages(pages)
	answers := model.NewAnswerMap()
	var order []string

	seen := make(map[string]struct{})
	current := ""
	var body []string
	flush := func() {
		if current == "" {
			return
		}
		answers.Set(current, strings.TrimSpace(strings.Join(body, "\n")))
		order = append(order, current)
		current, body = "", nil
	}

	for _, line := range strings.Split(text, "\n") {
		if m := questionLineRegex.FindStringSubmatch(line); m != nil {
			label := normalizeLabel(m[1])
			if _, dup := seen[strings.ToLower(label)]; !dup {
				seen[strings.ToLower(label)] = struct{}{}
				flush()
				current = label
				if rest := strings.TrimSpace(m[2]); rest != "" {
					body = append(body, rest)
				}
				continue
			}
		}
		if current != "" {
			body = append(body, line)
		}
	}
	flush()

	return &model.Structured{
		Metadata:   withTimestamp(regexMetadata(text)),
		PartsJSON:  buildPartsJSON(order),
		AnswerMap:  answers,
		Confidence: model.ConfidenceLow,
	}
}

// ExtractMCQ scans for answer-sheet style lines mapping a question number to
// a single option letter (e.g. "Q1. A", "3) c", "Ans 2: B"). Returns nil when
// nothing matches.
func ExtractMCQ(text string) *model.AnswerMap {
	answers := model.NewAnswerMap()
	for _, line := range strings.Split(text, "\n") {
		for _, re := range mcqLineRegexes {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			label := "Q" + m[1]
			if _, dup := answers.Get(label); !dup {
				answers.Set(label, strings.ToUpper(m[2]))
			}
			break
		}
	}
	if answers.Len() == 0 {
		return nil
	}
	return answers
}

// buildPartsJSON renders a single-part tree holding the labels in document
// order, shaped like collaborator output so the same flattener handles both.
func buildPartsJSON(labels []string) []byte {
	var sb strings.Builder
	sb.WriteString(`{"Paper":{"questions":{`)
	for i, l := range labels {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(l))
		sb.WriteString(`:{}`)
	}
	sb.WriteString(`}}}`)
	return []byte(sb.String())
}

// normalizeLabel tightens whitespace inside a matched label ("2 (a)" -> "2(a)").
func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(label), "")
}

func withTimestamp(meta model.Metadata) model.Metadata {
	meta.ExtractedAt = time.Now().UTC()
	return meta
}
