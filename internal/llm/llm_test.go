package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/educheck/educheck/internal/model"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"no object", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONObject(tt.in); got != tt.want {
				t.Errorf("extractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRegexMetadata(t *testing.T) {
	text := `
Course Code: CS-301
Subject: Operating Systems
Total Marks: 50
Date: 12/03/2026
Name: A. Student
Roll No. 21CS042
`
	meta := regexMetadata(text)
	if meta.CourseCode != "CS-301" {
		t.Errorf("CourseCode = %q", meta.CourseCode)
	}
	if meta.Subject != "Operating Systems" {
		t.Errorf("Subject = %q", meta.Subject)
	}
	if meta.TotalMarks != "50" {
		t.Errorf("TotalMarks = %q", meta.TotalMarks)
	}
	if meta.Date != "12/03/2026" {
		t.Errorf("Date = %q", meta.Date)
	}
	if meta.Name != "A. Student" {
		t.Errorf("Name = %q", meta.Name)
	}
	if meta.Roll != "21CS042" {
		t.Errorf("Roll = %q", meta.Roll)
	}
}

func TestFallbackParse(t *testing.T) {
	pages := []model.Page{{Number: 1, Text: `Name: B. Learner
Total Marks: 20

1. The CPU schedules processes.
It uses a ready queue.
2a) Paging divides memory into frames.
2b) Segmentation uses variable sizes.
`}}

	s := FallbackParse(pages)
	if s.Confidence != model.ConfidenceLow {
		t.Fatalf("Confidence = %q, want low", s.Confidence)
	}
	wantLabels := []string{"1", "2a", "2b"}
	got := s.AnswerMap.Labels()
	if len(got) != len(wantLabels) {
		t.Fatalf("labels = %v, want %v", got, wantLabels)
	}
	for i, l := range wantLabels {
		if got[i] != l {
			t.Errorf("labels[%d] = %q, want %q", i, got[i], l)
		}
	}
	entry, _ := s.AnswerMap.Get("1")
	if !strings.Contains(entry.First(), "ready queue") {
		t.Errorf("answer for 1 missing continuation line: %q", entry.First())
	}
	if s.Metadata.TotalMarks != "20" {
		t.Errorf("TotalMarks = %q", s.Metadata.TotalMarks)
	}
	if len(s.PartsJSON) == 0 {
		t.Error("PartsJSON empty")
	}
	var tree map[string]any
	if err := json.Unmarshal(s.PartsJSON, &tree); err != nil {
		t.Errorf("PartsJSON not valid JSON: %v", err)
	}
}

func TestExtractMCQ(t *testing.T) {
	text := `Q1. A
2) b
Ans 3: C
Question 4 - (D)
not an answer line
Q1. B
`
	answers := ExtractMCQ(text)
	if answers == nil {
		t.Fatal("ExtractMCQ returned nil")
	}
	tests := []struct {
		label string
		want  string
	}{
		{"Q1", "A"}, // first occurrence wins, "Q1. B" ignored
		{"Q2", "B"},
		{"Q3", "C"},
		{"Q4", "D"},
	}
	for _, tt := range tests {
		entry, ok := answers.Get(tt.label)
		if !ok {
			t.Errorf("missing %s", tt.label)
			continue
		}
		if entry.First() != tt.want {
			t.Errorf("%s = %q, want %q", tt.label, entry.First(), tt.want)
		}
	}
	if answers.Len() != 4 {
		t.Errorf("Len = %d, want 4", answers.Len())
	}

	if got := ExtractMCQ("descriptive answer about paging"); got != nil {
		t.Errorf("expected nil for non-MCQ text, got %d entries", got.Len())
	}
}

// chatResponse renders a minimal chat-completion body whose message content
// is the given string.
func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func testClient(t *testing.T, handler http.HandlerFunc, keys ...string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/v1", "test-model", NewCredentialPool(keys, time.Minute))
	c.sleep = func(time.Duration) {}
	return c
}

func TestClientParseStructure(t *testing.T) {
	body := `{"metadata":{"subject":"OS","total_marks":50},"parts":{"Part A":{"questions":{"1":{},"2":{}}}},"answer_map":{"1":"ans one","2":""}}`
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatResponse(body))
	}, "key-1")

	s, err := c.ParseStructure(context.Background(), []model.Page{{Number: 1, Text: "doc"}})
	if err != nil {
		t.Fatalf("ParseStructure: %v", err)
	}
	if s.Confidence != model.ConfidenceHigh {
		t.Errorf("Confidence = %q, want high", s.Confidence)
	}
	if s.Metadata.Subject != "OS" {
		t.Errorf("Subject = %q", s.Metadata.Subject)
	}
	if s.Metadata.TotalMarks != "50" {
		t.Errorf("TotalMarks = %q (numeric value should become a string)", s.Metadata.TotalMarks)
	}
	if s.AnswerMap.Len() != 2 {
		t.Errorf("AnswerMap.Len = %d, want 2", s.AnswerMap.Len())
	}
}

func TestClientParseStructureMalformed(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatResponse("sorry, I cannot parse that"))
	}, "key-1")

	_, err := c.ParseStructure(context.Background(), []model.Page{{Text: "doc"}})
	if err == nil || !strings.Contains(err.Error(), ErrMalformedOutput.Error()) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestClientQuotaRotation(t *testing.T) {
	var calls []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		calls = append(calls, auth)
		if strings.Contains(auth, "exhausted-key") {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`)
			return
		}
		fmt.Fprint(w, chatResponse(`{"percent": 80}`))
	}, "exhausted-key", "good-key")

	got, err := c.Similarity(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if got != 80 {
		t.Errorf("percent = %v, want 80", got)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", len(calls))
	}
	if !strings.Contains(calls[1], "good-key") {
		t.Errorf("second call should use the healthy key, got %q", calls[1])
	}
}

func TestClientNoCredentials(t *testing.T) {
	c := New("", "test-model", NewCredentialPool(nil, time.Minute))
	if c.Available() {
		t.Error("Available() should be false with no keys")
	}
	if _, _, err := c.Quality(context.Background(), "x"); err == nil {
		t.Error("Quality should fail without credentials")
	}
}

func TestCorrectTextDegradesToInput(t *testing.T) {
	c := New("", "test-model", NewCredentialPool(nil, time.Minute))
	if got := c.CorrectText(context.Background(), "raw ocr text"); got != "raw ocr text" {
		t.Errorf("CorrectText without credentials = %q, want input unchanged", got)
	}
}

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-5, 0}, {0, 0}, {55.5, 55.5}, {100, 100}, {140, 100},
	}
	for _, tt := range tests {
		if got := clampPercent(tt.in); got != tt.want {
			t.Errorf("clampPercent(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
