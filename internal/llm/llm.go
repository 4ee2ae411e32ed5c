// Package llm is the client for the text-generation collaborator, used for
// structured parsing of OCR output, answer-quality assessment, semantic
// similarity and feedback summaries. Every call is bounded by a wall-clock
// timeout and retried a small number of times; quota errors rotate the
// credential pool. Callers must treat every method as fallible and carry a
// local degradation path.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/educheck/educheck/internal/llm/prompts"
	"github.com/educheck/educheck/internal/model"
)

// ErrMalformedOutput means the model answered but not with usable JSON; the
// caller should fall back to the regex parser.
var ErrMalformedOutput = errors.New("llm: malformed collaborator output")

const (
	defaultTimeout = 45 * time.Second
	defaultRetries = 2
	defaultBackoff = 2 * time.Second
)

// Client wraps an OpenAI-compatible API endpoint with a credential pool.
type Client struct {
	pool    *CredentialPool
	model   string
	timeout time.Duration
	retries int
	backoff time.Duration

	newAPI func(key string) *openai.Client
	sleep  func(time.Duration)
}

// Option adjusts client behavior.
type Option func(*Client)

// WithTimeout sets the per-call wall-clock bound.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRetries sets the bounded retry count for transient failures.
func WithRetries(n int) Option { return func(c *Client) { c.retries = n } }

// New creates a collaborator client. baseURL may point at any
// OpenAI-compatible endpoint; pool may be empty, in which case every call
// reports ErrNoCredential and the caller's degradation path takes over.
func New(baseURL, modelName string, pool *CredentialPool, opts ...Option) *Client {
	c := &Client{
		pool:    pool,
		model:   modelName,
		timeout: defaultTimeout,
		retries: defaultRetries,
		backoff: defaultBackoff,
		sleep:   time.Sleep,
	}
	c.newAPI = func(key string) *openai.Client {
		config := openai.DefaultConfig(key)
		if baseURL != "" {
			config.BaseURL = baseURL
		}
		return openai.NewClientWithConfig(config)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Available reports whether at least one credential is configured.
func (c *Client) Available() bool {
	return c != nil && c.pool != nil && c.pool.Size() > 0
}

// complete issues one chat completion in JSON-object mode and returns the
// raw message content.
func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		key, err := c.pool.Acquire()
		if err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.newAPI(key).CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Temperature: temperature,
		})
		cancel()

		if err != nil {
			lastErr = err
			if isQuotaErr(err) {
				slog.Warn("llm: quota exhausted, rotating credential", "error", err)
				c.pool.ReportFailure(key, FailureQuota)
				// Rotate without sleeping; an alternate key may be ready now.
				continue
			}
			c.pool.ReportFailure(key, FailureTransient)
			if attempt < c.retries {
				c.sleep(c.backoff * time.Duration(attempt+1))
			}
			continue
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("llm: no choices returned")
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("llm: call failed after %d attempts: %w", c.retries+1, lastErr)
}

// completeText is complete without JSON-object mode, for free-text outputs.
func (c *Client) completeText(ctx context.Context, prompt string, temperature float32) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		key, err := c.pool.Acquire()
		if err != nil {
			return "", err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.newAPI(key).CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: temperature,
		})
		cancel()
		if err != nil {
			lastErr = err
			if isQuotaErr(err) {
				slog.Warn("llm: quota exhausted, rotating credential", "error", err)
				c.pool.ReportFailure(key, FailureQuota)
				continue
			}
			c.pool.ReportFailure(key, FailureTransient)
			if attempt < c.retries {
				c.sleep(c.backoff * time.Duration(attempt+1))
			}
			continue
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("llm: no choices returned")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("llm: call failed after %d attempts: %w", c.retries+1, lastErr)
}

// ParseStructure asks the collaborator to parse OCR pages into metadata,
// a nested parts tree and a label-to-answer map. On malformed output it
// returns ErrMalformedOutput; the pipeline then uses FallbackParse.
func (c *Client) ParseStructure(ctx context.Context, pages []model.Page) (*model.Structured, error) {
	raw, err := c.complete(ctx, prompts.ParseStructure(combinePages(pages)), 0.1)
	if err != nil {
		return nil, err
	}
	blob := extractJSONObject(raw)
	var s model.Structured
	if err := json.Unmarshal([]byte(blob), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if s.AnswerMap == nil {
		s.AnswerMap = model.NewAnswerMap()
	}
	s.Confidence = model.ConfidenceHigh
	s.Metadata.ExtractedAt = time.Now().UTC()
	return &s, nil
}

// ExtractMetadata fills exam header metadata. Regex runs first; the model is
// consulted only for the critical fields regex missed. Never returns an
// error: metadata gaps are tolerable.
func (c *Client) ExtractMetadata(ctx context.Context, pages []model.Page) model.Metadata {
	meta := regexMetadata(combinePages(pages))
	meta.ExtractedAt = time.Now().UTC()
	if !c.Available() || (meta.CourseCode != "" && meta.Roll != "") {
		return meta
	}

	raw, err := c.complete(ctx, prompts.Metadata(combinePages(pages)), 0.1)
	if err != nil {
		slog.Warn("llm: metadata extraction degraded to regex only", "error", err)
		return meta
	}
	var parsed model.Metadata
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		slog.Warn("llm: metadata response unparseable", "error", err)
		return meta
	}
	mergeMetadata(&meta, parsed)
	return meta
}

// CorrectText normalizes spelling and punctuation of OCR output while
// preserving question numbering exactly. Best effort: on any failure the
// raw text comes back unchanged.
func (c *Client) CorrectText(ctx context.Context, raw string) string {
	if !c.Available() || strings.TrimSpace(raw) == "" {
		return raw
	}
	out, err := c.completeText(ctx, prompts.Correction(raw), 0.0)
	if err != nil || out == "" {
		if err != nil {
			slog.Warn("llm: text correction skipped", "error", err)
		}
		return raw
	}
	return out
}

// Quality judges a student answer standalone (no key) for clarity,
// completeness and correctness, 0-100 plus a one-line feedback.
func (c *Client) Quality(ctx context.Context, answer string) (float64, string, error) {
	raw, err := c.complete(ctx, prompts.Quality(answer), 0.2)
	if err != nil {
		return 0, "", err
	}
	var parsed struct {
		Percent  float64 `json:"percent"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return clampPercent(parsed.Percent), strings.TrimSpace(parsed.Feedback), nil
}

// Similarity estimates semantic similarity between a student answer and one
// key answer, 0-100.
func (c *Client) Similarity(ctx context.Context, student, key string) (float64, error) {
	raw, err := c.complete(ctx, prompts.Similarity(student, key), 0.0)
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Percent float64 `json:"percent"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return clampPercent(parsed.Percent), nil
}

// Summarize produces a one-paragraph feedback summary from per-question
// results, used when no per-question feedback exists to concatenate.
func (c *Client) Summarize(ctx context.Context, perQuestion []model.QuestionResult) (string, error) {
	payload, err := json.Marshal(perQuestion)
	if err != nil {
		return "", err
	}
	return c.completeText(ctx, prompts.Summary(string(payload)), 0.3)
}

// isQuotaErr detects rate-limit / quota-exhaustion signals.
func isQuotaErr(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		msg := strings.ToLower(apiErr.Message)
		return strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") ||
			strings.Contains(msg, "resource_exhausted")
	}
	return false
}

// extractJSONObject trims chatter around the first JSON object in a model
// response (code fences, prose before or after the braces).
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func mergeMetadata(dst *model.Metadata, src model.Metadata) {
	if dst.CourseCode == "" {
		dst.CourseCode = src.CourseCode
	}
	if dst.TotalMarks == "" {
		dst.TotalMarks = src.TotalMarks
	}
	if dst.Subject == "" {
		dst.Subject = src.Subject
	}
	if dst.Date == "" {
		dst.Date = src.Date
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Roll == "" {
		dst.Roll = src.Roll
	}
	if dst.ExamType == "" {
		dst.ExamType = src.ExamType
	}
}
