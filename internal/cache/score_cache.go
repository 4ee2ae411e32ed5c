// Package cache stores collaborator responses in redis so re-evaluating the
// same answers does not spend credentials twice. Every method tolerates a
// nil client and treats redis errors as cache misses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const scoreTTL = 24 * time.Hour

// ScoreCache caches answer-quality and similarity judgments keyed by the
// hash of their inputs.
type ScoreCache interface {
	GetQuality(ctx context.Context, answer string) (percent float64, feedback string, ok bool)
	SetQuality(ctx context.Context, answer string, percent float64, feedback string)
	GetSimilarity(ctx context.Context, student, key string) (percent float64, ok bool)
	SetSimilarity(ctx context.Context, student, key string, percent float64)
}

type scoreCache struct {
	client *redis.Client
}

// NewScoreCache wraps a redis client. A nil client yields a cache that
// always misses, which keeps the scoring path identical with and without
// redis configured.
func NewScoreCache(client *redis.Client) ScoreCache {
	return &scoreCache{client: client}
}

type qualityRecord struct {
	Percent  float64 `json:"percent"`
	Feedback string  `json:"feedback"`
}

func (c *scoreCache) GetQuality(ctx context.Context, answer string) (float64, string, bool) {
	if c.client == nil {
		return 0, "", false
	}
	data, err := c.client.Get(ctx, "quality:"+hashKey(answer)).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("cache: quality lookup failed", "error", err)
		}
		return 0, "", false
	}
	var rec qualityRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return 0, "", false
	}
	return rec.Percent, rec.Feedback, true
}

func (c *scoreCache) SetQuality(ctx context.Context, answer string, percent float64, feedback string) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(qualityRecord{Percent: percent, Feedback: feedback})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, "quality:"+hashKey(answer), data, scoreTTL).Err(); err != nil {
		slog.Debug("cache: quality store failed", "error", err)
	}
}

func (c *scoreCache) GetSimilarity(ctx context.Context, student, key string) (float64, bool) {
	if c.client == nil {
		return 0, false
	}
	data, err := c.client.Get(ctx, "similarity:"+hashKey(student, key)).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("cache: similarity lookup failed", "error", err)
		}
		return 0, false
	}
	var percent float64
	if err := json.Unmarshal([]byte(data), &percent); err != nil {
		return 0, false
	}
	return percent, true
}

func (c *scoreCache) SetSimilarity(ctx context.Context, student, key string, percent float64) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(percent)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, "similarity:"+hashKey(student, key), data, scoreTTL).Err(); err != nil {
		slog.Debug("cache: similarity store failed", "error", err)
	}
}

// hashKey hashes the inputs with a separator so ("ab","c") and ("a","bc")
// never collide.
func hashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
