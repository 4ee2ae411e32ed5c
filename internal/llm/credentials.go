package llm

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNoCredential is returned when every configured credential is cooling
// down (or none were configured). Callers degrade to local heuristics
// instead of failing the evaluation run.
var ErrNoCredential = errors.New("llm: no usable credential")

// FailureKind classifies a collaborator call failure for the pool.
type FailureKind int

const (
	// FailureTransient covers timeouts and 5xx; the credential stays usable.
	FailureTransient FailureKind = iota
	// FailureQuota is a rate-limit / quota-exhaustion signal; the credential
	// is put on cooldown and the pool rotates immediately.
	FailureQuota
)

// CredentialPool owns the API credentials for the text-generation
// collaborator. It is created per evaluation run and passed into the
// pipeline explicitly; there is no ambient global key state. A credential
// that hits its quota is benched for a bounded interval while the pool
// rotates to an alternate one rather than blocking.
type CredentialPool struct {
	mu       sync.Mutex
	entries  []poolEntry
	current  int
	cooldown time.Duration
	now      func() time.Time
}

type poolEntry struct {
	key          string
	coolingUntil time.Time
}

// NewCredentialPool builds a pool from the configured API keys. Blank keys
// are dropped. An empty pool is valid; Acquire then always reports
// ErrNoCredential.
func NewCredentialPool(keys []string, cooldown time.Duration) *CredentialPool {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	p := &CredentialPool{cooldown: cooldown, now: time.Now}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		p.entries = append(p.entries, poolEntry{key: k})
	}
	return p
}

// Acquire returns the active credential, advancing past any that are still
// cooling down. The choice is sticky: the same credential is handed out
// until it fails.
func (p *CredentialPool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return "", ErrNoCredential
	}
	now := p.now()
	for i := 0; i < len(p.entries); i++ {
		idx := (p.current + i) % len(p.entries)
		if p.entries[idx].coolingUntil.After(now) {
			continue
		}
		p.current = idx
		return p.entries[idx].key, nil
	}
	return "", ErrNoCredential
}

// ReportFailure records a call failure for a credential. Quota failures put
// it on cooldown and move the pool to the next credential; transient
// failures leave rotation alone.
func (p *CredentialPool) ReportFailure(key string, kind FailureKind) {
	if kind != FailureQuota {
		return
	}
	p.Cooldown(key, p.cooldown)
}

// Cooldown benches a credential for the given interval.
func (p *CredentialPool) Cooldown(key string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := p.now().Add(d)
	for i := range p.entries {
		if p.entries[i].key != key {
			continue
		}
		p.entries[i].coolingUntil = until
		if p.current == i {
			p.current = (i + 1) % len(p.entries)
		}
		return
	}
}

// Size returns the number of configured credentials.
func (p *CredentialPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
