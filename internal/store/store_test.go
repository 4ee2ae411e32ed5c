package store

import (
	"path/filepath"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := OpenLocal(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestCheckpoints(t *testing.T) {
	l := newTestLocal(t)

	done, err := l.Evaluated("run-1")
	if err != nil {
		t.Fatalf("Evaluated: %v", err)
	}
	if len(done) != 0 {
		t.Fatalf("fresh run should have no checkpoints, got %d", len(done))
	}

	if err := l.MarkEvaluated("run-1", "alice.pdf"); err != nil {
		t.Fatalf("MarkEvaluated: %v", err)
	}
	if err := l.MarkEvaluated("run-1", "alice.pdf"); err != nil {
		t.Fatalf("re-mark should be idempotent: %v", err)
	}
	if err := l.MarkEvaluated("run-1", "bob.pdf"); err != nil {
		t.Fatalf("MarkEvaluated: %v", err)
	}
	if err := l.MarkEvaluated("run-2", "carol.pdf"); err != nil {
		t.Fatalf("MarkEvaluated: %v", err)
	}

	done, err = l.Evaluated("run-1")
	if err != nil {
		t.Fatalf("Evaluated: %v", err)
	}
	if len(done) != 2 || !done["alice.pdf"] || !done["bob.pdf"] {
		t.Errorf("run-1 checkpoints = %v", done)
	}
	if done["carol.pdf"] {
		t.Error("run-2 checkpoint leaked into run-1")
	}

	if err := l.ClearRun("run-1"); err != nil {
		t.Fatalf("ClearRun: %v", err)
	}
	done, _ = l.Evaluated("run-1")
	if len(done) != 0 {
		t.Errorf("checkpoints survive ClearRun: %v", done)
	}
	done, _ = l.Evaluated("run-2")
	if !done["carol.pdf"] {
		t.Error("ClearRun removed another run's checkpoint")
	}
}

func TestMeta(t *testing.T) {
	l := newTestLocal(t)

	v, err := l.GetMeta("last_run_id")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "" {
		t.Errorf("missing key should be empty, got %q", v)
	}

	if err := l.SetMeta("last_run_id", "run-7"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := l.SetMeta("last_run_id", "run-8"); err != nil {
		t.Fatalf("SetMeta upsert: %v", err)
	}
	v, _ = l.GetMeta("last_run_id")
	if v != "run-8" {
		t.Errorf("GetMeta = %q, want run-8", v)
	}
}

func TestTokens(t *testing.T) {
	l := newTestLocal(t)

	plain, err := l.CreateToken("ci")
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if len(plain) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(plain))
	}

	tokens, err := l.ActiveTokens()
	if err != nil {
		t.Fatalf("ActiveTokens: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Name != "ci" {
		t.Fatalf("tokens = %+v", tokens)
	}
	if tokens[0].Hash == plain {
		t.Error("plaintext must not be stored")
	}

	if err := l.RevokeToken("ci"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	count, _ := l.TokenCount()
	if count != 0 {
		t.Errorf("TokenCount after revoke = %d, want 0", count)
	}
}
