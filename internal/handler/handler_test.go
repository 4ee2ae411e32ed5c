package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/educheck/educheck/internal/i18n"
	"github.com/educheck/educheck/internal/model"
	"github.com/educheck/educheck/internal/pipeline"
	"github.com/educheck/educheck/internal/store"
)

type fakeProc struct {
	processDir  string
	evalRunID   string
	evalErr     error
	processStat pipeline.ProcessStats
	evalStat    pipeline.EvaluateStats
}

func (f *fakeProc) ProcessDir(ctx context.Context, dir string) (pipeline.ProcessStats, error) {
	f.processDir = dir
	return f.processStat, nil
}

func (f *fakeProc) Evaluate(ctx context.Context, runID string) (pipeline.EvaluateStats, error) {
	f.evalRunID = runID
	return f.evalStat, f.evalErr
}

type fakeDocs struct {
	results  map[string][]*model.StudentResult
	pending  []*model.StudentResult
	feedback map[string]string
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{results: map[string][]*model.StudentResult{}, feedback: map[string]string{}}
}

func (f *fakeDocs) InsertDocument(ctx context.Context, doc *model.Document) error { return nil }
func (f *fakeDocs) LatestDocument(ctx context.Context, docType model.DocType) (*model.Document, error) {
	return nil, nil
}
func (f *fakeDocs) StudentDocuments(ctx context.Context) ([]*model.Document, error) {
	return nil, nil
}
func (f *fakeDocs) InsertResult(ctx context.Context, res *model.StudentResult) error { return nil }
func (f *fakeDocs) Results(ctx context.Context, runID string) ([]*model.StudentResult, error) {
	return f.results[runID], nil
}
func (f *fakeDocs) ResultsMissingFeedback(ctx context.Context) ([]*model.StudentResult, error) {
	return f.pending, nil
}
func (f *fakeDocs) SetFeedback(ctx context.Context, resultID, feedback string) error {
	f.feedback[resultID] = feedback
	return nil
}

type testEnv struct {
	router chi.Router
	proc   *fakeProc
	docs   *fakeDocs
	local  *store.Local
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}
	local, err := store.OpenLocal(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	proc := &fakeProc{}
	docs := newFakeDocs()
	dir := t.TempDir()
	h, err := New(proc, docs, local, nil, dir)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	r := chi.NewRouter()
	h.Routes(r)
	return &testEnv{router: r, proc: proc, docs: docs, local: local, dir: dir}
}

func multipartBody(t *testing.T, filenames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range filenames {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte("scanned page content")); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadSavesWithUniqueSuffix(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, "answer_key.png", "alice_sheet.jpg")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp struct {
		Saved []string `json:"saved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Saved) != 2 {
		t.Fatalf("saved %d files, want 2", len(resp.Saved))
	}
	if !strings.HasPrefix(resp.Saved[0], "answer_key_") || !strings.HasSuffix(resp.Saved[0], ".png") {
		t.Errorf("saved[0] = %q, want answer_key_<suffix>.png", resp.Saved[0])
	}
	if resp.Saved[0] == "answer_key.png" {
		t.Error("stored name should differ from the original")
	}
	for _, name := range resp.Saved {
		if _, err := os.Stat(filepath.Join(env.dir, name)); err != nil {
			t.Errorf("stat %s: %v", name, err)
		}
	}
}

func TestUploadNoFiles(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestProcessDefaultsToUploadDir(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if env.proc.processDir != env.dir {
		t.Errorf("processed dir = %q, want upload dir %q", env.proc.processDir, env.dir)
	}
}

func TestEvaluateGeneratesRunID(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Fatal("run_id should be generated when not supplied")
	}
	if env.proc.evalRunID != resp.RunID {
		t.Errorf("evaluated run %q, response says %q", env.proc.evalRunID, resp.RunID)
	}
}

func TestEvaluateKeepsSuppliedRunID(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", strings.NewReader(`{"run_id":"run-7"}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if env.proc.evalRunID != "run-7" {
		t.Errorf("evaluated run %q, want run-7", env.proc.evalRunID)
	}
}

func TestEvaluateWithoutAnswerKey(t *testing.T) {
	env := newTestEnv(t)
	env.proc.evalErr = pipeline.ErrNoAuthoritativeDocument

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestResultsDefaultRun(t *testing.T) {
	env := newTestEnv(t)
	if err := env.local.SetMeta("last_run_id", "run-9"); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	env.docs.results["run-9"] = []*model.StudentResult{
		{ID: "r1", RunID: "run-9", StudentFilename: "alice.png", TotalObtained: 7.5},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		RunID   string                 `json:"run_id"`
		Results []*model.StudentResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID != "run-9" {
		t.Errorf("run_id = %q, want run-9 from stored metadata", resp.RunID)
	}
	if len(resp.Results) != 1 || resp.Results[0].StudentFilename != "alice.png" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

func TestFeedbackBackfill(t *testing.T) {
	env := newTestEnv(t)
	env.docs.pending = []*model.StudentResult{
		{ID: "r1", PerQuestion: []model.QuestionResult{
			{Label: "1", Feedback: "Correct option selected."},
		}},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/feedback", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := env.docs.feedback["r1"]; !strings.Contains(got, "Correct option selected.") {
		t.Errorf("feedback = %q, want per-question concat", got)
	}
}

func TestTokenAuth(t *testing.T) {
	env := newTestEnv(t)

	// Open access until the first token exists.
	req := httptest.NewRequest(http.MethodGet, "/api/results", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status without tokens = %d, want %d", rec.Code, http.StatusOK)
	}

	plaintext, err := env.local.CreateToken("ci")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/results", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without header = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/results", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/results", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with valid token = %d, want %d", rec.Code, http.StatusOK)
	}
}
