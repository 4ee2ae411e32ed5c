package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/educheck/educheck/internal/model"
	"github.com/educheck/educheck/internal/pipeline"
	"github.com/educheck/educheck/internal/scoring"
	"github.com/educheck/educheck/internal/store"
)

const maxUploadBytes = 64 << 20

// Processor runs the document processing and evaluation batches.
type Processor interface {
	ProcessDir(ctx context.Context, dir string) (pipeline.ProcessStats, error)
	Evaluate(ctx context.Context, runID string) (pipeline.EvaluateStats, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	proc       Processor
	docs       store.DocumentStore
	local      *store.Local
	summarizer scoring.Summarizer
	uploadDir  string
}

// New creates a new Handler. summarizer may be nil when no model is configured.
func New(proc Processor, docs store.DocumentStore, local *store.Local, summarizer scoring.Summarizer, uploadDir string) (*Handler, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, err
	}
	return &Handler{proc: proc, docs: docs, local: local, summarizer: summarizer, uploadDir: uploadDir}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(h.requireToken)
		r.Post("/upload", h.handleUpload)
		r.Post("/process", h.handleProcess)
		r.Post("/evaluate", h.handleEvaluate)
		r.Post("/feedback", h.handleFeedback)
		r.Get("/results", h.handleResults)
	})
	r.Get("/healthz", h.handleHealth)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "no files in 'files' field", http.StatusBadRequest)
		return
	}

	var saved []string
	for _, fh := range files {
		name, err := h.saveUpload(fh)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		saved = append(saved, name)
	}
	respondJSON(w, http.StatusCreated, map[string]any{"saved": saved})
}

// saveUpload stores an uploaded file under the upload dir with a uuid suffix
// so repeated uploads of the same filename never clobber each other.
func (h *Handler) saveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	base := filepath.Base(fh.Filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := stem + "_" + uuid.NewString()[:8] + ext

	dst, err := os.Create(filepath.Join(h.uploadDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	slog.Info("file uploaded", "name", name)
	return name, nil
}

type processRequest struct {
	Dir string `json:"dir"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	dir := req.Dir
	if dir == "" {
		dir = h.uploadDir
	}

	stats, err := h.proc.ProcessDir(r.Context(), dir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type evaluateRequest struct {
	RunID string `json:"run_id"`
}

type evaluateResponse struct {
	RunID string `json:"run_id"`
	pipeline.EvaluateStats
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	if actor := model.ActorFromContext(r.Context()); actor != "" {
		slog.Info("evaluation requested", "run_id", runID, "actor", actor)
	}

	stats, err := h.proc.Evaluate(r.Context(), runID)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoAuthoritativeDocument) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, evaluateResponse{RunID: runID, EvaluateStats: stats})
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	updated, err := scoring.BackfillFeedback(r.Context(), h.docs, h.summarizer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		last, err := h.local.GetMeta("last_run_id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		runID = last
	}

	results, err := h.docs.Results(r.Context(), runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"run_id": runID, "results": results})
}
