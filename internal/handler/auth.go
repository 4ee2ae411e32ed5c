package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/educheck/educheck/internal/model"
)

// requireToken is middleware that checks the Authorization header against the
// stored API token hashes. When no tokens have been created the API is open,
// which keeps single-user local setups working out of the box.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens, err := h.local.ActiveTokens()
		if err != nil {
			slog.Error("failed to load API tokens", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if len(tokens) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		presented := bearerToken(r)
		if presented == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		for _, t := range tokens {
			if bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(presented)) == nil {
				ctx := model.ContextWithActor(r.Context(), t.Name)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		slog.Warn("rejected API request with invalid token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
