package store

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/educheck/educheck/internal/model"
)

// CreateToken generates a random API token under the given name, stores its
// bcrypt hash and returns the plaintext once. The plaintext is never
// persisted.
func (l *Local) CreateToken(name string) (string, error) {
	plain, err := generateToken()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	_, err = l.db.Exec(
		`INSERT INTO api_tokens (name, token_hash, active, created_at) VALUES (?, ?, 1, ?)`,
		name, string(hash), time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	slog.Info("created API token", "name", name)
	return plain, nil
}

// ActiveTokens returns the active tokens with their hashes for middleware
// verification.
func (l *Local) ActiveTokens() ([]model.APIToken, error) {
	rows, err := l.db.Query(
		`SELECT id, name, token_hash, created_at FROM api_tokens WHERE active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []model.APIToken
	for rows.Next() {
		var t model.APIToken
		if err := rows.Scan(&t.ID, &t.Name, &t.Hash, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// RevokeToken deactivates a token by name.
func (l *Local) RevokeToken(name string) error {
	_, err := l.db.Exec(`UPDATE api_tokens SET active = 0 WHERE name = ?`, name)
	return err
}

// TokenCount returns the number of active tokens.
func (l *Local) TokenCount() (int, error) {
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM api_tokens WHERE active = 1`).Scan(&count)
	return count, err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
