package usecase

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// cursor points at the last row of a page ordered by (created_at, id) DESC.
type cursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func decodeCursor(s string) (*time.Time, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	var c cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, "", fmt.Errorf("unmarshal cursor: %w", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return nil, "", domain.ErrInvalidCursor
	}
	return &c.CreatedAt, c.ID, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	b, _ := json.Marshal(cursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	return min(limit, maxPageLimit)
}

// parseCursor maps any malformed cursor to domain.ErrInvalidCursor.
func parseCursor(s string) (*time.Time, string, error) {
	if s == "" {
		return nil, "", nil
	}
	t, id, err := decodeCursor(s)
	if err != nil {
		return nil, "", domain.ErrInvalidCursor
	}
	return t, id, nil
}
