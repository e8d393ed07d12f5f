// Package persistence holds what the store backends share.
package persistence

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
)

// ErrInvalidCursor reports a pagination token that was not issued by EncodeCursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// cursorToken is the token body. Postgres keeps microseconds, so that is the
// precision carried.
type cursorToken struct {
	At int64     `json:"at"`
	ID uuid.UUID `json:"id"`
}

// EncodeCursor returns an opaque URL-safe token for c, or "" for nil.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return ""
	}
	body, _ := json.Marshal(cursorToken{At: c.CreatedAt.UnixMicro(), ID: id})
	return base64.RawURLEncoding.EncodeToString(body)
}

// DecodeCursor parses a token from EncodeCursor. A blank token is the first page.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	body, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	var tok cursorToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if tok.ID == uuid.Nil || tok.At <= 0 {
		return nil, fmt.Errorf("%w: incomplete position", ErrInvalidCursor)
	}
	return &domain.Cursor{CreatedAt: time.UnixMicro(tok.At).UTC(), ID: tok.ID.String()}, nil
}
