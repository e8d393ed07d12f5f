package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mayowaagbi/CampusHealthSystem-sub000/internal/domain"
)

func TestCursorKeepsMicrosecondPosition(t *testing.T) {
	in := &domain.Cursor{
		CreatedAt: time.Date(2026, time.March, 3, 9, 15, 0, 123456789, time.UTC),
		ID:        "7f1c1f4e-4c55-4b7b-9a61-0a6d8cb7b0c1",
	}
	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.March, 3, 9, 15, 0, 123456000, time.UTC), out.CreatedAt)
	require.Equal(t, in.ID, out.ID)
}

func TestBlankCursorIsFirstPage(t *testing.T) {
	require.Empty(t, EncodeCursor(nil))
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestDecodeCursorRejectsForeignTokens(t *testing.T) {
	for _, token := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("2026-03-03T09:15:00Z|abc")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"at":1,"id":"not-a-uuid"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"at":1741000000000000}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"id":"7f1c1f4e-4c55-4b7b-9a61-0a6d8cb7b0c1"}`)),
	} {
		_, err := DecodeCursor(token)
		require.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}
