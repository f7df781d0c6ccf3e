// Package pagination implements opaque keyset cursors for the dispute
// queue. Pages key on (createdAt, id) descending, so a cursor is the key
// of the last item on the previous page.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned for cursors the service did not mint.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a decoded position in the result set.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode renders the key as an opaque URL-safe token. Clients must treat
// it as a black box; the format may change between releases.
func Encode(createdAt time.Time, id string) string {
	token := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(token))
}

// Decode parses an opaque cursor token. An empty token means "first
// page" and decodes to nil without error.
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// ComputePage trims an over-fetched result (limit+1 rows) to the page
// size and mints the next cursor from the page's last item. key extracts
// the (createdAt, id) sort key.
func ComputePage[T any](items []T, limit int, key func(T) (time.Time, string)) (page []T, next string, hasMore bool) {
	if len(items) <= limit {
		return items, "", false
	}
	page = items[:limit]
	createdAt, id := key(page[len(page)-1])
	return page, Encode(createdAt, id), true
}
