// Package pagination provides cursor-based paging over in-memory sequences.
//
// Collections are recomputed from the chain on every request, so a cursor
// carries both the offset and the key of the last item served. New items
// arriving at the head shift offsets; the key re-anchors the next page.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned for cursors that do not decode.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor represents a position in a paginated result set.
type Cursor struct {
	Offset int    // items already served
	Key    string // key of the last item served
}

// Encode returns an opaque cursor string from an offset and key.
func Encode(offset int, key string) string {
	raw := fmt.Sprintf("%d|%s", offset, key)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}
	offset, err := strconv.Atoi(parts[0])
	if err != nil || offset < 0 {
		return nil, ErrInvalidCursor
	}
	return &Cursor{Offset: offset, Key: parts[1]}, nil
}

// Page returns up to limit items following cursor, and the cursor for the
// next page ("" when nothing remains). A nil cursor starts at the head.
// The cursor key is searched first; the offset is used when the key is
// gone.
func Page[T any](items []T, cursor *Cursor, limit int, key func(T) string) ([]T, string) {
	start := 0
	if cursor != nil {
		start = cursor.Offset
		if i := indexOf(items, cursor.Key, key); i >= 0 {
			start = i + 1
		}
	}
	if start >= len(items) {
		return items[:0], ""
	}
	if limit <= 0 || start+limit >= len(items) {
		return items[start:], ""
	}
	end := start + limit
	return items[start:end], Encode(end, key(items[end-1]))
}

func indexOf[T any](items []T, k string, key func(T) string) int {
	if k == "" {
		return -1
	}
	for i, it := range items {
		if key(it) == k {
			return i
		}
	}
	return -1
}
