// Package pagination implements opaque keyset cursors for list endpoints.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var ErrInvalidCursor = errors.New("invalid_cursor")

// Pagination is bound from query strings on list endpoints.
type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Size clamps the requested page size into [1, upper], using def when unset.
func (p Pagination) Size(def, upper int) int {
	switch {
	case p.PageSize <= 0:
		return def
	case p.PageSize > upper:
		return upper
	default:
		return p.PageSize
	}
}

// Cursor marks the last row a client has seen.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(cursor Cursor) (string, error) {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var cursor Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil || strings.TrimSpace(cursor.ID) == "" {
		return Cursor{}, ErrInvalidCursor
	}
	return cursor, nil
}

// Page trims a result fetched with limit size+1 down to size rows and
// reports whether another page exists.
func Page[T any](items []*T, size int, cursorOf func(*T) Cursor) ([]*T, PageInfo, error) {
	if size <= 0 || len(items) <= size {
		return items, PageInfo{}, nil
	}
	items = items[:size]
	token, err := EncodeCursor(cursorOf(items[size-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, PageInfo{NextPageToken: token, HasMore: true}, nil
}
