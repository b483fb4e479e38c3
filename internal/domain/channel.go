package domain

import (
	"strconv"
	"strings"
	"time"
)

// Channel is a chat users must join before browsing menus.
type Channel struct {
	Handle  string    `json:"handle"`
	AddedBy int64     `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// JoinURL returns the public t.me link for username handles and "" for
// numeric chat ids, which have no stable public link.
func (c Channel) JoinURL() string {
	if !strings.HasPrefix(c.Handle, "@") {
		return ""
	}
	return "https://t.me/" + strings.TrimPrefix(c.Handle, "@")
}

// NormalizeChannelHandle accepts "@name", "name", "t.me/name",
// "https://t.me/name" or a numeric chat id and returns the canonical form.
// Usernames are case-insensitive and are lowercased.
func NormalizeChannelHandle(raw string) (string, error) {
	handle := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://"} {
		handle = strings.TrimPrefix(handle, prefix)
	}
	handle = strings.TrimPrefix(handle, "t.me/")
	handle = strings.TrimSuffix(handle, "/")

	if handle == "" {
		return "", ErrInvalid
	}

	if _, err := strconv.ParseInt(handle, 10, 64); err == nil {
		return handle, nil
	}

	name := strings.TrimPrefix(handle, "@")
	if len(name) < 4 || len(name) > 32 {
		return "", ErrInvalid
	}
	for _, r := range name {
		if !(r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return "", ErrInvalid
		}
	}

	return "@" + strings.ToLower(name), nil
}
