// Package screenshot stores chart screenshots as blobs and hands out
// short-lived signed links to them. Legacy values are inline data: URIs and
// are passed through untouched.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rustyeddy/tradelog/journal"
)

var (
	ErrExpired      = errors.New("signed url expired")
	ErrBadSignature = errors.New("signed url signature mismatch")
	ErrInvalidKey   = errors.New("invalid blob key")
)

// DefaultTTL is the lifetime of a signed link.
const DefaultTTL = time.Hour

// KeyPrefix is the namespace every screenshot key lives under.
const KeyPrefix = "screenshots/"

// Store is the blob collaborator.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// IsInline reports whether v is a legacy inline image rather than a key.
func IsInline(v string) bool {
	return journal.IsInlineImage(v)
}

// Ext maps a MIME type to a file extension: image/jpeg becomes jpg, anything
// unparseable becomes png.
func Ext(contentType string) string {
	ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	_, sub, ok := strings.Cut(ct, "/")
	if !ok || sub == "" {
		return "png"
	}
	if sub == "jpeg" {
		return "jpg"
	}
	return strings.ToLower(sub)
}

// NewKey returns a fresh key for a screenshot of field, e.g.
// "screenshots/dailyScreenshot/5b0c...e1.png".
func NewKey(field journal.Field, contentType string) string {
	return fmt.Sprintf("%s%s/%s.%s", KeyPrefix, field, uuid.New().String(), Ext(contentType))
}

// Replace uploads a new screenshot for field and removes the blob old
// pointed at. Inline values have no blob. A failed removal is only logged.
func Replace(ctx context.Context, s Store, old string, field journal.Field, r io.Reader, contentType string) (string, error) {
	key := NewKey(field, contentType)
	if err := s.Put(ctx, key, r, contentType); err != nil {
		return "", fmt.Errorf("upload screenshot: %w", err)
	}
	Discard(ctx, s, old)
	return key, nil
}

// Discard removes the blob behind v, if any.
func Discard(ctx context.Context, s Store, v string) {
	if v == "" || IsInline(v) {
		return
	}
	if err := s.Remove(ctx, v); err != nil {
		slog.Warn("remove screenshot", "key", v, "error", err)
	}
}

// Resolve turns a stored field value into something displayable: a signed
// link for a key, the value itself for an inline image.
func Resolve(ctx context.Context, s Store, v string, ttl time.Duration) (string, error) {
	if v == "" || IsInline(v) {
		return v, nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.SignedURL(ctx, v, ttl)
}

// Resolver adapts Resolve to the report renderer, which wants a plain
// function. Failures resolve to the raw key.
func Resolver(ctx context.Context, s Store, ttl time.Duration) func(string) string {
	return func(v string) string {
		u, err := Resolve(ctx, s, v, ttl)
		if err != nil {
			return v
		}
		return u
	}
}
