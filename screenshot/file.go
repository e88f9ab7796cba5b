package screenshot

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore keeps blobs under a directory and signs links served by the
// HTTP API at BaseURL.
type FileStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

type FileOption func(*FileStore)

// WithNow overrides the clock used for link expiry.
func WithNow(now func() time.Time) FileOption {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore stores blobs below root. An empty secret gets a random one,
// which invalidates links on restart.
func NewFileStore(root, baseURL string, secret []byte, opts ...FileOption) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("screenshot root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot root: %w", err)
	}
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	s := &FileStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileStore) Put(_ context.Context, key string, r io.Reader, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// SignedURL returns BaseURL/<key>?expires=<unix>&sig=<hex>.
func (s *FileStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expires := s.now().Add(ttl).Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(key, expires))
	return s.baseURL + "/" + key + "?" + q.Encode(), nil
}

// Remove deletes a blob. Removing a missing blob is not an error.
func (s *FileStore) Remove(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Verify checks the expires and sig query values of a signed link for key.
func (s *FileStore) Verify(key, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	want := s.sign(key, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadSignature
	}
	if s.now().Unix() > exp {
		return ErrExpired
	}
	return nil
}

// Open returns the blob and its content type, derived from the extension.
func (s *FileStore) Open(key string) (io.ReadCloser, string, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, "", err
	}
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return f, ct, nil
}

func (s *FileStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// path maps a key to a file below root, rejecting keys that would escape it.
func (s *FileStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean != key || !strings.HasPrefix(key, KeyPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}
