// Package id issues record identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Monotonic entropy keeps ids minted in the same millisecond ordered.
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID for the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID whose time component is t. Ids sort by t.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	v, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Entropy exhaustion within one millisecond: fall back to fresh entropy.
		v = ulid.MustNew(ulid.Timestamp(t.UTC()), cryptoRand.Reader)
	}
	return v.String()
}

// Time returns the instant encoded in s, truncated to the millisecond.
func Time(s string) (time.Time, error) {
	v, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(v.Time()).UTC(), nil
}
