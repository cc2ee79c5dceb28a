package clock

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// Clock supplies the current UTC time. Everything in the broker stores and
// compares timestamps in UTC; naive values read back from storage are
// interpreted as UTC.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Frozen is a settable clock for tests.
type Frozen struct {
	mu sync.Mutex
	t  time.Time
}

// NewFrozen returns a clock pinned to t (converted to UTC).
func NewFrozen(t time.Time) *Frozen {
	return &Frozen{t: t.UTC()}
}

func (f *Frozen) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set repins the clock.
func (f *Frozen) Set(t time.Time) {
	f.mu.Lock()
	f.t = t.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Frozen) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// NewToken returns a URL-safe opaque token with n bytes of entropy.
// 48 bytes comfortably exceeds the 256-bit floor required for action tokens.
func NewToken(n int) string {
	if n <= 0 {
		n = 48
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("clock: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
