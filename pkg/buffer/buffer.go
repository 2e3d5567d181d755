// Package buffer provides the bounded inbound/outbound byte buffers used by
// a reactor connection, with backpressure against spec.md's MAX_REQUEST_LEN.
package buffer

import (
	"sync"

	"github.com/nullbyte-dev/evreactor/pkg/errors"
)

// Bounded is a growable byte buffer capped at a maximum size. Writes beyond
// the cap return an error instead of silently truncating, so callers can
// turn it into a 400/PROTOCOL_ERROR/BAD COMMAND per spec.md §4.1.
type Bounded struct {
	mu     sync.Mutex
	data   []byte
	cap    int64
	closed bool
}

// NewBounded creates a Bounded buffer with the given maximum size. A
// non-positive cap means unbounded.
func NewBounded(cap int64) *Bounded {
	return &Bounded{cap: cap}
}

// Write appends p, failing if the result would exceed the configured cap.
func (b *Bounded) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewIOError("buffer is closed", nil)
	}
	if b.cap > 0 && int64(len(b.data)+len(p)) > b.cap {
		return 0, errors.NewResourceError("buffer would exceed MAX_REQUEST_LEN")
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// Bytes returns the buffered contents. The slice is only valid until the
// next mutating call.
func (b *Bounded) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Len reports the number of buffered bytes.
func (b *Bounded) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Cap reports the configured maximum size (non-positive means unbounded).
func (b *Bounded) Cap() int64 {
	return b.cap
}

// Consume discards the first n bytes, as if they had been parsed or flushed.
func (b *Bounded) Consume(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return
	}
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	remaining := len(b.data) - n
	copy(b.data, b.data[n:])
	b.data = b.data[:remaining]
}

// Reset clears the buffer for reuse.
func (b *Bounded) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// Close marks the buffer as no longer writable.
func (b *Bounded) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.data = nil
	return nil
}
