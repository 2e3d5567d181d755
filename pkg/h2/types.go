// Package h2 implements the HTTP/2 frame codec and stream lifecycle of
// spec.md's C3 (wrapping golang.org/x/net/http2's Framer) together with the
// HPACK codec of C2 (pkg/h2/hpackcodec, wrapping golang.org/x/net/http2/hpack).
// Grounded on the teacher's pkg/http2/types.go Options/Frame/Stream/Connection
// shapes and pkg/http2/stream.go's StreamManager, generalized from a client
// dialing a single upstream to a server terminating many client-initiated
// streams on one accepted connection.
package h2

import (
	"time"
)

// Options mirrors the subset of RFC 7540 SETTINGS parameters the reactor
// negotiates, grounded on the teacher's pkg/http2/types.go Options struct.
type Options struct {
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
	HeaderTableSize      uint32
}

// DefaultOptions returns the reactor's HTTP/2 SETTINGS defaults
// (spec.md's C3 defaults, numerically the same RFC 7540 recommended values
// the teacher's DefaultOptions used).
func DefaultOptions() *Options {
	return &Options{
		MaxConcurrentStreams: 100,
		InitialWindowSize:    65535,
		MaxFrameSize:         16384,
		MaxHeaderListSize:    10485760,
		HeaderTableSize:      4096,
	}
}

// StreamState is the RFC 7540 §5.1 stream state machine. Because the
// reactor never initiates pushes (SETTINGS_ENABLE_PUSH is always 0, per
// spec.md's Non-goals), StateReservedLocal/StateReservedRemote are unused;
// isValidStateTransition has no case for them and rejects any transition
// out of a reserved state.
type StreamState int

const (
	StateIdle StreamState = iota
	StateReservedLocal
	StateReservedRemote
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

// Stream is one HTTP/2 stream on a connection.
type Stream struct {
	ID             uint32
	State          StreamState
	WindowSize     int32 // this connection's send window toward the peer
	PeerWindowSize int32 // the peer's advertised receive window
	Request        *Request
	headerBlock    []byte // accumulates HEADERS+CONTINUATION fragments
	EndHeaders     bool
	EndStream      bool
	Closed         bool
}

// Request is a fully assembled HTTP/2 request, handed to pkg/router once
// END_STREAM and END_HEADERS have both been observed.
type Request struct {
	Method    string
	Path      string
	Scheme    string
	Authority string
	Headers   map[string]string
	Body      []byte
}

// Response is what pkg/response.Builder produces for an HTTP/2 stream: a
// status plus headers plus body, to be framed and flow-controlled onto the
// wire by Conn.WriteResponse.
type Response struct {
	Status  string
	Headers map[string]string
	Body    []byte
}

// frameTimeout is a handshake time limit; no code in this package applies
// it, so Conn.Handshake sets no deadline and waits as long as the
// underlying net.Conn allows.
const frameTimeout = 10 * time.Second
