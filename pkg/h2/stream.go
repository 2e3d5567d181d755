package h2

import (
	"sync"

	"github.com/nullbyte-dev/evreactor/pkg/errors"
)

// StreamManager tracks every stream on one connection, grounded on the
// teacher's pkg/http2/stream.go StreamManager but inverted for a server:
// stream IDs arrive client-chosen (odd, monotonically increasing) instead
// of being allocated locally.
type StreamManager struct {
	mu            sync.Mutex
	streams       map[uint32]*Stream
	highestSeen   uint32
	maxConcurrent uint32
	maxTotal      int
}

// maxTotalStreams bounds per-connection stream bookkeeping memory the same
// way the teacher's NewStream guarded against unbounded growth.
const maxTotalStreams = 10000

func NewStreamManager(maxConcurrent uint32) *StreamManager {
	return &StreamManager{
		streams:       make(map[uint32]*Stream),
		maxConcurrent: maxConcurrent,
		maxTotal:      maxTotalStreams,
	}
}

// Open admits a new client-initiated stream. id must be odd and greater
// than every previously seen stream ID (RFC 7540 §5.1.1); violating either
// rule is a connection error the caller should turn into a GOAWAY.
func (m *StreamManager) Open(id uint32, initialWindow int32) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id%2 == 0 {
		return nil, errors.NewProtocolError("even-numbered client stream id", nil)
	}
	if id <= m.highestSeen {
		return nil, errors.NewProtocolError("stream id reused or out of order", nil)
	}

	if len(m.streams) >= m.maxTotal {
		m.cleanupClosedLocked()
		if len(m.streams) >= m.maxTotal {
			return nil, errors.NewResourceError("maximum total streams reached")
		}
	}

	active := 0
	for _, s := range m.streams {
		if s.State == StateOpen || s.State == StateHalfClosedLocal || s.State == StateHalfClosedRemote {
			active++
		}
	}
	if uint32(active) >= m.maxConcurrent {
		return nil, errors.NewResourceError("maximum concurrent streams reached")
	}

	s := &Stream{
		ID:             id,
		State:          StateOpen,
		WindowSize:     initialWindow,
		PeerWindowSize: initialWindow,
	}
	m.streams[id] = s
	m.highestSeen = id
	return s, nil
}

func (m *StreamManager) Get(id uint32) (*Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	return s, ok
}

// Transition validates and applies an RFC 7540 §5.1 state change.
func (m *StreamManager) Transition(id uint32, to StreamState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return errors.NewProtocolError("unknown stream", nil)
	}
	if !isValidStateTransition(s.State, to) {
		return errors.NewProtocolError("invalid stream state transition", nil)
	}
	s.State = to
	if to == StateClosed {
		s.Closed = true
	}
	return nil
}

// AdjustPeerWindow applies a WINDOW_UPDATE increment. A streamID of 0
// updates the connection-level window tracked by the caller, not here; see
// Conn.connSend.
func (m *StreamManager) AdjustPeerWindow(id uint32, increment int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	if !ok {
		return errors.NewProtocolError("unknown stream", nil)
	}
	next := int64(s.PeerWindowSize) + int64(increment)
	if next > (1<<31 - 1) {
		return errors.NewProtocolError("flow control window overflow", nil)
	}
	s.PeerWindowSize = int32(next)
	return nil
}

// ConsumeWindow debits bytes sent against the peer's advertised window.
func (m *StreamManager) ConsumeWindow(id uint32, n int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[id]; ok {
		s.PeerWindowSize -= n
	}
}

func (m *StreamManager) CleanupClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupClosedLocked()
}

func (m *StreamManager) cleanupClosedLocked() {
	for id, s := range m.streams {
		if s.Closed && s.State == StateClosed {
			delete(m.streams, id)
		}
	}
}

func isValidStateTransition(from, to StreamState) bool {
	switch from {
	case StateIdle:
		return to == StateOpen || to == StateClosed
	case StateOpen:
		return to == StateHalfClosedLocal || to == StateHalfClosedRemote || to == StateClosed
	case StateHalfClosedLocal:
		return to == StateClosed
	case StateHalfClosedRemote:
		return to == StateClosed
	case StateClosed:
		return false
	default:
		return false
	}
}
