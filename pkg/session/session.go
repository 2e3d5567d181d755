// Package session implements the in-process session store of spec.md §4.7:
// named sessions with an LRU-ish FIFO culling sweep bounded by
// CULL_OLD_SESSION_NUM, keyed by an opaque, collision-resistant id.
package session

import (
	"container/list"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a named session record: a data map plus creation/last-touch
// timestamps (spec.md §3).
type Session struct {
	ID         string
	Data       map[string]string
	CreatedAt  time.Time
	LastTouch  time.Time
}

// Store is the process-wide session store: a map plus a FIFO queue
// ordering eviction candidates (spec.md §3, §4.7).
type Store struct {
	mu           sync.Mutex
	byID         map[string]*list.Element // value is *Session
	fifo         *list.List                // front = most recently started
	lifetime     time.Duration
	cullPerStart int
	serverName   string
}

// New creates an empty Store.
func New(lifetime time.Duration, cullPerStart int, serverName string) *Store {
	return &Store{
		byID:         make(map[string]*list.Element),
		fifo:         list.New(),
		lifetime:     lifetime,
		cullPerStart: cullPerStart,
		serverName:   serverName,
	}
}

// Start implements sessionStart(options): looks up the session named by
// cookieValue if non-empty and still live, otherwise mints a new one and
// reports the id that must be set via Set-Cookie.
func (s *Store) Start(cookieName, cookieValue, remoteAddr string) (sess *Session, isNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cullLocked()

	if cookieValue != "" {
		if el, ok := s.byID[cookieValue]; ok {
			sess = el.Value.(*Session)
			sess.LastTouch = time.Now()
			return sess, false
		}
	}

	id := s.newID(cookieName, remoteAddr)
	sess = &Session{
		ID:        id,
		Data:      make(map[string]string),
		CreatedAt: time.Now(),
		LastTouch: time.Now(),
	}
	el := s.fifo.PushFront(sess)
	s.byID[id] = el
	return sess, true
}

// Get returns the session with the given id, if still live.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*Session), true
}

// newID derives a collision-resistant opaque session id from the cookie
// name, current time, server identifier, and remote address, per spec.md
// §4.7. UUIDv5 (SHA-1 namespaced) gives a deterministic, collision-resistant
// id without needing a raw CSPRNG dependency beyond google/uuid.
func (s *Store) newID(cookieName, remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	seed := cookieName + "|" + time.Now().Format(time.RFC3339Nano) + "|" + s.serverName + "|" + host
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// cullLocked walks up to cullPerStart entries from the tail of the FIFO,
// deleting any whose last-touch plus the configured lifetime is in the
// past. Must be called with s.mu held.
func (s *Store) cullLocked() {
	now := time.Now()
	el := s.fifo.Back()
	for i := 0; i < s.cullPerStart && el != nil; i++ {
		prev := el.Prev()
		sess := el.Value.(*Session)
		if now.Sub(sess.LastTouch) > s.lifetime {
			delete(s.byID, sess.ID)
			s.fifo.Remove(el)
		}
		el = prev
	}
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
