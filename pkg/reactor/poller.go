// Package reactor implements the single-threaded, non-blocking event loop
// of spec.md's C10: one goroutine drives an epoll instance, dispatching
// readiness events to per-connection protocol state machines (pkg/h1,
// pkg/mail, pkg/gopher). HTTP/2 connections (h2_handoff.go) and TLS
// connections (tls.go) are the exception: each is served on a goroutine
// of its own. Grounded on the reactor shape spec.md describes; the teacher
// repo is a client library with no listener loop of its own, so the
// poller wiring follows golang.org/x/sys/unix's own epoll examples
// (also present in the example pack's network-server repos) rather than
// any one teacher file.
package reactor

// Poller abstracts the OS readiness-notification mechanism so Reactor
// itself stays portable; epoll_linux.go provides the only implementation
// spec.md requires (Linux), per its deployment target.
type Poller interface {
	// Add registers fd for the given event mask (EPOLLIN/EPOLLOUT et al).
	Add(fd int, events uint32) error
	// Modify changes the event mask for an already-registered fd.
	Modify(fd int, events uint32) error
	// Remove deregisters fd.
	Remove(fd int) error
	// Wait blocks up to timeoutMs milliseconds and returns ready events.
	Wait(timeoutMs int) ([]ReadyEvent, error)
	// Close releases the poller's OS resources.
	Close() error
}

// ReadyEvent is one readiness notification, translated from the poller's
// native event structure so callers never import golang.org/x/sys/unix
// directly.
type ReadyEvent struct {
	Fd      int
	Read    bool
	Write   bool
	Err     bool
	Hangup  bool
}
