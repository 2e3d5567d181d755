//go:build linux

package reactor

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/nullbyte-dev/evreactor/pkg/h2"
	"github.com/nullbyte-dev/evreactor/pkg/logging"
)

// prefixedConn replays buffered bytes already read off the socket before
// falling through to the underlying net.Conn, so a connection that was
// provisionally read on the non-blocking epoll path can still be handed to
// code (golang.org/x/net/http2's Framer, via pkg/h2) that expects ordinary
// blocking Read semantics.
type prefixedConn struct {
	net.Conn
	prefix []byte
}

func (p *prefixedConn) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.Conn.Read(b)
}

// handoffHTTP2 moves a connection classified as HTTP/2 off the shared
// epoll loop and onto a dedicated goroutine driving pkg/h2.Conn with
// ordinary blocking reads, via net.FileConn over the accepted fd.
//
// This is a deliberate boundary, not an oversight: golang.org/x/net/http2's
// Framer performs blocking io.ReadFull against its reader, which would
// stall the single-threaded reactor loop for every other connection if run
// inline. Every other protocol (HTTP/1.1, SMTP, IMAP, Gopher) stays on the
// non-blocking path; only h2 sessions get their own goroutine, one per
// connection, exactly as net/http itself does for every HTTP/2 connection.
func (r *Reactor) handoffHTTP2(c *connection) {
	r.poller.Remove(c.fd)
	r.wheel.Cancel(c.idleTimerID)
	delete(r.conns, c.fd)

	leftover := append([]byte(nil), c.in.Bytes()...)
	c.in.Reset()

	file := os.NewFile(uintptr(c.fd), c.remoteAddr)
	nc, err := net.FileConn(file)
	file.Close()
	if err != nil {
		r.log.WithError(err).Warn("failed to adopt HTTP/2 connection fd")
		return
	}

	pc := &prefixedConn{Conn: nc, prefix: leftover}
	h2Conn := h2.NewConn(pc, h2.DefaultOptions())

	go r.serveHTTP2Conn(h2Conn, pc)
}

func (r *Reactor) serveHTTP2Conn(h2Conn *h2.Conn, nc net.Conn) {
	defer nc.Close()

	if err := h2Conn.Handshake(); err != nil {
		logging.Conn(r.log, 0, "h2").WithError(err).Debug("HTTP/2 handshake failed")
		return
	}

	for {
		ready, err := h2Conn.Next()
		if err != nil {
			return
		}

		path, query, _ := strings.Cut(ready.Request.Path, "?")
		b := r.dispatchHTTP(ready.Request.Method, path, query, ready.Request.Headers, ready.Request.Body, nc.RemoteAddr().String())
		resp := &h2.Response{Status: strconv.Itoa(b.StatusCode()), Headers: b.Headers(), Body: b.BodyBytes()}
		if err := h2Conn.WriteResponse(ready.StreamID, resp); err != nil {
			return
		}
	}
}
