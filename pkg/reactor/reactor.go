//go:build linux

package reactor

import (
	"bytes"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nullbyte-dev/evreactor/pkg/config"
	"github.com/nullbyte-dev/evreactor/pkg/constants"
	reqctx "github.com/nullbyte-dev/evreactor/pkg/context"
	"github.com/nullbyte-dev/evreactor/pkg/filecache"
	"github.com/nullbyte-dev/evreactor/pkg/gopher"
	"github.com/nullbyte-dev/evreactor/pkg/h1"
	"github.com/nullbyte-dev/evreactor/pkg/handler"
	"github.com/nullbyte-dev/evreactor/pkg/logging"
	"github.com/nullbyte-dev/evreactor/pkg/reentry"
	"github.com/nullbyte-dev/evreactor/pkg/response"
	"github.com/nullbyte-dev/evreactor/pkg/router"
	"github.com/nullbyte-dev/evreactor/pkg/session"
	"github.com/nullbyte-dev/evreactor/pkg/timer"
)

// Reactor is the single-process event loop of spec.md's C10: one epoll
// instance, a set of listening sockets (each pinned to a Kind, or
// KindUnknown for the shared HTTP/1.1+HTTP/2 port), and the dispatch
// tables (pkg/router) and support services (pkg/session, pkg/filecache,
// pkg/timer) every accepted connection shares.
type Reactor struct {
	cfg       *config.Config
	poller    Poller
	listeners map[int]*listenerEntry
	conns     map[int]*connection
	router    *router.Router
	sessions  *session.Store
	cache     *filecache.Cache
	wheel     *timer.Wheel
	log       *logrus.Logger

	stopped bool
}

type listenerEntry struct {
	l     *listener
	proto Kind
}

// New constructs a Reactor from cfg and rt, wiring the support services
// spec.md's other components (C7 session store, C8 file cache, C9 timer
// wheel) into the single event loop.
func New(cfg *config.Config, rt *router.Router, log *logrus.Logger) (*Reactor, error) {
	if log == nil {
		log = logging.New(nil, logrus.InfoLevel)
	}
	poller, err := NewPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		cfg:       cfg,
		poller:    poller,
		listeners: make(map[int]*listenerEntry),
		conns:     make(map[int]*connection),
		router:    rt,
		sessions:  session.New(constants.DefaultSessionLifetime, cfg.CullOldSessionNum, cfg.ServerName),
		cache:     filecache.New(cfg.MaxCacheFiles, cfg.MaxCacheFileSize),
		wheel:     timer.New(),
		log:       log,
	}, nil
}

// Listen binds addr and registers it with the poller under the given
// protocol kind. Pass KindUnknown for the shared HTTP listener.
func (r *Reactor) Listen(addr string, proto Kind) error {
	l, err := listenTCP(addr)
	if err != nil {
		return err
	}
	if err := r.poller.Add(l.fd, ReadEvents); err != nil {
		l.close()
		return err
	}
	r.listeners[l.fd] = &listenerEntry{l: l, proto: proto}
	return nil
}

// Run drives the event loop until Stop is called. It is meant to be the
// last call in cmd/evserver's main, blocking the calling goroutine.
func (r *Reactor) Run() error {
	for !r.stopped {
		r.wheel.FireDue(time.Now())

		// Wait until the next timer deadline, rounded up to whole
		// milliseconds and capped at one second.
		timeout := 1000
		if d, ok := r.wheel.NextDeadline(); ok {
			if ms := int((time.Until(d) + time.Millisecond - 1) / time.Millisecond); ms < timeout {
				timeout = max(ms, 0)
			}
		}
		events, err := r.poller.Wait(timeout)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if entry, ok := r.listeners[ev.Fd]; ok {
				r.acceptLoop(entry)
				continue
			}
			conn, ok := r.conns[ev.Fd]
			if !ok {
				continue
			}
			if ev.Err || ev.Hangup {
				r.closeConn(conn)
				continue
			}
			if ev.Read {
				r.handleReadable(conn)
			}
			if _, stillOpen := r.conns[ev.Fd]; stillOpen && ev.Write {
				r.handleWritable(conn)
			}
		}
	}
	return nil
}

// Stop requests an orderly shutdown; the next Run loop iteration exits.
func (r *Reactor) Stop() { r.stopped = true }

func (r *Reactor) acceptLoop(entry *listenerEntry) {
	for {
		fd, remote, err := entry.l.accept()
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			r.log.WithError(err).Warn("accept failed")
			return
		}
		conn := newConnection(fd, remote, entry.proto, r.cfg.MaxRequestLen)
		r.conns[fd] = conn
		if err := r.poller.Add(fd, ReadEvents); err != nil {
			r.log.WithError(err).Warn("failed to register accepted connection")
			unix.Close(fd)
			delete(r.conns, fd)
			continue
		}
		conn.idleTimerID = r.wheel.Set(r.cfg.ConnectionTimeout, false, func() { r.closeIdleConn(fd) })

		if entry.proto == KindSMTP || entry.proto == KindIMAP {
			conn.classify()
			conn.out.WriteString(greetingFor(conn))
			conn.out.WriteString("\r\n")
			r.flushOut(conn)
		}
	}
}

func greetingFor(c *connection) string {
	switch c.kind {
	case KindSMTP:
		return c.smtp.Greeting()
	case KindIMAP:
		return c.imap.Greeting()
	default:
		return ""
	}
}

func (r *Reactor) handleReadable(c *connection) {
	buf := make([]byte, r.cfg.MaxIOLen)
	for {
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			r.wheel.Cancel(c.idleTimerID)
			c.idleTimerID = r.wheel.Set(r.cfg.ConnectionTimeout, false, func() { r.closeIdleConn(c.fd) })
			if _, werr := c.in.Write(buf[:n]); werr != nil {
				r.closeConn(c)
				return
			}
		}
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			r.closeConn(c)
			return
		}
		if n == 0 {
			r.closeConn(c)
			return
		}
		if n < len(buf) {
			break
		}
	}

	c.classify()
	if c.kind == KindHTTP2 {
		r.handoffHTTP2(c)
		return
	}
	r.pump(c)
}

// pump feeds whatever has been buffered through the connection's protocol
// state machine until no further progress can be made without more input,
// flushing any output produced along the way.
func (r *Reactor) pump(c *connection) {
	switch c.kind {
	case KindHTTP1:
		r.pumpHTTP1(c)
	case KindSMTP:
		r.pumpLineProtocol(c, c.smtp.Feed)
	case KindIMAP:
		r.pumpIMAP(c)
	case KindGopher:
		r.pumpGopher(c)
	}
	r.flushOut(c)
}

func (r *Reactor) pumpHTTP1(c *connection) {
	for {
		outcome, req, consumed, err := c.h1parser.Feed(c.in.Bytes())
		if err != nil || outcome == h1.BadRequest {
			c.out.WriteString("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n")
			c.closeAfterWrite = true
			return
		}
		if outcome == h1.NeedMore {
			return
		}

		c.in.Consume(consumed)
		c.out.Write(r.dispatchHTTP1(req, c.remoteAddr))
		c.h1parser = h1.New(c.maxRequestLen)

		if strings.EqualFold(req.Headers["HTTP_CONNECTION"], "close") {
			c.closeAfterWrite = true
			return
		}
	}
}

// HTTPContext is the req value handed to router.Handler closures for an
// HTTP/1.1 or HTTP/2 request; a route's Handler writes its result into
// Builder rather than returning a value, matching pkg/router.Handler's
// void signature. Ctx carries the CGI-style per-request keys of spec.md
// §6 (REQUEST_METHOD, REMOTE_ADDR, ...); Reenter implements
// processInternalRequest (spec.md §4.11) for handlers that need to issue a
// local sub-request without touching a socket.
type HTTPContext struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
	Builder *response.Builder
	Ctx     *reqctx.RequestContext
	Reenter func(url string, includeHeaders bool, postData []byte) []byte

	// Session is the $SESSION record spec.md §4.7's sessionStart bound to
	// this request (by cookie, or freshly minted); its Data map is read
	// before dispatch and any handler mutation is visible immediately,
	// since Session is the same record held in the reactor's session.Store.
	Session *session.Session

	// Control lets a handler request a server restart/stop in place of
	// spec.md §9's exception-for-control-flow idiom (zero value is
	// handler.Continue, the default when a handler never touches it).
	Control handler.Result
}

func (r *Reactor) dispatchHTTP1(req *h1.Request, remoteAddr string) []byte {
	b := r.dispatchHTTP(req.Method, req.Path, req.Query, req.Headers, req.Body, remoteAddr)
	return b.Assemble()
}

// dispatchHTTP runs one request through the route/middleware chain (C6),
// shared by the HTTP/1.1 path (pumpHTTP1, on the epoll loop) and the HTTP/2
// path (handoffHTTP2's goroutine, see h2_handoff.go). It is the top-level
// entry point, so it starts a fresh processInternalRequest recursion stack
// (spec.md §4.11); nested internal requests reuse that same stack via
// dispatchHTTPWithStack so the ≤5 depth bound holds across the whole
// logical request, not just one level of re-entry.
func (r *Reactor) dispatchHTTP(method, path, query string, headers map[string]string, body []byte, remoteAddr string) *response.Builder {
	return r.dispatchHTTPWithStack(method, path, query, headers, body, remoteAddr, reentry.NewStack())
}

func (r *Reactor) dispatchHTTPWithStack(method, path, query string, headers map[string]string, body []byte, remoteAddr string, stack *reentry.Stack) *response.Builder {
	b := response.New()
	rc := r.buildRequestContext(method, path, query, headers, body, remoteAddr)

	sess, isNew := r.sessions.Start(constants.DefaultSessionCookieName, cookieValue(headers, constants.DefaultSessionCookieName), remoteAddr)
	rc.SessionID = sess.ID
	if isNew {
		b.WriteHeader("Set-Cookie", constants.DefaultSessionCookieName+"="+sess.ID+"; Path=/")
	}

	ctx := &HTTPContext{Method: method, Path: path, Headers: headers, Body: body, Builder: b, Ctx: rc, Session: sess}
	ctx.Reenter = func(url string, includeHeaders bool, postData []byte) []byte {
		return stack.Process(rc, url, includeHeaders, postData, func(next *reqctx.RequestContext, post []byte) []byte {
			nextPath, nextQuery, _ := strings.Cut(next.URI, "?")
			sub := r.dispatchHTTPWithStack(next.Method, nextPath, nextQuery, next.Headers, post, remoteAddr, stack)
			return sub.Assemble()
		})
	}

	verb := router.Verb(method)
	matched, _ := r.router.Dispatch(verb, path, ctx, nil)
	if !matched {
		b.SetStatus(404, "Not Found")
	}
	if ctx.Control.Kind != handler.Continue {
		r.applyControlResult(ctx.Control)
	}
	return b
}

// applyControlResult bubbles a handler's restart/stop request (spec.md
// §9's replacement for the source's exception-for-control-flow idiom) up
// to the reactor: StopServer and RestartServer both end the event loop,
// the latter additionally logging the snapshot path a real restart
// supervisor would resume from.
func (r *Reactor) applyControlResult(res handler.Result) {
	switch res.Kind {
	case handler.StopServer:
		r.log.Info("handler requested server stop")
		r.Stop()
	case handler.RestartServer:
		r.log.WithField("snapshot", res.SnapshotPath).Info("handler requested server restart")
		r.Stop()
	}
}

// buildRequestContext populates the CGI-style per-request context map of
// spec.md §6 from a parsed request and the connection it arrived on.
func (r *Reactor) buildRequestContext(method, path, query string, headers map[string]string, body []byte, remoteAddr string) *reqctx.RequestContext {
	rc := reqctx.New()
	rc.Method = method
	rc.URI = path
	rc.QueryString = query
	rc.ServerProtocol = "HTTP/1.1"
	rc.PHPSelf = path
	rc.RemoteAddr, rc.RemotePort = splitHostPort(remoteAddr)
	rc.ServerAddr = r.cfg.ServerName
	rc.ServerPort = r.cfg.ServerPort
	rc.RequestTime = time.Now()
	rc.Headers = headers
	rc.ContentType = headers["CONTENT_TYPE"]
	rc.ContentLength = int64(len(body))
	rc.Content = body
	return rc
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// cookieValue extracts name's value from the raw HTTP_COOKIE header, if
// present, for spec.md §4.7's sessionStart ("if the request carries a
// cookie of the configured name, look up the session").
func cookieValue(headers map[string]string, name string) string {
	raw := headers["HTTP_COOKIE"]
	if raw == "" {
		return ""
	}
	cookies, err := http.ParseCookie(raw)
	if err != nil {
		return ""
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (r *Reactor) pumpLineProtocol(c *connection, feed func(line string) (string, bool)) {
	for {
		data := c.in.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimRight(string(data[:idx]), "\r")
		c.in.Consume(idx + 1)

		resp, shouldClose := feed(line)
		if resp != "" {
			c.out.WriteString(resp)
			c.out.WriteString("\r\n")
		}
		if shouldClose {
			c.closeAfterWrite = true
			return
		}
	}
}

func (r *Reactor) pumpIMAP(c *connection) {
	r.pumpLineProtocol(c, func(line string) (string, bool) {
		lines, shouldClose := c.imap.Feed(line)
		return strings.Join(lines, "\r\n"), shouldClose
	})
}

// GopherContext is the req value handed to router.Handler closures for a
// Gopher selector request. A handler writes its response into Body, which
// the reactor always frames with gopher.RenderText (adding the lone-dot
// terminator), or sets NotFound to have gopher.RenderError sent instead.
type GopherContext struct {
	Selector string
	Query    string
	Body     []byte
	NotFound bool
}

// Write appends to the response body, matching the append-only surface
// route handlers use elsewhere (response.Builder.Write).
func (g *GopherContext) Write(p []byte) (int, error) {
	g.Body = append(g.Body, p...)
	return len(p), nil
}

func (r *Reactor) pumpGopher(c *connection) {
	data := c.in.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return
	}
	line := strings.TrimRight(string(data[:idx]), "\r")
	c.in.Consume(idx + 1)

	req := gopher.ParseRequest(line)
	ctx := &GopherContext{Selector: req.Selector, Query: req.Query}

	matched, _ := r.router.Dispatch(router.REQUEST, req.Selector, ctx, nil)
	if !matched || ctx.NotFound {
		c.out.Write(gopher.RenderError("selector not found"))
	} else {
		c.out.Write(gopher.RenderText(ctx.Body))
	}
	c.closeAfterWrite = true
}

func (r *Reactor) flushOut(c *connection) {
	for c.out.Len() > 0 {
		n, err := unix.Write(c.fd, c.out.Bytes())
		if n > 0 {
			c.out.Next(n)
		}
		if err != nil {
			if err == unix.EAGAIN {
				r.poller.Modify(c.fd, ReadWriteEvents)
				c.wantsWrite = true
				return
			}
			r.closeConn(c)
			return
		}
		if n == 0 {
			break
		}
	}
	if c.wantsWrite {
		r.poller.Modify(c.fd, ReadEvents)
		c.wantsWrite = false
	}
	if c.closeAfterWrite && c.out.Len() == 0 {
		r.closeConn(c)
	}
}

func (r *Reactor) handleWritable(c *connection) {
	r.flushOut(c)
}

func (r *Reactor) closeConn(c *connection) {
	r.wheel.Cancel(c.idleTimerID)
	r.poller.Remove(c.fd)
	unix.Close(c.fd)
	delete(r.conns, c.fd)
}

func (r *Reactor) closeIdleConn(fd int) {
	if c, ok := r.conns[fd]; ok {
		r.closeConn(c)
	}
}
