// Package router implements the pattern-matched route table, middleware
// chain, recursion guard, and sub-site mounting of spec.md §4.6.
//
// Per spec.md §9's design note, the source's dynamic verb-name dispatch
// collapses here into one registration call per entry of a closed Verb
// enumeration rather than a catch-all string-keyed hook.
package router

import (
	"strings"
	"sync"
)

// Verb enumerates the method tags a route table can be registered under
// (spec.md §3). ERROR is the synthetic fallback method used for 404-style
// handling.
type Verb string

const (
	GET     Verb = "GET"
	POST    Verb = "POST"
	PUT     Verb = "PUT"
	DELETE  Verb = "DELETE"
	HEAD    Verb = "HEAD"
	OPTIONS Verb = "OPTIONS"
	TRACE   Verb = "TRACE"
	CONNECT Verb = "CONNECT"
	ERROR   Verb = "ERROR"

	// REQUEST is the synthetic verb the Gopher selector protocol
	// dispatches under (spec.md §3: "for mail/gopher the
	// SMTP/IMAP verbs and REQUEST/ERROR"). SMTP/IMAP have their own
	// per-state command dispatch in pkg/mail; REQUEST is used by the
	// Gopher path, which has no verb of its own to key on.
	REQUEST Verb = "REQUEST"
)

// Handler runs a matched route. req is opaque to the router (it is whatever
// request value the caller's protocol layer produces); captures holds the
// named-segment bindings extracted from the path.
type Handler func(req interface{}, captures map[string]string)

// Middleware runs before route matching and may rewrite method/path via the
// MutableRequest it receives.
type Middleware func(mr *MutableRequest)

// MutableRequest is the minimal surface middleware needs to rewrite a
// request in flight (spec.md §4.6).
type MutableRequest struct {
	Method Verb
	Path   string
	// Context carries arbitrary request-scoped values (e.g. REMOTE_ADDR)
	// that middleware may inspect to implement IP-ban or per-host policy.
	Context map[string]string
}

type route struct {
	pattern string
	handler Handler
	raw     bool
	segs    []segment
}

type segKind int

const (
	segLiteral segKind = iota
	segWildcard
	segCapture
)

type segment struct {
	kind segKind
	text string // literal text, or capture name
}

// Router holds the ordered per-verb route lists and the middleware chain.
type Router struct {
	mu         sync.RWMutex
	routes     map[Verb][]*route
	middleware []Middleware
	basePath   string
}

// New creates an empty Router.
func New() *Router {
	return &Router{routes: make(map[Verb][]*route)}
}

// Use appends a middleware to the chain, run in registration order before
// dispatch.
func (r *Router) Use(m Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, m)
}

// Handle registers pattern under verb. raw marks a route whose handler
// consumes the unparsed request body (bypassing higher-level body parsing);
// this is metadata only, the router does not interpret it.
func (r *Router) Handle(verb Verb, pattern string, raw bool, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[verb] = append(r.routes[verb], &route{
		pattern: pattern,
		handler: h,
		raw:     raw,
		segs:    compile(pattern),
	})
}

// Mount re-registers every route of sub under prefix+pattern, for every
// verb, preserving handler, raw flag, and semantics (spec.md §4.6's
// sub-site composition).
func (r *Router) Mount(prefix string, sub *Router) {
	sub.mu.RLock()
	defer sub.mu.RUnlock()

	for verb, routes := range sub.routes {
		for _, rt := range routes {
			full := prefix + rt.pattern
			r.Handle(verb, full, rt.raw, rt.handler)
		}
	}
}

// recursionKey identifies a (method, route-pattern) pair for the recursion
// guard.
type recursionKey struct {
	verb    Verb
	pattern string
}

// Dispatch runs middleware, then matches path against the table for the
// rewritten method, invoking the first matching handler. seen tracks
// (method,pattern) pairs already entered in this logical request's
// recursion chain (spec.md §4.6); pass a fresh map per top-level request and
// thread it through processInternalRequest re-entry.
func (r *Router) Dispatch(verb Verb, path string, req interface{}, seen map[recursionKey]bool) (matched bool, recursed bool) {
	mr := &MutableRequest{Method: verb, Path: path, Context: map[string]string{}}

	r.mu.RLock()
	mws := append([]Middleware(nil), r.middleware...)
	r.mu.RUnlock()

	for _, mw := range mws {
		mw(mr)
	}

	if ok, rec := r.tryVerb(mr.Method, mr.Path, req, seen); ok || rec {
		return ok, rec
	}

	// Fall back to the synthetic ERROR route.
	ok, rec := r.tryVerb(ERROR, "/404", req, seen)
	return ok, rec
}

func (r *Router) tryVerb(verb Verb, path string, req interface{}, seen map[recursionKey]bool) (matched bool, recursed bool) {
	r.mu.RLock()
	routes := r.routes[verb]
	r.mu.RUnlock()

	for _, rt := range routes {
		captures, ok := match(rt.segs, path)
		if !ok {
			continue
		}

		key := recursionKey{verb: verb, pattern: rt.pattern}
		if seen != nil {
			if seen[key] {
				return false, true
			}
			seen[key] = true
		}

		rt.handler(req, captures)
		return true, false
	}
	return false, false
}

// compile splits a pattern into literal / '*' wildcard / '{name}' capture
// segments.
func compile(pattern string) []segment {
	var segs []segment
	i := 0
	for i < len(pattern) {
		switch pattern[i] {
		case '*':
			segs = append(segs, segment{kind: segWildcard})
			i++
		case '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				// Malformed pattern: treat the rest as a literal.
				segs = append(segs, segment{kind: segLiteral, text: pattern[i:]})
				return segs
			}
			name := pattern[i+1 : i+end]
			segs = append(segs, segment{kind: segCapture, text: name})
			i += end + 1
		default:
			start := i
			for i < len(pattern) && pattern[i] != '*' && pattern[i] != '{' {
				i++
			}
			segs = append(segs, segment{kind: segLiteral, text: pattern[start:i]})
		}
	}
	return segs
}

// match runs segs against path, greedily matching '*' and '{name}' against
// the shortest suffix that still lets the remaining literal segments match
// (spec.md §8.4: greedy up to the point the literal tail still binds).
func match(segs []segment, path string) (map[string]string, bool) {
	captures := map[string]string{}
	ok := matchFrom(segs, path, captures)
	if !ok {
		return nil, false
	}
	return captures, true
}

func matchFrom(segs []segment, path string, captures map[string]string) bool {
	if len(segs) == 0 {
		return path == ""
	}

	seg := segs[0]
	rest := segs[1:]

	switch seg.kind {
	case segLiteral:
		if !strings.HasPrefix(path, seg.text) {
			return false
		}
		return matchFrom(rest, path[len(seg.text):], captures)

	case segWildcard, segCapture:
		// Try the longest possible binding first and shrink until the
		// remaining literal suffix matches (greedy).
		for cut := len(path); cut >= 0; cut-- {
			if seg.kind == segCapture {
				captures[seg.text] = path[:cut]
			}
			if matchFrom(rest, path[cut:], captures) {
				return true
			}
		}
		if seg.kind == segCapture {
			delete(captures, seg.text)
		}
		return false
	}
	return false
}
