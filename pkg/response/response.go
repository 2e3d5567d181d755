// Package response implements the HTTP/1 response assembler of spec.md
// §4.10: status-line synthesis, default Content-Type, and Content-Length
// framing over handler-accumulated headers and body bytes.
package response

import (
	"fmt"
	"strconv"
	"strings"
)

// Builder accumulates headers and body bytes for one request, mirroring the
// "ambient pending response" surface of spec.md §4.10, but as an explicit
// value passed to the handler rather than a captured global (spec.md §9).
type Builder struct {
	statusLine string // e.g. "HTTP/1.1 404 Not Found", empty until set or synthesized
	headers    []header
	body       []byte
}

type header struct {
	name  string
	value string
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// WriteHeader appends a header line. A name beginning with "HTTP/" is
// treated as an explicit status line rather than a header, and value is
// ignored.
func (b *Builder) WriteHeader(name, value string) {
	if strings.HasPrefix(name, "HTTP/") {
		b.statusLine = name
		return
	}
	b.headers = append(b.headers, header{name: name, value: value})
}

// SetStatusLine explicitly sets the status line, e.g. "HTTP/1.1 200 OK".
func (b *Builder) SetStatusLine(line string) {
	b.statusLine = line
}

// SetStatus sets the status line from a numeric code and reason phrase,
// for callers (like pkg/reactor) that work in terms of status codes rather
// than a literal HTTP/1.1 status line.
func (b *Builder) SetStatus(code int, reason string) {
	b.statusLine = fmt.Sprintf("HTTP/1.1 %d %s", code, reason)
}

// BodyBytes returns the accumulated body, for callers (like pkg/reactor's
// HTTP/2 path) that frame status/headers/body separately instead of
// consuming Assemble's single HTTP/1.1-shaped byte stream.
func (b *Builder) BodyBytes() []byte {
	return b.body
}

// StatusCode returns the numeric status Assemble would emit, applying the
// same Location/Refresh/200 fallback, for callers that frame the status
// line themselves (e.g. HTTP/2's :status pseudo-header) instead of
// consuming Assemble's HTTP/1.1-shaped byte stream.
func (b *Builder) StatusCode() int {
	line := b.statusLine
	if line == "" {
		if _, ok := b.headerValue("Location"); ok {
			return 301
		}
		if _, ok := b.headerValue("Refresh"); ok {
			return 302
		}
		return 200
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 200
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 200
	}
	return code
}

// Headers returns the accumulated headers as a name->value map, defaulting
// Content-Type to "text/html" and Content-Length to the body length exactly
// as Assemble does, for callers that frame headers separately from the
// HTTP/1.1 status-line-plus-CRLF byte stream (e.g. HTTP/2 HEADERS frames).
func (b *Builder) Headers() map[string]string {
	out := make(map[string]string, len(b.headers)+2)
	hasContentType := false
	for _, h := range b.headers {
		if strings.EqualFold(h.name, "Content-Type") {
			hasContentType = true
		}
		out[h.name] = h.value
	}
	if !hasContentType {
		out["Content-Type"] = "text/html"
	}
	out["Content-Length"] = strconv.Itoa(len(b.body))
	return out
}

// Write appends body bytes.
func (b *Builder) Write(p []byte) (int, error) {
	b.body = append(b.body, p...)
	return len(p), nil
}

// headerValue returns the first value set for name, case-insensitively.
func (b *Builder) headerValue(name string) (string, bool) {
	for _, h := range b.headers {
		if strings.EqualFold(h.name, name) {
			return h.value, true
		}
	}
	return "", false
}

// Assemble synthesizes the final byte stream per spec.md §4.10:
//   - if no status line was set: 301 if Location is present, 302 if Refresh
//     is present, else 200 OK;
//   - if no Content-Type was set: insert "text/html";
//   - always (re-)compute Content-Length from the accumulated body;
//   - status line, headers, blank line, body.
func (b *Builder) Assemble() []byte {
	status := b.statusLine
	if status == "" {
		if _, ok := b.headerValue("Location"); ok {
			status = "HTTP/1.1 301 Moved Permanently"
		} else if _, ok := b.headerValue("Refresh"); ok {
			status = "HTTP/1.1 302 Found"
		} else {
			status = "HTTP/1.1 200 OK"
		}
	}

	var out strings.Builder
	out.WriteString(status)
	out.WriteString("\r\n")

	hasContentType := false
	for _, h := range b.headers {
		if strings.EqualFold(h.name, "Content-Type") {
			hasContentType = true
		}
		if strings.EqualFold(h.name, "Content-Length") {
			continue // recomputed below
		}
		fmt.Fprintf(&out, "%s: %s\r\n", h.name, h.value)
	}
	if !hasContentType {
		out.WriteString("Content-Type: text/html\r\n")
	}
	out.WriteString("Content-Length: " + strconv.Itoa(len(b.body)) + "\r\n")
	out.WriteString("\r\n")

	result := []byte(out.String())
	result = append(result, b.body...)
	return result
}

// Reset clears the builder for reuse on the next request on a persistent
// connection.
func (b *Builder) Reset() {
	b.statusLine = ""
	b.headers = b.headers[:0]
	b.body = b.body[:0]
}
