// Package gopher implements the Gopher selector protocol supplement of
// SPEC_FULL.md §6.bis: a single-line selector request answered with either
// a menu (a sequence of tab-delimited item lines) or a raw text/binary
// resource, terminated by a lone "." line for menus per RFC 1436 §3.8.
// Grounded on the same request/response shape as pkg/h1, since Gopher's
// "one line in, body out" cycle is a strict subset of HTTP/1.1's.
package gopher

import (
	"fmt"
	"strings"
)

// ItemType is the single character RFC 1436 §3.3 prefixes every menu line
// with.
type ItemType byte

const (
	TypeText      ItemType = '0'
	TypeDirectory ItemType = '1'
	TypeError     ItemType = '3'
	TypeBinHex    ItemType = '4'
	TypeBinary    ItemType = '9'
	TypeGif       ItemType = 'g'
	TypeHTML      ItemType = 'h'
	TypeInfo      ItemType = 'i'
)

// MenuItem is one line of a Gopher menu.
type MenuItem struct {
	Type     ItemType
	Display  string
	Selector string
	Host     string
	Port     int
}

// Request is a parsed Gopher request: the selector, plus anything after a
// tab (a search query, per the Gopher+ convention some clients use).
type Request struct {
	Selector string
	Query    string
}

// ParseRequest splits a raw selector line (already stripped of its
// trailing CRLF) into selector and optional query.
func ParseRequest(line string) Request {
	if idx := strings.IndexByte(line, '\t'); idx >= 0 {
		return Request{Selector: line[:idx], Query: line[idx+1:]}
	}
	return Request{Selector: line}
}

// RenderMenu assembles a Gopher menu response, terminated with the
// protocol's lone-dot line.
func RenderMenu(items []MenuItem) []byte {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "%c%s\t%s\t%s\t%d\r\n", item.Type, item.Display, item.Selector, item.Host, item.Port)
	}
	b.WriteString(".\r\n")
	return []byte(b.String())
}

// RenderText wraps a plain-text resource body; RFC 1436 text transfers are
// not otherwise delimited beyond connection close, but well-behaved
// clients also accept a trailing lone dot, which the reactor always sends
// before it closes the connection after the response.
func RenderText(body []byte) []byte {
	out := make([]byte, 0, len(body)+3)
	out = append(out, body...)
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\r', '\n')
	}
	out = append(out, '.', '\r', '\n')
	return out
}

// RenderError produces the conventional Gopher error menu line (type '3')
// for a selector that can't be resolved.
func RenderError(message string) []byte {
	return RenderMenu([]MenuItem{{Type: TypeError, Display: message, Selector: "", Host: "error.host", Port: 0}})
}
