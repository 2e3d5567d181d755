// Package logging wires the reactor's structured logging, following the
// pattern nabbar-golib's logger package establishes for a large server
// codebase: a *logrus.Logger behind a small constructor, tagged with
// connection/stream context fields rather than ad-hoc fmt.Printf calls.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a *logrus.Logger configured with the reactor's default
// formatting: text output at the given level, RFC3339 timestamps. Pass io.Discard
// as out in tests that don't want log noise.
func New(out io.Writer, level logrus.Level) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// Conn returns a logger scoped to one connection, tagging every subsequent
// entry with its id and remote address.
func Conn(base *logrus.Logger, connID uint64, remoteAddr string) *logrus.Entry {
	return base.WithFields(logrus.Fields{
		"conn_id": connID,
		"remote":  remoteAddr,
	})
}

// Stream returns a logger further scoped to one HTTP/2 stream.
func Stream(entry *logrus.Entry, streamID uint32) *logrus.Entry {
	return entry.WithField("stream_id", streamID)
}
