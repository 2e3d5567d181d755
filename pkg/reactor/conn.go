package reactor

import (
	"bytes"

	"github.com/nullbyte-dev/evreactor/pkg/buffer"
	"github.com/nullbyte-dev/evreactor/pkg/constants"
	"github.com/nullbyte-dev/evreactor/pkg/h1"
	"github.com/nullbyte-dev/evreactor/pkg/mail"
	"github.com/nullbyte-dev/evreactor/pkg/timer"
)

// Kind identifies which protocol state machine owns a connection.
type Kind int

const (
	KindUnknown Kind = iota
	KindHTTP1
	KindHTTP2
	KindSMTP
	KindIMAP
	KindGopher
)

// connection is one accepted socket's reactor-side bookkeeping: its fd,
// buffered inbound/outbound byte queues, and whichever protocol state
// machine has claimed it. A single connection's fields are touched only
// from the reactor's event loop goroutine, so no locking is needed here
// (spec.md's single-threaded cooperative scheduling requirement).
type connection struct {
	fd         int
	remoteAddr string
	kind       Kind
	listenerProto Kind // KindUnknown for the shared HTTP listener, else fixed

	in  *buffer.Bounded
	out bytes.Buffer

	maxRequestLen int64

	h1parser *h1.Parser
	smtp     *mail.SMTPSession
	imap     *mail.IMAPSession

	idleTimerID     timer.ID
	wantsWrite      bool
	closeAfterWrite bool
}

// newConnection sets up bookkeeping for a freshly accepted socket.
// listenerProto is KindUnknown for the shared HTTP/1.1+HTTP/2 port, where
// classify determines the protocol once enough bytes have arrived, or a
// fixed Kind for a listener dedicated to one protocol (SMTP, IMAP, Gopher).
func newConnection(fd int, remoteAddr string, listenerProto Kind, maxRequestLen int64) *connection {
	return &connection{
		fd:            fd,
		remoteAddr:    remoteAddr,
		kind:          KindUnknown,
		listenerProto: listenerProto,
		in:            buffer.NewBounded(maxRequestLen),
		maxRequestLen: maxRequestLen,
	}
}

// classify inspects the accumulated inbound buffer and, once enough is
// known, pins the connection's protocol kind. It is a no-op once kind is
// already decided.
func (c *connection) classify() {
	if c.kind != KindUnknown {
		return
	}
	switch c.listenerProto {
	case KindSMTP:
		c.kind = KindSMTP
		c.smtp = mail.NewSMTPSession(constants.DefaultServerName, nil, nil)
		return
	case KindIMAP:
		c.kind = KindIMAP
		c.imap = mail.NewIMAPSession(constants.DefaultServerName, nil, nil)
		return
	case KindGopher:
		c.kind = KindGopher
		return
	}

	data := c.in.Bytes()
	if len(data) >= len(constants.ConnectionPreface) {
		if bytes.HasPrefix(data, []byte(constants.ConnectionPreface)) {
			c.kind = KindHTTP2
			return
		}
	}
	if bytes.Contains(data, []byte("\n")) || len(data) >= constants.AcceptPeekBytes {
		c.kind = KindHTTP1
		c.h1parser = h1.New(c.in.Cap())
	}
}
