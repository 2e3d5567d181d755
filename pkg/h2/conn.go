package h2

import (
	"bytes"
	"io"
	"net"
	"strings"

	"golang.org/x/net/http2"

	"github.com/nullbyte-dev/evreactor/pkg/errors"
	"github.com/nullbyte-dev/evreactor/pkg/h2/hpackcodec"
)

// ClientPreface is the 24-octet connection preface every HTTP/2 client
// sends before its first SETTINGS frame (RFC 7540 §3.5).
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Conn drives the frame-level protocol for one accepted connection,
// grounded on the teacher's pkg/http2/types.go Connection struct (Framer +
// hpack encoder/decoder + stream map) but built around a *http2.Framer
// read loop that dispatches to a StreamManager rather than a client
// request/response cycle.
type Conn struct {
	netConn  net.Conn
	framer   *http2.Framer
	codec    *hpackcodec.Codec
	streams  *StreamManager
	opts     *Options
	connRecv int32 // our receive window advertised to the peer
	connSend int32 // peer's receive window we must not exceed

	continuationStreamID uint32
}

// NewConn wires a Framer (buffered read/write, matching how
// golang.org/x/net/http2 itself recommends constructing one) around an
// already-accepted net.Conn.
func NewConn(nc net.Conn, opts *Options) *Conn {
	if opts == nil {
		opts = DefaultOptions()
	}
	framer := http2.NewFramer(nc, nc)
	framer.SetReuseFrames()
	framer.MaxHeaderListSize = opts.MaxHeaderListSize
	// ReadMetaHeaders is left nil: HEADERS/CONTINUATION arrive as raw
	// frames and are decoded ourselves via hpackcodec, not http2's own
	// MetaHeadersFrame coalescing.

	return &Conn{
		netConn:  nc,
		framer:   framer,
		codec:    hpackcodec.New(opts.HeaderTableSize),
		streams:  NewStreamManager(opts.MaxConcurrentStreams),
		opts:     opts,
		connRecv: int32(opts.InitialWindowSize),
		connSend: 65535,
	}
}

// Handshake consumes the client connection preface and writes our SETTINGS
// frame (RFC 7540 §3.5). The client's SETTINGS frame and its ACK are
// handled later by Next, like any other frame.
func (c *Conn) Handshake() error {
	buf := make([]byte, len(ClientPreface))
	if _, err := io.ReadFull(c.netConn, buf); err != nil {
		return errors.NewProtocolError("failed to read HTTP/2 preface", err)
	}
	if !bytes.Equal(buf, []byte(ClientPreface)) {
		return errors.NewProtocolError("invalid HTTP/2 preface", nil)
	}

	if err := c.framer.WriteSettings(
		http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: c.opts.MaxConcurrentStreams},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: c.opts.InitialWindowSize},
		http2.Setting{ID: http2.SettingMaxFrameSize, Val: c.opts.MaxFrameSize},
		http2.Setting{ID: http2.SettingMaxHeaderListSize, Val: c.opts.MaxHeaderListSize},
		http2.Setting{ID: http2.SettingHeaderTableSize, Val: c.opts.HeaderTableSize},
		http2.Setting{ID: http2.SettingEnablePush, Val: 0},
	); err != nil {
		return errors.NewProtocolError("failed to write SETTINGS", err)
	}

	return nil
}

// ReadyRequest is returned by Next whenever a stream has accumulated a
// complete request (END_HEADERS and END_STREAM both observed).
type ReadyRequest struct {
	StreamID uint32
	Request  *Request
}

// Next reads and dispatches frames until a request completes, the
// connection is closed, or a protocol error occurs. It is meant to be
// called in a loop by pkg/reactor's per-connection driver; each call
// returns at most one completed request.
func (c *Conn) Next() (*ReadyRequest, error) {
	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			return nil, err
		}

		switch frame := f.(type) {
		case *http2.SettingsFrame:
			if frame.IsAck() {
				continue
			}
			if err := c.framer.WriteSettingsAck(); err != nil {
				return nil, errors.NewProtocolError("failed to ack SETTINGS", err)
			}
			frame.ForeachSetting(func(s http2.Setting) error {
				if s.ID == http2.SettingInitialWindowSize {
					c.connSend = int32(s.Val)
				}
				return nil
			})

		case *http2.WindowUpdateFrame:
			if frame.StreamID == 0 {
				next := int64(c.connSend) + int64(frame.Increment)
				if next > (1<<31 - 1) {
					return nil, errors.NewProtocolError("connection window overflow", nil)
				}
				c.connSend = int32(next)
				continue
			}
			if err := c.streams.AdjustPeerWindow(frame.StreamID, int32(frame.Increment)); err != nil {
				return nil, err
			}

		case *http2.HeadersFrame:
			ready, err := c.handleHeaders(frame)
			if err != nil {
				return nil, err
			}
			if ready != nil {
				return ready, nil
			}

		case *http2.ContinuationFrame:
			ready, err := c.handleContinuation(frame)
			if err != nil {
				return nil, err
			}
			if ready != nil {
				return ready, nil
			}

		case *http2.DataFrame:
			ready, err := c.handleData(frame)
			if err != nil {
				return nil, err
			}
			if ready != nil {
				return ready, nil
			}

		case *http2.RSTStreamFrame:
			c.streams.Transition(frame.StreamID, StateClosed)

		case *http2.PingFrame:
			if !frame.IsAck() {
				if err := c.framer.WritePing(true, frame.Data); err != nil {
					return nil, errors.NewProtocolError("failed to ack PING", err)
				}
			}

		case *http2.GoAwayFrame:
			return nil, io.EOF

		default:
			// Unhandled frame types (PRIORITY, PUSH_PROMISE) are ignored;
			// server push is never offered (SETTINGS_ENABLE_PUSH=0 above).
		}
	}
}

func (c *Conn) handleHeaders(frame *http2.HeadersFrame) (*ReadyRequest, error) {
	if c.continuationStreamID != 0 {
		return nil, errors.NewProtocolError("HEADERS interleaved mid-CONTINUATION sequence", nil)
	}

	stream, err := c.streams.Open(frame.StreamID, c.connSend)
	if err != nil {
		return nil, err
	}
	stream.headerBlock = append(stream.headerBlock, frame.HeaderBlockFragment()...)
	stream.EndStream = frame.StreamEnded()

	if frame.HeadersEnded() {
		return c.finishHeaders(stream)
	}

	c.continuationStreamID = frame.StreamID
	return nil, nil
}

func (c *Conn) handleContinuation(frame *http2.ContinuationFrame) (*ReadyRequest, error) {
	if c.continuationStreamID == 0 || c.continuationStreamID != frame.StreamID {
		return nil, errors.NewProtocolError("CONTINUATION without matching HEADERS", nil)
	}
	stream, ok := c.streams.Get(frame.StreamID)
	if !ok {
		return nil, errors.NewProtocolError("CONTINUATION for unknown stream", nil)
	}
	stream.headerBlock = append(stream.headerBlock, frame.HeaderBlockFragment()...)

	if frame.HeadersEnded() {
		c.continuationStreamID = 0
		return c.finishHeaders(stream)
	}
	return nil, nil
}

func (c *Conn) finishHeaders(stream *Stream) (*ReadyRequest, error) {
	fields, err := c.codec.Decode(stream.headerBlock)
	if err != nil {
		return nil, errors.NewCompressionError("HPACK header decode failed", err)
	}
	pseudo, regular := hpackcodec.Split(fields)

	req := &Request{
		Method:    pseudo["method"],
		Path:      pseudo["path"],
		Scheme:    pseudo["scheme"],
		Authority: pseudo["authority"],
		Headers:   make(map[string]string, len(regular)),
	}
	for _, f := range regular {
		// HPACK hands back lowercase wire names (e.g. "content-type");
		// normalize into the CGI-style convention pkg/context assumes:
		// CONTENT_TYPE/CONTENT_LENGTH bare, everything else HTTP_<NAME>.
		upper := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		switch upper {
		case "CONTENT_TYPE", "CONTENT_LENGTH":
			req.Headers[upper] = f.Value
		default:
			req.Headers["HTTP_"+upper] = f.Value
		}
	}
	stream.Request = req

	if stream.EndStream {
		if err := c.streams.Transition(stream.ID, StateHalfClosedRemote); err != nil {
			return nil, err
		}
		return &ReadyRequest{StreamID: stream.ID, Request: req}, nil
	}
	return nil, nil
}

func (c *Conn) handleData(frame *http2.DataFrame) (*ReadyRequest, error) {
	stream, ok := c.streams.Get(frame.StreamID)
	if !ok {
		return nil, errors.NewProtocolError("DATA for unknown stream", nil)
	}
	data := frame.Data()
	if stream.Request != nil {
		stream.Request.Body = append(stream.Request.Body, data...)
	}

	c.connRecv -= int32(len(data))
	if c.connRecv < int32(c.opts.InitialWindowSize)/2 {
		refill := int32(c.opts.InitialWindowSize) - c.connRecv
		if err := c.framer.WriteWindowUpdate(0, uint32(refill)); err != nil {
			return nil, errors.NewProtocolError("failed to send connection WINDOW_UPDATE", err)
		}
		c.connRecv += refill
	}

	if frame.StreamEnded() {
		if err := c.streams.Transition(stream.ID, StateHalfClosedRemote); err != nil {
			return nil, err
		}
		if stream.Request != nil {
			return &ReadyRequest{StreamID: stream.ID, Request: stream.Request}, nil
		}
	}
	return nil, nil
}

// WriteResponse frames resp onto the wire for streamID, chunking the body
// to respect both MaxFrameSize and the peer's flow control window.
func (c *Conn) WriteResponse(streamID uint32, resp *Response) error {
	fields := make([]hpackcodec.HeaderField, 0, len(resp.Headers))
	for name, value := range resp.Headers {
		fields = append(fields, hpackcodec.HeaderField{Name: name, Value: value})
	}
	block, err := c.codec.EncodeResponse(resp.Status, fields)
	if err != nil {
		return errors.NewCompressionError("HPACK header encode failed", err)
	}

	endStream := len(resp.Body) == 0
	if err := c.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: block,
		EndHeaders:    true,
		EndStream:     endStream,
	}); err != nil {
		return errors.NewProtocolError("failed to write HEADERS frame", err)
	}

	body := resp.Body
	maxFrame := int(c.opts.MaxFrameSize)
	for len(body) > 0 {
		n := maxFrame
		if n > len(body) {
			n = len(body)
		}
		if err := c.waitForWindow(streamID, int32(n)); err != nil {
			return err
		}

		chunk := body[:n]
		body = body[n:]
		if err := c.framer.WriteData(streamID, len(body) == 0, chunk); err != nil {
			return errors.NewProtocolError("failed to write DATA frame", err)
		}
		c.streams.ConsumeWindow(streamID, int32(n))
		c.connSend -= int32(n)
	}

	if err := c.streams.Transition(streamID, StateClosed); err != nil {
		// Half-closed-local -> closed is also valid; a stream the peer
		// already half-closed-remote will already be HalfClosedRemote.
		_ = err
	}
	return nil
}

// waitForWindow is a placeholder flow-control gate: spec.md's reactor is
// single-threaded and cooperative, so a genuinely blocking wait here would
// stall the whole event loop. Oversized responses against a tiny window are
// rejected rather than buffered unboundedly.
func (c *Conn) waitForWindow(streamID uint32, n int32) error {
	stream, ok := c.streams.Get(streamID)
	if !ok {
		return errors.NewProtocolError("unknown stream", nil)
	}
	if stream.PeerWindowSize < n || c.connSend < n {
		return errors.NewResourceError("flow control window too small for response chunk")
	}
	return nil
}

// Close sends GOAWAY and closes the underlying connection.
func (c *Conn) Close() error {
	_ = c.framer.WriteGoAway(c.streams.highestSeen, http2.ErrCodeNo, nil)
	return c.netConn.Close()
}
