package h2

import (
	"bytes"
	"net"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// pipePair returns a connected (client, server) net.Conn pair.
func pipePair() (net.Conn, net.Conn) {
	return net.Pipe()
}

func encodeRequestHeaders(t *testing.T, fields ...hpack.HeaderField) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)
	for _, f := range fields {
		if err := enc.WriteField(f); err != nil {
			t.Fatalf("hpack encode failed: %v", err)
		}
	}
	return buf.Bytes()
}

func TestHandshakeAndSingleStreamRequest(t *testing.T) {
	clientConn, serverConn := pipePair()
	defer clientConn.Close()
	defer serverConn.Close()

	serverDone := make(chan *ReadyRequest, 1)
	serverErr := make(chan error, 1)

	go func() {
		c := NewConn(serverConn, DefaultOptions())
		if err := c.Handshake(); err != nil {
			serverErr <- err
			return
		}
		req, err := c.Next()
		if err != nil {
			serverErr <- err
			return
		}
		serverDone <- req
	}()

	clientFramer := http2.NewFramer(clientConn, clientConn)

	// net.Pipe is unbuffered and the server writes its SETTINGS while the
	// client writes its own, so the client reads frames on a goroutine.
	serverFrames := make(chan http2.Frame, 8)
	go func() {
		defer close(serverFrames)
		for {
			f, err := clientFramer.ReadFrame()
			if err != nil {
				return
			}
			serverFrames <- f
		}
	}()

	if _, err := clientConn.Write([]byte(ClientPreface)); err != nil {
		t.Fatalf("failed to write preface: %v", err)
	}
	if err := clientFramer.WriteSettings(); err != nil {
		t.Fatalf("failed to write client SETTINGS: %v", err)
	}

	if f, ok := <-serverFrames; !ok {
		t.Fatalf("failed to read server SETTINGS")
	} else if _, isSettings := f.(*http2.SettingsFrame); !isSettings {
		t.Fatalf("expected server SETTINGS, got %T", f)
	}

	hbuf := encodeRequestHeaders(t,
		hpack.HeaderField{Name: ":method", Value: "GET"},
		hpack.HeaderField{Name: ":path", Value: "/hello"},
		hpack.HeaderField{Name: ":scheme", Value: "http"},
		hpack.HeaderField{Name: ":authority", Value: "example.com"},
	)

	if err := clientFramer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: hbuf,
		EndHeaders:    true,
		EndStream:     true,
	}); err != nil {
		t.Fatalf("failed to write HEADERS: %v", err)
	}

	select {
	case err := <-serverErr:
		t.Fatalf("server reported error: %v", err)
	case req := <-serverDone:
		if req.StreamID != 1 {
			t.Fatalf("expected stream 1, got %d", req.StreamID)
		}
		if req.Request.Method != "GET" || req.Request.Path != "/hello" {
			t.Fatalf("unexpected request: %+v", req.Request)
		}
	}
}

func TestWriteResponseFramesHeadersAndData(t *testing.T) {
	clientConn, serverConn := pipePair()
	defer clientConn.Close()
	defer serverConn.Close()

	serverReady := make(chan struct{})
	go func() {
		c := NewConn(serverConn, DefaultOptions())
		<-serverReady
		resp := &Response{
			Status:  "200",
			Headers: map[string]string{"content-type": "text/plain"},
			Body:    []byte("hi"),
		}
		c.streams.Open(1, 65535)
		c.streams.Transition(1, StateHalfClosedRemote)
		if err := c.WriteResponse(1, resp); err != nil {
			t.Errorf("WriteResponse failed: %v", err)
		}
	}()

	clientFramer := http2.NewFramer(clientConn, clientConn)
	close(serverReady)

	gotHeaders := false
	gotData := false
	for !gotHeaders || !gotData {
		f, err := clientFramer.ReadFrame()
		if err != nil {
			t.Fatalf("failed to read frame: %v", err)
		}
		switch frame := f.(type) {
		case *http2.HeadersFrame:
			gotHeaders = true
			if frame.StreamID != 1 {
				t.Fatalf("unexpected stream id %d", frame.StreamID)
			}
		case *http2.DataFrame:
			gotData = true
			if string(frame.Data()) != "hi" {
				t.Fatalf("unexpected body %q", frame.Data())
			}
		}
	}
}
