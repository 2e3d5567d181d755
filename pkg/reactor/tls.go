//go:build linux

package reactor

import (
	"crypto/tls"
	"net"

	"github.com/nullbyte-dev/evreactor/pkg/h1"
	"github.com/nullbyte-dev/evreactor/pkg/h2"
	"github.com/nullbyte-dev/evreactor/pkg/tlsconfig"
)

// ListenTLS binds addr behind a TLS listener offering ALPN negotiation
// (r.cfg.ALPNProtocols, normally "h2" and "http/1.1"), per spec.md's
// requirement that the reactor terminate HTTP/2 both in cleartext (h2c,
// handled by handoffHTTP2) and over TLS on the same logical HTTP port.
// r.cfg.TLSConfig supplies the certificate; nil means TLS was not
// configured and ListenTLS should not be called.
//
// TLS connections are not driven through the epoll poller at all: each
// accepted tls.Conn gets its own goroutine, same as handoffHTTP2's h2c
// path. crypto/tls's Read/Write already do their own buffering and
// handshake state machine behind an ordinary blocking net.Conn interface,
// and retrofitting that onto raw non-blocking reads would mean
// reimplementing large parts of crypto/tls; every other production Go
// server (net/http included) accepts one goroutine per TLS connection for
// the same reason.
func (r *Reactor) ListenTLS(addr string) error {
	cfg := r.cfg.TLSConfig.Clone()
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tlsconfig.ProfileSecure.Min
	}
	if cfg.MaxVersion == 0 {
		cfg.MaxVersion = tlsconfig.ProfileSecure.Max
	}
	if len(cfg.CipherSuites) == 0 {
		tlsconfig.ApplyCipherSuites(cfg, cfg.MinVersion)
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = r.cfg.ALPNProtocols
	}

	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return err
	}

	go r.acceptTLSLoop(ln)
	return nil
}

func (r *Reactor) acceptTLSLoop(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			r.log.WithError(err).Warn("TLS accept failed")
			return
		}
		go r.serveTLSConn(nc)
	}
}

func (r *Reactor) serveTLSConn(nc net.Conn) {
	defer nc.Close()

	tc, ok := nc.(*tls.Conn)
	if !ok {
		return
	}
	if err := tc.Handshake(); err != nil {
		r.log.WithError(err).Debug("TLS handshake failed")
		return
	}

	if tc.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn := h2.NewConn(tc, h2.DefaultOptions())
		r.serveHTTP2Conn(h2Conn, tc)
		return
	}

	r.serveHTTP1Conn(tc, tc.RemoteAddr().String())
}

// serveHTTP1Conn drives one HTTP/1.1 connection with ordinary blocking
// reads, reusing pkg/h1's incremental parser and the same route dispatch
// pumpHTTP1 uses on the epoll path, but looping with net.Conn.Read instead
// of a non-blocking syscall.
func (r *Reactor) serveHTTP1Conn(nc net.Conn, remoteAddr string) {
	parser := h1.New(r.cfg.MaxRequestLen)
	buf := make([]byte, r.cfg.MaxIOLen)
	var pending []byte

	for {
		n, err := nc.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
		}
		if err != nil {
			return
		}

		for {
			outcome, req, consumed, ferr := parser.Feed(pending)
			if ferr != nil || outcome == h1.BadRequest {
				nc.Write([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"))
				return
			}
			if outcome == h1.NeedMore {
				break
			}

			pending = pending[consumed:]
			if _, werr := nc.Write(r.dispatchHTTP1(req, remoteAddr)); werr != nil {
				return
			}
			parser = h1.New(r.cfg.MaxRequestLen)

			if req.Headers["HTTP_CONNECTION"] == "close" {
				return
			}
		}
	}
}
