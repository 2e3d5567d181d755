//go:build linux

package reactor

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nullbyte-dev/evreactor/pkg/config"
	"github.com/nullbyte-dev/evreactor/pkg/h1"
	"github.com/nullbyte-dev/evreactor/pkg/handler"
	"github.com/nullbyte-dev/evreactor/pkg/router"
	"github.com/nullbyte-dev/evreactor/pkg/session"
)

func TestDispatchHTTPRunsMatchedRoute(t *testing.T) {
	rt := router.New()
	rt.Handle(router.GET, "/hello", false, func(req interface{}, _ map[string]string) {
		ctx := req.(*HTTPContext)
		ctx.Builder.SetStatus(200, "OK")
		ctx.Builder.Write([]byte("hi"))
	})
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	b := r.dispatchHTTP("GET", "/hello", "", map[string]string{}, nil, "127.0.0.1:5555")

	if string(b.BodyBytes()) != "hi" {
		t.Fatalf("body = %q, want %q", b.BodyBytes(), "hi")
	}
}

func TestDispatchHTTPSetsNotFoundForUnmatchedRoute(t *testing.T) {
	rt := router.New()
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	b := r.dispatchHTTP("GET", "/missing", "", map[string]string{}, nil, "127.0.0.1:5555")
	out := b.Assemble()

	if !bytes.Contains(out, []byte("404")) {
		t.Fatalf("expected a 404 status line, got %q", out)
	}
}

func TestDispatchHTTP1AssemblesFullResponse(t *testing.T) {
	rt := router.New()
	rt.Handle(router.GET, "/", false, func(req interface{}, _ map[string]string) {
		req.(*HTTPContext).Builder.Write([]byte("ok"))
	})
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	req := &h1.Request{Method: "GET", Path: "/", Headers: map[string]string{}}
	out := r.dispatchHTTP1(req, "127.0.0.1:5555")

	if !bytes.Contains(out, []byte("200 OK")) || !bytes.Contains(out, []byte("ok")) {
		t.Fatalf("unexpected response: %q", out)
	}
}

func TestDispatchHTTPPopulatesRequestContext(t *testing.T) {
	rt := router.New()
	var gotRemoteAddr string
	var gotPort int
	rt.Handle(router.GET, "/whoami", false, func(req interface{}, _ map[string]string) {
		ctx := req.(*HTTPContext)
		gotRemoteAddr = ctx.Ctx.RemoteAddr
		gotPort = ctx.Ctx.RemotePort
	})
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	r.dispatchHTTP("GET", "/whoami", "", map[string]string{}, nil, "10.0.0.5:4444")

	if gotRemoteAddr != "10.0.0.5" || gotPort != 4444 {
		t.Fatalf("RequestContext.RemoteAddr/RemotePort = %q/%d, want 10.0.0.5/4444", gotRemoteAddr, gotPort)
	}
}

func TestDispatchHTTPPopulatesQueryStringAndContentType(t *testing.T) {
	rt := router.New()
	var gotQuery, gotContentType string
	rt.Handle(router.GET, "/search", false, func(req interface{}, _ map[string]string) {
		ctx := req.(*HTTPContext)
		gotQuery = ctx.Ctx.QueryString
		gotContentType = ctx.Ctx.ContentType
	})
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	r.dispatchHTTP("GET", "/search", "q=go&page=2", map[string]string{"CONTENT_TYPE": "application/json"}, nil, "127.0.0.1:1")

	if gotQuery != "q=go&page=2" {
		t.Fatalf("QueryString = %q, want %q", gotQuery, "q=go&page=2")
	}
	if gotContentType != "application/json" {
		t.Fatalf("ContentType = %q, want application/json", gotContentType)
	}
}

func TestDispatchHTTP1ForwardsQueryStringAndContentType(t *testing.T) {
	rt := router.New()
	var gotQuery, gotContentType string
	rt.Handle(router.GET, "/search", false, func(req interface{}, _ map[string]string) {
		ctx := req.(*HTTPContext)
		gotQuery = ctx.Ctx.QueryString
		gotContentType = ctx.Ctx.ContentType
	})
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	req := &h1.Request{Method: "GET", Path: "/search", Query: "q=go", Headers: map[string]string{"CONTENT_TYPE": "text/plain"}}
	r.dispatchHTTP1(req, "127.0.0.1:1")

	if gotQuery != "q=go" {
		t.Fatalf("QueryString = %q, want q=go", gotQuery)
	}
	if gotContentType != "text/plain" {
		t.Fatalf("ContentType = %q, want text/plain", gotContentType)
	}
}

func TestDispatchHTTPEmitsSetCookieForNewSession(t *testing.T) {
	rt := router.New()
	rt.Handle(router.GET, "/", false, func(req interface{}, _ map[string]string) {})
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	out := r.dispatchHTTP("GET", "/", "", map[string]string{}, nil, "127.0.0.1:1").Assemble()

	if !bytes.Contains(out, []byte("Set-Cookie: SESSIONID=")) {
		t.Fatalf("expected a Set-Cookie header for a freshly minted session, got %q", out)
	}
}

func TestDispatchHTTPReusesSessionFromCookie(t *testing.T) {
	rt := router.New()
	var gotSessionID string
	rt.Handle(router.GET, "/", false, func(req interface{}, _ map[string]string) {
		gotSessionID = req.(*HTTPContext).Session.ID
	})
	store := session.New(time.Hour, 5, "localhost")
	r := &Reactor{router: rt, cfg: config.Default(), sessions: store}

	first := r.dispatchHTTP("GET", "/", "", map[string]string{}, nil, "127.0.0.1:1")
	firstID := sessionIDFromSetCookie(t, first.Assemble())

	second := r.dispatchHTTP("GET", "/", "", map[string]string{"HTTP_COOKIE": "SESSIONID=" + firstID}, nil, "127.0.0.1:1")
	out := second.Assemble()

	if bytes.Contains(out, []byte("Set-Cookie:")) {
		t.Fatalf("expected no Set-Cookie for a returning session, got %q", out)
	}
	if gotSessionID != firstID {
		t.Fatalf("Session.ID = %q, want reused id %q", gotSessionID, firstID)
	}
}

func sessionIDFromSetCookie(t *testing.T, out []byte) string {
	t.Helper()
	idx := bytes.Index(out, []byte("Set-Cookie: SESSIONID="))
	if idx < 0 {
		t.Fatalf("no Set-Cookie header found in %q", out)
	}
	rest := out[idx+len("Set-Cookie: SESSIONID="):]
	end := bytes.IndexAny(rest, ";\r\n")
	if end < 0 {
		t.Fatalf("malformed Set-Cookie in %q", out)
	}
	return string(rest[:end])
}

func TestReenterRunsBoundedInternalRequest(t *testing.T) {
	rt := router.New()
	rt.Handle(router.GET, "/outer", false, func(req interface{}, _ map[string]string) {
		ctx := req.(*HTTPContext)
		body := ctx.Reenter("/inner", true, nil)
		ctx.Builder.Write(body)
	})
	rt.Handle(router.GET, "/inner", false, func(req interface{}, _ map[string]string) {
		req.(*HTTPContext).Builder.Write([]byte("inner-body"))
	})
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	b := r.dispatchHTTP("GET", "/outer", "", map[string]string{}, nil, "127.0.0.1:1")

	if !bytes.Contains(b.BodyBytes(), []byte("inner-body")) {
		t.Fatalf("expected outer response to contain the internal request's body, got %q", b.BodyBytes())
	}
}

func TestReenterFailsPastRecursionDepth(t *testing.T) {
	rt := router.New()
	rt.Handle(router.GET, "/loop", false, func(req interface{}, _ map[string]string) {
		ctx := req.(*HTTPContext)
		body := ctx.Reenter("/loop", true, nil)
		ctx.Builder.Write(body)
	})
	r := &Reactor{router: rt, cfg: config.Default(), sessions: session.New(time.Hour, 5, "localhost")}

	b := r.dispatchHTTP("GET", "/loop", "", map[string]string{}, nil, "127.0.0.1:1")

	if !bytes.Contains(b.BodyBytes(), []byte("INTERNAL REQUEST FAILED DUE TO RECURSION")) {
		t.Fatalf("expected bounded recursion failure message, got %q", b.BodyBytes())
	}
}

func TestHandlerStopRequestStopsReactor(t *testing.T) {
	rt := router.New()
	rt.Handle(router.GET, "/shutdown", false, func(req interface{}, _ map[string]string) {
		req.(*HTTPContext).Control = handler.Result{Kind: handler.StopServer}
	})
	r := &Reactor{router: rt, cfg: config.Default(), log: logrus.New(), sessions: session.New(time.Hour, 5, "localhost")}

	r.dispatchHTTP("GET", "/shutdown", "", map[string]string{}, nil, "127.0.0.1:1")

	if !r.stopped {
		t.Fatal("expected handler.StopServer to flag the reactor stopped")
	}
}

func TestGreetingForSMTPAndIMAP(t *testing.T) {
	c := newConnection(-1, "127.0.0.1:1234", KindSMTP, 1<<20)
	c.classify()
	if greeting := greetingFor(c); greeting == "" {
		t.Fatal("expected a non-empty SMTP greeting")
	}

	c2 := newConnection(-1, "127.0.0.1:1234", KindIMAP, 1<<20)
	c2.classify()
	if greeting := greetingFor(c2); greeting == "" {
		t.Fatal("expected a non-empty IMAP greeting")
	}
}

func TestGreetingForOtherKindsIsEmpty(t *testing.T) {
	c := newConnection(-1, "127.0.0.1:1234", KindGopher, 1<<20)
	c.classify()
	if greeting := greetingFor(c); greeting != "" {
		t.Fatalf("expected empty greeting for Gopher, got %q", greeting)
	}
}

func TestPumpGopherDispatchesSelectorThroughRouter(t *testing.T) {
	rt := router.New()
	rt.Handle(router.REQUEST, "/{path}", false, func(req interface{}, captures map[string]string) {
		g := req.(*GopherContext)
		if captures["path"] != "hello.txt" {
			t.Fatalf("captures[path] = %q, want hello.txt", captures["path"])
		}
		g.Write([]byte("hi"))
	})
	r := &Reactor{router: rt}

	c := newConnection(-1, "127.0.0.1:1234", KindGopher, 1<<20)
	c.classify()
	c.in.Write([]byte("/hello.txt\r\n"))

	r.pumpGopher(c)

	if !bytes.Contains(c.out.Bytes(), []byte("hi")) {
		t.Fatalf("expected response body to contain selector output, got %q", c.out.Bytes())
	}
	if !bytes.HasSuffix(c.out.Bytes(), []byte(".\r\n")) {
		t.Fatalf("expected lone-dot terminator, got %q", c.out.Bytes())
	}
	if !c.closeAfterWrite {
		t.Fatal("expected Gopher connection to close after the response")
	}
}

func TestPumpGopherRendersErrorForUnmatchedSelector(t *testing.T) {
	rt := router.New()
	r := &Reactor{router: rt}

	c := newConnection(-1, "127.0.0.1:1234", KindGopher, 1<<20)
	c.classify()
	c.in.Write([]byte("/missing\r\n"))

	r.pumpGopher(c)

	if !bytes.Contains(c.out.Bytes(), []byte("selector not found")) {
		t.Fatalf("expected an error menu line, got %q", c.out.Bytes())
	}
}
