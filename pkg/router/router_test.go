package router

import "testing"

func TestCaptureBindsNamedSegment(t *testing.T) {
	r := New()
	var got map[string]string
	r.Handle(GET, "/thread/{thread_num}", false, func(req interface{}, captures map[string]string) {
		got = captures
	})

	matched, recursed := r.Dispatch(GET, "/thread/5", nil, map[recursionKey]bool{})
	if !matched || recursed {
		t.Fatalf("expected route to match")
	}
	if got["thread_num"] != "5" {
		t.Fatalf("expected capture thread_num=5, got %v", got)
	}
}

func TestGreedyCaptureWithLiteralSuffix(t *testing.T) {
	r := New()
	var got string
	r.Handle(GET, "/files/{path}/edit", false, func(req interface{}, captures map[string]string) {
		got = captures["path"]
	})

	matched, _ := r.Dispatch(GET, "/files/a/b/c/edit", nil, map[recursionKey]bool{})
	if !matched {
		t.Fatalf("expected greedy capture to still match the literal suffix")
	}
	if got != "a/b/c" {
		t.Fatalf("expected greedy capture 'a/b/c', got %q", got)
	}
}

func TestLiteralBindsOverLaterPattern(t *testing.T) {
	r := New()
	var which string
	r.Handle(GET, "/users/admin", false, func(req interface{}, captures map[string]string) { which = "literal" })
	r.Handle(GET, "/users/{name}", false, func(req interface{}, captures map[string]string) { which = "pattern" })

	r.Dispatch(GET, "/users/admin", nil, map[recursionKey]bool{})
	if which != "literal" {
		t.Fatalf("expected the literal route registered first to win, got %q", which)
	}
}

func TestFallsBackToErrorRoute(t *testing.T) {
	r := New()
	hit := false
	r.Handle(ERROR, "/404", false, func(req interface{}, captures map[string]string) { hit = true })

	matched, _ := r.Dispatch(GET, "/nope", nil, map[recursionKey]bool{})
	if !matched || !hit {
		t.Fatalf("expected unmatched route to fall back to ERROR /404")
	}
}

func TestRecursionGuardStopsReentry(t *testing.T) {
	r := New()
	seen := map[recursionKey]bool{}
	r.Handle(GET, "/loop", false, func(req interface{}, captures map[string]string) {
		r.Dispatch(GET, "/loop", nil, seen)
	})

	matched, recursed := r.Dispatch(GET, "/loop", nil, seen)
	if !matched {
		t.Fatalf("expected the outer dispatch to match")
	}
	_ = recursed
}

func TestMountPrefixesSubRoutes(t *testing.T) {
	sub := New()
	hit := false
	sub.Handle(GET, "/ping", false, func(req interface{}, captures map[string]string) { hit = true })

	r := New()
	r.Mount("/api", sub)

	matched, _ := r.Dispatch(GET, "/api/ping", nil, map[recursionKey]bool{})
	if !matched || !hit {
		t.Fatalf("expected mounted sub-route to be reachable under its prefix")
	}
}

func TestMiddlewareCanRewriteMethodAndPath(t *testing.T) {
	r := New()
	var gotPath string
	r.Use(func(mr *MutableRequest) {
		mr.Method = POST
		mr.Path = "/rewritten"
	})
	r.Handle(POST, "/rewritten", false, func(req interface{}, captures map[string]string) {
		gotPath = "/rewritten"
	})

	r.Dispatch(GET, "/original", nil, map[recursionKey]bool{})
	if gotPath != "/rewritten" {
		t.Fatalf("expected middleware rewrite to steer dispatch")
	}
}
