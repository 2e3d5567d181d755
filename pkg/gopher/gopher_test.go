package gopher

import (
	"strings"
	"testing"
)

func TestParseRequestWithQuery(t *testing.T) {
	req := ParseRequest("/search\tkeyword")
	if req.Selector != "/search" || req.Query != "keyword" {
		t.Fatalf("unexpected parse: %+v", req)
	}
}

func TestParseRequestWithoutQuery(t *testing.T) {
	req := ParseRequest("/docs")
	if req.Selector != "/docs" || req.Query != "" {
		t.Fatalf("unexpected parse: %+v", req)
	}
}

func TestRenderMenuTerminatesWithDot(t *testing.T) {
	out := RenderMenu([]MenuItem{
		{Type: TypeDirectory, Display: "docs", Selector: "/docs", Host: "localhost", Port: 70},
	})
	s := string(out)
	if !strings.HasPrefix(s, "1docs\t/docs\tlocalhost\t70\r\n") {
		t.Fatalf("unexpected menu line: %q", s)
	}
	if !strings.HasSuffix(s, ".\r\n") {
		t.Fatalf("expected trailing dot line, got %q", s)
	}
}

func TestRenderTextAppendsDot(t *testing.T) {
	out := RenderText([]byte("hello"))
	if !strings.HasSuffix(string(out), "\r\n.\r\n") {
		t.Fatalf("expected trailing dot line, got %q", out)
	}
}
