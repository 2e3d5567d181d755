package mail

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestSMTPFullTransaction(t *testing.T) {
	var delivered struct {
		from string
		to   []string
		data []byte
	}
	s := NewSMTPSession("mail.example.com", func(from string, to []string, data []byte) error {
		delivered.from = from
		delivered.to = to
		delivered.data = data
		return nil
	}, nil)

	if got := s.Greeting(); !strings.HasPrefix(got, "220 ") {
		t.Fatalf("unexpected greeting: %q", got)
	}

	steps := []struct {
		line     string
		wantCode string
	}{
		{"EHLO client.example.com", "250"},
		{"MAIL FROM:<alice@example.com>", "250 OK"},
		{"RCPT TO:<bob@example.com>", "250 OK"},
		{"DATA", "354"},
	}
	for _, step := range steps {
		resp, _ := s.Feed(step.line)
		if !strings.HasPrefix(resp, step.wantCode) {
			t.Fatalf("command %q: got %q, want prefix %q", step.line, resp, step.wantCode)
		}
	}

	s.Feed("Subject: hi")
	s.Feed("")
	s.Feed("body text")
	resp, _ := s.Feed(".")
	if !strings.HasPrefix(resp, "250") {
		t.Fatalf("expected delivery accepted, got %q", resp)
	}

	if delivered.from != "alice@example.com" {
		t.Fatalf("unexpected from: %q", delivered.from)
	}
	if len(delivered.to) != 1 || delivered.to[0] != "bob@example.com" {
		t.Fatalf("unexpected to: %v", delivered.to)
	}
	if !strings.Contains(string(delivered.data), "body text") {
		t.Fatalf("unexpected body: %q", delivered.data)
	}
}

func TestSMTPRcptBeforeMailRejected(t *testing.T) {
	s := NewSMTPSession("mail.example.com", nil, nil)
	s.Greeting()
	resp, _ := s.Feed("RCPT TO:<bob@example.com>")
	if !strings.HasPrefix(resp, "503") {
		t.Fatalf("expected 503, got %q", resp)
	}
}

func TestSMTPAuthPlainSuccess(t *testing.T) {
	s := NewSMTPSession("mail.example.com", nil, func(user, pass string) error {
		if user == "alice" && pass == "secret" {
			return nil
		}
		return errNoMatch
	})
	s.Greeting()
	s.Feed("EHLO client")

	payload := base64.StdEncoding.EncodeToString([]byte("\x00alice\x00secret"))
	resp, _ := s.Feed("AUTH PLAIN " + payload)
	if !strings.HasPrefix(resp, "235") {
		t.Fatalf("expected 235 authentication successful, got %q", resp)
	}
	if !s.Authed {
		t.Fatalf("expected session marked authenticated")
	}
}

func TestSMTPQuitClosesConnection(t *testing.T) {
	s := NewSMTPSession("mail.example.com", nil, nil)
	s.Greeting()
	resp, shouldClose := s.Feed("QUIT")
	if !strings.HasPrefix(resp, "221") || !shouldClose {
		t.Fatalf("expected 221 and close, got %q close=%v", resp, shouldClose)
	}
}

type testError string

func (e testError) Error() string { return string(e) }

var errNoMatch = testError("credentials do not match")
