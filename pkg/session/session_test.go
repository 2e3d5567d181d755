package session

import (
	"testing"
	"time"
)

func TestStartCreatesNewSession(t *testing.T) {
	s := New(time.Minute, 5, "localhost")
	sess, isNew := s.Start("SID", "", "127.0.0.1:1234")
	if !isNew {
		t.Fatalf("expected a new session")
	}
	if sess.ID == "" {
		t.Fatalf("expected a non-empty session id")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", s.Len())
	}
}

func TestStartReusesExistingCookie(t *testing.T) {
	s := New(time.Minute, 5, "localhost")
	first, _ := s.Start("SID", "", "127.0.0.1:1234")

	again, isNew := s.Start("SID", first.ID, "127.0.0.1:1234")
	if isNew {
		t.Fatalf("expected existing session to be reused")
	}
	if again.ID != first.ID {
		t.Fatalf("expected same session id, got %s vs %s", again.ID, first.ID)
	}
}

func TestSessionIDAppearsAtMostOnce(t *testing.T) {
	s := New(time.Minute, 5, "localhost")
	sess, _ := s.Start("SID", "", "10.0.0.1:1")
	for i := 0; i < 10; i++ {
		s.Start("SID", sess.ID, "10.0.0.1:1")
	}
	if s.Len() != 1 {
		t.Fatalf("expected exactly 1 entry for a repeatedly-touched session, got %d", s.Len())
	}
}

func TestCullRemovesExpiredSessions(t *testing.T) {
	s := New(time.Millisecond, 5, "localhost")
	sess, _ := s.Start("SID", "", "10.0.0.2:1")
	time.Sleep(5 * time.Millisecond)

	// A fresh Start triggers the cull sweep; use a throwaway cookie so it
	// doesn't touch the expiring session.
	s.Start("SID", "", "10.0.0.3:1")

	if _, ok := s.Get(sess.ID); ok {
		t.Fatalf("expected expired session to be culled")
	}
}
