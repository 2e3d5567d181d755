package mail

import (
	"fmt"
	"strconv"
	"strings"
)

// IMAPState mirrors RFC 3501 §3's three connection states (plus a fourth,
// Logout, used internally to signal the session should close).
type IMAPState int

const (
	IMAPNotAuthenticated IMAPState = iota
	IMAPAuthenticated
	IMAPSelected
	IMAPLogout
)

// Mailbox is the subset of mailbox data IMAPSession needs to answer SELECT
// and FETCH; the MailboxStore given to NewIMAPSession supplies it.
// pkg/reactor creates its IMAP sessions without a store.
type Mailbox struct {
	Name       string
	Exists     int
	Recent     int
	UIDNext    uint32
	UIDValid   uint32
	MessageIDs []uint32
}

// MailboxStore is the collaborator IMAPSession calls into; kept narrow so
// the protocol layer stays independent of any particular storage engine.
type MailboxStore interface {
	Select(name string) (*Mailbox, error)
	List(reference, pattern string) ([]string, error)
}

// IMAPSession is one IMAP4rev1 connection's state, fed one tagged command
// line at a time.
type IMAPSession struct {
	ServerName   string
	State        IMAPState
	User         string
	Selected     *Mailbox
	Store        MailboxStore
	Authenticate Authenticator
}

func NewIMAPSession(serverName string, store MailboxStore, authenticate Authenticator) *IMAPSession {
	return &IMAPSession{ServerName: serverName, State: IMAPNotAuthenticated, Store: store, Authenticate: authenticate}
}

// Greeting returns the untagged OK banner RFC 3501 §7.1.1 requires.
func (s *IMAPSession) Greeting() string {
	return fmt.Sprintf("* OK %s IMAP4rev1 ready", s.ServerName)
}

// imapHandlers maps IMAP verbs to handlers, following the same
// method-expression table pattern as smtpHandlers.
var imapHandlers = map[string]func(*IMAPSession, string) []string{
	"CAPABILITY": (*IMAPSession).handleCAPABILITY,
	"LOGIN":      (*IMAPSession).handleLOGIN,
	"LOGOUT":     (*IMAPSession).handleLOGOUT,
	"NOOP":       (*IMAPSession).handleNOOP,
	"SELECT":     (*IMAPSession).handleSELECT,
	"EXAMINE":    (*IMAPSession).handleSELECT,
	"LIST":       (*IMAPSession).handleLIST,
	"FETCH":      (*IMAPSession).handleFETCH,
	"CLOSE":      (*IMAPSession).handleCLOSE,
}

// Feed processes one tagged command line ("a1 LOGIN user pass") and
// returns the full response (untagged lines plus the final tagged
// completion), and whether the connection should close.
func (s *IMAPSession) Feed(line string) (response []string, shouldClose bool) {
	tag, verb, arg, err := parseIMAPLine(line)
	if err != nil {
		return []string{"* BAD " + err.Error()}, false
	}

	handler, ok := imapHandlers[strings.ToUpper(verb)]
	if !ok {
		return []string{fmt.Sprintf("%s BAD unrecognized command", tag)}, false
	}

	out := handler(s, arg)
	tagged := out[len(out)-1]
	out[len(out)-1] = tag + " " + tagged
	return out, s.State == IMAPLogout
}

func parseIMAPLine(line string) (tag, verb, arg string, err error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("malformed command line")
	}
	tag = parts[0]
	verb = parts[1]
	if len(parts) == 3 {
		arg = parts[2]
	}
	return tag, verb, arg, nil
}

func (s *IMAPSession) handleCAPABILITY(string) []string {
	return []string{"* CAPABILITY IMAP4rev1 AUTH=PLAIN", "OK CAPABILITY completed"}
}

func (s *IMAPSession) handleLOGIN(arg string) []string {
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		return []string{"BAD LOGIN requires user and password"}
	}
	user := strings.Trim(parts[0], `"`)
	pass := strings.Trim(parts[1], `"`)
	if s.Authenticate == nil {
		return []string{"NO login not available"}
	}
	if err := s.Authenticate(user, pass); err != nil {
		return []string{"NO login failed"}
	}
	s.User = user
	s.State = IMAPAuthenticated
	return []string{"OK LOGIN completed"}
}

func (s *IMAPSession) handleLOGOUT(string) []string {
	s.State = IMAPLogout
	return []string{"* BYE logging out", "OK LOGOUT completed"}
}

func (s *IMAPSession) handleNOOP(string) []string {
	return []string{"OK NOOP completed"}
}

func (s *IMAPSession) handleSELECT(arg string) []string {
	if s.State != IMAPAuthenticated && s.State != IMAPSelected {
		return []string{"NO must LOGIN first"}
	}
	if s.Store == nil {
		return []string{"NO mailbox store unavailable"}
	}
	mbox, err := s.Store.Select(strings.Trim(arg, `"`))
	if err != nil {
		return []string{"NO " + err.Error()}
	}
	s.Selected = mbox
	s.State = IMAPSelected
	return []string{
		fmt.Sprintf("* %d EXISTS", mbox.Exists),
		fmt.Sprintf("* %d RECENT", mbox.Recent),
		fmt.Sprintf("* OK [UIDVALIDITY %d]", mbox.UIDValid),
		fmt.Sprintf("* OK [UIDNEXT %d]", mbox.UIDNext),
		"OK [READ-WRITE] SELECT completed",
	}
}

func (s *IMAPSession) handleLIST(arg string) []string {
	if s.Store == nil {
		return []string{"NO mailbox store unavailable"}
	}
	fields := strings.SplitN(arg, " ", 2)
	reference, pattern := "", "*"
	if len(fields) == 2 {
		reference, pattern = strings.Trim(fields[0], `"`), strings.Trim(fields[1], `"`)
	}
	names, err := s.Store.List(reference, pattern)
	if err != nil {
		return []string{"NO " + err.Error()}
	}
	lines := make([]string, 0, len(names)+1)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf(`* LIST () "/" %q`, name))
	}
	lines = append(lines, "OK LIST completed")
	return lines
}

func (s *IMAPSession) handleFETCH(arg string) []string {
	if s.State != IMAPSelected || s.Selected == nil {
		return []string{"NO no mailbox selected"}
	}
	seq := strings.Fields(arg)
	if len(seq) == 0 {
		return []string{"BAD FETCH requires a sequence set"}
	}
	n, err := strconv.Atoi(seq[0])
	if err != nil || n < 1 || n > len(s.Selected.MessageIDs) {
		return []string{"NO no such message"}
	}
	return []string{fmt.Sprintf("* %d FETCH (UID %d)", n, s.Selected.MessageIDs[n-1]), "OK FETCH completed"}
}

func (s *IMAPSession) handleCLOSE(string) []string {
	s.Selected = nil
	s.State = IMAPAuthenticated
	return []string{"OK CLOSE completed"}
}
