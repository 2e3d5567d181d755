// Package mail implements the SMTP (RFC 5321) and IMAP4rev1 (RFC 3501)
// command dispatchers of spec.md's C5, grounded on the command-table
// pattern in other_examples' gonzalop/ftp session.go: a per-connection
// session struct carrying protocol state, driven by a
// map[string]func(*session, string) command table built from method
// expressions, rather than a large hand-rolled switch.
package mail

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/emersion/go-sasl"

	"github.com/nullbyte-dev/evreactor/pkg/errors"
)

// SMTPState tracks where in the RFC 5321 transaction the session sits.
type SMTPState int

const (
	SMTPGreeting SMTPState = iota
	SMTPReady
	SMTPMailFrom
	SMTPRcptTo
	SMTPData
	SMTPAuthenticating
)

// Authenticator validates SMTP AUTH PLAIN/LOGIN credentials.
type Authenticator func(user, pass string) error

// SMTPSession is one line-oriented SMTP connection's state, fed one
// command line at a time by pkg/reactor.
type SMTPSession struct {
	ServerName string
	State      SMTPState
	HeloName   string
	From       string
	To         []string
	DataBuf    []byte
	Authed     bool
	Authenticate Authenticator
	Deliver    func(from string, to []string, data []byte) error

	authMech sasl.Server
}

// NewSMTPSession constructs a session ready to emit the 220 greeting via
// Greeting().
func NewSMTPSession(serverName string, deliver func(from string, to []string, data []byte) error, authenticate Authenticator) *SMTPSession {
	return &SMTPSession{ServerName: serverName, State: SMTPGreeting, Deliver: deliver, Authenticate: authenticate}
}

// Greeting returns the initial 220 response line.
func (s *SMTPSession) Greeting() string {
	s.State = SMTPReady
	return fmt.Sprintf("220 %s ESMTP ready", s.ServerName)
}

// smtpHandlers maps SMTP verbs to handlers, mirroring the FTP teacher's
// commandHandlers table of method expressions.
var smtpHandlers = map[string]func(*SMTPSession, string) string{
	"HELO": (*SMTPSession).handleHELO,
	"EHLO": (*SMTPSession).handleEHLO,
	"MAIL": (*SMTPSession).handleMAIL,
	"RCPT": (*SMTPSession).handleRCPT,
	"DATA": (*SMTPSession).handleDATASTART,
	"RSET": (*SMTPSession).handleRSET,
	"NOOP": (*SMTPSession).handleNOOP,
	"QUIT": (*SMTPSession).handleQUIT,
	"AUTH": (*SMTPSession).handleAUTH,
	"VRFY": (*SMTPSession).handleVRFY,
	"HELP": (*SMTPSession).handleHELP,
}

// Feed processes one line of input (sans trailing CRLF) and returns the
// response line(s) to write back, joined by CRLF, and whether the
// connection should now close.
func (s *SMTPSession) Feed(line string) (response string, shouldClose bool) {
	line = strings.TrimRight(line, "\r\n")

	if s.State == SMTPAuthenticating {
		return s.feedAuthLine(line), false
	}
	if s.State == SMTPData {
		return s.feedDataLine(line)
	}

	verb, arg := splitCommand(line)
	handler, ok := smtpHandlers[strings.ToUpper(verb)]
	if !ok {
		return "500 unrecognized command", false
	}
	resp := handler(s, arg)
	return resp, strings.ToUpper(verb) == "QUIT"
}

func splitCommand(line string) (verb, arg string) {
	parts := strings.SplitN(line, " ", 2)
	verb = parts[0]
	if len(parts) == 2 {
		arg = parts[1]
	}
	return verb, arg
}

func (s *SMTPSession) handleHELO(arg string) string {
	if arg == "" {
		return "501 HELO requires domain address"
	}
	s.HeloName = arg
	s.State = SMTPReady
	return fmt.Sprintf("250 %s greets %s", s.ServerName, arg)
}

func (s *SMTPSession) handleEHLO(arg string) string {
	if arg == "" {
		return "501 EHLO requires domain address"
	}
	s.HeloName = arg
	s.State = SMTPReady
	return strings.Join([]string{
		fmt.Sprintf("250-%s greets %s", s.ServerName, arg),
		"250-AUTH PLAIN LOGIN",
		"250-8BITMIME",
		"250 SMTPUTF8",
	}, "\r\n")
}

func (s *SMTPSession) handleMAIL(arg string) string {
	from, ok := extractAddress(arg, "FROM:")
	if !ok {
		return "501 syntax error in MAIL command"
	}
	s.From = from
	s.To = nil
	s.State = SMTPMailFrom
	return "250 OK"
}

func (s *SMTPSession) handleRCPT(arg string) string {
	if s.State != SMTPMailFrom && s.State != SMTPRcptTo {
		return "503 need MAIL before RCPT"
	}
	to, ok := extractAddress(arg, "TO:")
	if !ok {
		return "501 syntax error in RCPT command"
	}
	s.To = append(s.To, to)
	s.State = SMTPRcptTo
	return "250 OK"
}

func (s *SMTPSession) handleDATASTART(arg string) string {
	if s.State != SMTPRcptTo {
		return "503 need MAIL and RCPT before DATA"
	}
	s.State = SMTPData
	s.DataBuf = s.DataBuf[:0]
	return "354 start mail input; end with <CRLF>.<CRLF>"
}

func (s *SMTPSession) feedDataLine(line string) (string, bool) {
	if line == "." {
		s.State = SMTPReady
		if s.Deliver != nil {
			if err := s.Deliver(s.From, s.To, s.DataBuf); err != nil {
				return "554 transaction failed: " + err.Error(), false
			}
		}
		return "250 OK: message accepted", false
	}
	if strings.HasPrefix(line, "..") {
		line = line[1:]
	}
	s.DataBuf = append(s.DataBuf, []byte(line)...)
	s.DataBuf = append(s.DataBuf, '\n')
	return "", false
}

func (s *SMTPSession) handleRSET(string) string {
	s.From = ""
	s.To = nil
	s.State = SMTPReady
	return "250 OK"
}

func (s *SMTPSession) handleNOOP(string) string { return "250 OK" }

func (s *SMTPSession) handleQUIT(string) string {
	return fmt.Sprintf("221 %s closing connection", s.ServerName)
}

func (s *SMTPSession) handleVRFY(string) string {
	return "252 cannot VRFY user; try RCPT to attempt delivery"
}

func (s *SMTPSession) handleHELP(string) string {
	return "214 HELO EHLO MAIL RCPT DATA RSET NOOP QUIT AUTH VRFY HELP"
}

// handleAUTH starts a SASL exchange via github.com/emersion/go-sasl's
// server-side PLAIN/LOGIN mechanisms. Go-sasl drives the actual
// challenge/response state machine; this method only wires the transport
// (base64 lines over the command channel) around it.
func (s *SMTPSession) handleAUTH(arg string) string {
	parts := strings.SplitN(arg, " ", 2)
	mech := strings.ToUpper(parts[0])

	authenticate := s.Authenticate
	if authenticate == nil {
		authenticate = func(string, string) error { return errors.NewValidationError("no authenticator configured") }
	}

	switch mech {
	case "PLAIN":
		s.authMech = sasl.NewPlainServer(func(identity, username, password string) error {
			return authenticate(username, password)
		})
	case "LOGIN":
		s.authMech = sasl.NewLoginServer(func(username, password string) error {
			return authenticate(username, password)
		})
	default:
		return "504 unrecognized authentication mechanism"
	}

	var initial []byte
	if len(parts) == 2 {
		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			s.authMech = nil
			return "501 malformed initial response"
		}
		initial = decoded
	}

	challenge, done, err := s.authMech.Next(initial)
	return s.handleSASLStep(challenge, done, err)
}

func (s *SMTPSession) feedAuthLine(line string) string {
	if line == "*" {
		s.authMech = nil
		s.State = SMTPReady
		return "501 authentication cancelled"
	}
	decoded, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		s.authMech = nil
		s.State = SMTPReady
		return "501 malformed response"
	}
	challenge, done, err := s.authMech.Next(decoded)
	return s.handleSASLStep(challenge, done, err)
}

func (s *SMTPSession) handleSASLStep(challenge []byte, done bool, err error) string {
	if err != nil {
		s.authMech = nil
		s.State = SMTPReady
		return "535 authentication failed"
	}
	if done {
		s.authMech = nil
		s.Authed = true
		s.State = SMTPReady
		return "235 authentication successful"
	}
	s.State = SMTPAuthenticating
	return "334 " + base64.StdEncoding.EncodeToString(challenge)
}
