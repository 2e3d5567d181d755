// Package h1 implements the incremental HTTP/1.1 request parser of
// spec.md §4.4, grounded on the line-oriented header reading the teacher
// does for its HTTP/2 converter
// (pkg/http2/converter.go#parseHTTP11Request, bufio + textproto.Reader),
// generalized here to resume correctly across partial reads of a
// connection's inbound buffer.
package h1

import (
	"bufio"
	"bytes"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/nullbyte-dev/evreactor/pkg/errors"
)

// State names the parser's position in the request, per spec.md §4.4.
type State int

const (
	RequestLinePending State = iota
	HeadersPending
	BodyPending
	Complete
)

var methodSet = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "HEAD": true,
	"OPTIONS": true, "TRACE": true, "CONNECT": true, "PATCH": true,
}

// Request is the fully parsed HTTP/1.1 request.
type Request struct {
	Method      string
	Path        string
	Query       string
	Version     string
	Headers     map[string]string // CGI-style: HTTP_<NAME>, except CONTENT_TYPE/CONTENT_LENGTH
	ContentType string
	Body        []byte
	Upgrade     string // non-empty if an Upgrade header was observed
}

// Parser holds incremental state across Feed calls for one connection.
type Parser struct {
	state         State
	method        string
	path          string
	query         string
	version       string
	headers       map[string]string
	contentType   string
	contentLength int64
	upgrade       string
	maxRequestLen int64
}

// New creates a parser bounded by maxRequestLen (spec.md's MAX_REQUEST_LEN).
func New(maxRequestLen int64) *Parser {
	return &Parser{state: RequestLinePending, headers: make(map[string]string), maxRequestLen: maxRequestLen}
}

// Outcome reports what Feed determined from the accumulated buffer.
type Outcome int

const (
	NeedMore Outcome = iota
	RequestReady
	BadRequest
)

// Feed attempts to advance parsing using the full accumulated inbound
// buffer buf. It returns the outcome, the completed Request (only valid
// when outcome is RequestReady), the number of leading bytes of buf that
// were consumed (advance the connection buffer by this much), and an error
// describing a BadRequest outcome.
func (p *Parser) Feed(buf []byte) (Outcome, *Request, int, error) {
	if p.maxRequestLen > 0 && int64(len(buf)) > p.maxRequestLen {
		return BadRequest, nil, 0, errors.NewResourceError("request exceeds MAX_REQUEST_LEN")
	}

	if p.state == RequestLinePending {
		idx, lineLen := findLine(buf)
		if idx < 0 {
			return NeedMore, nil, 0, nil
		}
		line := strings.TrimRight(string(buf[:idx]), "\r")
		if err := p.parseRequestLine(line); err != nil {
			return BadRequest, nil, 0, err
		}
		buf = buf[lineLen:]
		p.state = HeadersPending
		consumedSoFar := lineLen
		outcome, req, consumed, err := p.continueFeed(buf, consumedSoFar)
		if outcome == NeedMore {
			// Nothing was consumed, so the caller re-feeds the whole buffer,
			// request line included: start over from the request line.
			*p = *New(p.maxRequestLen)
		}
		return outcome, req, consumed, err
	}

	return p.continueFeed(buf, 0)
}

// continueFeed is called with buf positioned just after the request line and
// consumedSoFar set to that line's length. A NeedMore outcome consumes
// nothing, and Feed then resets the parser, because the caller re-feeds the
// full buffer from the request line each time.
func (p *Parser) continueFeed(buf []byte, consumedSoFar int) (Outcome, *Request, int, error) {
	if p.state == HeadersPending {
		headerEnd := findDoubleCRLF(buf)
		if headerEnd < 0 {
			return NeedMore, nil, 0, nil
		}

		if err := p.parseHeaders(buf[:headerEnd]); err != nil {
			return BadRequest, nil, 0, err
		}
		consumedSoFar += headerEnd

		if p.contentLength <= 0 {
			p.state = Complete
			return p.finish(nil), p.buildRequest(nil), consumedSoFar, nil
		}

		if p.maxRequestLen > 0 && p.contentLength > p.maxRequestLen-int64(consumedSoFar) {
			return BadRequest, nil, 0, errors.NewResourceError("Content-Length exceeds MAX_REQUEST_LEN")
		}

		p.state = BodyPending
		buf = buf[headerEnd:]
		return p.readBody(buf, consumedSoFar)
	}

	if p.state == BodyPending {
		return p.readBody(buf, consumedSoFar)
	}

	return NeedMore, nil, 0, nil
}

func (p *Parser) readBody(buf []byte, consumedSoFar int) (Outcome, *Request, int, error) {
	if int64(len(buf)) < p.contentLength {
		return NeedMore, nil, 0, nil
	}
	body := buf[:p.contentLength]
	consumedSoFar += int(p.contentLength)
	p.state = Complete
	return p.finish(body), p.buildRequest(body), consumedSoFar, nil
}

func (p *Parser) finish(body []byte) Outcome {
	return RequestReady
}

func (p *Parser) buildRequest(body []byte) *Request {
	return &Request{
		Method:      p.method,
		Path:        p.path,
		Query:       p.query,
		Version:     p.version,
		Headers:     p.headers,
		ContentType: p.contentType,
		Body:        append([]byte(nil), body...),
		Upgrade:     p.upgrade,
	}
}

func (p *Parser) parseRequestLine(line string) error {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return errors.NewParseError("http1", "malformed request line: "+line)
	}
	method, uri, version := parts[0], parts[1], parts[2]

	if !methodSet[method] {
		return errors.NewParseError("http1", "unrecognized method: "+method)
	}
	if !strings.HasPrefix(version, "HTTP/1.") {
		return errors.NewParseError("http1", "unsupported version: "+version)
	}

	p.method = method
	p.version = version

	if q := strings.IndexByte(uri, '?'); q >= 0 {
		p.path = uri[:q]
		p.query = uri[q+1:]
	} else {
		p.path = uri
		p.query = ""
	}
	return nil
}

func (p *Parser) parseHeaders(block []byte) error {
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(append(block[:len(block):len(block)], '\n'))))
	mh, err := tp.ReadMIMEHeader()
	if err != nil && len(mh) == 0 {
		return errors.NewParseError("http1", "malformed headers: "+err.Error())
	}

	for name, values := range mh {
		value := values[0]
		upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))

		switch upper {
		case "CONTENT_TYPE":
			p.contentType = value
			p.headers["CONTENT_TYPE"] = value
		case "CONTENT_LENGTH":
			n, convErr := strconv.ParseInt(value, 10, 64)
			if convErr != nil {
				return errors.NewParseError("http1", "malformed Content-Length")
			}
			p.contentLength = n
			p.headers["CONTENT_LENGTH"] = value
		case "UPGRADE":
			p.upgrade = value
			p.headers["HTTP_UPGRADE"] = value
		default:
			p.headers["HTTP_"+upper] = value
		}
	}
	return nil
}

// findLine locates the end of the first line (CRLF preferred, bare LF
// accepted per spec.md §4.4's leniency), returning the index of content
// before the terminator and the total length including the terminator.
func findLine(buf []byte) (contentLen int, totalLen int) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return -1, 0
	}
	if idx > 0 && buf[idx-1] == '\r' {
		return idx - 1, idx + 1
	}
	return idx, idx + 1
}

// findDoubleCRLF returns the length of the header block including its
// terminating blank line, or -1 if not yet complete. Accepts \r\n\r\n or
// \n\n.
func findDoubleCRLF(buf []byte) int {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i + 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i + 2
	}
	return -1
}
