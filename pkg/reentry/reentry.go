// Package reentry implements processInternalRequest (spec.md §4.11): a
// synchronous, bounded-recursion re-dispatch of a locally-issued URL that
// saves and restores the ambient per-request context on an explicit stack
// rather than mutating a superglobal (spec.md §9).
package reentry

import (
	"github.com/nullbyte-dev/evreactor/pkg/constants"
	reqctx "github.com/nullbyte-dev/evreactor/pkg/context"
)

// recursionFailureMessage is returned verbatim when depth is exceeded,
// per spec.md §4.11 / §7.
const recursionFailureMessage = "INTERNAL REQUEST FAILED DUE TO RECURSION"

// Dispatcher runs one internal request against the live route table and
// returns the bytes it produced. The reactor's real process() implements
// this; reentry only manages the stack and depth bound around it.
type Dispatcher func(ctx *reqctx.RequestContext, postData []byte) []byte

// Stack tracks the save/restore frames for nested processInternalRequest
// calls within one top-level request.
type Stack struct {
	frames []*reqctx.RequestContext
	depth  int
}

// NewStack creates an empty re-entry stack.
func NewStack() *Stack {
	return &Stack{}
}

// Process implements processInternalRequest(url, include_headers, post_data):
// it saves current onto the stack, builds a fresh context for url, invokes
// dispatch, then restores current, all bounded to
// constants.MaxInternalRequestDepth.
func (s *Stack) Process(current *reqctx.RequestContext, url string, includeHeaders bool, postData []byte, dispatch Dispatcher) []byte {
	if s.depth >= constants.MaxInternalRequestDepth {
		return []byte(recursionFailureMessage)
	}

	s.frames = append(s.frames, current.Clone())
	s.depth++
	defer func() {
		s.depth--
		s.frames = s.frames[:len(s.frames)-1]
	}()

	next := current.Clone()
	next.URI = url
	next.Method = "GET"
	if postData != nil {
		next.Method = "POST"
		next.Content = postData
		next.ContentLength = int64(len(postData))
	}
	if !includeHeaders {
		next.Headers = make(map[string]string)
	}

	return dispatch(next, postData)
}

// Depth reports the current re-entry nesting depth.
func (s *Stack) Depth() int {
	return s.depth
}
