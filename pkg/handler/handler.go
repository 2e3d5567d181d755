// Package handler defines the application-handler contract at the core
// boundary (spec.md §1, §9): handlers are external collaborators, but the
// typed return value they use to request a server restart/stop is part of
// the core's process() contract, replacing the source's
// exception-for-control-flow idiom with a plain return variant.
package handler

// ResultKind distinguishes normal completion from a restart/stop request.
type ResultKind int

const (
	// Continue means the handler completed normally; process() proceeds to
	// response assembly as usual.
	Continue ResultKind = iota
	// StopServer requests an orderly reactor shutdown.
	StopServer
	// RestartServer requests the reactor restart, resuming from the given
	// session snapshot path (spec.md §9).
	RestartServer
)

// Result is returned by a handler in place of raising a control-flow
// exception (spec.md §9's "exception-for-control-flow" design note).
type Result struct {
	Kind         ResultKind
	SnapshotPath string // meaningful only when Kind == RestartServer
	Err          error  // set when the handler failed uncaught
}

// Func is the application handler signature. req and captures are passed by
// the router; the response is written through req (see
// pkg/response.Builder).
type Func func(req interface{}, captures map[string]string) Result
