// Package constants defines default configuration values for the reactor
// server, per the option set in spec.md §6.
package constants

import "time"

// Reactor / connection defaults.
const (
	DefaultConnectionTimeout = 20 * time.Second // CONNECTION_TIMEOUT
	DefaultMaxIOLen          = 131072            // MAX_IO_LEN
	DefaultMaxRequestLen     = 10000000           // MAX_REQUEST_LEN
	AcceptPeekBytes          = 512                // bytes peeked to classify a new connection
)

// Session store defaults.
const (
	DefaultCullOldSessionNum = 5                // CULL_OLD_SESSION_NUM
	DefaultSessionLifetime   = 30 * time.Minute // session TTL
	DefaultSessionCookieName = "SESSIONID"
)

// Marker file cache defaults.
const (
	DefaultMaxCacheFileSize = 2000000 // MAX_CACHE_FILESIZE
	DefaultMaxCacheFiles    = 250     // MAX_CACHE_FILES
)

// Server identity defaults.
const (
	DefaultServerName = "localhost" // SERVER_NAME
)

// HTTP/2 defaults (RFC 7540 §6.5.2, §11.3).
const (
	DefaultMaxConcurrentStreams = 100
	DefaultInitialWindowSize    = 65535
	DefaultMaxFrameSize         = 16384
	DefaultMaxHeaderListSize    = 10485760
	DefaultHeaderTableSize      = 4096
	MaxFrameSizeCeiling         = 1<<24 - 1

	// ConnectionPreface is the exact 24-byte client magic of RFC 7540 §3.5.
	ConnectionPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

	// MaxInternalRequestDepth bounds processInternalRequest recursion (spec.md §4.11).
	MaxInternalRequestDepth = 5
)
