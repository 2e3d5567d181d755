// Package tlsconfig supplies the TLS version/cipher-suite profile the
// reactor's listening socket applies when no explicit tls.Config override
// is given (pkg/reactor/tls.go's ListenTLS).
package tlsconfig

import "crypto/tls"

// TLS protocol version identifiers, re-exported from crypto/tls for callers
// that only import this package.
const (
	VersionTLS10 uint16 = tls.VersionTLS10
	VersionTLS11 uint16 = tls.VersionTLS11
	VersionTLS12 uint16 = tls.VersionTLS12
	VersionTLS13 uint16 = tls.VersionTLS13
)

// VersionProfile bounds the negotiable TLS version range for a listener.
type VersionProfile struct {
	Min uint16
	Max uint16
}

// ProfileSecure is the default the reactor applies to every TLS listener:
// TLS 1.2 and 1.3 only, per spec.md §6's TLS material option (no SSLv3/TLS
// 1.0/1.1 downgrade path for an application server accepting arbitrary
// internet clients).
var ProfileSecure = VersionProfile{Min: VersionTLS12, Max: VersionTLS13}

// CipherSuitesSecure are the ECDHE+AEAD suites applied when a listener
// negotiates down to TLS 1.2 (TLS 1.3 picks its own suites unconditionally).
var CipherSuitesSecure = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// ApplyCipherSuites sets cfg.CipherSuites to CipherSuitesSecure when
// minVersion allows TLS 1.2 negotiation; TLS 1.3-only configs leave
// CipherSuites nil since crypto/tls ignores it for that version.
func ApplyCipherSuites(cfg *tls.Config, minVersion uint16) {
	if minVersion >= VersionTLS13 {
		cfg.CipherSuites = nil
		return
	}
	cfg.CipherSuites = CipherSuitesSecure
}
