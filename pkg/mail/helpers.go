package mail

import "strings"

// extractAddress pulls the bracketed address out of a MAIL/RCPT argument
// such as "FROM:<alice@example.com>" given the expected prefix "FROM:".
func extractAddress(arg, prefix string) (string, bool) {
	arg = strings.TrimSpace(arg)
	upper := strings.ToUpper(arg)
	if !strings.HasPrefix(upper, prefix) {
		return "", false
	}
	rest := strings.TrimSpace(arg[len(prefix):])
	rest = strings.TrimPrefix(rest, "<")
	if idx := strings.IndexByte(rest, '>'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest, true
}
