package logutil

import "strings"

// SanitizeForLog removes newlines and control characters from client-supplied
// strings (paths, key comments) so they cannot forge extra log lines.
func SanitizeForLog(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return ' '
		case r < 32 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// SingleLine joins a wrapped hex fingerprint back into one line.
func SingleLine(fingerprint string) string {
	return strings.ReplaceAll(fingerprint, "\n", "")
}
