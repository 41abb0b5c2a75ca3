// Package sanitizer cleans free-text input before it is persisted or echoed
// back to other users. Booking messages are the only user-authored text the
// reservation engine stores.
package sanitizer

import (
	"strings"
	"unicode"
)

const maxMessageLength = 500

// SanitizeMessage strips control characters, collapses runs of whitespace
// and caps the length. Empty-after-cleanup input comes back as "".
func SanitizeMessage(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := false
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())
	if len(out) > maxMessageLength {
		out = truncateOnRune(out, maxMessageLength)
	}
	return out
}

// truncateOnRune cuts at a byte budget without splitting a UTF-8 sequence.
func truncateOnRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
