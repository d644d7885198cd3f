// Package phone normalizes user-typed phone numbers into E.164.
package phone

import (
	"regexp"
	"strings"
)

var nonDial = regexp.MustCompile(`[^\d+]+`)

// Normalize strips formatting and returns an E.164-looking string. It is
// idempotent: Normalize(Normalize(s)) == Normalize(s). An input with no
// digits yields "".
func Normalize(raw string) string {
	s := nonDial.ReplaceAllString(strings.TrimSpace(raw), "")

	// only a leading plus is meaningful
	plus := strings.HasPrefix(s, "+")
	s = strings.ReplaceAll(s, "+", "")
	if s == "" {
		return ""
	}

	if !plus && strings.HasPrefix(s, "00") {
		s = strings.TrimLeft(s[2:], "0")
		if s == "" {
			return ""
		}
	}

	return "+" + s
}

// Valid reports whether s is a normalized E.164 number (8 to 15 digits).
func Valid(s string) bool {
	if !strings.HasPrefix(s, "+") {
		return false
	}
	digits := s[1:]
	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
