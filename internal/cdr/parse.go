package cdr

import (
	"strings"
	"unicode"
)

// maxParsed caps accumulation so absurd inputs cannot overflow int
const maxParsed = 1 << 53

// ParseInt parses the leading integer of s the way a browser's parseInt
// does: leading whitespace and a sign are accepted, a 0x prefix selects
// hex, and parsing stops at the first non-digit. ok is false when no
// digit was read (the NaN case).
func ParseInt(s string) (n int, ok bool) {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})

	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	base := 10
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	digits := 0
	for i := 0; i < len(s); i++ {
		d := digitValue(s[i])
		if d < 0 || d >= base {
			break
		}
		if n < maxParsed {
			n = n*base + d
		}
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

// IntOrZero is ParseInt with non-numeric input mapped to 0
func IntOrZero(s string) int {
	n, ok := ParseInt(s)
	if !ok {
		return 0
	}
	return n
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
