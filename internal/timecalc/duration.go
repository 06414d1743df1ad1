package timecalc

import (
	"fmt"
	"strconv"
	"strings"
)

// SanitizeDuration is applied while a cell is being typed into. It keeps
// digits and the first colon and drops everything else.
func SanitizeDuration(raw string) string {
	var b strings.Builder
	colon := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ':' && !colon:
			colon = true
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeDuration is applied when a cell is committed. The result is either
// "" or exactly "HH:MM" with 0 <= HH <= 23 and 0 <= MM <= 59.
//
// Without a colon, one or two digits are hours, three digits are H+MM and four
// or more are HH+MM (extra digits are dropped). An hour above 23 clamps the
// whole value to 23:59; a minute above 59 clamps to 59.
func NormalizeDuration(raw string) string {
	s := SanitizeDuration(raw)
	if s == "" || s == ":" {
		return ""
	}

	var hs, ms string
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hs, ms = s[:i], s[i+1:]
	} else {
		if len(s) > 4 {
			s = s[:4]
		}
		switch len(s) {
		case 1, 2:
			hs = s
		case 3:
			hs, ms = s[:1], s[1:]
		default:
			hs, ms = s[:2], s[2:]
		}
	}

	h := atoiOrZero(hs)
	m := atoiOrZero(ms)
	if h > 23 {
		h, m = 23, 59
	}
	if m > 59 {
		m = 59
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ParseHHMM converts a committed "HH:MM" value into minutes. Empty input is
// zero minutes; anything else that is not HH:MM is reported as not ok.
func ParseHHMM(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	hs, ms, found := strings.Cut(s, ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// FormatHHMM renders minutes as "HH:MM".
func FormatHHMM(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// DurationMinutes normalizes raw and returns its length in minutes.
func DurationMinutes(raw string) int {
	n, _ := ParseHHMM(NormalizeDuration(raw))
	return n
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	// Digit-only input; anything this long clamps anyway.
	if len(s) > 6 {
		return 999999
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
