package engagement

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// countPattern matches a whole count string: optional decimal mantissa plus
// an optional k/m magnitude suffix ("803", "2.3K", "1.1m").
var countPattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([km])?$`)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// ParseCount converts a human-formatted count string ("803", "2.3K", "1.1M",
// "1,234") into an integer. It never fails: when the whole string does not
// parse as a count, every non-digit character is stripped and the remaining
// digit run is used, and 0 is returned when no digits survive. That fallback
// is deliberately lossy ("≈3K views" yields 3, not 3000), so a 0 result is
// indistinguishable from a true zero and callers must treat it as "no
// information" where that matters.
func ParseCount(raw string) int {
	cleaned := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))

	m := countPattern.FindStringSubmatch(cleaned)
	if m == nil {
		digits := nonDigits.ReplaceAllString(cleaned, "")
		if digits == "" {
			return 0
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return 0
		}
		return n
	}

	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "k":
		num *= 1_000
	case "m":
		num *= 1_000_000
	}
	// A scaled value past int64 is selector noise, not a count; converting
	// it would wrap negative. Treat it like any other unusable input.
	if num >= math.MaxInt64 {
		return 0
	}
	return int(num)
}
