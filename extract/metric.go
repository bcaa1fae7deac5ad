package extract

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// metricPattern captures a leading numeric literal with an optional K/M/B
// suffix. Grouping commas are allowed inside the literal.
var metricPattern = regexp.MustCompile(`^([0-9][0-9,]*(?:\.[0-9]*)?|\.[0-9]+)\s*([kKmMbB])?`)

var digitPattern = regexp.MustCompile(`\d`)

// ParseMetricValue turns display counts like "1.2K", "3M" or "42" into
// integers. Empty or non-numeric input yields 0; it never fails. Values
// beyond the int range saturate at math.MaxInt.
func ParseMetricValue(text string) int {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return 0
	}

	m := metricPattern.FindStringSubmatch(clean)
	if m == nil {
		return 0
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}

	multiplier := 1.0
	switch strings.ToUpper(m[2]) {
	case "K":
		multiplier = 1e3
	case "M":
		multiplier = 1e6
	case "B":
		multiplier = 1e9
	}
	v := math.Round(f * multiplier)
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v >= float64(math.MaxInt):
		return math.MaxInt
	}
	return int(v)
}

// hasDigit reports whether s contains at least one ASCII digit.
func hasDigit(s string) bool {
	return digitPattern.MatchString(s)
}
