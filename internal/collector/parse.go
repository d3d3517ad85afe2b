package collector

import (
	"math"
	"strconv"
	"strings"
)

// byteUnits is ordered longest suffix first so "MiB" is never read as "B".
var byteUnits = []struct {
	suffix     string
	multiplier float64
}{
	{"KiB", 1 << 10},
	{"MiB", 1 << 20},
	{"GiB", 1 << 30},
	{"TiB", 1 << 40},
	{"PiB", 1 << 50},
	{"kB", 1e3},
	{"KB", 1e3},
	{"MB", 1e6},
	{"GB", 1e9},
	{"TB", 1e12},
	{"PB", 1e15},
	{"B", 1},
}

// ParseBytes converts a human-readable size such as "1.5GiB" or "500MB" into
// raw bytes. Binary suffixes are 1024-based, decimal suffixes 1000-based and
// a bare number is taken as bytes. Unparsable input yields 0.
func ParseBytes(s string) float64 {
	v, _ := ParseBytesOK(s)
	return v
}

// ParseBytesOK is ParseBytes that also reports whether s was parsable.
func ParseBytesOK(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	multiplier := 1.0
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			multiplier = u.multiplier
			break
		}
	}
	v, ok := parseFinite(s)
	if !ok || v < 0 {
		return 0, false
	}
	return v * multiplier, true
}

// ParsePercent converts "12.34%" into 12.34. Input without a trailing % yields 0.
func ParsePercent(s string) float64 {
	v, _ := ParsePercentOK(s)
	return v
}

// ParsePercentOK is ParsePercent that also reports whether s was parsable.
func ParsePercentOK(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	return parseFinite(strings.TrimSpace(strings.TrimSuffix(s, "%")))
}

// ParsePair splits an "a / b" I/O pair and converts each side with
// ParseBytesOK. ok is false unless both sides parse.
func ParsePair(s string) (a, b float64, ok bool) {
	left, right, found := strings.Cut(s, "/")
	if !found || strings.Contains(right, "/") {
		return 0, 0, false
	}
	a, okA := ParseBytesOK(left)
	b, okB := ParseBytesOK(right)
	if !okA || !okB {
		return 0, 0, false
	}
	return a, b, true
}

func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
