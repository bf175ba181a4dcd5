// Package util contains misc internal utilities.
package util

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// AllElementsNumbers returns true if every rune in s is a digit or a decimal
// point, e.g. "25" or "0.5", but not "25ms"
func AllElementsNumbers(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

// ParseDuration is time.ParseDuration that treats a bare number as seconds
func ParseDuration(s string) (time.Duration, error) {
	if AllElementsNumbers(s) {
		s += "s"
	}
	return time.ParseDuration(s)
}

// MsToDuration converts milliseconds to a duration
func MsToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// SecsToDuration converts seconds to a duration
func SecsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
