package validate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reID   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reCat  = regexp.MustCompile(`^(GRAIN|PRODUCE|DAIRY|LIVESTOCK)$`)
	reUnit = regexp.MustCompile(`^(kg|quintal|tonne|crate)$`)
)

// ID validates a simple resource identifier (auction/bid/product ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Category validates allowed product category enums.
func Category(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s == "" || reCat.MatchString(s)
}

// Unit validates allowed quantity units.
func Unit(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reUnit.MatchString(s)
}

// Limit parses a page-size query param, clamped to avoid abuse.
func Limit(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 50
	}
	if n > 100 {
		return 100
	}
	return n
}

// Offset parses a pagination offset.
func Offset(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
