package utils

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxRangeLen bounds the number of values a single "a-b" range may expand to.
const MaxRangeLen = 10000

// ParseList splits an environment list such as "fakecairo, fakemontreal"
// on commas and whitespace. Repeated entries are dropped, first occurrence
// wins. Returns nil when nothing remains.
func ParseList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil
	}
	return Unique(fields)
}

// ParseIntList parses integers and inclusive ranges, e.g. "1-3,7" yields
// [1 2 3 7]. Order and repeats are preserved so callers that need distinct
// values (qubit layouts) can still detect duplicates.
func ParseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	}) {
		lo, hi, err := parseIntRange(part)
		if err != nil {
			return nil, err
		}
		for n := lo; n <= hi; n++ {
			out = append(out, n)
		}
	}
	return out, nil
}

// parseIntRange accepts "n" or "a-b". A leading sign belongs to the first
// bound, so "-2" is a single value.
func parseIntRange(part string) (int, int, error) {
	sep := strings.Index(part[1:], "-")
	if sep < 0 {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid integer %q: %w", part, err)
		}
		return n, n, nil
	}
	sep++

	lo, err := strconv.Atoi(part[:sep])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: %w", part, err)
	}
	hi, err := strconv.Atoi(part[sep+1:])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range %q: %w", part, err)
	}
	if hi < lo {
		return 0, 0, fmt.Errorf("invalid range %q: end is below start", part)
	}
	if hi-lo >= MaxRangeLen {
		return 0, 0, fmt.Errorf("invalid range %q: more than %d values", part, MaxRangeLen)
	}
	return lo, hi, nil
}

// Unique returns vals without repeats, keeping first-seen order.
func Unique[T comparable](vals []T) []T {
	seen := make(map[T]struct{}, len(vals))
	out := make([]T, 0, len(vals))
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
