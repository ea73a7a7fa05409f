// Package phone holds the number normalization shared by the allocator and
// the admin surface. Keep it dependency-free; both the allocator and the
// HTTP layer call into it.
package phone

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidDestination covers destinations that are not dialable:
	// fewer than 7 digits after stripping, or more than 15.
	ErrInvalidDestination = errors.New("invalid destination number")

	// ErrInvalidCallerID covers pool entries outside the 10-15 digit range.
	ErrInvalidCallerID = errors.New("invalid caller id number")
)

// Normalize strips every non-digit character. It does not validate length.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// NormalizeDestination validates a dialed number: 7-15 digits after
// stripping non-digits.
func NormalizeDestination(raw string) (string, error) {
	d := Normalize(raw)
	if len(d) < 7 || len(d) > 15 {
		return "", ErrInvalidDestination
	}
	return d, nil
}

// NormalizeCallerID validates a pool number: 10-15 digits after stripping.
func NormalizeCallerID(raw string) (string, error) {
	d := Normalize(raw)
	if len(d) < 10 || len(d) > 15 {
		return "", ErrInvalidCallerID
	}
	return d, nil
}

// AreaCode extracts the US-style 3-digit geographic prefix from a normalized
// number. An 11-digit number with a leading 1 is treated as its 10-digit
// counterpart. Numbers that are not 10/11 digits have no area code.
func AreaCode(digits string) string {
	switch {
	case len(digits) == 11 && digits[0] == '1':
		return digits[1:4]
	case len(digits) == 10:
		return digits[:3]
	default:
		return ""
	}
}

// DestinationAreaCode extracts the area code used for tier-1 candidate
// matching. Destinations outside the 10/11-digit shape (e.g. 7-digit local
// numbers) yield no area code and go straight to the tier-2 fallback.
func DestinationAreaCode(digits string) string {
	return AreaCode(digits)
}
