// Package validation provides centralized input validation for satmon.
package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/xtxerr/satmon/config"
	"github.com/xtxerr/satmon/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for entity names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowSpaces  bool
}

// DefaultNameRules returns the default rules for display names
// (satellites and units), e.g. "Intella-Sat-1" or "Power System".
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		AllowSpaces:  true,
	}
}

// ParameterNameRules returns rules for parameter names, e.g. "battery_voltage".
// Parameter names are channel identifiers and may not contain spaces.
func ParameterNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		AllowSpaces:  false,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required: %w", rules.MinLength, errors.ErrInvalidName)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed: %w", rules.MaxLength, errors.ErrInvalidName)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..': %w", errors.ErrInvalidName)
	}

	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name cannot start or end with whitespace: %w", errors.ErrInvalidName)
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d: %w", i, errors.ErrInvalidName)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d: %w", i, errors.ErrInvalidName)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d: %w", r, i, errors.ErrInvalidName)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case ' ':
		return rules.AllowSpaces
	}
	return false
}

// ValidateEntityName validates a satellite or unit name with default rules.
func ValidateEntityName(name string) error {
	return ValidateName(name, DefaultNameRules())
}

// ValidateParameterName validates a parameter name.
func ValidateParameterName(name string) error {
	return ValidateName(name, ParameterNameRules())
}

// =============================================================================
// Time Window Validation
// =============================================================================

// ValidateWindow checks an optional [start, end] window. Both bounds are
// inclusive; a nil bound is open.
func ValidateWindow(start, end *time.Time) error {
	if start != nil && end != nil && start.After(*end) {
		return errors.NewInvalidRange(fmt.Sprintf("start %s is after end %s",
			start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)))
	}
	return nil
}

// ParseTime parses an API time value: RFC3339 (with or without fractional
// seconds) or integer unix milliseconds.
func ParseTime(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}

	var ms int64
	if _, err := fmt.Sscanf(value, "%d", &ms); err == nil && fmt.Sprintf("%d", ms) == value {
		return time.UnixMilli(ms), nil
	}

	return time.Time{}, errors.NewInvalidValue(field, value, "expected RFC3339 or unix milliseconds")
}

// CeilMilli converts t to Unix milliseconds, rounding a sub-millisecond
// remainder up so an inclusive start never admits an earlier point.
func CeilMilli(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.After(time.UnixMilli(ms)) {
		ms++
	}
	return ms
}

// =============================================================================
// Pagination
// =============================================================================

// NormalizePage applies pagination defaults: pages start at 1, page size
// defaults to config.DefaultPageSize and is capped at config.MaxPageSize.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	if pageSize > config.MaxPageSize {
		pageSize = config.MaxPageSize
	}
	return page, pageSize
}

// PageBounds returns the [lo, hi) slice bounds of a page over total items.
// Pages past the end, however large, are empty.
func PageBounds(total, page, pageSize int) (int, int) {
	if page < 1 || pageSize <= 0 || page-1 > total/pageSize {
		return total, total
	}
	lo := (page - 1) * pageSize
	if lo > total {
		lo = total
	}
	hi := lo + pageSize
	if hi > total {
		hi = total
	}
	return lo, hi
}
