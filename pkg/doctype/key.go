package doctype

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
)

var (
	// ErrInvalidKey is returned for keys outside the allowed alphabet.
	ErrInvalidKey = errors.New("invalid document key")

	// ErrIncompleteKey is returned when a field needed to build a key is
	// empty.
	ErrIncompleteKey = errors.New("missing field to build document key")
)

// SequentialNumberWidth is the zero-padded width of sequential numbers.
const SequentialNumberWidth = 4

var (
	keyPattern     = regexp.MustCompile(`^[A-Z0-9]+(-[A-Z0-9]+)*$`)
	digitsPattern  = regexp.MustCompile(`^[0-9]+$`)
	keyCharPattern = regexp.MustCompile(`[^A-Z0-9]+`)
)

// ValidateKey checks that key is made of uppercase alphanumeric segments
// separated by single dashes.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// NormalizeSequentialNumber zero-pads a sequential number, e.g. "4" becomes
// "0004".
func NormalizeSequentialNumber(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !digitsPattern.MatchString(s) {
		return "", fmt.Errorf("sequential number %q must be numeric", s)
	}
	trimmed := strings.TrimLeft(s, "0")
	if len(trimmed) > SequentialNumberWidth {
		return "", fmt.Errorf("sequential number %q exceeds %d digits", s, SequentialNumberWidth)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return "", fmt.Errorf("sequential number %q: %w", s, err)
	}
	return fmt.Sprintf("%0*d", SequentialNumberWidth, n), nil
}

// joinKey joins uppercased key segments. Every segment must be set.
func joinKey(parts ...keyPart) (string, error) {
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.ToUpper(strings.TrimSpace(p.value))
		if v == "" {
			return "", fmt.Errorf("%w: %s", ErrIncompleteKey, p.field)
		}
		segments = append(segments, v)
	}
	key := strings.Join(segments, "-")
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

type keyPart struct {
	field string
	value string
}

// slugKey turns free text into a key, e.g. "HAZOP report" becomes
// "HAZOP-REPORT".
func slugKey(text string) (string, error) {
	kebab := strcase.ToScreamingKebab(strings.TrimSpace(text))
	key := strings.Trim(keyCharPattern.ReplaceAllString(kebab, "-"), "-")
	if key == "" {
		return "", fmt.Errorf("%w: title", ErrIncompleteKey)
	}
	return key, ValidateKey(key)
}
