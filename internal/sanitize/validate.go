package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxAnnotatorLength is the longest accepted annotator name, in bytes.
const MaxAnnotatorLength = 64

// ErrInvalidAnnotator indicates an annotator name was rejected.
var ErrInvalidAnnotator = errors.New("invalid annotator")

// Annotator trims name and checks it can be stored with evaluations and
// written to logs: non-empty, valid UTF-8, no control characters, at most
// MaxAnnotatorLength bytes.
func Annotator(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAnnotator)
	}
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: contains invalid UTF-8", ErrInvalidAnnotator)
	}
	if len(name) > MaxAnnotatorLength {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrInvalidAnnotator, MaxAnnotatorLength)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: contains control characters", ErrInvalidAnnotator)
	}
	return name, nil
}
