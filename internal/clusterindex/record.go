// Package clusterindex parses occurrence records and builds the canonical
// cluster ordering that all navigation is positional against.
package clusterindex

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Delimiter separates the fields of an occurrence line.
	Delimiter = "|||"

	// minFields is token, position, source line, column, cluster id.
	minFields = 5

	delimChar = "|"
)

// baseDelimCount is the number of delimiter characters in an ordinary line
// with exactly minFields fields.
var baseDelimCount = (minFields - 1) * len(Delimiter)

// Kind classifies how the token field of a line must be read.
type Kind int

const (
	// KindOrdinary lines split cleanly; the token is the first field.
	KindOrdinary Kind = iota
	// KindSingleDelimiter lines carry the literal token "|".
	KindSingleDelimiter
	// KindDoubleDelimiter lines carry the literal token "||".
	KindDoubleDelimiter
)

func (k Kind) String() string {
	switch k {
	case KindSingleDelimiter:
		return "single-delimiter"
	case KindDoubleDelimiter:
		return "double-delimiter"
	default:
		return "ordinary"
	}
}

// Classify inspects a trimmed line once and decides how its token is read.
//
// A token made of delimiter characters adds one or two extra "|" to the
// line, and the first split field is then either empty or the token itself.
// Both the count and the first field must agree, so a token such as "a|b"
// is still read as an ordinary token.
func Classify(line string) Kind {
	count := strings.Count(line, delimChar)
	first := strings.TrimSpace(strings.SplitN(line, Delimiter, 2)[0])
	switch {
	case count == baseDelimCount+1 && (first == "" || first == "|"):
		return KindSingleDelimiter
	case count == baseDelimCount+2 && (first == "" || first == "||"):
		return KindDoubleDelimiter
	default:
		return KindOrdinary
	}
}

// OccurrenceRecord is one parsed occurrence line.
type OccurrenceRecord struct {
	Token      string
	SourceLine int
	Column     int
	ClusterID  string
	Kind       Kind
}

// ParseError describes a line that was skipped.
type ParseError struct {
	Line   int // 1-based line number in the input
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ParseLine parses one raw occurrence line. lineNo is only used for errors.
func ParseLine(raw string, lineNo int) (OccurrenceRecord, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return OccurrenceRecord{}, &ParseError{Line: lineNo, Reason: "empty line"}
	}

	kind := Classify(line)
	fields := strings.Split(line, Delimiter)
	if len(fields) < minFields {
		return OccurrenceRecord{}, &ParseError{
			Line:   lineNo,
			Reason: fmt.Sprintf("expected at least %d fields, got %d", minFields, len(fields)),
		}
	}

	var token string
	switch kind {
	case KindSingleDelimiter:
		token = "|"
	case KindDoubleDelimiter:
		token = "||"
	default:
		token = strings.TrimSpace(fields[0])
	}

	sourceLine, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return OccurrenceRecord{}, &ParseError{Line: lineNo, Reason: fmt.Sprintf("invalid source line %q", strings.TrimSpace(fields[2]))}
	}
	column, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return OccurrenceRecord{}, &ParseError{Line: lineNo, Reason: fmt.Sprintf("invalid column %q", strings.TrimSpace(fields[3]))}
	}

	idField := strings.Fields(fields[4])
	if len(idField) == 0 {
		return OccurrenceRecord{}, &ParseError{Line: lineNo, Reason: "empty cluster id"}
	}

	return OccurrenceRecord{
		Token:      token,
		SourceLine: sourceLine,
		Column:     column,
		ClusterID:  idField[len(idField)-1],
		Kind:       kind,
	}, nil
}
