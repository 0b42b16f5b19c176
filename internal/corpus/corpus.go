// Package corpus holds the source lines that occurrence records point into.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineSize = 1024 * 1024

// Corpus is an immutable, 0-based list of trimmed source lines.
type Corpus struct {
	lines []string
}

// SourceLine is a resolved line reference.
type SourceLine struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Load reads every line of r.
func Load(r io.Reader) (*Corpus, error) {
	c := &Corpus{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		c.lines = append(c.lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return c, nil
}

// LoadFile opens and reads a corpus file.
func LoadFile(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// FromLines builds a corpus from in-memory lines.
func FromLines(lines []string) *Corpus {
	c := &Corpus{lines: make([]string, len(lines))}
	for i, l := range lines {
		c.lines[i] = strings.TrimSpace(l)
	}
	return c
}

// Len returns the number of lines.
func (c *Corpus) Len() int { return len(c.lines) }

// Line returns line id, or false when it is out of range.
func (c *Corpus) Line(id int) (string, bool) {
	if id < 0 || id >= len(c.lines) {
		return "", false
	}
	return c.lines[id], true
}

// Resolve maps line ids to their text in the given order. Ids outside the
// corpus are dropped.
func (c *Corpus) Resolve(ids []int) []SourceLine {
	out := make([]SourceLine, 0, len(ids))
	for _, id := range ids {
		if text, ok := c.Line(id); ok {
			out = append(out, SourceLine{ID: id, Text: text})
		}
	}
	return out
}
