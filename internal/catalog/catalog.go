// Package catalog loads the read-only baseline and candidate label catalogs.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Placeholder is shown for any field a catalog cannot provide.
const Placeholder = "N/A"

// keyPrefix is the prefixed key form some catalogs use ("c12").
const keyPrefix = "c"

// ErrLookupMiss is returned when a cluster id is absent from a catalog.
var ErrLookupMiss = errors.New("cluster not in catalog")

// Entry is one catalog record for a cluster.
type Entry struct {
	PrimaryLabel   string   `json:"primary_label"`
	SemanticTags   []string `json:"semantic_tags"`
	SyntacticLabel string   `json:"syntactic_label"`
	Description    string   `json:"description"`
	Acceptability  string   `json:"acceptability,omitempty"`
	UniqueTokens   []string `json:"unique_tokens,omitempty"`
}

// PlaceholderEntry is returned on a lookup miss.
func PlaceholderEntry() Entry {
	return Entry{
		PrimaryLabel:   Placeholder,
		SyntacticLabel: Placeholder,
		Description:    Placeholder,
	}
}

// Catalog is an immutable cluster id -> Entry lookup.
type Catalog struct {
	name    string
	entries map[string]Entry
}

// New builds a catalog from entries keyed by bare or prefixed id.
func New(name string, entries map[string]Entry) *Catalog {
	c := &Catalog{name: name, entries: make(map[string]Entry, len(entries))}
	for k, v := range entries {
		c.entries[k] = v
	}
	return c
}

// Name identifies the catalog in logs and errors.
func (c *Catalog) Name() string { return c.name }

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Get tries the bare id, then the prefixed form.
func (c *Catalog) Get(id string) (Entry, bool) {
	if e, ok := c.entries[id]; ok {
		return e, true
	}
	if e, ok := c.entries[keyPrefix+id]; ok {
		return e, true
	}
	return Entry{}, false
}

// Lookup returns the entry for id. On a miss it returns PlaceholderEntry
// together with an error wrapping ErrLookupMiss, so callers can render the
// placeholder and still log the miss.
func (c *Catalog) Lookup(id string) (Entry, error) {
	if e, ok := c.Get(id); ok {
		return e, nil
	}
	return PlaceholderEntry(), fmt.Errorf("%s catalog: cluster %q: %w", c.name, id, ErrLookupMiss)
}

type baselineRecord struct {
	Labels      []string `json:"Labels"`
	Semantic    string   `json:"Semantic"`
	Syntactic   string   `json:"Syntactic"`
	Description string   `json:"Description"`
	Q1Answer    string   `json:"Q1_Answer"`
}

// LoadBaseline decodes the baseline catalog: an object keyed by cluster id
// whose semantic tags are a single comma-joined string.
func LoadBaseline(r io.Reader) (*Catalog, error) {
	var raw map[string]baselineRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode baseline catalog: %w", err)
	}

	entries := make(map[string]Entry, len(raw))
	for id, rec := range raw {
		e := Entry{
			PrimaryLabel:   Placeholder,
			SemanticTags:   splitTags(rec.Semantic),
			SyntacticLabel: orPlaceholder(rec.Syntactic),
			Description:    orPlaceholder(rec.Description),
			Acceptability:  strings.TrimSpace(rec.Q1Answer),
		}
		if len(rec.Labels) > 0 && strings.TrimSpace(rec.Labels[0]) != "" {
			e.PrimaryLabel = rec.Labels[0]
		}
		entries[id] = e
	}
	return New("baseline", entries), nil
}

type candidateRecord struct {
	SyntacticLabel string   `json:"Syntactic Label"`
	SemanticTags   []string `json:"Semantic Tags"`
	Description    string   `json:"Description"`
	UniqueTokens   []string `json:"Unique tokens"`
}

// LoadCandidate decodes the candidate catalog: an array of single-key
// objects {"c<id>": {...}}. Later duplicates of a key win.
func LoadCandidate(r io.Reader) (*Catalog, error) {
	var raw []map[string]candidateRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode candidate catalog: %w", err)
	}

	entries := make(map[string]Entry, len(raw))
	for _, item := range raw {
		for id, rec := range item {
			entries[id] = Entry{
				PrimaryLabel:   orPlaceholder(rec.SyntacticLabel),
				SemanticTags:   rec.SemanticTags,
				SyntacticLabel: orPlaceholder(rec.SyntacticLabel),
				Description:    orPlaceholder(rec.Description),
				UniqueTokens:   rec.UniqueTokens,
			}
		}
	}
	return New("candidate", entries), nil
}

// LoadBaselineFile opens and decodes a baseline catalog file.
func LoadBaselineFile(path string) (*Catalog, error) {
	return loadFile(path, LoadBaseline)
}

// LoadCandidateFile opens and decodes a candidate catalog file.
func LoadCandidateFile(path string) (*Catalog, error) {
	return loadFile(path, LoadCandidate)
}

func loadFile(path string, load func(io.Reader) (*Catalog, error)) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return load(f)
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}
