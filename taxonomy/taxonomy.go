// Package taxonomy loads the locally cached AutoFocus tag catalogue and refreshes it from
// the tags endpoint.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"afdata/core"
)

// Tag classes that make a tag a priority tag
const (
	ClassMalwareFamily = "malware_family"
	ClassCampaign      = "campaign"
	ClassActor         = "actor"
	ClassExploit       = "exploit"
)

// Group is one tag group membership
type Group struct {
	Name        string `json:"tag_group_name"`
	Description string `json:"description,omitempty"`
}

// Entry is the cached description of one tag
type Entry struct {
	PublicName string  `json:"public_tag_name"`
	Name       string  `json:"tag_name"`
	Class      string  `json:"tag_class"`
	Groups     []Group `json:"tag_groups"`
}

// GroupNames returns the names of the groups the tag belongs to
func (e Entry) GroupNames() []string {
	names := make([]string, 0, len(e.Groups))
	for _, g := range e.Groups {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	return names
}

// Priority reports whether the tag class is one of the highlighted classes
func (e Entry) Priority() bool {
	switch e.Class {
	case ClassMalwareFamily, ClassCampaign, ClassActor, ClassExploit:
		return true
	}
	return false
}

type document struct {
	Tags map[string]json.RawMessage `json:"_tags"`
}

// Taxonomy maps public tag names to their cached entries
type Taxonomy struct {
	entries map[string]Entry
}

// New builds a taxonomy from entries
func New(entries ...Entry) *Taxonomy {
	t := &Taxonomy{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		t.entries[e.PublicName] = e
	}
	return t
}

// Parse reads the tag data document
func Parse(r io.Reader) (*Taxonomy, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse tag data: %w", err)
	}
	t := &Taxonomy{entries: make(map[string]Entry, len(doc.Tags))}
	for name, raw := range doc.Tags {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("failed to parse tag %s: %w", name, err)
		}
		if e.PublicName == "" {
			e.PublicName = name
		}
		t.entries[name] = e
	}
	return t, nil
}

// Load reads the tag data file at path
func Load(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: tag data %s (run 'afdata tags refresh')", core.ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("failed to open tag data: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Lookup returns the entry for a public tag name
func (t *Taxonomy) Lookup(tag string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[tag]
	return e, ok
}

// Len returns the number of cached tags
func (t *Taxonomy) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
