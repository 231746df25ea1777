// Package fieldmap implements the declarative rename table that maps source
// record field paths to destination index field names. A mapping is built once
// by the configuration loader and is read-only afterwards.
package fieldmap

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pair is one flattened mapping from a dot-delimited source field path to a
// destination field name.
type Pair struct {
	Source      string
	Destination string
}

// Mapping is an ordered, possibly nested field mapping. Entries keep the order
// they appeared in at construction time, so flattening is deterministic.
type Mapping struct {
	entries []entry
}

type entry struct {
	key   string
	dest  string   // set for scalar entries
	child *Mapping // set for group entries
}

// New returns an empty mapping.
func New() *Mapping {
	return &Mapping{}
}

// SetField appends a scalar mapping from key to the destination field name.
// The caller is responsible for key uniqueness within this level.
func (m *Mapping) SetField(key, destination string) {
	m.entries = append(m.entries, entry{key: key, dest: destination})
}

// SetGroup appends a nested group under key and returns the child mapping.
func (m *Mapping) SetGroup(key string) *Mapping {
	child := New()
	m.entries = append(m.entries, entry{key: key, child: child})
	return child
}

// Len returns the number of flattened pairs in the mapping.
func (m *Mapping) Len() int {
	n := 0
	for _, e := range m.entries {
		if e.child != nil {
			n += e.child.Len()
		} else {
			n++
		}
	}
	return n
}

// Flatten returns all (sourcePath, destinationField) pairs in document order.
// Nested keys are joined with dots, so a Summary field under a Metadata group
// flattens to "Metadata.Summary" and stays distinguishable from a top-level
// Summary.
func (m *Mapping) Flatten() []Pair {
	pairs := make([]Pair, 0, m.Len())
	m.flattenInto(&pairs, "")
	return pairs
}

func (m *Mapping) flattenInto(pairs *[]Pair, prefix string) {
	for _, e := range m.entries {
		path := e.key
		if prefix != "" {
			path = prefix + "." + e.key
		}
		if e.child != nil {
			e.child.flattenInto(pairs, path)
			continue
		}
		*pairs = append(*pairs, Pair{Source: path, Destination: e.dest})
	}
}

// Apply renames the fields of a source record according to the mapping and
// returns the destination record. Source paths that are absent from the record
// are skipped; destination fields are flat keys.
func (m *Mapping) Apply(record map[string]any) map[string]any {
	out := make(map[string]any)
	for _, p := range m.Flatten() {
		value, ok := lookup(record, p.Source)
		if !ok {
			continue
		}
		out[p.Destination] = value
	}
	return out
}

// lookup walks a dot-delimited path through nested maps.
func lookup(record map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := any(record)
	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Equal reports whether two mappings flatten to the same pairs in the same
// order.
func (m *Mapping) Equal(other *Mapping) bool {
	if other == nil {
		return m == nil
	}
	a, b := m.Flatten(), other.Flatten()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalYAML renders the mapping back to its nested YAML form, preserving
// entry order.
func (m *Mapping) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range m.entries {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.key}
		if e.child != nil {
			childValue, err := e.child.MarshalYAML()
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, keyNode, childValue.(*yaml.Node))
			continue
		}
		valueNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.dest}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

// String renders the flattened pairs, one per line, for logging.
func (m *Mapping) String() string {
	var sb strings.Builder
	for i, p := range m.Flatten() {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s -> %s", p.Source, p.Destination)
	}
	return sb.String()
}
