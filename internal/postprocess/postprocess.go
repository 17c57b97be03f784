// Package postprocess rewrites transcribed text with a user replacement table.
package postprocess

import (
	"fmt"
	"strings"
)

// Rule replaces every occurrence of From with To.
type Rule struct {
	From string
	To   string
}

// Table applies its rules in a single left-to-right pass. At each position
// the first rule in declared order that matches wins, and replaced text is
// never scanned again.
type Table struct {
	rules    []Rule
	replacer *strings.Replacer
}

// NewTable builds a table. Empty and duplicated From values are rejected.
func NewTable(rules []Rule) (*Table, error) {
	seen := make(map[string]struct{}, len(rules))
	pairs := make([]string, 0, len(rules)*2)
	for i, r := range rules {
		if r.From == "" {
			return nil, fmt.Errorf("replacement %d: empty source text", i)
		}
		if _, dup := seen[r.From]; dup {
			return nil, fmt.Errorf("replacement %d: duplicate source text %q", i, r.From)
		}
		seen[r.From] = struct{}{}
		pairs = append(pairs, r.From, r.To)
	}

	t := &Table{rules: append([]Rule(nil), rules...)}
	if len(pairs) > 0 {
		t.replacer = strings.NewReplacer(pairs...)
	}
	return t, nil
}

// Rules returns a copy of the rules in declared order
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	return append([]Rule(nil), t.rules...)
}

// Len returns the number of rules
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Apply rewrites text. A nil or empty table returns text unchanged.
func (t *Table) Apply(text string) string {
	if t == nil || t.replacer == nil {
		return text
	}
	return t.replacer.Replace(text)
}

// Process trims surrounding whitespace and applies the table.
func (t *Table) Process(text string) string {
	return t.Apply(strings.TrimSpace(text))
}
