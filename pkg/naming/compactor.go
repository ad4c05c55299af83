package naming

import (
	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Compactor turns full IRIs back into "prefix:local" form. It is the
// inverse of a PrefixResolver and is built once from a snapshot of the
// prefix table.
type Compactor struct {
	// The AC automaton built from all namespace expansions
	ac ahocorasick.AhoCorasick

	// Pattern index -> prefix
	prefixes   []string
	expansions []string
	table      map[string]string
}

// NewCompactor builds the automaton over the expansions of prefixes.
func NewCompactor(prefixes map[string]string) *Compactor {
	c := &Compactor{table: make(map[string]string, len(prefixes))}
	seen := make(map[string]bool, len(prefixes))
	for prefix, expansion := range prefixes {
		if expansion == "" || seen[expansion] {
			continue
		}
		seen[expansion] = true
		c.prefixes = append(c.prefixes, prefix)
		c.expansions = append(c.expansions, expansion)
		c.table[prefix] = expansion
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: false,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	c.ac = builder.Build(c.expansions)
	return c
}

// Resolve compacts iri using the longest namespace it starts with. IRIs that
// start with no known namespace, or that equal a namespace exactly, are
// returned unchanged.
func (c *Compactor) Resolve(iri string) string {
	if len(c.expansions) == 0 {
		return iri
	}
	for _, m := range c.ac.FindAll(iri) {
		if m.Start() != 0 {
			break
		}
		if m.End() == len(iri) {
			return iri
		}
		return c.prefixes[m.Pattern()] + ":" + iri[m.End():]
	}
	return iri
}

// Inverse returns a PrefixResolver over the same table.
func (c *Compactor) Inverse() Resolver {
	return NewPrefixResolver(c.table)
}
