// Package naming resolves short or aliased names to their canonical form.
//
// A Resolver either produces a new name or returns its input unchanged.
// Resolution is a single step: aliases are looked up once and prefixes are
// expanded once. Anything more elaborate is built by chaining resolvers.
package naming

import (
	"maps"
	"strings"
	"sync"
)

// Resolver maps a name to its canonical form.
type Resolver interface {
	Resolve(name string) string
	// Inverse returns a best-effort reverse mapping, used to present wire
	// names back to callers.
	Inverse() Resolver
}

// StandardPrefixes are the namespaces every default resolver knows.
var StandardPrefixes = map[string]string{
	"dcterms": "http://purl.org/dc/terms/",
	"owl":     "http://www.w3.org/2002/07/owl#",
	"rdf":     "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs":    "http://www.w3.org/2000/01/rdf-schema#",
	"sh":      "http://www.w3.org/ns/shacl#",
	"skos":    "http://www.w3.org/2004/02/skos/core#",
	"xsd":     "http://www.w3.org/2001/XMLSchema#",
}

// Identity resolves every name to itself.
var Identity Resolver = identity{}

type identity struct{}

func (identity) Resolve(name string) string { return name }
func (identity) Inverse() Resolver          { return identity{} }

// =============================================================================
// Aliases
// =============================================================================

// AliasResolver replaces a name by its registered alias.
type AliasResolver struct {
	mu   sync.RWMutex
	dict map[string]string
}

// NewAliasResolver creates a resolver seeded with aliases.
func NewAliasResolver(aliases map[string]string) *AliasResolver {
	dict := make(map[string]string, len(aliases))
	maps.Copy(dict, aliases)
	return &AliasResolver{dict: dict}
}

// Resolve returns the alias registered for name, or name itself.
func (r *AliasResolver) Resolve(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if alias, ok := r.dict[name]; ok && alias != "" {
		return alias
	}
	return name
}

// Inverse maps aliases back to the names they were registered under.
func (r *AliasResolver) Inverse() Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv := make(map[string]string, len(r.dict))
	for name, alias := range r.dict {
		inv[alias] = name
	}
	return &AliasResolver{dict: inv}
}

// Set registers alias for name.
func (r *AliasResolver) Set(name, alias string) *AliasResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dict[name] = alias
	return r
}

// WithAliases registers every entry of aliases.
func (r *AliasResolver) WithAliases(aliases map[string]string) *AliasResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.Copy(r.dict, aliases)
	return r
}

// Unset removes the alias registered for name.
func (r *AliasResolver) Unset(name string) *AliasResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dict, name)
	return r
}

// Clear removes all aliases.
func (r *AliasResolver) Clear() *AliasResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.dict)
	return r
}

// =============================================================================
// Prefixes
// =============================================================================

// PrefixResolver expands "prefix:local" names using a table of namespaces.
type PrefixResolver struct {
	mu       sync.RWMutex
	prefixes map[string]string
}

// NewPrefixResolver creates a resolver seeded with prefixes.
func NewPrefixResolver(prefixes map[string]string) *PrefixResolver {
	p := make(map[string]string, len(prefixes))
	maps.Copy(p, prefixes)
	return &PrefixResolver{prefixes: p}
}

// Resolve expands the prefix before the first colon. Names without a colon
// or with an unknown prefix (including full IRIs such as "http://...")
// are returned unchanged.
func (r *PrefixResolver) Resolve(name string) string {
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		return name
	}
	r.mu.RLock()
	expansion, known := r.prefixes[prefix]
	r.mu.RUnlock()
	if !known || expansion == "" {
		return name
	}
	return expansion + local
}

// Inverse returns a Compactor over the current prefix table.
func (r *PrefixResolver) Inverse() Resolver {
	return NewCompactor(r.Prefixes())
}

// Prefixes returns a copy of the prefix table.
func (r *PrefixResolver) Prefixes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.prefixes)
}

// Set registers the namespace expansion for prefix.
func (r *PrefixResolver) Set(prefix, expansion string) *PrefixResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = expansion
	return r
}

// WithPrefixes registers every entry of prefixes.
func (r *PrefixResolver) WithPrefixes(prefixes map[string]string) *PrefixResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.Copy(r.prefixes, prefixes)
	return r
}

// Unset removes prefix.
func (r *PrefixResolver) Unset(prefix string) *PrefixResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.prefixes, prefix)
	return r
}

// Clear removes all prefixes.
func (r *PrefixResolver) Clear() *PrefixResolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.prefixes)
	return r
}

// =============================================================================
// Composition
// =============================================================================

type chain struct {
	first, second Resolver
}

// Chain feeds the result of first into second.
func Chain(first, second Resolver) Resolver {
	return chain{first: first, second: second}
}

func (c chain) Resolve(name string) string {
	return c.second.Resolve(c.first.Resolve(name))
}

func (c chain) Inverse() Resolver {
	return chain{first: c.second.Inverse(), second: c.first.Inverse()}
}

// DefaultResolver looks up aliases first and then expands prefixes.
type DefaultResolver struct {
	Aliases  *AliasResolver
	Prefixes *PrefixResolver
}

// Default returns a resolver with no aliases and the standard prefixes.
func Default() *DefaultResolver {
	return &DefaultResolver{
		Aliases:  NewAliasResolver(nil),
		Prefixes: NewPrefixResolver(StandardPrefixes),
	}
}

// Resolve applies the alias table, then the prefix table.
func (d *DefaultResolver) Resolve(name string) string {
	return d.Prefixes.Resolve(d.Aliases.Resolve(name))
}

// Inverse compacts namespaces first, then maps aliases back.
func (d *DefaultResolver) Inverse() Resolver {
	return Chain(d.Prefixes.Inverse(), d.Aliases.Inverse())
}
