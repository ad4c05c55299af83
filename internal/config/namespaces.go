package config

import (
	"fmt"

	"github.com/hack-pad/hackpadfs"
	"gopkg.in/yaml.v3"

	"github.com/kittclouds/subjects/pkg/naming"
)

// Namespaces is the YAML namespaces file:
//
//	prefixes:
//	  ex: http://example.org/
//	aliases:
//	  name: foaf:name
type Namespaces struct {
	Prefixes map[string]string `yaml:"prefixes"`
	Aliases  map[string]string `yaml:"aliases"`
}

// LoadNamespaces reads a namespaces file from fs.
func LoadNamespaces(fs hackpadfs.FS, path string) (*Namespaces, error) {
	content, err := hackpadfs.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read namespaces %s: %w", path, err)
	}
	var ns Namespaces
	if err := yaml.Unmarshal(content, &ns); err != nil {
		return nil, fmt.Errorf("parse namespaces %s: %w", path, err)
	}
	return &ns, nil
}

// Resolver layers the file's entries over the standard prefixes. A nil
// receiver gives the default resolver.
func (n *Namespaces) Resolver() *naming.DefaultResolver {
	r := naming.Default()
	if n == nil {
		return r
	}
	r.Prefixes.WithPrefixes(n.Prefixes)
	r.Aliases.WithAliases(n.Aliases)
	return r
}
