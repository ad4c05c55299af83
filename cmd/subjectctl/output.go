package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/naming"
	"github.com/kittclouds/subjects/pkg/pattern"
)

func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// present renders values the way match results do: references by compacted
// name under "@id", language strings with their tag, other literals as Go
// values.
func present(values []identity.Value, inverse naming.Resolver) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch {
		case v.IsRef():
			out[i] = map[string]any{pattern.KeyID: inverse.Resolve(v.ID().String())}
		case v.Literal().Language != "":
			out[i] = map[string]any{"@value": v.Literal().Lexical, "@language": v.Literal().Language}
		default:
			out[i] = v.Native()
		}
	}
	return out
}
