package main

import (
	"fmt"
	"strings"

	"github.com/hack-pad/hackpadfs"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/graph"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

func newGetCmd(a *app) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "get <subject>",
		Short: "Print the properties of a subject",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s := a.graph.SubjectIRI(args[0])
			if err := s.Use(cmd.Context()); err != nil {
				return err
			}
			names, err := s.PropertyNames()
			if err != nil {
				return err
			}
			var opts []graph.ReadOption
			if lang != "" {
				opts = append(opts, graph.WithLanguage(lang))
			}

			inverse := a.resolver.Inverse()
			doc := map[string]any{pattern.KeyID: inverse.Resolve(s.ID().String())}
			for _, name := range names {
				values, err := s.GetAll(name, opts...)
				if err != nil {
					return err
				}
				if len(values) > 0 {
					doc[inverse.Resolve(name)] = present(values, inverse)
				}
			}
			return writeYAML(cmd, doc)
		}),
	}
	cmd.Flags().StringVar(&lang, "lang", "", `only show strings in this language ("en?" falls back to all)`)
	return cmd
}

func newWriteCmd(a *app, verb, short string) *cobra.Command {
	var (
		ref      bool
		lang     string
		datatype string
		annotate []string
	)
	use := verb + " <subject> <property> <value>..."
	nargs := cobra.MinimumNArgs(3)
	if verb == "del" {
		use = verb + " <subject> <property> [value]..."
		nargs = cobra.MinimumNArgs(2)
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  nargs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s := a.graph.SubjectIRI(args[0])
			if err := s.Use(cmd.Context()); err != nil {
				return err
			}
			property := args[1]
			values := make([]identity.Value, len(args)-2)
			for i, raw := range args[2:] {
				values[i] = parseValue(raw, ref, lang, a.resolver.Resolve(datatype))
			}

			var err error
			switch {
			case verb == "set":
				err = s.Set(property, values...)
			case verb == "del":
				err = s.Delete(property, values...)
			case len(annotate) > 0:
				if len(values) != 1 {
					return fmt.Errorf("--annotate applies to exactly one value")
				}
				var ann change.Annotation
				if ann, err = parseAnnotation(annotate, a); err == nil {
					err = s.AddAnnotated(property, values[0], ann)
				}
			default:
				err = s.SetMore(property, values...)
			}
			if err != nil {
				return err
			}

			pending := len(s.Pending())
			if err := s.Commit(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d change(s) committed\n", args[0], pending)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&ref, "ref", false, "treat values as subject names")
	cmd.Flags().StringVar(&lang, "lang", "", "language tag for string values")
	cmd.Flags().StringVar(&datatype, "datatype", "", "datatype of the values, e.g. xsd:integer")
	if verb == "add" {
		cmd.Flags().StringArrayVar(&annotate, "annotate", nil, "property=value annotation on the added value")
	}
	return cmd
}

func newMatchCmd(a *app) *cobra.Command {
	var showQuery bool
	cmd := &cobra.Command{
		Use:   "match <template.yaml>",
		Short: "Find the subjects matching a template",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			fs, path, err := hostFile(args[0])
			if err != nil {
				return err
			}
			content, err := hackpadfs.ReadFile(fs, path)
			if err != nil {
				return err
			}
			var tmpl pattern.Template
			if err := yaml.Unmarshal(content, &tmpl); err != nil {
				return fmt.Errorf("parse template %s: %w", args[0], err)
			}

			if showQuery {
				q, err := a.graph.Compile(tmpl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), q.SPARQL())
				return nil
			}
			matches, err := a.graph.Match(cmd.Context(), tmpl)
			if err != nil {
				return err
			}
			if matches == nil {
				matches = []pattern.Match{}
			}
			return writeYAML(cmd, matches)
		}),
	}
	cmd.Flags().BoolVar(&showQuery, "sparql", false, "print the compiled query instead of running it")
	return cmd
}

// parseValue reads a command line value as a reference, a language string,
// a typed literal or a plain string.
func parseValue(raw string, ref bool, lang, datatype string) identity.Value {
	switch {
	case ref:
		return identity.IRI(raw)
	case lang != "":
		return identity.LangString(raw, lang)
	case datatype != "":
		return identity.Lit(term.Typed(raw, term.IRI(datatype)))
	}
	return identity.String(raw)
}

func parseAnnotation(entries []string, a *app) (change.Annotation, error) {
	ann := make(change.Annotation, 0, len(entries))
	for _, entry := range entries {
		property, value, ok := strings.Cut(entry, "=")
		if !ok || property == "" {
			return nil, fmt.Errorf("annotation %q is not property=value", entry)
		}
		ann = append(ann, change.AnnotationEntry{
			Property: a.resolver.Resolve(property),
			Value:    identity.String(value),
		})
	}
	return ann, nil
}
