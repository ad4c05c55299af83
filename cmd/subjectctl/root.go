package main

import (
	"path/filepath"
	"strings"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/subjects/internal/config"
	"github.com/kittclouds/subjects/internal/store"
	"github.com/kittclouds/subjects/pkg/graph"
	"github.com/kittclouds/subjects/pkg/naming"
)

// app is the state shared by every command of one invocation.
type app struct {
	log      *zap.Logger
	store    store.Store
	graph    *graph.Graph
	resolver naming.Resolver
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "subjectctl",
		Short:         "Read, edit and query subjects in a triple store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
	}
	root.AddCommand(
		newGetCmd(a),
		newWriteCmd(a, "set", "Replace the values of a property"),
		newWriteCmd(a, "add", "Add values to a property"),
		newWriteCmd(a, "del", "Delete values of a property, or all of them"),
		newMatchCmd(a),
	)
	return root
}

func (a *app) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.log, err = config.NewLogger(cfg.LogLevel); err != nil {
		return err
	}

	var ns *config.Namespaces
	if cfg.Namespaces != "" {
		fs, path, err := hostFile(cfg.Namespaces)
		if err != nil {
			return err
		}
		if ns, err = config.LoadNamespaces(fs, path); err != nil {
			return err
		}
	}
	a.resolver = ns.Resolver()

	if a.store, err = cfg.OpenStore(a.log, prometheus.NewRegistry()); err != nil {
		return err
	}
	if a.graph, err = cfg.NewGraph(a.store, a.resolver, a.log); err != nil {
		a.close()
		return err
	}
	return nil
}

// run wraps a command body so the store is closed whatever the outcome.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing store", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// hostFile maps a host path onto the root of the host file system.
func hostFile(path string) (hackpadfs.FS, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	return osfs.NewFS(), strings.TrimPrefix(filepath.ToSlash(abs), "/"), nil
}
