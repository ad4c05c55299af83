package config

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kittclouds/subjects/internal/sparql"
	"github.com/kittclouds/subjects/internal/store"
	"github.com/kittclouds/subjects/pkg/graph"
	"github.com/kittclouds/subjects/pkg/naming"
)

// OpenStore opens the configured backend, instrumented with metrics
// registered on reg.
func (c *Config) OpenStore(log *zap.Logger, reg prometheus.Registerer) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch c.Store {
	case StoreMemory:
		s = store.NewMemStore().WithLogger(log)
	case StoreSQLite:
		dsn := c.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		var db *store.SQLiteStore
		if db, err = store.NewSQLiteStoreWithDSN(dsn); err == nil {
			s = db.WithLogger(log)
		}
	case StoreBadger:
		var db *store.BadgerStore
		if db, err = store.NewBadgerStore(c.DSN); err == nil {
			s = db.WithLogger(log)
		}
	case StoreSPARQL:
		opts := []sparql.Option{sparql.WithLogger(log)}
		if c.UpdateEndpoint != "" {
			opts = append(opts, sparql.WithUpdateEndpoint(c.UpdateEndpoint))
		}
		if c.Graph != "" {
			opts = append(opts, sparql.WithGraph(c.Graph))
		}
		if c.User != "" {
			opts = append(opts, sparql.WithBasicAuth(c.User, c.Password))
		}
		s = sparql.NewClient(c.Endpoint, opts...)
	default:
		return nil, fmt.Errorf("unknown store %q", c.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Store, err)
	}
	return store.Instrument(s, c.Store, store.NewMetrics(reg)), nil
}

// NewGraph builds a graph over s with the configured language and resolver.
func (c *Config) NewGraph(s store.Store, r naming.Resolver, log *zap.Logger) (*graph.Graph, error) {
	return graph.New(graph.Config{
		Store:           s,
		Resolver:        r,
		DefaultLanguage: c.Language,
		Logger:          log,
		Name:            c.Store,
	})
}
