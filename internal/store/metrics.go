package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kittclouds/subjects/pkg/change"
	"github.com/kittclouds/subjects/pkg/identity"
	"github.com/kittclouds/subjects/pkg/pattern"
	"github.com/kittclouds/subjects/pkg/term"
)

// Metrics counts store operations.
type Metrics struct {
	Operations *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
	Edits      *prometheus.CounterVec
}

// NewMetrics registers the store metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subjects_store_operations_total",
			Help: "Total number of triple store operations",
		}, []string{"backend", "op", "status"}),

		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subjects_store_operation_seconds",
			Help:    "Triple store operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "op"}),

		Edits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "subjects_store_edits_total",
			Help: "Total number of statement edits sent to the store",
		}, []string{"backend", "kind"}),
	}
}

// Instrumented records Metrics around another Store.
type Instrumented struct {
	Store
	backend string
	metrics *Metrics
}

// Instrument wraps s, labelling its metrics with backend.
func Instrument(s Store, backend string, m *Metrics) *Instrumented {
	return &Instrumented{Store: s, backend: backend, metrics: m}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.metrics.Operations.WithLabelValues(i.backend, op, status).Inc()
	i.metrics.Latency.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *Instrumented) Fetch(ctx context.Context, ids ...identity.ID) ([]term.Quad, error) {
	start := time.Now()
	quads, err := i.Store.Fetch(ctx, ids...)
	i.observe("fetch", start, err)
	return quads, err
}

func (i *Instrumented) Modify(ctx context.Context, edits []change.StoreEdit) error {
	start := time.Now()
	err := i.Store.Modify(ctx, edits)
	i.observe("modify", start, err)
	if err == nil {
		for _, e := range edits {
			i.metrics.Edits.WithLabelValues(i.backend, e.Kind.String()).Inc()
		}
	}
	return err
}

func (i *Instrumented) Select(ctx context.Context, q *pattern.Query) ([]pattern.Row, error) {
	start := time.Now()
	rows, err := i.Store.Select(ctx, q)
	i.observe("select", start, err)
	return rows, err
}
