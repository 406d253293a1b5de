package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robert-malhotra/stac-composite/internal/backend"
	"github.com/robert-malhotra/stac-composite/internal/composite"
)

type instrumentedService struct {
	inner backend.CollectionService
	m     *Metrics
}

// Instrument wraps a collection service so every call is counted and timed.
func (m *Metrics) Instrument(svc backend.CollectionService) backend.CollectionService {
	return &instrumentedService{inner: svc, m: m}
}

func (s *instrumentedService) Name() string {
	return s.inner.Name()
}

func (s *instrumentedService) Fetch(ctx context.Context, params backend.FetchParams) (*composite.Collection, error) {
	start := time.Now()
	coll, err := s.inner.Fetch(ctx, params)
	s.m.observeCall(s.inner.Name(), "fetch", start, err)
	return coll, err
}

func (s *instrumentedService) ReduceMean(ctx context.Context, records []composite.Record) (composite.Record, error) {
	start := time.Now()
	rec, err := s.inner.ReduceMean(ctx, records)
	s.m.observeCall(s.inner.Name(), "reduce_mean", start, err)
	return rec, err
}

func (s *instrumentedService) AggregateScalar(ctx context.Context, records []composite.Record, field string) ([]float64, error) {
	start := time.Now()
	values, err := s.inner.AggregateScalar(ctx, records, field)
	s.m.observeCall(s.inner.Name(), "aggregate", start, err)
	return values, err
}

// CacheStats is implemented by backend.CachedService.
type CacheStats interface {
	Hits() int64
	Misses() int64
	Len() int
}

// RegisterCache exports fetch cache counters read on scrape.
func (m *Metrics) RegisterCache(stats CacheStats) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch_cache",
			Name:      "hits_total",
			Help:      "Total number of fetch cache hits",
		}, func() float64 { return float64(stats.Hits()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch_cache",
			Name:      "misses_total",
			Help:      "Total number of fetch cache misses",
		}, func() float64 { return float64(stats.Misses()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fetch_cache",
			Name:      "entries",
			Help:      "Number of cached fetch results",
		}, func() float64 { return float64(stats.Len()) }),
	)
}
