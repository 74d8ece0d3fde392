// Package metrics exposes engine counters over Prometheus. The endpoint is
// optional; an empty listen address disables it entirely.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Observations      *prometheus.CounterVec
	Events            prometheus.Counter
	Alerts            *prometheus.CounterVec
	RuleErrors        prometheus.Counter
	FeedDrops         prometheus.Counter
	CollectorRestarts *prometheus.CounterVec
	StoreFailures     prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Observations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_observations_total",
			Help: "Raw observations received from collectors.",
		}, []string{"kind"}),
		Events: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_events_total",
			Help: "Normalized events appended to the store.",
		}),
		Alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_alerts_total",
			Help: "Alerts emitted by the rule engine.",
		}, []string{"severity"}),
		RuleErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_rule_errors_total",
			Help: "Rule evaluations that faulted and were isolated.",
		}),
		FeedDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_feed_drops_total",
			Help: "Live feed items dropped for slow subscribers.",
		}),
		CollectorRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_collector_restarts_total",
			Help: "Collector restarts after an unavailable facility.",
		}, []string{"collector"}),
		StoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_store_failures_total",
			Help: "Store append failures; any occurrence is fatal.",
		}),
	}
}

// Serve blocks until ctx is cancelled. An empty addr returns immediately.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
