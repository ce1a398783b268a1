package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the logger's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SamplesTotal       *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	FlightsTotal       *prometheus.CounterVec
	TouchAndGosTotal   prometheus.Counter
	DiscontinuityTotal prometheus.Counter
	ReconnectsTotal    prometheus.Counter
	Phase              prometheus.Gauge
	Connected          prometheus.Gauge
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SamplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simlogbook_samples_total",
				Help: "Telemetry samples seen by the tracker, by result",
			},
			[]string{"result"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simlogbook_phase_transitions_total",
				Help: "Flight phase transitions by destination phase",
			},
			[]string{"to"},
		),
		FlightsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simlogbook_flights_total",
				Help: "Flights ended, by outcome (logged, incomplete, discarded)",
			},
			[]string{"outcome"},
		),
		TouchAndGosTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simlogbook_touch_and_gos_total",
			Help: "Touch-and-go events detected",
		}),
		DiscontinuityTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simlogbook_discontinuities_total",
			Help: "Simulator pauses, slews and teleports detected",
		}),
		ReconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "simlogbook_reconnects_total",
			Help: "Simulator reconnect attempts",
		}),
		Phase: factory.NewGauge(prometheus.GaugeOpts{
			Name: "simlogbook_phase",
			Help: "Current flight phase (0=Preflight ... 7=Shutdown)",
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "simlogbook_sim_connected",
			Help: "1 while a simulator connection is up",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	}
}
