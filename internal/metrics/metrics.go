// Package metrics exposes Prometheus instrumentation for the canto daemon.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbright/canto/internal/fsm"
	"github.com/rbright/canto/internal/recognizer"
)

const namespace = "canto"

var sessionStates = []fsm.State{
	fsm.StateIdle,
	fsm.StateStarting,
	fsm.StateListening,
	fsm.StateBackoff,
	fsm.StateFailed,
}

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	Attempts          prometheus.Counter
	RestartsScheduled *prometheus.CounterVec
	RestartDelay      prometheus.Histogram
	RecognizerErrors  *prometheus.CounterVec
	Results           *prometheus.CounterVec
	SessionState      *prometheus.GaugeVec
	SinkDropped       *prometheus.CounterVec
	OfflineLatency    *prometheus.HistogramVec
	OfflineErrors     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total recognition attempts issued",
		}),
		RestartsScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_scheduled_total",
			Help:      "Total delayed restarts scheduled, by reason",
		}, []string{"reason"}),
		RestartDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restart_delay_seconds",
			Help:      "Delay before scheduled restarts",
			Buckets:   []float64{0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
		}),
		RecognizerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_errors_total",
			Help:      "Total recognizer errors, by class",
		}, []string{"class"}),
		Results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Total transcript results forwarded, by kind",
		}, []string{"kind"}),
		SessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (1 for the active state)",
		}, []string{"state"}),
		SinkDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_dropped_total",
			Help:      "Events dropped by sinks, by sink",
		}, []string{"sink"}),
		OfflineLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "offline_op_seconds",
			Help:      "Offline context operation latency, by operation",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"op"}),
		OfflineErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_errors_total",
			Help:      "Offline context failures, by error kind",
		}, []string{"kind"}),
	}
	m.StateChanged(fsm.StateIdle)
	return m
}

func (m *Metrics) Attempt() { m.Attempts.Inc() }

func (m *Metrics) RestartScheduled(reason string, delay time.Duration) {
	m.RestartsScheduled.WithLabelValues(reason).Inc()
	m.RestartDelay.Observe(delay.Seconds())
}

func (m *Metrics) RecognizerError(class recognizer.Class) {
	m.RecognizerErrors.WithLabelValues(string(class)).Inc()
}

func (m *Metrics) Result(final bool) {
	kind := "partial"
	if final {
		kind = "final"
	}
	m.Results.WithLabelValues(kind).Inc()
}

func (m *Metrics) StateChanged(state fsm.State) {
	for _, s := range sessionStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.SessionState.WithLabelValues(string(s)).Set(value)
	}
}

func (m *Metrics) Dropped(sink string) {
	m.SinkDropped.WithLabelValues(sink).Inc()
}

// OfflineOp records one offline operation. kind is empty on success.
func (m *Metrics) OfflineOp(op string, elapsed time.Duration, kind string) {
	m.OfflineLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	if kind != "" {
		m.OfflineErrors.WithLabelValues(kind).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
