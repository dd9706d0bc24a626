// Package metrics счетчики Prometheus для сессий очистки.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nrrelic/internal/cleaner"
	"nrrelic/internal/logger"
)

// CleanerMetrics метрики оркестратора. Реализует cleaner.Observer.
type CleanerMetrics struct {
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	Items            *prometheus.CounterVec
	Decisions        *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	Pending          prometheus.Gauge
	Running          prometheus.Gauge
	ItemDuration     prometheus.Histogram
}

// NewCleanerMetrics создает и регистрирует метрики в registry
func NewCleanerMetrics(registry *prometheus.Registry) (*CleanerMetrics, error) {
	m := &CleanerMetrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nrrelic_sessions_started_total",
			Help: "Total number of cleaning sessions started",
		}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nrrelic_sessions_finished_total",
			Help: "Total number of cleaning sessions finished by outcome",
		}, []string{"outcome"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nrrelic_items_total",
			Help: "Items inspected by detected state",
		}, []string{"state"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nrrelic_item_actions_total",
			Help: "Actions taken on items",
		}, []string{"action"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nrrelic_item_failures_total",
			Help: "Per-item failures by kind",
		}, []string{"kind"}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nrrelic_pending_sell_items",
			Help: "Items marked for sale and not yet confirmed at session end",
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nrrelic_session_running",
			Help: "1 while a cleaning session is running",
		}),
		ItemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nrrelic_item_duration_seconds",
			Help:    "Time spent on one item",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register cleaner metrics: %w", err)
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *CleanerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SessionsStarted.Describe(ch)
	m.SessionsFinished.Describe(ch)
	m.Items.Describe(ch)
	m.Decisions.Describe(ch)
	m.Failures.Describe(ch)
	m.Pending.Describe(ch)
	m.Running.Describe(ch)
	m.ItemDuration.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *CleanerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SessionsStarted.Collect(ch)
	m.SessionsFinished.Collect(ch)
	m.Items.Collect(ch)
	m.Decisions.Collect(ch)
	m.Failures.Collect(ch)
	m.Pending.Collect(ch)
	m.Running.Collect(ch)
	m.ItemDuration.Collect(ch)
}

func (m *CleanerMetrics) SessionStarted(cleaner.SessionInfo) {
	m.SessionsStarted.Inc()
	m.Running.Set(1)
	m.Pending.Set(0)
}

func (m *CleanerMetrics) ItemProcessed(ev cleaner.ItemEvent) {
	m.Items.WithLabelValues(ev.State.String()).Inc()
	if ev.Action != "" {
		m.Decisions.WithLabelValues(string(ev.Action)).Inc()
	}
	if ev.Kind != cleaner.KindNone {
		m.Failures.WithLabelValues(string(ev.Kind)).Inc()
	}
	m.ItemDuration.Observe(ev.Duration.Seconds())
}

func (m *CleanerMetrics) SessionFinished(s cleaner.Summary) {
	m.Running.Set(0)
	m.Pending.Set(float64(s.Stats.Pending))
	m.SessionsFinished.WithLabelValues(Outcome(s)).Inc()
}

// Outcome метка итога сессии
func Outcome(s cleaner.Summary) string {
	switch {
	case s.Err != nil:
		return "error"
	case s.Exhausted:
		return "completed"
	default:
		return "stopped"
	}
}

// Serve отдает /metrics на addr до отмены ctx
func Serve(ctx context.Context, addr string, registry *prometheus.Registry, l *logger.LoggerManager) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	l.Info("📈 Метрики доступны на http://%s/metrics", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("ошибка сервера метрик: %v", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера метрик: %v", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
