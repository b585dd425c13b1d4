package metrics

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
)

type Collector struct {
	registry     *prometheus.Registry
	operations   *prometheus.CounterVec
	lockTimeouts prometheus.Counter
	logger       *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		operations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by type and outcome",
		}, []string{"operation", "outcome"}),
		lockTimeouts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_lock_timeouts_total",
			Help: "Account lock acquisitions that timed out",
		}),
		logger: logger,
	}
}

// RecordOperation counts one public ledger operation. Lock timeouts are
// additionally counted on their own series since they are the retriable class.
func (c *Collector) RecordOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		if errors.Is(err, domain.ErrLockTimeout) {
			c.lockTimeouts.Inc()
		}
	}
	c.operations.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer exposes /metrics on addr in a background goroutine.
func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		c.logger.Info("metrics server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server failed", "error", err)
		}
	}()

	return server
}
