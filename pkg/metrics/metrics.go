// Package metrics provides Prometheus metrics for the responder: webhook
// command traffic, pipeline outcomes and session/queue gauges.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lewisedginton/afk_responder/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "afk_responder"

// Reply outcome label values.
const (
	OutcomeKeyword   = "keyword"
	OutcomeGenerated = "generated"
	OutcomeFallback  = "fallback"
)

// Metrics holds the registry and the collectors used across the responder.
type Metrics struct {
	reg *prometheus.Registry

	UpdatesReceived     prometheus.Counter
	UpdatesDeduplicated prometheus.Counter
	RepliesSent         *prometheus.CounterVec
	GenerationFailures  prometheus.Counter
	DeliveryFailures    prometheus.Counter
	QueueDepth          prometheus.Gauge
	ConnectedSessions   prometheus.Gauge

	server *http.Server
	log    logger.Logger
}

// NewMetrics creates a Metrics instance with all collectors registered.
func NewMetrics(l logger.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}

	m.UpdatesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "updates_received_total",
		Help:      "Webhook updates received",
	})
	m.UpdatesDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "updates_deduplicated_total",
		Help:      "Webhook updates dropped as duplicates",
	})
	m.RepliesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "replies_sent_total",
		Help:      "Automated replies sent, by outcome",
	}, []string{"outcome"})
	m.GenerationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "generation_failures_total",
		Help:      "Generation backend calls that failed",
	})
	m.DeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "delivery_failures_total",
		Help:      "Outbound message sends that failed",
	})
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "queue_depth",
		Help:      "Pending pipeline items across all sessions",
	})
	m.ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "connected_sessions",
		Help:      "Sessions currently in the CONNECTED state",
	})

	m.reg.MustRegister(
		m.UpdatesReceived,
		m.UpdatesDeduplicated,
		m.RepliesSent,
		m.GenerationFailures,
		m.DeliveryFailures,
		m.QueueDepth,
		m.ConnectedSessions,
	)

	return m
}

// Listen starts the metrics HTTP server on the specified port. It returns
// immediately; the server runs until Shutdown is called.
func (m *Metrics) Listen(port int) {
	m.log.Info("Starting metrics listener", logger.IntField("port", port))

	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Error("Metrics listener failed", logger.ErrorField(err))
		}
	}()
}

// Shutdown stops the metrics HTTP server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.log.Info("Stopping metrics listener")
	return m.server.Shutdown(ctx)
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
