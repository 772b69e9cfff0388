package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.lumeweb.com/blob-janitor/internal/config"
	"go.lumeweb.com/blob-janitor/internal/sweep"
	"go.uber.org/zap"
)

type Collector struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	registry *prometheus.Registry
	metrics  struct {
		// Sweep Metrics
		sweepsTotal        *prometheus.CounterVec
		objectsTotal       *prometheus.CounterVec
		sweepDuration      *prometheus.HistogramVec
		lastSweepTimestamp prometheus.Gauge
		lastSweepDeleted   prometheus.Gauge

		// Process Metrics
		processUptime prometheus.Gauge
	}
	mu        sync.Mutex
	stop      chan struct{}
	startTime time.Time
}

var _ sweep.Recorder = (*Collector)(nil)

func NewCollector(cfg *config.Config, logger *zap.Logger, registry *prometheus.Registry) (*Collector, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	collector := &Collector{
		config:    cfg,
		logger:    logger,
		registry:  registry,
		stop:      make(chan struct{}),
		startTime: time.Now(),
	}

	collector.initializeMetrics()

	// Only register runtime collectors when the endpoint is served
	if cfg.Monitoring.MetricsPort != 0 {
		if err := collector.Register(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		); err != nil {
			return nil, err
		}
	}

	if err := collector.Register(
		collector.metrics.sweepsTotal,
		collector.metrics.objectsTotal,
		collector.metrics.sweepDuration,
		collector.metrics.lastSweepTimestamp,
		collector.metrics.lastSweepDeleted,
		collector.metrics.processUptime,
	); err != nil {
		return nil, err
	}

	return collector, nil
}

// Register adds collectors owned by other components, such as the storage client.
func (c *Collector) Register(cs ...prometheus.Collector) error {
	for _, metric := range cs {
		if err := c.registry.Register(metric); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

func (c *Collector) initializeMetrics() {
	c.metrics.sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_janitor_sweeps_total",
			Help: "Total number of bucket sweeps by outcome",
		},
		[]string{"bucket", "outcome"},
	)

	c.metrics.objectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_janitor_objects_total",
			Help: "Objects seen by bucket sweeps, by decision",
		},
		[]string{"bucket", "decision"},
	)

	c.metrics.sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blob_janitor_sweep_duration_seconds",
			Help:    "Bucket sweep duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"bucket"},
	)

	c.metrics.lastSweepTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "blob_janitor_last_sweep_timestamp_seconds",
		Help: "Unix time the last sweep finished",
	})

	c.metrics.lastSweepDeleted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "blob_janitor_last_sweep_deleted_objects",
		Help: "Objects deleted by the last sweep",
	})

	c.metrics.processUptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "blob_janitor_uptime_seconds",
		Help: "Process uptime in seconds",
	})
}

// ObserveBucket records the outcome of one bucket pass.
func (c *Collector) ObserveBucket(result sweep.BucketSweepResult) {
	c.metrics.sweepsTotal.WithLabelValues(result.Bucket, result.Outcome()).Inc()
	c.metrics.sweepDuration.WithLabelValues(result.Bucket).Observe(result.Duration.Seconds())

	objects := c.metrics.objectsTotal
	objects.WithLabelValues(result.Bucket, sweep.DecisionReferenced).Add(float64(result.Referenced))
	objects.WithLabelValues(result.Bucket, sweep.DecisionYoung).Add(float64(result.SkippedYoung))
	objects.WithLabelValues(result.Bucket, sweep.DecisionUnparseable).Add(float64(result.SkippedUnparseable))
	objects.WithLabelValues(result.Bucket, sweep.DecisionCandidate).Add(float64(len(result.Candidates)))
	objects.WithLabelValues(result.Bucket, sweep.DecisionDeleted).Add(float64(result.Deleted))
}

// ObserveReport records a finished sweep.
func (c *Collector) ObserveReport(report *sweep.Report) {
	c.metrics.lastSweepTimestamp.Set(float64(report.Finished.Unix()))
	c.metrics.lastSweepDeleted.Set(float64(report.Deleted()))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// collectMetrics updates process metrics until the collector stops
func (c *Collector) collectMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	c.metrics.processUptime.Set(time.Since(c.startTime).Seconds())
	for {
		select {
		case <-ticker.C:
			c.metrics.processUptime.Set(time.Since(c.startTime).Seconds())
		case <-c.stop:
			return
		}
	}
}

// Start begins collecting metrics and starts the HTTP server. A zero port disables the server.
func (c *Collector) Start(ctx context.Context) error {
	if c.config.Monitoring.MetricsPort == 0 {
		c.logger.Info("Metrics endpoint disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.config.Monitoring.MetricsPort))
	if err != nil {
		return fmt.Errorf("failed to listen on metrics port: %w", err)
	}

	c.mu.Lock()
	c.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go c.collectMetrics()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	c.logger.Info("Metrics server started", zap.Int("port", c.config.Monitoring.MetricsPort))
	return nil
}

func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.server == nil {
		return nil
	}

	close(c.stop)
	if err := c.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	c.server = nil

	c.logger.Info("Metrics collector stopped")
	return nil
}
