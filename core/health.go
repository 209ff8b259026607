package core

import (
	"context"
	"errors"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthSnapshot captures a point-in-time view of a store's operational
// state
type HealthSnapshot struct {
	HexadCount    int     `json:"hexad_count"`
	WalSequence   uint64  `json:"wal_sequence"`
	DriftScore    float64 `json:"drift_score"`
	DriftStatus   string  `json:"drift_status"`
	MemAlloc      uint64  `json:"mem_alloc"`
	NumGoroutines int     `json:"goroutines"`
	Timestamp     int64   `json:"timestamp"`
}

// HealthLogger provides structured logging and Prometheus metrics over a
// HexadStore.
type HealthLogger struct {
	store *HexadStore
	wal   *Wal
	drift *DriftDetector

	log  *logrus.Logger
	file *os.File
	mu   sync.Mutex

	registry        *prometheus.Registry
	hexadCountGauge prometheus.Gauge
	walSeqGauge     prometheus.Gauge
	driftScoreGauge prometheus.Gauge
	memAllocGauge   prometheus.Gauge
	goroutinesGauge prometheus.Gauge
	errorCounter    prometheus.Counter
}

// NewHealthLogger configures a HealthLogger writing JSON logs to path. If
// path is empty, logs are written to stderr.
func NewHealthLogger(store *HexadStore, wal *Wal, drift *DriftDetector, path string) (*HealthLogger, error) {
	lg := logrus.New()
	lg.SetFormatter(&logrus.JSONFormatter{})

	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		lg.SetOutput(f)
	}

	reg := prometheus.NewRegistry()
	h := &HealthLogger{store: store, wal: wal, drift: drift, log: lg, file: f, registry: reg}

	h.hexadCountGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verisimdb_hexad_count",
		Help: "Number of hexads currently registered in the store",
	})
	h.walSeqGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verisimdb_wal_sequence",
		Help: "Next write-ahead log sequence number",
	})
	h.driftScoreGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verisimdb_drift_score",
		Help: "Worst current drift score across all modality pairs",
	})
	h.memAllocGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verisimdb_mem_alloc_bytes",
		Help: "Current memory allocation in bytes",
	})
	h.goroutinesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verisimdb_goroutines",
		Help: "Number of running goroutines",
	})
	h.errorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verisimdb_log_errors_total",
		Help: "Total number of error events logged",
	})

	reg.MustRegister(
		h.hexadCountGauge,
		h.walSeqGauge,
		h.driftScoreGauge,
		h.memAllocGauge,
		h.goroutinesGauge,
		h.errorCounter,
	)

	return h, nil
}

// Close releases the underlying log file, if one is open.
func (h *HealthLogger) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	return h.file.Close()
}

// LogEvent records an arbitrary message at the given level.
func (h *HealthLogger) LogEvent(level logrus.Level, msg string) {
	h.mu.Lock()
	if level >= logrus.ErrorLevel {
		h.errorCounter.Inc()
	}
	h.log.Log(level, msg)
	h.mu.Unlock()
}

// Snapshot gathers current metrics from the store, WAL, drift detector
// and runtime.
func (h *HealthLogger) Snapshot() HealthSnapshot {
	s := HealthSnapshot{Timestamp: time.Now().Unix(), NumGoroutines: runtime.NumGoroutine()}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.MemAlloc = mem.Alloc

	if h.store != nil {
		s.HexadCount = h.store.Count()
	}
	if h.wal != nil {
		s.WalSequence = h.wal.CurrentSequence()
	}
	if h.drift != nil {
		s.DriftScore = h.drift.OverallScore()
		s.DriftStatus = h.drift.HealthStatus()
	} else {
		s.DriftStatus = "healthy"
	}
	return s
}

// RecordMetrics captures a snapshot and updates the Prometheus gauges.
func (h *HealthLogger) RecordMetrics() HealthSnapshot {
	s := h.Snapshot()
	h.hexadCountGauge.Set(float64(s.HexadCount))
	h.walSeqGauge.Set(float64(s.WalSequence))
	h.driftScoreGauge.Set(s.DriftScore)
	h.memAllocGauge.Set(float64(s.MemAlloc))
	h.goroutinesGauge.Set(float64(s.NumGoroutines))
	h.LogEvent(logrus.InfoLevel, "metrics recorded")
	return s
}

// RunMetricsCollector periodically records metrics until ctx is canceled.
func (h *HealthLogger) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.RecordMetrics()
		case <-ctx.Done():
			return
		}
	}
}

// MetricsHandler exposes the Prometheus registry as an http.Handler, for
// mounting under cmd/server's router.
func (h *HealthLogger) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer exposes a standalone Prometheus endpoint, for callers
// that do not mount MetricsHandler into an existing router.
func (h *HealthLogger) StartMetricsServer(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.LogEvent(logrus.ErrorLevel, err.Error())
		}
	}()
	return srv, nil
}
