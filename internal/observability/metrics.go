package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TCPConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiscam_tcp_connections_total",
		Help: "Accepted decoder connections",
	})
	ReportsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiscam_reports_received_total",
		Help: "Report lines received from decoders",
	})
	ReportsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscam_reports_applied_total",
		Help: "Reports applied to the vessel store by kind",
	}, []string{"kind"})
	ReportsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscam_reports_rejected_total",
		Help: "Report lines dropped by reason",
	}, []string{"reason"})
	ApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aiscam_apply_latency_seconds",
		Help:    "Decode and apply latency per report, subscribers included",
		Buckets: prometheus.DefBuckets,
	})
	VesselsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aiscam_vessels_tracked",
		Help: "Vessels held in the store",
	})
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscam_cache_errors_total",
		Help: "Static attribute cache failures by operation",
	}, []string{"op"})
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscam_predictions_total",
		Help: "Scheduling decisions by outcome",
	}, []string{"outcome"})
	TimersArmed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aiscam_timers_armed",
		Help: "Capture timers currently armed",
	})
	CapturesFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiscam_captures_fired_total",
		Help: "Capture timers that fired",
	})
	CapturesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiscam_captures_dropped_total",
		Help: "Capture requests dropped on a full queue",
	})
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscam_sink_errors_total",
		Help: "Capture sink failures by sink",
	}, []string{"sink"})
	SinkLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aiscam_sink_latency_seconds",
		Help:    "Capture delivery latency by sink",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
	LinkSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiscam_link_send_errors_total",
		Help: "Failed or dropped writes to the socket proxy",
	})
	InfluxWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aiscam_influx_write_errors_total",
		Help: "Asynchronous influx write failures",
	})
)

func ObserveApplyLatency(start time.Time) {
	ApplyLatency.Observe(time.Since(start).Seconds())
}

func ObserveSinkLatency(sink string, start time.Time) {
	SinkLatency.WithLabelValues(sink).Observe(time.Since(start).Seconds())
}

// NewMetricsHandler serves /metrics and /healthz.
func NewMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// StartMetricsServer blocks serving metrics on port until ctx is done.
func StartMetricsServer(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           NewMetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
