// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// Counters
	MessagesSpooled prometheus.Counter
	DrainsRun       prometheus.Counter
	DrainsPublished prometheus.Counter
	RolloverCount   prometheus.Counter
	GitCommandsRun  prometheus.Counter
	GitCommandsFail prometheus.Counter
	PingsSent       prometheus.Counter
	NickCollisions  prometheus.Counter

	// Histograms (seconds)
	GitCommandDuration prometheus.Observer
	DrainDuration       prometheus.Observer

	// Gauges
	SpoolBacklog prometheus.Gauge
	SessionStage prometheus.Gauge // 0=setup, 1=joined
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesSpooled = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_messages_spooled_total", Help: "Number of channel messages written to the spool"})
		DrainsRun = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_drains_run_total", Help: "Number of drain passes executed"})
		DrainsPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_drains_published_total", Help: "Number of drain passes that published at least one message"})
		RolloverCount = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_day_rollovers_total", Help: "Number of day-boundary branch rollovers performed"})
		GitCommandsRun = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_git_commands_total", Help: "Number of git child-process invocations"})
		GitCommandsFail = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_git_commands_failed_total", Help: "Number of git child-process invocations that exited non-zero"})
		PingsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_pings_sent_total", Help: "Number of liveness PINGs sent to the server"})
		NickCollisions = promauto.NewCounter(prometheus.CounterOpts{Name: "irc_nick_collisions_total", Help: "Number of 433 nick-in-use responses handled"})

		GitCommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "irc_git_command_duration_seconds", Help: "git child-process duration seconds", Buckets: prometheus.DefBuckets})
		DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "irc_drain_duration_seconds", Help: "Drain pass duration seconds", Buckets: prometheus.DefBuckets})

		SpoolBacklog = promauto.NewGauge(prometheus.GaugeOpts{Name: "irc_spool_backlog", Help: "Number of spool files observed at the start of the last drain"})
		SessionStage = promauto.NewGauge(prometheus.GaugeOpts{Name: "irc_session_stage", Help: "Logger session stage: 0=setup, 1=joined"})
	})
}

// SetSpoolBacklog records the spool file count seen at the start of a drain.
func SetSpoolBacklog(n int) {
	if SpoolBacklog != nil {
		SpoolBacklog.Set(float64(n))
	}
}

// SetSessionStage records whether the logger is still in protocol setup (0) or has joined (1).
func SetSessionStage(joined bool) {
	if SessionStage != nil {
		if joined {
			SessionStage.Set(1)
		} else {
			SessionStage.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records it in obs, if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the given correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id embedded in ctx, or "".
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns the default logger with a corr attribute attached
// if ctx carries a correlation id.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

// HealthStatus reports whether the process considers itself healthy and
// when it last completed useful work, for the /healthz handler.
type HealthStatus struct {
	mu       sync.Mutex
	lastGood time.Time
}

// MarkGood records the time of the most recent successful unit of work
// (a completed drain, a successful connect).
func (h *HealthStatus) MarkGood(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastGood = t
}

// LastGood returns the last successful timestamp, zero if none yet.
func (h *HealthStatus) LastGood() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastGood
}

// ServeHealthAndMetrics starts an HTTP server exposing /healthz and
// /metrics, mirroring the teacher's pprof-on-demand server: explicit
// timeouts, started in a goroutine, torn down via the returned server so
// the caller can Shutdown it on exit.
func ServeHealthAndMetrics(addr string, health *HealthStatus) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		last := health.LastGood()
		if last.IsZero() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok (no work completed yet)\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok last=" + last.UTC().Format(time.RFC3339) + "\n"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server exited with error", slog.Any("err", err))
		}
	}()
	return srv
}
