package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitRegistersHistograms(t *testing.T) {
	Init()
	if GitCommandDuration == nil {
		t.Error("GitCommandDuration histogram not initialized")
	}
	if DrainDuration == nil {
		t.Error("DrainDuration histogram not initialized")
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()

	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(5 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 5*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 5ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record an observation")
	}
}

func TestTimeFuncNilObserverDoesNotPanic(t *testing.T) {
	executed := false
	TimeFunc(nil, func() { executed = true })
	if !executed {
		t.Error("TimeFunc did not execute provided function with nil observer")
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation on bare context = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation() = %q, want abc-123", got)
	}
}

func TestLoggerWithCorrAttachesAttribute(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := WithCorrelation(context.Background(), "corr-1")
	logger := LoggerWithCorr(ctx)
	if logger == nil {
		t.Fatal("LoggerWithCorr returned nil")
	}
	logger.Info("hello")
	if !strings.Contains(buf.String(), "corr=corr-1") {
		t.Errorf("log line = %q, want it to carry corr=corr-1", buf.String())
	}
}

func TestSpoolBacklogAndSessionStageGauges(t *testing.T) {
	Init()
	SetSpoolBacklog(0)
	SetSpoolBacklog(42)
	SetSessionStage(false)
	SetSessionStage(true)
}

func TestHealthStatusMarksAndReads(t *testing.T) {
	var h HealthStatus
	if !h.LastGood().IsZero() {
		t.Fatal("expected zero LastGood before any MarkGood call")
	}
	now := time.Now()
	h.MarkGood(now)
	if !h.LastGood().Equal(now) {
		t.Errorf("LastGood() = %v, want %v", h.LastGood(), now)
	}
}
