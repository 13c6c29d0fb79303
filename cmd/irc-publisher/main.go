// Command irc-publisher drains a logger's spool directory into a
// date-partitioned Git repository, force-pushing a live branch on
// every drain and folding completed days into master via the
// branch-rewrite rollover.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/irc-relay/config"
	"github.com/onnwee/irc-relay/dateroute"
	"github.com/onnwee/irc-relay/gitops"
	"github.com/onnwee/irc-relay/rollover"
	"github.com/onnwee/irc-relay/spool"
	"github.com/onnwee/irc-relay/telemetry"
	"github.com/onnwee/irc-relay/watch"
)

func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	_ = godotenv.Load()
	setupLogging()

	loggerDir := flag.String("logger-dir", "", "spool directory the logger writes into")
	repo := flag.String("repo", "", "path to the Git repository to publish into")
	flag.Parse()

	if *loggerDir == "" || *repo == "" {
		slog.Error("missing required flag: --logger-dir and --repo are both required")
		os.Exit(1)
	}
	if info, err := os.Stat(filepath.Join(*repo, ".git")); err != nil || info == nil {
		slog.Error("--repo does not contain a .git entry", slog.String("repo", *repo))
		os.Exit(1)
	}

	env := config.LoadPublisher()

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("irc-publisher", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	health := &telemetry.HealthStatus{}
	metricsSrv := telemetry.ServeHealthAndMetrics(env.MetricsAddr, health)
	defer metricsSrv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	git := &gitops.Client{Runner: gitops.ExecRunner{}, RepoDir: *repo, Env: env.GitEnviron()}
	engine := rollover.NewEngine(git)
	router := dateroute.NewRouter(*repo, engine.Rollover)

	drainer := spool.NewDrainer(*loggerDir, func(ctx context.Context, seq uint32, raw []byte) error {
		prefix := raw
		if len(prefix) > spool.MaxDateRoutingPrefix {
			prefix = prefix[:spool.MaxDateRoutingPrefix]
		}
		ts, err := spool.DecodeTimestampPrefix(prefix)
		if err != nil {
			return err
		}
		return router.Append(ctx, ts, raw)
	})

	watcher, err := watch.NewWatcher(*loggerDir)
	if err != nil {
		slog.Error("watcher init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer watcher.Close()

	drainFn := func(ctx context.Context) (spool.Result, error) {
		drainCtx := telemetry.WithCorrelation(ctx, uuid.NewString())
		log := telemetry.LoggerWithCorr(drainCtx)
		spanCtx, span := telemetry.SpanForDrain(drainCtx)
		defer span.End()

		if telemetry.DrainsRun != nil {
			telemetry.DrainsRun.Inc()
		}
		if entries, err := os.ReadDir(*loggerDir); err == nil {
			telemetry.SetSpoolBacklog(len(entries))
		}
		var result spool.Result
		var drainErr error
		telemetry.TimeFunc(telemetry.DrainDuration, func() {
			result, drainErr = drainer.Drain(spanCtx)
		})
		if drainErr != nil {
			telemetry.RecordError(span, drainErr)
			log.Warn("drain failed", slog.Any("err", drainErr))
			return result, drainErr
		}
		if result == spool.Published {
			if telemetry.DrainsPublished != nil {
				telemetry.DrainsPublished.Inc()
			}
			health.MarkGood(time.Now())
		}
		telemetry.SetSpanSuccess(span)
		return result, nil
	}

	publishFn := func(ctx context.Context) error {
		return rollover.PublishLiveUpdate(ctx, git)
	}

	// pprof (when enabled) and the watch loop run as sibling goroutines
	// under one errgroup, mirroring irc-logger's wiring.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	var g errgroup.Group
	if config.PprofEnabled() {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6061"
		}
		pprofSrv := &http.Server{
			Addr:              pprofAddr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		g.Go(func() error {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			if err := pprofSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("pprof server: %w", err)
			}
			return nil
		})
		go func() {
			<-runCtx.Done()
			_ = pprofSrv.Close()
		}()
	}

	g.Go(func() error {
		defer cancelRun()
		return watch.Run(ctx, watcher, drainFn, publishFn)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("publisher terminated", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}
