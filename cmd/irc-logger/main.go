// Command irc-logger holds a TLS connection to one IRC server and
// channel and writes every received channel message as an individual
// file in a spool directory.
//
// SIGINT/SIGTERM end the process without a protocol-level shutdown:
// in-flight protocol state is abandoned (no QUIT is sent), since
// restart recovers from the spool directory alone.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/irc-relay/clock"
	"github.com/onnwee/irc-relay/config"
	"github.com/onnwee/irc-relay/fdwait"
	"github.com/onnwee/irc-relay/ircmsg"
	"github.com/onnwee/irc-relay/ircnet"
	"github.com/onnwee/irc-relay/session"
	"github.com/onnwee/irc-relay/spool"
	"github.com/onnwee/irc-relay/telemetry"
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

	server := flag.String("server", "", "IRC server address, host:port")
	user := flag.String("user", "", "IRC nick/username base")
	channel := flag.String("channel", "", "channel to join, without leading '#'")
	dir := flag.String("dir", "", "spool directory to write messages into")
	flag.Parse()

	if *server == "" || *user == "" || *channel == "" || *dir == "" {
		slog.Error("missing required flag: --server, --user, --channel, and --dir are all required")
		os.Exit(1)
	}
	if info, err := os.Stat(*dir); err != nil || !info.IsDir() {
		slog.Error("--dir does not exist or is not a directory", slog.String("dir", *dir))
		os.Exit(1)
	}

	env := config.LoadLogger()

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("irc-logger", "1.0.0")
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

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx)

	writer, err := spool.NewWriter(*dir)
	if err != nil {
		log.Error("spool writer init failed", slog.Any("err", err))
		os.Exit(1)
	}

	connCtx, connSpan := telemetry.SpanForConnect(ctx, *server)
	stream, err := ircnet.Dial(connCtx, *server)
	connSpan.End()
	if err != nil {
		log.Error("dial failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer stream.Close()

	now := clock.Real{}.Now()
	machine := session.NewMachine(stream, writer, *user, *channel, env.LoginPassword, now)

	// pprof (when enabled) and the session read loop run as sibling
	// goroutines under one errgroup: a pprof server error doesn't take
	// down the session, and the session returning closes the pprof
	// server, which ends the run.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	var g errgroup.Group
	if config.PprofEnabled() {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
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
		// No NICK/USER is sent here: the server's own "*** No Ident
		// response" NOTICE drives the first outbound commands, so the
		// read loop alone carries the handshake.
		return runReadLoop(ctx, stream, machine, *server, health)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("session terminated", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("shutting down")
}

// runReadLoop alternates between waiting for the socket to be
// readable (or the ping deadline to elapse) and feeding complete lines
// into the state machine.
func runReadLoop(ctx context.Context, stream ircnet.Stream, machine *session.Machine, server string, health *telemetry.HealthStatus) error {
	var buf []byte
	chunk := make([]byte, 4096)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if line, rest, ok := nextLine(buf); ok {
			buf = rest
			msg, err := ircmsg.Parse(line)
			if err != nil {
				return fmt.Errorf("irc-logger: parse %q: %w", line, err)
			}
			if err := machine.Step(ctx, msg, clock.Real{}.Now()); err != nil {
				return err
			}
			health.MarkGood(time.Now())
			continue
		}

		timeoutMs := msUntil(machine.Ping.Deadline, clock.Real{}.Now())
		outcome, err := fdwait.Wait(stream.Fd(), timeoutMs)
		if err != nil {
			return fmt.Errorf("irc-logger: fdwait: %w", err)
		}
		if outcome == fdwait.Timeout {
			if err := machine.OnTimeout(clock.Real{}.Now(), server); err != nil {
				return err
			}
			continue
		}

		n, err := stream.Read(chunk)
		if err != nil {
			return fmt.Errorf("irc-logger: read: %w", err)
		}
		buf = append(buf, chunk[:n]...)
	}
}

// nextLine splits the first "\r\n"- or "\n"-terminated line off buf, if
// any is present yet.
func nextLine(buf []byte) (line string, rest []byte, ok bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return "", buf, false
	}
	raw := buf[:i]
	raw = bytes.TrimSuffix(raw, []byte("\r"))
	return string(raw), buf[i+1:], true
}

// msUntil converts a clock.Clock deadline into a millisecond timeout
// for fdwait.Wait, clamped to zero if the deadline has already passed.
func msUntil(deadline, now uint64) int {
	if deadline <= now {
		return 0
	}
	delta := deadline - now
	const maxSeconds = 1 << 20 // generous bound, well within int range in milliseconds
	if delta > maxSeconds {
		delta = maxSeconds
	}
	return int(delta) * 1000
}
