// Package config loads the environment-variable settings that sit
// alongside the required CLI flags of irc-logger and irc-publisher.
// Anything a user must always supply is a flag, parsed by each cmd's
// main; anything optional, secret, or deployment-specific is an
// environment variable read here.
package config

import (
	"os"
	"strconv"
)

// Env holds the environment-derived settings shared by both binaries.
type Env struct {
	// LoginPassword is the NickServ identify password (spec §4.3
	// numeric 376 handling). Never accepted as a CLI flag so it never
	// shows up in ps or shell history.
	LoginPassword string

	// GitAuthorName / GitAuthorEmail / GitCommitterName /
	// GitCommitterEmail are forwarded into the git operator's child
	// process environment for commit invocations, when set.
	GitAuthorName     string
	GitAuthorEmail    string
	GitCommitterName  string
	GitCommitterEmail string

	// MetricsAddr is the listen address for the Prometheus /metrics
	// and /healthz HTTP endpoints.
	MetricsAddr string

	// OTLPEndpoint enables tracing when non-empty.
	OTLPEndpoint string
}

// Default METRICS_ADDR values when the environment variable is unset,
// distinct so both binaries can run on one host without colliding.
const (
	DefaultLoggerMetricsAddr    = ":9090"
	DefaultPublisherMetricsAddr = ":9091"
)

// LoadLogger reads environment settings for irc-logger.
func LoadLogger() Env { return load(DefaultLoggerMetricsAddr) }

// LoadPublisher reads environment settings for irc-publisher.
func LoadPublisher() Env { return load(DefaultPublisherMetricsAddr) }

func load(defaultMetricsAddr string) Env {
	e := Env{
		LoginPassword:     os.Getenv("IRC_LOGIN_PASSWORD"),
		GitAuthorName:     os.Getenv("GIT_AUTHOR_NAME"),
		GitAuthorEmail:    os.Getenv("GIT_AUTHOR_EMAIL"),
		GitCommitterName:  os.Getenv("GIT_COMMITTER_NAME"),
		GitCommitterEmail: os.Getenv("GIT_COMMITTER_EMAIL"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if e.MetricsAddr == "" {
		e.MetricsAddr = defaultMetricsAddr
	}
	return e
}

// GitEnviron returns the extra KEY=VALUE pairs the git operator should
// append to a commit invocation's environment, empty entries omitted.
func (e Env) GitEnviron() []string {
	var out []string
	add := func(key, val string) {
		if val != "" {
			out = append(out, key+"="+val)
		}
	}
	add("GIT_AUTHOR_NAME", e.GitAuthorName)
	add("GIT_AUTHOR_EMAIL", e.GitAuthorEmail)
	add("GIT_COMMITTER_NAME", e.GitCommitterName)
	add("GIT_COMMITTER_EMAIL", e.GitCommitterEmail)
	return out
}

// PprofEnabled reports whether ENABLE_PPROF=1 was set, matching the
// teacher's debug-profiling escape hatch.
func PprofEnabled() bool {
	v, err := strconv.ParseBool(os.Getenv("ENABLE_PPROF"))
	return err == nil && v
}
