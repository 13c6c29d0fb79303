package config

import "testing"

func TestLoadLoggerDefaultsMetricsAddr(t *testing.T) {
	t.Setenv("METRICS_ADDR", "")
	e := LoadLogger()
	if e.MetricsAddr != DefaultLoggerMetricsAddr {
		t.Errorf("MetricsAddr = %q, want %q", e.MetricsAddr, DefaultLoggerMetricsAddr)
	}
}

func TestLoadPublisherDefaultsMetricsAddr(t *testing.T) {
	t.Setenv("METRICS_ADDR", "")
	e := LoadPublisher()
	if e.MetricsAddr != DefaultPublisherMetricsAddr {
		t.Errorf("MetricsAddr = %q, want %q", e.MetricsAddr, DefaultPublisherMetricsAddr)
	}
}

func TestLoadHonorsMetricsAddrOverride(t *testing.T) {
	t.Setenv("METRICS_ADDR", ":7000")
	e := LoadLogger()
	if e.MetricsAddr != ":7000" {
		t.Errorf("MetricsAddr = %q, want :7000", e.MetricsAddr)
	}
}

func TestGitEnvironOmitsUnset(t *testing.T) {
	e := Env{GitAuthorName: "bot"}
	got := e.GitEnviron()
	if len(got) != 1 || got[0] != "GIT_AUTHOR_NAME=bot" {
		t.Errorf("GitEnviron() = %v, want [GIT_AUTHOR_NAME=bot]", got)
	}
}

func TestGitEnvironAllSet(t *testing.T) {
	e := Env{
		GitAuthorName:     "a",
		GitAuthorEmail:    "a@example.com",
		GitCommitterName:  "c",
		GitCommitterEmail: "c@example.com",
	}
	got := e.GitEnviron()
	if len(got) != 4 {
		t.Errorf("GitEnviron() len = %d, want 4", len(got))
	}
}

func TestPprofEnabled(t *testing.T) {
	t.Setenv("ENABLE_PPROF", "1")
	if !PprofEnabled() {
		t.Errorf("PprofEnabled() = false, want true")
	}
	t.Setenv("ENABLE_PPROF", "")
	if PprofEnabled() {
		t.Errorf("PprofEnabled() = true, want false")
	}
}
