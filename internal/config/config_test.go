package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agg.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `# comment
data_port=8125
downstream=collector.internal:8126:8127
downstream_flush_interval=1.5
dns_refresh_interval=30
downstream_health_check_interval=0.5
log_level=1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataPort != 8125 {
		t.Errorf("DataPort = %d", cfg.DataPort)
	}
	if cfg.DownstreamHost != "collector.internal" || cfg.DownstreamDataPort != 8126 || cfg.DownstreamHealthPort != 8127 {
		t.Errorf("downstream fields wrong: %+v", cfg)
	}
	if cfg.FlushIntervalSeconds != 1.5 {
		t.Errorf("FlushIntervalSeconds = %v", cfg.FlushIntervalSeconds)
	}
	if cfg.DNSRefreshIntervalSeconds != 30 {
		t.Errorf("DNSRefreshIntervalSeconds = %d", cfg.DNSRefreshIntervalSeconds)
	}
	if cfg.HealthCheckIntervalSeconds != 0.5 {
		t.Errorf("HealthCheckIntervalSeconds = %v", cfg.HealthCheckIntervalSeconds)
	}
	if cfg.LogLevel != 1 {
		t.Errorf("LogLevel = %d", cfg.LogLevel)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `data_port=8125
downstream=127.0.0.1:8126:8127
downstream_flush_interval=1.0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DNSRefreshIntervalSeconds != defaultDNSRefreshIntervalSeconds {
		t.Errorf("default dns_refresh_interval not applied: %d", cfg.DNSRefreshIntervalSeconds)
	}
	if cfg.HealthCheckIntervalSeconds != defaultHealthCheckIntervalSeconds {
		t.Errorf("default health check interval not applied: %v", cfg.HealthCheckIntervalSeconds)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("default log level not applied: %d", cfg.LogLevel)
	}
}

func TestLoadAccumulatesAllFailures(t *testing.T) {
	path := writeConfig(t, `data_port=notanumber
unknown_key=1
downstream_flush_interval=alsobad
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"data_port", "unknown_key", "downstream_flush_interval", "missing required key: downstream"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing expected substring %q", msg, want)
		}
	}
}

func TestLoadMissingRequiredKeys(t *testing.T) {
	path := writeConfig(t, "log_level=2\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing required keys")
	}
	for _, want := range []string{"data_port", "downstream", "downstream_flush_interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing required-key mention %q", err.Error(), want)
		}
	}
}

func TestIsLiteralIPv4(t *testing.T) {
	cfg := &Config{DownstreamHost: "127.0.0.1"}
	if !cfg.IsLiteralIPv4() {
		t.Error("expected literal IPv4 to be recognized")
	}
	cfg.DownstreamHost = "collector.internal"
	if cfg.IsLiteralIPv4() {
		t.Error("hostname should not be treated as literal IPv4")
	}
}
