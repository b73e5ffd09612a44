// Package config loads the daemon's key=value configuration file.
package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Config holds every value recognized in the configuration file (spec.md
// §6) plus the ambient observability knobs layered on in SPEC_FULL.md §3.
type Config struct {
	DataPort uint16

	DownstreamHost       string
	DownstreamDataPort   uint16
	DownstreamHealthPort uint16

	FlushIntervalSeconds      float64
	DNSRefreshIntervalSeconds int
	HealthCheckIntervalSeconds float64
	LogLevel                   int

	MetricsAddr string
	LogFormat   string
}

const (
	defaultDNSRefreshIntervalSeconds  = 60
	defaultHealthCheckIntervalSeconds = 1.0
	defaultLogLevel                   = 0
	defaultLogFormat                  = "text"
)

// IsLiteralIPv4 reports whether the configured downstream host is a literal
// IPv4 address rather than a hostname requiring DNS resolution.
func (c *Config) IsLiteralIPv4() bool {
	ip := net.ParseIP(c.DownstreamHost)
	return ip != nil && ip.To4() != nil
}

// Load reads and parses the configuration file at path. Per the Open
// Question resolution in spec.md §9, a malformed or unknown line does not
// abort parsing immediately: every line is attempted, failures accumulate,
// and Load returns a single error naming all of them only once the file has
// been read in full.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := &Config{
		DNSRefreshIntervalSeconds:  defaultDNSRefreshIntervalSeconds,
		HealthCheckIntervalSeconds: defaultHealthCheckIntervalSeconds,
		LogLevel:                   defaultLogLevel,
		LogFormat:                  defaultLogFormat,
	}

	var failures []string
	var haveDataPort, haveDownstream, haveFlushInterval bool

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			failures = append(failures, fmt.Sprintf("line %d: missing '=': %q", lineNo, line))
			continue
		}
		switch key {
		case "data_port":
			p, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				failures = append(failures, fmt.Sprintf("line %d: bad data_port %q: %v", lineNo, value, err))
				continue
			}
			cfg.DataPort = uint16(p)
			haveDataPort = true
		case "downstream":
			if err := parseDownstream(cfg, value); err != nil {
				failures = append(failures, fmt.Sprintf("line %d: %v", lineNo, err))
				continue
			}
			haveDownstream = true
		case "downstream_flush_interval":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				failures = append(failures, fmt.Sprintf("line %d: bad downstream_flush_interval %q: %v", lineNo, value, err))
				continue
			}
			cfg.FlushIntervalSeconds = v
			haveFlushInterval = true
		case "dns_refresh_interval":
			v, err := strconv.Atoi(value)
			if err != nil {
				failures = append(failures, fmt.Sprintf("line %d: bad dns_refresh_interval %q: %v", lineNo, value, err))
				continue
			}
			cfg.DNSRefreshIntervalSeconds = v
		case "downstream_health_check_interval":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				failures = append(failures, fmt.Sprintf("line %d: bad downstream_health_check_interval %q: %v", lineNo, value, err))
				continue
			}
			cfg.HealthCheckIntervalSeconds = v
		case "log_level":
			v, err := strconv.Atoi(value)
			if err != nil {
				failures = append(failures, fmt.Sprintf("line %d: bad log_level %q: %v", lineNo, value, err))
				continue
			}
			cfg.LogLevel = v
		case "metrics_addr":
			cfg.MetricsAddr = value
		case "log_format":
			cfg.LogFormat = value
		default:
			failures = append(failures, fmt.Sprintf("line %d: unknown parameter %q", lineNo, key))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if !haveDataPort {
		failures = append(failures, "missing required key: data_port")
	}
	if !haveDownstream {
		failures = append(failures, "missing required key: downstream")
	}
	if !haveFlushInterval {
		failures = append(failures, "missing required key: downstream_flush_interval")
	}

	if len(failures) > 0 {
		return nil, fmt.Errorf("failed to load config file: %s", strings.Join(failures, "; "))
	}
	return cfg, nil
}

// parseDownstream parses the "host:data_port:health_port" value of the
// downstream key.
func parseDownstream(cfg *Config, value string) error {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("downstream must be host:data_port:health_port, got %q", value)
	}
	host, dataPortStr, healthPortStr := parts[0], parts[1], parts[2]
	if host == "" {
		return fmt.Errorf("downstream host is empty in %q", value)
	}
	dataPort, err := strconv.ParseUint(dataPortStr, 10, 16)
	if err != nil {
		return fmt.Errorf("bad downstream data port %q: %w", dataPortStr, err)
	}
	healthPort, err := strconv.ParseUint(healthPortStr, 10, 16)
	if err != nil {
		return fmt.Errorf("bad downstream health port %q: %w", healthPortStr, err)
	}
	cfg.DownstreamHost = host
	cfg.DownstreamDataPort = uint16(dataPort)
	cfg.DownstreamHealthPort = uint16(healthPort)
	return nil
}
