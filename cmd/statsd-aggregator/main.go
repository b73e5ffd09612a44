// Command statsd-aggregator runs the UDP statsd-protocol aggregation
// daemon: it accepts statsd lines on a local UDP socket, coalesces them
// into fixed-size downstream datagrams, and forwards them round-robin to a
// pool of downstream collectors discovered via DNS.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kt97679/statsd-aggregator/internal/config"
	"github.com/kt97679/statsd-aggregator/internal/engine"
	"github.com/kt97679/statsd-aggregator/internal/logging"
	"github.com/kt97679/statsd-aggregator/internal/metrics"
)

func main() {
	app := &cli.App{
		Name:      "statsd-aggregator",
		Usage:     "aggregate statsd UDP traffic and forward it to a pool of downstream collectors",
		ArgsUsage: "<config-file>",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("exactly one argument is required: path to the configuration file", 1)
	}
	cfg, err := config.Load(c.Args().First())
	if err != nil {
		return cli.Exit(err, 1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	met := metrics.New()

	ingestConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(cfg.DataPort)})
	if err != nil {
		return cli.Exit(fmt.Errorf("bind ingest socket: %w", err), 1)
	}
	defer ingestConn.Close()

	e, err := engine.New(cfg, log, met, ingestConn)
	if err != nil {
		return cli.Exit(fmt.Errorf("build engine: %w", err), 1)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", met.Handler())
			log.Errorf("metrics server stopped: %v", http.ListenAndServe(cfg.MetricsAddr, mux))
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			log.Infof("received SIGHUP, ignoring (config reload is not supported)")
		}
	}()

	log.Infof("listening for statsd traffic on :%d, forwarding to %s", cfg.DataPort, cfg.DownstreamHost)
	if err := e.Run(ctx); err != nil && ctx.Err() == nil {
		return cli.Exit(fmt.Errorf("engine stopped: %w", err), 1)
	}
	log.Infof("shutting down")
	return nil
}
