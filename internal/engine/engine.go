// Package engine wires together the ingest socket, aggregator, sender,
// resolver and health prober into the single event loop described in
// SPEC_FULL.md §5. One goroutine — Run's caller — owns the aggregator,
// the membership list and the sender; every other goroutine this package
// starts talks to it only through channels.
package engine

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/kt97679/statsd-aggregator/internal/aggregator"
	"github.com/kt97679/statsd-aggregator/internal/config"
	"github.com/kt97679/statsd-aggregator/internal/downstream"
	"github.com/kt97679/statsd-aggregator/internal/health"
	"github.com/kt97679/statsd-aggregator/internal/logging"
	"github.com/kt97679/statsd-aggregator/internal/metrics"
	"github.com/kt97679/statsd-aggregator/internal/resolver"
	"github.com/kt97679/statsd-aggregator/internal/sender"
)

// probeResult is what a probe goroutine reports back to the engine.
type probeResult struct {
	host       *downstream.Host
	generation int
	alive      bool
}

// Engine owns every piece of mutable state and runs the single select loop
// that replaces the source's libev reactor.
type Engine struct {
	cfg *config.Config
	log logging.Logger
	met *metrics.Registry

	agg    *aggregator.Aggregator
	mem    *downstream.Membership
	send   *sender.Sender
	prober *health.Prober

	ingestConn *net.UDPConn

	ingestCh  chan []byte
	ready     chan struct{}
	staged    chan []netip.Addr
	probeCh   chan probeResult
}

// New constructs an Engine bound to an already-open ingest socket.
func New(cfg *config.Config, log logging.Logger, met *metrics.Registry, ingestConn *net.UDPConn) (*Engine, error) {
	send, err := sender.New(log, met)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		met:        met,
		mem:        downstream.New(),
		send:       send,
		prober:     health.New(),
		ingestConn: ingestConn,
		ingestCh:   make(chan []byte, 256),
		ready:      make(chan struct{}, 1),
		staged:     make(chan []netip.Addr, 1),
		probeCh:    make(chan probeResult, 64),
	}
	e.agg = aggregator.New(log, met, e.signalReady)
	return e, nil
}

// signalReady is the aggregator's onWindowSealed callback: it nudges Run's
// select loop to attempt an opportunistic drain without blocking the
// aggregator itself.
func (e *Engine) signalReady() {
	select {
	case e.ready <- struct{}{}:
	default:
	}
}

// Run drives the engine until ctx is cancelled. It starts the ingest
// reader, the DNS resolver (or seeds a static host if the configured
// downstream is a literal IPv4 address), and the flush/health tickers, then
// owns the aggregator/membership/sender state for the rest of the process
// lifetime.
func (e *Engine) Run(ctx context.Context) error {
	go e.readIngest(ctx)

	if e.cfg.IsLiteralIPv4() {
		addr, err := netip.ParseAddr(e.cfg.DownstreamHost)
		if err != nil {
			return err
		}
		e.staged <- []netip.Addr{addr}
	} else {
		res, err := resolver.New(e.cfg.DownstreamHost)
		if err != nil {
			return err
		}
		go resolver.Run(ctx, res, time.Duration(e.cfg.DNSRefreshIntervalSeconds)*time.Second, e.staged, e.log)
	}

	flushTicker := time.NewTicker(durationFromSeconds(e.cfg.FlushIntervalSeconds))
	defer flushTicker.Stop()
	healthTicker := time.NewTicker(durationFromSeconds(e.cfg.HealthCheckIntervalSeconds))
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case datagram := <-e.ingestCh:
			e.met.PacketsReceived.Inc()
			e.agg.ProcessDatagram(datagram)
			e.drain()

		case <-flushTicker.C:
			if e.agg.ActiveBytes() > 0 {
				e.agg.ScheduleFlush()
			}
			e.drain()

		case <-healthTicker.C:
			// Reconciliation happens strictly before probing within this
			// tick (spec.md §4.6's ordering invariant), so any host
			// admitted this cycle is probed immediately rather than
			// waiting a full extra tick.
			select {
			case addrs := <-e.staged:
				e.reconcile(addrs)
			default:
			}
			e.dispatchProbes(ctx)

		case res := <-e.probeCh:
			if res.generation != res.host.Generation {
				continue
			}
			if res.host.Alive != res.alive {
				if res.alive {
					e.log.Debugf("downstream host %s is now alive", res.host.DataAddr)
				} else {
					e.log.Debugf("downstream host %s is now down", res.host.DataAddr)
				}
			}
			res.host.Alive = res.alive
			e.met.LiveHosts.Set(float64(e.mem.LiveCount()))
			e.drain()

		case <-e.ready:
			e.drain()
		}
	}
}

// reconcile diffs a freshly resolved address set against the live host
// list, logging admissions and retirements.
func (e *Engine) reconcile(addrs []netip.Addr) {
	retired, admitted := e.mem.Reconcile(addrs, e.cfg.DownstreamDataPort, e.cfg.DownstreamHealthPort)
	for _, h := range retired {
		e.log.Infof("downstream host %s retired", h.DataAddr)
	}
	for _, h := range admitted {
		e.log.Infof("downstream host %s admitted", h.DataAddr)
	}
	e.met.LiveHosts.Set(float64(e.mem.LiveCount()))
}

// drain attempts to send everything currently sealed in the ring. It is
// called opportunistically after every event that could plausibly unblock
// the sender (an ingested datagram, a flush tick, a sealed-window signal, a
// probe result), not only the single ring-was-empty signal the source wired to
// its write-readiness watcher — this makes end-to-end recovery once a host
// becomes reachable again robust regardless of event ordering.
func (e *Engine) drain() {
	e.send.Drain(e.agg.Ring(), e.mem)
}

// dispatchProbes bumps every host's generation and spawns one probe
// goroutine per host, bound to a context whose deadline is the health-check
// cadence itself — the direct translation of the source's
// teardown-on-next-tick cancellation.
func (e *Engine) dispatchProbes(ctx context.Context) {
	interval := durationFromSeconds(e.cfg.HealthCheckIntervalSeconds)
	for _, h := range e.mem.Hosts() {
		h.Generation++
		host := h
		generation := h.Generation
		go func() {
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()
			alive := e.prober.Probe(probeCtx, host.HealthAddr)
			select {
			case e.probeCh <- probeResult{host: host, generation: generation, alive: alive}:
			case <-ctx.Done():
			}
		}()
	}
}

// readIngest is the dedicated blocking-recv goroutine feeding ingestCh.
func (e *Engine) readIngest(ctx context.Context) {
	buf := make([]byte, aggregator.RecvMax)
	for {
		_ = e.ingestConn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := e.ingestConn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			e.log.Errorf("ingest socket read failed: %v", err)
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		select {
		case e.ingestCh <- datagram:
		case <-ctx.Done():
			return
		}
	}
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
