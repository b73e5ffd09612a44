// Package resolver implements C6: a background worker that periodically
// resolves the downstream hostname, handing the resolved address set to
// the engine through a single-writer/single-reader staging channel.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/kt97679/statsd-aggregator/internal/logging"
)

// MaxHosts bounds how many addresses a single resolution cycle stages, per
// spec.md §4.5/§4.6.
const MaxHosts = 32

// Resolver performs one blocking DNS lookup of hostname using the system's
// configured nameservers, via github.com/miekg/dns rather than the libc
// gethostbyname(3) call the source used — the blocking contract on the
// dedicated worker goroutine is unchanged.
type Resolver struct {
	hostname string
	client   *dns.Client
	servers  []string
	port     string
}

// New loads /etc/resolv.conf and returns a Resolver for hostname.
func New(hostname string) (*Resolver, error) {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, fmt.Errorf("load resolv.conf: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured")
	}
	return &Resolver{
		hostname: hostname,
		client:   &dns.Client{Timeout: 5 * time.Second},
		servers:  cfg.Servers,
		port:     cfg.Port,
	}, nil
}

// Resolve performs one A-record lookup, returning up to MaxHosts addresses
// from the answer section of the first nameserver to reply.
func (r *Resolver) Resolve() ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(r.hostname), dns.TypeA)

	var lastErr error
	for _, server := range r.servers {
		addr := net.JoinHostPort(server, r.port)
		resp, _, err := r.client.Exchange(msg, addr)
		if err != nil {
			lastErr = err
			continue
		}
		var out []netip.Addr
		for _, ans := range resp.Answer {
			a, ok := ans.(*dns.A)
			if !ok {
				continue
			}
			v4 := a.A.To4()
			if v4 == nil {
				continue
			}
			ip, ok := netip.AddrFromSlice(v4)
			if !ok {
				continue
			}
			out = append(out, ip)
			if len(out) >= MaxHosts {
				break
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no A records found for %s", r.hostname)
		}
		return out, nil
	}
	return nil, fmt.Errorf("all nameservers failed for %s: %w", r.hostname, lastErr)
}

// Run drives the periodic resolution cadence until ctx is cancelled.
// staged is a capacity-1 channel: its occupancy IS the "new_addrs_ready"
// flag from spec.md §4.5/§5 — a non-empty channel means the previous
// result hasn't been consumed yet, so this cycle skips resolving
// entirely, exactly like the source's "if (in_addr_new_ready == 0)" guard.
func Run(ctx context.Context, r *Resolver, interval time.Duration, staged chan<- []netip.Addr, log logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(staged) > 0 {
				continue
			}
			addrs, err := r.Resolve()
			if err != nil {
				log.Errorf("dns resolution failed: %v", err)
				continue
			}
			select {
			case staged <- addrs:
			default:
			}
		}
	}
}
