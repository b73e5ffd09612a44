// Package health implements the TCP health-probe protocol of C8: dial a
// host's health port, send "health", and check the reply.
//
// The source expresses this as an explicit Idle/Connecting/Sending/Reading
// state machine over non-blocking fds, cancelled implicitly by forcibly
// closing any watcher still active at the next tick (its probe timeout is
// therefore exactly the health-check cadence). Per the "cast-based
// inheritance" and cancellation design notes, this is re-expressed here as
// a single goroutine per probe bound to a context.Context deadline equal
// to that same cadence — the watcher-teardown-on-next-tick behavior
// becomes an ordinary context cancellation, with no fd-readiness
// bookkeeping to get wrong.
package health

import (
	"bytes"
	"context"
	"net"

	"github.com/kt97679/statsd-aggregator/internal/downstream"
)

const (
	request       = "health"
	upResponse    = "health: up\n"
	responseBytes = 32
)

// Prober issues a single health probe against a host's health socket.
type Prober struct {
	dialer net.Dialer
}

// New returns a Prober using the default dialer.
func New() *Prober {
	return &Prober{}
}

// Probe dials addr, writes the health request, and reports whether the
// reply begins with the expected "health: up\n" line. Any dial, write, or
// read failure — including ctx expiring — is reported as not alive. Every
// return path closes the connection it opened.
func (p *Prober) Probe(ctx context.Context, addr downstream.SockAddr) bool {
	conn, err := p.dialer.DialContext(ctx, "tcp4", addr.String())
	if err != nil {
		return false
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(request)); err != nil {
		return false
	}

	buf := make([]byte, responseBytes)
	n, err := conn.Read(buf)
	if err != nil {
		return false
	}
	return bytes.HasPrefix(buf[:n], []byte(upResponse))
}
