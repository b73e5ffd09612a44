// Package sender implements C5: draining sealed datagrams off the flush
// ring onto the currently selected live downstream host, rotating the
// egress UDP socket after a bounded number of sends.
package sender

import (
	"net"

	"github.com/kt97679/statsd-aggregator/internal/aggregator"
	"github.com/kt97679/statsd-aggregator/internal/downstream"
	"github.com/kt97679/statsd-aggregator/internal/logging"
	"github.com/kt97679/statsd-aggregator/internal/metrics"
)

// MaxPacketsPerSocket is the send count after which the egress socket is
// closed and replaced with a fresh one, per spec.md §4.3.
const MaxPacketsPerSocket = 1000

// Sender owns the egress UDP socket used to forward sealed datagrams.
type Sender struct {
	conn        *net.UDPConn
	packetsSent int

	log     logging.Logger
	metrics *metrics.Registry
}

// New opens the initial egress socket.
func New(log logging.Logger, reg *metrics.Registry) (*Sender, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, err
	}
	return &Sender{conn: conn, log: log, metrics: reg}, nil
}

// Close releases the egress socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// Drain sends every sealed datagram currently in ring to the host selected
// by mem, stopping (and leaving the ring intact) the moment no live host is
// available — a future call picks up where this one left off, once the
// health prober marks a host alive again.
func (s *Sender) Drain(ring *aggregator.Ring, mem *downstream.Membership) {
	for !ring.Empty() {
		host, ok := mem.SelectLiveHost()
		if !ok {
			s.log.Errorf("no live downstream host, %d bytes pending", len(ring.Peek()))
			s.metrics.MembershipStale.Inc()
			return
		}

		data := ring.Peek()
		addr := &net.UDPAddr{IP: host.DataAddr.IP.AsSlice(), Port: int(host.DataAddr.Port)}
		if _, err := s.conn.WriteToUDP(data, addr); err != nil {
			s.log.Errorf("send to %s failed: %v", host.DataAddr, err)
		}

		// Regardless of sendto outcome, the datagram is dropped: zero the
		// buffer, count it sent, and advance. alive is C8's alone to set.
		ring.Advance()
		s.metrics.PacketsSent.Inc()
		s.packetsSent++
		if s.packetsSent >= MaxPacketsPerSocket {
			s.rotate()
		}
	}
}

// rotate replaces the egress socket with a fresh one, per spec.md §4.3's
// note on avoiding unbounded ephemeral-port/connection-tracking reuse on a
// single long-lived socket.
func (s *Sender) rotate() {
	old := s.conn
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		s.log.Errorf("socket rotation failed, keeping existing socket: %v", err)
		return
	}
	s.conn = conn
	s.packetsSent = 0
	s.metrics.SocketRotations.Inc()
	_ = old.Close()
}
