package sender

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kt97679/statsd-aggregator/internal/aggregator"
	"github.com/kt97679/statsd-aggregator/internal/downstream"
	"github.com/kt97679/statsd-aggregator/internal/logging"
	"github.com/kt97679/statsd-aggregator/internal/metrics"
)

func sealedRing(t *testing.T, payload string) *aggregator.Ring {
	t.Helper()
	agg := aggregator.New(logging.Discard, metrics.New(), nil)
	agg.ProcessDatagram([]byte(payload))
	agg.ScheduleFlush()
	return agg.Ring()
}

func TestDrainSendsToLiveHost(t *testing.T) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	ip, ok := netip.AddrFromSlice(localAddr.IP.To4())
	if !ok {
		t.Fatalf("bad local addr %v", localAddr)
	}

	mem := downstream.New()
	mem.Reconcile([]netip.Addr{ip}, uint16(localAddr.Port), 0)
	mem.Hosts()[0].Alive = true

	met := metrics.New()
	s, err := New(logging.Discard, met)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ring := sealedRing(t, "aa:1|c\n")
	s.Drain(ring, mem)

	if !ring.Empty() {
		t.Fatalf("expected ring drained")
	}
	if got := testutil.ToFloat64(met.PacketsSent); got != 1 {
		t.Fatalf("PacketsSent = %v, want 1", got)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 128)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("expected datagram to arrive: %v", err)
	}
	if string(buf[:n]) != "aa:1|c\n" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestDrainNoLiveHostIncrementsMembershipStale(t *testing.T) {
	mem := downstream.New()
	met := metrics.New()
	s, err := New(logging.Discard, met)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ring := sealedRing(t, "aa:1|c\n")
	s.Drain(ring, mem)

	if ring.Empty() {
		t.Fatalf("expected datagram left pending with no live host")
	}
	if got := testutil.ToFloat64(met.MembershipStale); got != 1 {
		t.Fatalf("MembershipStale = %v, want 1", got)
	}
}
