// Package aggregator implements the in-memory slot table and flush ring —
// components C1, C2, C3 and C4 of the design: parsing inbound datagrams,
// folding samples into per-name slots, and sealing a flush window into the
// outbound ring when the timer fires or the window's byte budget is
// exhausted.
//
// Per the "coalescing-buffer aliasing" design note, there is exactly one
// representation of the in-progress window (the slot payloads); the ring
// buffer is filled only at flush time, assembled directly from the slots.
package aggregator

import (
	"bytes"
	"fmt"
	"math"

	"github.com/kt97679/statsd-aggregator/internal/ingest"
	"github.com/kt97679/statsd-aggregator/internal/logging"
	"github.com/kt97679/statsd-aggregator/internal/metrics"
)

const (
	// DatagramMax is the outbound MTU-safe datagram size.
	DatagramMax = 1450
	// RecvMax is the largest inbound UDP datagram accepted.
	RecvMax = 4095
	// MaxCounterLen bounds the rendered "<value>|c\n" suffix; see
	// numeric rendering invariant in spec.md §4.8.
	MaxCounterLen = 18
	// RingDepth is the number of outbound datagram buffers in flight.
	RingDepth = 16
	// SlotCapacity is the worst-case number of minimal "aa:1|c\n" metrics
	// that fit in one datagram.
	SlotCapacity = DatagramMax / 7
)

type metricType int

const (
	typeUnknown metricType = iota
	typeCounter
	typeOther
)

// slot is a single metric name's accumulator for the current window.
// buf holds the name (including trailing ':') followed by the payload;
// length is the total bytes used in buf, nameLength the name's own length.
type slot struct {
	buf          [DatagramMax]byte
	nameLength   int
	length       int
	mtype        metricType
	counterAccum float64
}

func (s *slot) name() []byte { return s.buf[:s.nameLength] }

// empty reports whether nothing besides the name was ever written to this
// slot — such slots are dropped at flush.
func (s *slot) empty() bool { return s.length == s.nameLength }

// table is the bounded set of slots for the current flush window.
type table struct {
	slots       [SlotCapacity]slot
	used        int
	activeBytes int
}

// Ring is the fixed-count sequence of outbound datagram buffers handed off
// between the aggregator and the sender.
type Ring struct {
	buffers   [RingDepth][DatagramMax]byte
	lengths   [RingDepth]int
	activeIdx int
	flushIdx  int
}

// Empty reports whether there is no sealed datagram waiting to be sent.
func (r *Ring) Empty() bool {
	return r.activeIdx == r.flushIdx && r.lengths[r.activeIdx] == 0
}

// Peek returns the next datagram to send without consuming it.
func (r *Ring) Peek() []byte {
	return r.buffers[r.flushIdx][:r.lengths[r.flushIdx]]
}

// Advance marks the current flush-side datagram as sent and moves on to the
// next ring slot.
func (r *Ring) Advance() {
	r.lengths[r.flushIdx] = 0
	r.flushIdx = (r.flushIdx + 1) % RingDepth
}

// Aggregator owns the slot table and flush ring for the lifetime of the
// process. It is driven exclusively by the engine goroutine (see
// internal/engine) and therefore needs no internal locking — this is the
// "Core value" / single-owner redesign of SPEC_FULL.md §5, not a
// leftover from the C reactor's single-threadedness.
type Aggregator struct {
	table table
	ring  Ring

	log     logging.Logger
	metrics *metrics.Registry

	// onWindowSealed is invoked whenever a flush moves a window from an
	// otherwise-drained ring into the active slot, i.e. exactly the
	// "arm the sender's write-readiness watcher" step of spec.md §4.3.
	onWindowSealed func()
}

// New builds an Aggregator. onWindowSealed may be nil.
func New(log logging.Logger, reg *metrics.Registry, onWindowSealed func()) *Aggregator {
	if onWindowSealed == nil {
		onWindowSealed = func() {}
	}
	return &Aggregator{log: log, metrics: reg, onWindowSealed: onWindowSealed}
}

// Ring exposes the flush ring to the sender.
func (a *Aggregator) Ring() *Ring { return &a.ring }

// ActiveBytes reports the current window's accumulated byte count, used by
// the flush timer to decide whether a periodic flush has anything to do.
func (a *Aggregator) ActiveBytes() int { return a.table.activeBytes }

// ProcessDatagram is C3: it validates and splits an inbound datagram into
// lines, then feeds each valid line to the aggregator (C4).
func (a *Aggregator) ProcessDatagram(datagram []byte) {
	datagram = ingest.AppendTerminator(datagram)
	minLen, maxLen := ingest.LineBounds(DatagramMax, MaxCounterLen)
	for _, line := range ingest.Lines(datagram) {
		if len(line) <= minLen || len(line) >= maxLen {
			a.log.Errorf("invalid length %d of metric %q", len(line)-1, trimNewline(line))
			a.metrics.LinesRejected.Inc()
			continue
		}
		a.processLine(line)
	}
}

func trimNewline(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\n' {
		return line[:len(line)-1]
	}
	return line
}

// processLine is C4's entry point for a single statsd line.
func (a *Aggregator) processLine(line []byte) {
	name, rest, ok := ingest.SplitName(line)
	if !ok {
		a.log.Errorf("invalid metric %q", trimNewline(line))
		a.metrics.LinesRejected.Inc()
		return
	}
	idx := a.findSlot(name)
	for _, seg := range ingest.SplitSegments(rest) {
		idx = a.insertSegment(idx, name, seg)
	}
}

// findSlot is find_slot(): a linear scan for an existing slot with this
// name, allocating a new one (scheduling an intermediate flush first if the
// name wouldn't otherwise fit) when none matches.
func (a *Aggregator) findSlot(name []byte) int {
	for i := 0; i < a.table.used; i++ {
		s := &a.table.slots[i]
		if s.nameLength == len(name) && bytes.Equal(s.name(), name) {
			return i
		}
	}
	if a.table.activeBytes+len(name) > DatagramMax {
		a.ScheduleFlush()
	}
	return a.addSlot(name)
}

// addSlot appends a fresh slot for name, reserving space for the name only.
func (a *Aggregator) addSlot(name []byte) int {
	if a.table.used >= SlotCapacity {
		// The byte budget on activeBytes makes this unreachable in
		// practice (SlotCapacity is sized for the worst-case minimal
		// metric), but a malformed sequence of same-window zero-length
		// names must not overrun the array.
		a.ScheduleFlush()
	}
	idx := a.table.used
	s := &a.table.slots[idx]
	s.nameLength = len(name)
	s.length = len(name)
	s.mtype = typeUnknown
	s.counterAccum = 0
	copy(s.buf[:], name)
	a.table.activeBytes += len(name)
	a.table.used++
	return idx
}

// insertSegment is the per-segment body of insert_values_into_slot(). It
// returns the slot index subsequent segments of this line should target,
// which changes when a mid-line flush forces a fresh slot for the same
// name (spec.md §4.2 and the Open Question in §9 about a name reappearing
// across two consecutive windows).
func (a *Aggregator) insertSegment(idx int, name, seg []byte) int {
	parsed, ok := ingest.Parse(seg)
	if !ok {
		a.log.Errorf("invalid metric data %q", trimNewline(seg))
		a.metrics.SegmentsRejected.Inc()
		return idx
	}

	segType := toMetricType(parsed.Type)
	s := &a.table.slots[idx]
	if s.mtype == typeUnknown {
		s.mtype = segType
	} else if s.mtype != segType {
		a.log.Errorf("got improper metric type for %q", s.name())
		a.metrics.SegmentsRejected.Inc()
		return idx
	}

	cost := len(seg)
	if segType == typeCounter {
		cost = MaxCounterLen
	}
	if a.table.activeBytes+cost > DatagramMax {
		a.ScheduleFlush()
		idx = a.addSlot(name)
		s = &a.table.slots[idx]
		s.mtype = segType
	}

	if segType == typeCounter {
		a.insertCounter(s, parsed)
	} else {
		a.insertOther(s, seg)
	}
	return idx
}

func toMetricType(t ingest.Type) metricType {
	if t == ingest.Counter {
		return typeCounter
	}
	return typeOther
}

// insertCounter folds a counter sample into the slot's running total and
// re-renders the payload in place, per spec.md §4.2/§4.8.
func (a *Aggregator) insertCounter(s *slot, seg ingest.Segment) {
	rate := seg.Rate
	if rate == 0 {
		rate = 1.0
	}
	newAccum := s.counterAccum + seg.Value/rate
	if math.IsNaN(newAccum) || math.IsInf(newAccum, 0) {
		a.log.Errorf("counter value for %q is NaN/Inf, dropping segment", s.name())
		a.metrics.SegmentsRejected.Inc()
		return
	}
	rendered := fmt.Sprintf("%.15g|c\n", newAccum)
	if len(rendered) > MaxCounterLen {
		a.log.Errorf("counter value for %q would exceed %d bytes, dropping segment", s.name(), MaxCounterLen)
		a.metrics.SegmentsRejected.Inc()
		return
	}
	s.counterAccum = newAccum
	old := s.length
	n := copy(s.buf[s.nameLength:], rendered)
	s.length = s.nameLength + n
	a.table.activeBytes += s.length - old
}

// insertOther appends a pass-through segment's raw bytes, forcing the last
// copied byte to ':' regardless of whether it was a mid-line separator or
// the line's own trailing '\n' — the source's exact trick for keeping
// every payload's terminal byte rewritable to '\n' at flush time.
func (a *Aggregator) insertOther(s *slot, seg []byte) {
	n := copy(s.buf[s.length:], seg)
	s.buf[s.length+n-1] = ':'
	s.length += n
	a.table.activeBytes += n
}

// ScheduleFlush is downstream_schedule_flush(): seal the active window into
// the ring and reset the table for the next one.
func (a *Aggregator) ScheduleFlush() {
	newActiveIdx := (a.ring.activeIdx + 1) % RingDepth
	if a.ring.lengths[newActiveIdx] != 0 {
		a.log.Errorf("previous flush is not completed, losing data")
		a.metrics.CapacityLosses.Inc()
		a.table.used = 0
		a.table.activeBytes = 0
		return
	}

	wasEmpty := a.ring.activeIdx == a.ring.flushIdx && a.ring.lengths[a.ring.activeIdx] == 0

	buf := &a.ring.buffers[a.ring.activeIdx]
	offset := 0
	for i := 0; i < a.table.used; i++ {
		s := &a.table.slots[i]
		if s.empty() {
			continue
		}
		s.buf[s.length-1] = '\n'
		offset += copy(buf[offset:], s.buf[:s.length])
	}
	a.ring.lengths[a.ring.activeIdx] = offset
	a.ring.activeIdx = newActiveIdx

	a.table.used = 0
	a.table.activeBytes = 0
	a.metrics.FlushWindows.Inc()

	if wasEmpty {
		a.onWindowSealed()
	}
}
