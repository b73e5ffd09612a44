// Package ingest contains the stateless pieces of the statsd wire parser
// (C3): splitting a datagram into valid lines and a line into its name and
// value segments. It holds no aggregation state — that lives in
// internal/aggregator, which calls into this package per line and segment.
package ingest

import (
	"bytes"
	"strconv"
)

// Type is the metric type recognized by a single segment.
type Type int

const (
	// Counter is the 'c' type; Other covers every other statsd type
	// (gauge, timing, set, histogram, ...), which is passed through
	// verbatim rather than aggregated.
	Counter Type = iota
	Other
)

// LineBounds returns the exclusive bounds min and max on a valid ingest
// line's length (including its trailing '\n'), per spec.md §4.1: "a line is valid iff
// 6 < length < DATAGRAM_MAX - MAX_COUNTER_LEN".
func LineBounds(datagramMax, maxCounterLen int) (min, max int) {
	return 6, datagramMax - maxCounterLen
}

// AppendTerminator returns datagram with a trailing '\n' appended if it
// doesn't already end in one, matching the ingest socket's handling of a
// client that forgot the newline.
func AppendTerminator(datagram []byte) []byte {
	if len(datagram) == 0 || datagram[len(datagram)-1] == '\n' {
		return datagram
	}
	return append(datagram, '\n')
}

// Lines splits a newline-terminated datagram into individual lines
// (including each line's trailing '\n'). It does not validate length; the
// caller applies LineBounds per line.
func Lines(datagram []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range datagram {
		if b == '\n' {
			lines = append(lines, datagram[start:i+1])
			start = i + 1
		}
	}
	return lines
}

// SplitName locates the first ':' in line and returns the name including
// the colon, and everything after it (which still carries line's trailing
// '\n'). ok is false if no colon is present.
func SplitName(line []byte) (name, rest []byte, ok bool) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return nil, nil, false
	}
	return line[:idx+1], line[idx+1:], true
}

// SplitSegments splits rest (the bytes following a metric name's colon,
// still carrying the line's trailing '\n') into one segment per ':'
// delimited value, each segment keeping its own trailing separator byte
// (':' for every segment but the last, '\n' for the last). This mirrors the
// source's memchr-based walk exactly, including the quirk that the last
// segment's payload naturally ends in '\n' rather than ':'.
func SplitSegments(rest []byte) [][]byte {
	var segments [][]byte
	for len(rest) > 0 {
		idx := bytes.IndexByte(rest, ':')
		if idx < 0 {
			segments = append(segments, rest)
			break
		}
		segments = append(segments, rest[:idx+1])
		rest = rest[idx+1:]
	}
	return segments
}

// Segment is the parsed form of one value|type[|@rate] segment.
type Segment struct {
	Type  Type
	Value float64
	Rate  float64 // always 1.0 unless Type == Counter and a rate was parsed
}

// Parse parses a single segment (as produced by SplitSegments, i.e. still
// carrying its trailing ':' or '\n'). ok is false when the segment has no
// '|' or its numeric value doesn't parse, per spec.md §4.1's per-segment
// failure handling.
func Parse(seg []byte) (s Segment, ok bool) {
	pipeIdx := bytes.IndexByte(seg, '|')
	if pipeIdx < 0 {
		return Segment{}, false
	}
	valueText := seg[:pipeIdx]
	typeText := seg[pipeIdx+1:]

	s.Rate = 1.0
	if len(typeText) > 0 && typeText[0] == 'c' {
		s.Type = Counter
	} else {
		s.Type = Other
	}

	value, err := strconv.ParseFloat(string(valueText), 64)
	if err != nil {
		return Segment{}, false
	}
	s.Value = value

	if s.Type == Counter {
		// typeText is "c" followed by the segment's trailing separator,
		// optionally preceded by "|@<rate>". Look for a second '|'.
		if second := bytes.IndexByte(typeText, '|'); second >= 0 {
			rateField := typeText[second+1:]
			if len(rateField) > 1 && rateField[0] == '@' {
				// rateField ends in the segment's trailing separator byte.
				rateText := rateField[1 : len(rateField)-1]
				if rate, err := strconv.ParseFloat(string(rateText), 64); err == nil {
					s.Rate = rate
				}
			}
		}
	}
	return s, true
}
