package ingest

import "testing"

func TestAppendTerminator(t *testing.T) {
	if got := string(AppendTerminator([]byte("a:1|c"))); got != "a:1|c\n" {
		t.Fatalf("got %q", got)
	}
	if got := string(AppendTerminator([]byte("a:1|c\n"))); got != "a:1|c\n" {
		t.Fatalf("got %q", got)
	}
}

func TestLines(t *testing.T) {
	lines := Lines([]byte("a:1|c\nb:2|c\n"))
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	if string(lines[0]) != "a:1|c\n" || string(lines[1]) != "b:2|c\n" {
		t.Fatalf("unexpected split: %q %q", lines[0], lines[1])
	}
}

func TestSplitName(t *testing.T) {
	name, rest, ok := SplitName([]byte("a:1|c\n"))
	if !ok || string(name) != "a:" || string(rest) != "1|c\n" {
		t.Fatalf("got name=%q rest=%q ok=%v", name, rest, ok)
	}
	if _, _, ok := SplitName([]byte("noname\n")); ok {
		t.Fatalf("expected ok=false for missing colon")
	}
}

func TestSplitSegments(t *testing.T) {
	segs := SplitSegments([]byte("100|ms|@0.5:200|ms\n"))
	if len(segs) != 2 {
		t.Fatalf("want 2 segments, got %d: %q", len(segs), segs)
	}
	if string(segs[0]) != "100|ms|@0.5:" {
		t.Fatalf("segment 0 = %q", segs[0])
	}
	if string(segs[1]) != "200|ms\n" {
		t.Fatalf("segment 1 = %q", segs[1])
	}
}

func TestParseCounter(t *testing.T) {
	s, ok := Parse([]byte("1|c\n"))
	if !ok || s.Type != Counter || s.Value != 1 || s.Rate != 1.0 {
		t.Fatalf("got %+v ok=%v", s, ok)
	}
}

func TestParseCounterWithRate(t *testing.T) {
	s, ok := Parse([]byte("1|c|@0.25\n"))
	if !ok || s.Type != Counter || s.Value != 1 || s.Rate != 0.25 {
		t.Fatalf("got %+v ok=%v", s, ok)
	}
}

func TestParseCounterBadRateDefaultsToOne(t *testing.T) {
	s, ok := Parse([]byte("1|c|@notanumber\n"))
	if !ok || s.Rate != 1.0 {
		t.Fatalf("got %+v ok=%v", s, ok)
	}
}

func TestParseOther(t *testing.T) {
	s, ok := Parse([]byte("100|ms\n"))
	if !ok || s.Type != Other || s.Value != 100 {
		t.Fatalf("got %+v ok=%v", s, ok)
	}
}

func TestParseMissingPipe(t *testing.T) {
	if _, ok := Parse([]byte("100\n")); ok {
		t.Fatalf("expected ok=false with no '|'")
	}
}

func TestParseBadValue(t *testing.T) {
	if _, ok := Parse([]byte("notanumber|c\n")); ok {
		t.Fatalf("expected ok=false for unparseable value")
	}
}

func TestLineBounds(t *testing.T) {
	min, max := LineBounds(1450, 18)
	if min != 6 || max != 1432 {
		t.Fatalf("got min=%d max=%d", min, max)
	}
}
