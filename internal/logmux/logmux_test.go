package logmux

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLogBufferBound(t *testing.T) {
	lb := NewLogBuffer(5)
	for i := 0; i < 12; i++ {
		lb.Append(fmt.Sprintf("line %d", i))
	}

	if lb.Len() != 5 {
		t.Fatalf("expected 5 lines, got %d", lb.Len())
	}
	want := []string{"line 7", "line 8", "line 9", "line 10", "line 11"}
	if got := lb.GetAll(); !reflect.DeepEqual(got, want) {
		t.Errorf("GetAll = %v; want %v", got, want)
	}
	if got := lb.GetLast(2); !reflect.DeepEqual(got, want[3:]) {
		t.Errorf("GetLast(2) = %v; want %v", got, want[3:])
	}
	if got := lb.GetLast(100); len(got) != 5 {
		t.Errorf("GetLast(100) returned %d lines", len(got))
	}

	lb.Clear()
	if lb.Len() != 0 {
		t.Errorf("expected empty buffer after Clear")
	}
}

func TestIsNoise(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"GET /_next/static/chunks/main.js 200 in 5ms", true},
		{"HEAD /_next/webpack-hmr 200", true},
		{"get /favicon.ico 200", true},
		{" ✓ Compiled successfully in 1.2s", true},
		{"ready - started server on 0.0.0.0:3100", true},
		{"Waiting for file changes", true},
		{"GET /logo.PNG", true},
		{"GET /bundle.js?v=3 200", true},
		{"GET / 200 in 40ms", false},
		{"GET /api/users 500 in 3ms", false},
		{"Error: Cannot find module 'react'", false},
		{"loaded main.js", false},
	}

	for _, tt := range tests {
		if got := IsNoise(tt.line); got != tt.want {
			t.Errorf("IsNoise(%q) = %v; want %v", tt.line, got, tt.want)
		}
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[32m✓\x1b[0m Ready in \x1b[1;33m2s\x1b[0m"
	if got := StripANSI(in); got != "✓ Ready in 2s" {
		t.Errorf("StripANSI = %q", got)
	}
}

func TestAggregatorDedupWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	buf := NewLogBuffer(10)
	var events []Entry
	agg := NewAggregator(Stdout, buf, func(e Entry) { events = append(events, e) }, WithClock(clock.Now))

	agg.Write([]byte("compiling /page\n"))
	clock.Advance(500 * time.Millisecond)
	agg.Write([]byte("compiling /page\n"))

	if buf.Len() != 1 || len(events) != 1 {
		t.Fatalf("within window: expected 1 entry and 1 event, got %d and %d", buf.Len(), len(events))
	}

	clock.Advance(DedupWindow)
	agg.Write([]byte("compiling /page\n"))

	if buf.Len() != 2 || len(events) != 2 {
		t.Fatalf("after window: expected 2 entries and 2 events, got %d and %d", buf.Len(), len(events))
	}
	if events[1].Level != Stdout || events[1].Content != "compiling /page" {
		t.Errorf("unexpected event %+v", events[1])
	}
	if !events[1].Timestamp.Equal(clock.Now()) {
		t.Errorf("event timestamp should come from the injected clock")
	}
}

func TestAggregatorStreamsDedupIndependently(t *testing.T) {
	buf := NewLogBuffer(10)
	out := NewAggregator(Stdout, buf, nil)
	errs := NewAggregator(Stderr, buf, nil)

	out.Push("warning: something")
	errs.Push("warning: something")

	if buf.Len() != 2 {
		t.Errorf("expected both streams to keep the line, got %d", buf.Len())
	}
}

func TestAggregatorWriteSplitsAndFilters(t *testing.T) {
	buf := NewLogBuffer(10)
	agg := NewAggregator(Stderr, buf, nil)

	chunk := "first\r\n\n   \nGET /_next/static/x.js 200\n\x1b[31msecond\x1b[0m\nthird"
	n, err := agg.Write([]byte(chunk))
	if err != nil || n != len(chunk) {
		t.Fatalf("Write = (%d, %v)", n, err)
	}

	want := []string{"first", "second", "third"}
	if got := buf.GetAll(); !reflect.DeepEqual(got, want) {
		t.Errorf("buffer = %v; want %v", got, want)
	}
}

func TestAggregatorMalformedInput(t *testing.T) {
	buf := NewLogBuffer(10)
	agg := NewAggregator(Stdout, buf, nil)

	if _, err := agg.Write([]byte{0xff, 0xfe, 'o', 'k', '\n'}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	got := buf.GetAll()
	if len(got) != 1 || !strings.HasSuffix(got[0], "ok") {
		t.Errorf("unexpected buffer %q", got)
	}
}

func TestAggregatorCapture(t *testing.T) {
	buf := NewLogBuffer(3)
	agg := NewAggregator(Stdout, buf, nil)

	var calls int
	agg.Capture(strings.NewReader("a\nb\nc\nd\ne\n"), func() { calls++ })

	if calls != 5 {
		t.Errorf("expected onLine for every line, got %d", calls)
	}
	if got := buf.GetAll(); !reflect.DeepEqual(got, []string{"c", "d", "e"}) {
		t.Errorf("buffer = %v", got)
	}
}

func TestAggregatorCaptureSurvivesOversizedLine(t *testing.T) {
	buf := NewLogBuffer(10)
	agg := NewAggregator(Stdout, buf, nil)

	input := "before\n" + strings.Repeat("x", 2*1024*1024) + "\nafter the long line\nstill capturing\n"
	agg.Capture(strings.NewReader(input), nil)

	got := buf.GetAll()
	if len(got) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(got))
	}
	if got[0] != "before" {
		t.Errorf("first line = %q", got[0])
	}
	if len(got[1]) != MaxLineBytes || strings.Trim(got[1], "x") != "" {
		t.Errorf("long line should be cut to %d bytes, got %d", MaxLineBytes, len(got[1]))
	}
	if !reflect.DeepEqual(got[2:], []string{"after the long line", "still capturing"}) {
		t.Errorf("lines after the long one = %v", got[2:])
	}
}

func TestReadLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"no trailing newline", "a\nb", []string{"a", "b"}},
		{"empty", "", nil},
		{"line at the limit", strings.Repeat("y", MaxLineBytes) + "\nz\n", []string{strings.Repeat("y", MaxLineBytes), "z"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			ReadLines(strings.NewReader(tt.input), func(l string) { got = append(got, l) })
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReadLines = %q; want %q", got, tt.want)
			}
		})
	}
}
