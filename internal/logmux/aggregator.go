package logmux

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level names the stream a line came from.
type Level string

const (
	Stdout Level = "stdout"
	Stderr Level = "stderr"
)

// DedupWindow is how long an identical line stays suppressed.
const DedupWindow = 2 * time.Second

// Entry is a line that survived filtering.
type Entry struct {
	Level     Level
	Content   string
	Timestamp time.Time
}

var (
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	linePattern  = regexp.MustCompile(`\r?\n`)
	requestLine  = regexp.MustCompile(`(?i)^(GET|HEAD)\s+/`)
	assetRequest = regexp.MustCompile(`(?i)(\.js|\.css|\.map|\.png|\.jpg|\.jpeg|\.svg|\.ico|\.webp|\.gif)(\?.*)?$`)

	// Routine dev-server chatter that would drown real output
	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bGET\s+/_next/`),
		regexp.MustCompile(`(?i)\bHEAD\s+/_next/`),
		regexp.MustCompile(`(?i)\bGET\s+/favicon\.ico`),
		regexp.MustCompile(`(?i)Compiled\s+successfully`),
		regexp.MustCompile(`(?i)Ready\s+-\s+started\s+server`),
		regexp.MustCompile(`(?i)Waiting\s+for\s+file\s+changes`),
	}
)

// StripANSI removes color escape sequences
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// IsNoise reports whether an already stripped line should be dropped
func IsNoise(line string) bool {
	if requestLine.MatchString(line) && assetRequest.MatchString(line) {
		return true
	}
	for _, re := range noisePatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Aggregator filters one output stream of a preview process into a shared
// ring buffer. Each stream gets its own Aggregator so that duplicate
// suppression on stdout never hides a line on stderr.
type Aggregator struct {
	level Level
	buf   *LogBuffer
	emit  func(Entry)
	now   func() time.Time

	mu       sync.Mutex
	lastLine string
	lastAt   time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an aggregator for one stream. emit may be nil.
func NewAggregator(level Level, buf *LogBuffer, emit func(Entry), opts ...Option) *Aggregator {
	a := &Aggregator{
		level: level,
		buf:   buf,
		emit:  emit,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Level returns the stream this aggregator handles
func (a *Aggregator) Level() Level {
	return a.level
}

// Write feeds a raw chunk. Every fragment between line breaks is treated as
// a line. It never fails.
func (a *Aggregator) Write(p []byte) (int, error) {
	for _, line := range linePattern.Split(string(p), -1) {
		a.Push(line)
	}
	return len(p), nil
}

// Push processes a single line. Blank, noisy and repeated lines are dropped.
func (a *Aggregator) Push(raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	cleaned := StripANSI(strings.ToValidUTF8(raw, "�"))
	if IsNoise(cleaned) {
		return
	}

	a.mu.Lock()
	now := a.now()
	if cleaned == a.lastLine && now.Sub(a.lastAt) < DedupWindow {
		a.mu.Unlock()
		return
	}
	a.lastLine = cleaned
	a.lastAt = now
	a.mu.Unlock()

	a.buf.Append(cleaned)
	if a.emit != nil {
		a.emit(Entry{Level: a.level, Content: cleaned, Timestamp: now})
	}
}

// Capture reads r line by line until EOF. onLine, if set, runs after each
// line has been pushed.
func (a *Aggregator) Capture(r io.Reader, onLine func()) {
	ReadLines(r, func(line string) {
		a.Push(line)
		if onLine != nil {
			onLine()
		}
	})
}

// MaxLineBytes caps a single line read by ReadLines
const MaxLineBytes = 64 * 1024

// ReadLines calls fn for every line of r until EOF or a read error. Line
// endings are stripped. A line longer than MaxLineBytes is cut at the limit
// and the remainder up to the next newline is dropped, so one oversized line
// never stops the stream.
func ReadLines(r io.Reader, fn func(string)) {
	br := bufio.NewReaderSize(r, MaxLineBytes)
	line := make([]byte, 0, 4096)
	for {
		chunk, err := br.ReadSlice('\n')
		if room := MaxLineBytes - len(line); room > 0 {
			line = append(line, chunk[:min(len(chunk), room)]...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if len(line) > 0 {
			fn(strings.TrimRight(string(line), "\r\n"))
		}
		line = line[:0]
		if err != nil {
			return
		}
	}
}
