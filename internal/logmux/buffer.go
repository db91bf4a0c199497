package logmux

import "sync"

// LogBuffer keeps the most recent preview lines in a fixed ring. Once full,
// each new line overwrites the oldest.
type LogBuffer struct {
	mu    sync.RWMutex
	ring  []string
	head  int // index of the oldest line
	count int
}

// NewLogBuffer creates a buffer holding up to limit lines. A non-positive
// limit holds one line.
func NewLogBuffer(limit int) *LogBuffer {
	return &LogBuffer{ring: make([]string, max(1, limit))}
}

// Append stores line, evicting the oldest when the ring is full
func (lb *LogBuffer) Append(line string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.count < len(lb.ring) {
		lb.ring[(lb.head+lb.count)%len(lb.ring)] = line
		lb.count++
		return
	}
	lb.ring[lb.head] = line
	lb.head = (lb.head + 1) % len(lb.ring)
}

// GetAll returns every buffered line, oldest first
func (lb *LogBuffer) GetAll() []string {
	return lb.GetLast(len(lb.ring))
}

// GetLast returns up to n of the newest lines, oldest first
func (lb *LogBuffer) GetLast(n int) []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	n = max(0, min(n, lb.count))
	out := make([]string, n)
	start := lb.head + lb.count - n
	for i := range out {
		out[i] = lb.ring[(start+i)%len(lb.ring)]
	}
	return out
}

// Clear drops every line
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	clear(lb.ring)
	lb.head, lb.count = 0, 0
}

// Len returns the number of buffered lines
func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.count
}

// Cap returns the buffer's capacity
func (lb *LogBuffer) Cap() int {
	return len(lb.ring)
}
