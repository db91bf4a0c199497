package ports

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Fallback preview range used when the configured bounds are unset.
const (
	DefaultStart = 3100
	DefaultEnd   = 3999
	MaxPort      = 65535
)

// ErrNoPortAvailable is returned when every port in a range is taken.
var ErrNoPortAvailable = errors.New("no port available")

// Range is an inclusive span of TCP ports.
type Range struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// String renders the range as "start-end"
func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Contains reports whether port falls inside the range
func (r Range) Contains(port int) bool {
	return port >= r.Start && port <= r.End
}

// Size returns the number of ports in the range
func (r Range) Size() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// ResolveRange applies the fallback rules to configured bounds. A zero value
// means "unset". An inverted range keeps the start and widens the end by the
// width of the default range.
func ResolveRange(start, end int) Range {
	r := Range{Start: DefaultStart, End: DefaultEnd}
	if start != 0 {
		r.Start = max(1, start)
	}
	if end != 0 {
		r.End = min(MaxPort, end)
	}
	if r.End < r.Start {
		r.End = min(r.Start+(DefaultEnd-DefaultStart), MaxPort)
	}
	return r
}

// ParsePort parses a port number, tolerating surrounding quotes.
// Returns 0 if the value is not a port in 1..65535.
func ParsePort(value string) int {
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port <= 0 || port > MaxPort {
		return 0
	}
	return port
}

// IsPortAvailable checks if a port can be bound on loopback
func IsPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// FindAvailablePort returns the first bindable port in [start, end], probing
// in ascending order.
func FindAvailablePort(start, end int) (int, error) {
	return findAvailable(start, end, nil)
}

func findAvailable(start, end int, skip func(int) bool) (int, error) {
	for port := max(1, start); port <= min(end, MaxPort); port++ {
		if skip != nil && skip(port) {
			continue
		}
		if IsPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w in range %d-%d", ErrNoPortAvailable, start, end)
}

// CountAvailable returns how many ports in the range can currently be bound
func CountAvailable(r Range) int {
	n := 0
	for port := r.Start; port <= r.End; port++ {
		if IsPortAvailable(port) {
			n++
		}
	}
	return n
}

// GetPortStatus returns a human-readable status of a port
func GetPortStatus(port int) string {
	if IsPortAvailable(port) {
		return fmt.Sprintf("Port %d is available", port)
	}
	return fmt.Sprintf("Port %d is in use", port)
}

// Allocator hands out ports from a range and remembers which ones it has
// handed out, so two previews starting at the same moment never probe their
// way onto the same port before either child has bound it.
type Allocator struct {
	mu       sync.Mutex
	rng      Range
	reserved map[int]string
}

// NewAllocator creates an allocator over the given range
func NewAllocator(r Range) *Allocator {
	return &Allocator{
		rng:      r,
		reserved: make(map[int]string),
	}
}

// Range returns the allocator's range
func (a *Allocator) Range() Range {
	return a.rng
}

// Reserve finds a free port for owner and records it as taken.
func (a *Allocator) Reserve(owner string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	port, err := findAvailable(a.rng.Start, a.rng.End, func(p int) bool {
		_, taken := a.reserved[p]
		return taken
	})
	if err != nil {
		return 0, err
	}
	a.reserved[port] = owner
	return port, nil
}

// Claim records port as taken by owner without probing it. It fails if a
// different owner already holds it.
func (a *Allocator) Claim(port int, owner string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if current, taken := a.reserved[port]; taken && current != owner {
		return false
	}
	a.reserved[port] = owner
	return true
}

// Release frees port if owner still holds it
func (a *Allocator) Release(port int, owner string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reserved[port] == owner {
		delete(a.reserved, port)
	}
}

// Reserved returns the number of ports currently held
func (a *Allocator) Reserved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reserved)
}
