package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the type of event
type EventType string

const (
	EventLog    EventType = "log"
	EventStatus EventType = "status"
)

// Lifecycle statuses carried by status events
const (
	PreviewStarting = "preview_starting"
	PreviewRunning  = "preview_running"
	PreviewStopped  = "preview_stopped"
	PreviewError    = "preview_error"
)

// Event is one message on a project's stream
type Event struct {
	Type      EventType      `json:"type"`
	ProjectID string         `json:"projectId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// JSON returns the event as JSON
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// LogEvent builds the event for one preview output line
func LogEvent(projectID, level, content string, ts time.Time) Event {
	return Event{
		Type:      EventLog,
		ProjectID: projectID,
		Timestamp: ts,
		Data: map[string]any{
			"level":     level,
			"content":   content,
			"source":    "preview",
			"projectId": projectID,
			"timestamp": ts.UTC().Format(time.RFC3339),
		},
	}
}

// StatusEvent builds a lifecycle event. metadata may be nil.
func StatusEvent(status, message string, metadata map[string]any) Event {
	data := map[string]any{
		"status":  status,
		"message": message,
	}
	if metadata != nil {
		data["metadata"] = metadata
	}
	return Event{
		Type:      EventStatus,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Subscriber handles events. It runs on the publisher's goroutine and must
// not block.
type Subscriber func(event Event)

type subscription struct {
	projectID string // empty means every project
	handler   Subscriber
}

// DefaultHistoryLimit is how many events are kept per project
const DefaultHistoryLimit = 200

// Bus fans preview events out to subscribers and remembers the most recent
// ones per project so late subscribers can catch up.
type Bus struct {
	mu           sync.RWMutex
	subscribers  map[string]*subscription
	history      map[string][]Event
	historyLimit int
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers:  make(map[string]*subscription),
		history:      make(map[string][]Event),
		historyLimit: DefaultHistoryLimit,
	}
}

// Subscribe registers handler for one project, or for all projects when
// projectID is empty. It returns the subscription id.
func (b *Bus) Subscribe(projectID string, handler Subscriber) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subscribers[id] = &subscription{projectID: projectID, handler: handler}
	return id
}

// SubscribeWithHistory registers handler and returns the project's recent
// history in one step, so no event is both replayed and delivered or lost
// between the two.
func (b *Bus) SubscribeWithHistory(projectID string, limit int, handler Subscriber) (string, []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subscribers[id] = &subscription{projectID: projectID, handler: handler}
	return id, b.historyLocked(projectID, limit)
}

// Unsubscribe removes a subscriber
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Publish records ev in the project's history and delivers it to matching
// subscribers in publish order.
func (b *Bus) Publish(projectID string, ev Event) {
	if ev.ProjectID == "" {
		ev.ProjectID = projectID
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	h := append(b.history[projectID], ev)
	if len(h) > b.historyLimit {
		h = h[len(h)-b.historyLimit:]
	}
	b.history[projectID] = h

	matching := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.projectID == "" || sub.projectID == projectID {
			matching = append(matching, sub.handler)
		}
	}
	b.mu.Unlock()

	for _, handler := range matching {
		handler(ev)
	}
}

// History returns up to limit recent events for a project, oldest first.
// A non-positive limit returns everything kept.
func (b *Bus) History(projectID string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.historyLocked(projectID, limit)
}

func (b *Bus) historyLocked(projectID string, limit int) []Event {
	h := b.history[projectID]
	if limit <= 0 || limit > len(h) {
		limit = len(h)
	}
	out := make([]Event, limit)
	copy(out, h[len(h)-limit:])
	return out
}

// SubscriberCount returns the number of active subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
