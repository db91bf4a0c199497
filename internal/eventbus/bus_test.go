package eventbus

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestPublishFiltersByProject(t *testing.T) {
	bus := NewBus()

	var forA, all []Event
	bus.Subscribe("a", func(e Event) { forA = append(forA, e) })
	bus.Subscribe("", func(e Event) { all = append(all, e) })

	bus.Publish("a", StatusEvent(PreviewStarting, "Starting preview server...", nil))
	bus.Publish("b", StatusEvent(PreviewStarting, "Starting preview server...", nil))

	if len(forA) != 1 || forA[0].ProjectID != "a" {
		t.Errorf("project subscriber got %v", forA)
	}
	if len(all) != 2 {
		t.Errorf("wildcard subscriber expected 2 events, got %d", len(all))
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	var n int
	id := bus.Subscribe("", func(Event) { n++ })

	bus.Publish("a", StatusEvent(PreviewStopped, "Preview server stopped", nil))
	bus.Unsubscribe(id)
	bus.Publish("a", StatusEvent(PreviewStopped, "Preview server stopped", nil))

	if n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected no subscribers")
	}
}

func TestHistoryIsBoundedPerProject(t *testing.T) {
	bus := NewBus()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < DefaultHistoryLimit+25; i++ {
		bus.Publish("a", LogEvent("a", "stdout", fmt.Sprintf("line %d", i), ts))
	}
	bus.Publish("b", LogEvent("b", "stderr", "other", ts))

	h := bus.History("a", 0)
	if len(h) != DefaultHistoryLimit {
		t.Fatalf("expected %d events, got %d", DefaultHistoryLimit, len(h))
	}
	if got := h[len(h)-1].Data["content"]; got != fmt.Sprintf("line %d", DefaultHistoryLimit+24) {
		t.Errorf("newest event has content %v", got)
	}

	last := bus.History("a", 3)
	if len(last) != 3 || last[2].Data["content"] != h[len(h)-1].Data["content"] {
		t.Errorf("History with limit returned %v", last)
	}
	if len(bus.History("b", 0)) != 1 {
		t.Errorf("project b history leaked or missing")
	}
	if len(bus.History("missing", 10)) != 0 {
		t.Errorf("unknown project should have empty history")
	}
}

func TestLogEventShape(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := LogEvent("p1", "stderr", "boom", ts)

	raw, err := ev.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Type != "log" {
		t.Errorf("type = %q", decoded.Type)
	}
	want := map[string]any{
		"level":     "stderr",
		"content":   "boom",
		"source":    "preview",
		"projectId": "p1",
		"timestamp": "2026-03-01T12:00:00Z",
	}
	for k, v := range want {
		if decoded.Data[k] != v {
			t.Errorf("data[%s] = %v; want %v", k, decoded.Data[k], v)
		}
	}
}

func TestStatusEventMetadata(t *testing.T) {
	ev := StatusEvent(PreviewRunning, "Preview server running at http://localhost:3100",
		map[string]any{"url": "http://localhost:3100", "port": 3100})

	if ev.Type != EventStatus || ev.Data["status"] != PreviewRunning {
		t.Errorf("unexpected event %+v", ev)
	}
	meta, ok := ev.Data["metadata"].(map[string]any)
	if !ok || meta["port"] != 3100 {
		t.Errorf("metadata missing: %v", ev.Data)
	}

	if _, ok := StatusEvent(PreviewStarting, "Starting preview server...", nil).Data["metadata"]; ok {
		t.Errorf("nil metadata should be omitted")
	}
}

func TestSubscribeWithHistory(t *testing.T) {
	bus := NewBus()
	bus.Publish("a", StatusEvent(PreviewStarting, "Starting preview server...", nil))
	bus.Publish("b", StatusEvent(PreviewStarting, "Starting preview server...", nil))

	var live []Event
	id, history := bus.SubscribeWithHistory("a", 10, func(e Event) { live = append(live, e) })
	if id == "" || len(history) != 1 || history[0].ProjectID != "a" {
		t.Fatalf("unexpected history %v", history)
	}

	bus.Publish("a", StatusEvent(PreviewRunning, "Preview server running", nil))
	if len(live) != 1 || live[0].Data["status"] != PreviewRunning {
		t.Errorf("live delivery = %v", live)
	}
}
