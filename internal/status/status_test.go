package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{Broker: "tcp://localhost:1883", BaseTopic: "garage", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.BaseTopic != "garage" {
		t.Errorf("Config.BaseTopic: got %q", snap.Config.BaseTopic)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if len(snap.Entities) != 0 {
		t.Errorf("expected no entities, got %d", len(snap.Entities))
	}
}

func TestRegisterAndSetEntity(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Register("door_open", "sensor")
	tr.Register("garage_door", "cover")
	tr.Register("door_open", "sensor") // duplicate is a no-op

	tr.SetEntity("garage_door", "closed")
	tr.SetEntity("door_open", "OFF")

	snap := tr.Snapshot()
	if len(snap.Entities) != 2 {
		t.Fatalf("entities: got %d, want 2", len(snap.Entities))
	}
	// Registration order is preserved.
	if snap.Entities[0].ID != "door_open" || snap.Entities[0].State != "OFF" {
		t.Errorf("entity 0: got %+v", snap.Entities[0])
	}
	if snap.Entities[1].ID != "garage_door" || snap.Entities[1].Kind != "cover" {
		t.Errorf("entity 1: got %+v", snap.Entities[1])
	}
}

func TestSetEntityUnregistered(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetEntity("surprise", "ON")

	snap := tr.Snapshot()
	if len(snap.Entities) != 1 || snap.Entities[0].State != "ON" {
		t.Errorf("got %+v", snap.Entities)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Register("light", "switch")
	tr.SetEntity("light", "ON")

	snap1 := tr.Snapshot()
	tr.SetEntity("light", "OFF")

	if snap1.Entities[0].State != "ON" {
		t.Error("snapshot should be a copy; entity state was modified")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Entities: []Entity{
			{ID: "garage_door", Kind: "cover", State: "closed"},
			{ID: "light", Kind: "switch"},
		},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{Broker: "tcp://localhost:1883", BaseTopic: "garage"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(parsed.Status.Entities) != 2 {
		t.Fatalf("entities: got %d, want 2", len(parsed.Status.Entities))
	}
	if parsed.Status.Entities[0].State != "closed" {
		t.Errorf("entity 0 state: got %q", parsed.Status.Entities[0].State)
	}
	// Empty states render as unknown.
	if parsed.Status.Entities[1].State != "unknown" {
		t.Errorf("entity 1 state: got %q, want unknown", parsed.Status.Entities[1].State)
	}
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(time.Minute)}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw)
	inner := raw["status"].(map[string]interface{})
	if _, exists := inner["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if inner["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", inner["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Register("light", "switch")
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.SetEntity("light", "ON")
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
