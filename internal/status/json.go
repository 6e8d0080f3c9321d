package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Entities      []EntityJSON `json:"entities"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Config        ConfigJSON   `json:"config"`
}

// EntityJSON is the JSON representation of one entity.
type EntityJSON struct {
	ID    string `json:"id"`
	Kind  string `json:"kind,omitempty"`
	State string `json:"state"`
}

// MQTTStatus reports broker connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of bridge config.
type ConfigJSON struct {
	Broker    string `json:"broker"`
	BaseTopic string `json:"base_topic"`
	HTTPAddr  string `json:"http_addr,omitempty"`
	Driver    string `json:"driver,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	entities := make([]EntityJSON, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		state := e.State
		if state == "" {
			state = "unknown"
		}
		entities = append(entities, EntityJSON{ID: e.ID, Kind: e.Kind, State: state})
	}

	return StatusInner{
		Entities:      entities,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Broker:    snap.Config.Broker,
			BaseTopic: snap.Config.BaseTopic,
			HTTPAddr:  snap.Config.HTTPAddr,
			Driver:    snap.Config.Driver,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a bus system event such as
// startup or shutdown.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
