package control

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"gpiobridge/internal/config"
	"gpiobridge/internal/gpio"
	"gpiobridge/internal/mqtt"
)

const testYAML = `
mqtt:
  broker: tcp://localhost:1883
  base_topic: garage
sensors:
  door_open:
    pin: GPIO7
    poll_interval: 5ms
    debounce_time: 1ms
    stable_readings: 1
  door_closed:
    pin: GPIO6
    poll_interval: 5ms
    debounce_time: 1ms
    stable_readings: 1
actors:
  door_relay:
    pin: GPIO4
    entity_type: button
    auto_reset: true
    reset_delay: 20ms
  light:
    pin: GPIO5
    entity_type: switch
  front_door:
    pin: GPIO3
    entity_type: lock
  bell:
    pin: GPIO2
    entity_type: button
covers:
  garage_door:
    actor: door_relay
    sensor_open: door_open
    sensor_closed: door_closed
    verification_count: 1
    stabilization_delay: 1ms
    movement_timeout: 60s
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestController builds a controller over fakes with the garage door
// reporting closed.
func newTestController(t *testing.T) (*Controller, *gpio.FakeChip, *mqtt.FakeTransport) {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	chip := gpio.NewFakeChip()
	chip.SetPin("GPIO6", true) // closed sensor active

	ft := mqtt.NewFakeTransport()
	ctrl, err := New(cfg, chip, ft, nil, testLogger())
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return ctrl, chip, ft
}

func start(t *testing.T, ctrl *Controller) {
	t.Helper()
	if err := ctrl.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(ctrl.Shutdown)
}

// waitFor polls the condition until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartPublishesInitialStates(t *testing.T) {
	ctrl, _, ft := newTestController(t)
	start(t, ctrl)

	for topic, want := range map[string]string{
		"garage/door_open/state":   "OFF",
		"garage/door_closed/state": "ON",
		"garage/garage_door/state": "closed",
		"garage/light/state":       "OFF",
		"garage/front_door/state":  "LOCKED",
	} {
		if got, ok := ft.LastPayload(topic); !ok || got != want {
			t.Errorf("%s: got %q (%v), want %q", topic, got, ok, want)
		}
	}

	// Buttons carry no state.
	if _, ok := ft.LastPayload("garage/bell/state"); ok {
		t.Error("button must not publish a state")
	}
}

func TestStartPublishesDiscovery(t *testing.T) {
	ctrl, _, ft := newTestController(t)
	start(t, ctrl)

	for _, topic := range []string{
		"homeassistant/binary_sensor/gpiobridge/door_open/config",
		"homeassistant/binary_sensor/gpiobridge/door_closed/config",
		"homeassistant/switch/gpiobridge/light/config",
		"homeassistant/lock/gpiobridge/front_door/config",
		"homeassistant/button/gpiobridge/bell/config",
		"homeassistant/cover/gpiobridge/garage_door/config",
	} {
		if _, ok := ft.LastPayload(topic); !ok {
			t.Errorf("missing discovery config on %s", topic)
		}
	}

	// The cover's relay is internal and must not be announced.
	if _, ok := ft.LastPayload("homeassistant/button/gpiobridge/door_relay/config"); ok {
		t.Error("cover relay must not be announced")
	}
}

func TestSwitchCommandsAreIdempotent(t *testing.T) {
	ctrl, chip, ft := newTestController(t)
	start(t, ctrl)
	writes := chip.WriteCount("GPIO5")

	ft.Inject("garage/light/set", "ON")
	if got, _ := chip.LastWrite("GPIO5"); !got.Value {
		t.Fatal("ON did not raise the pin")
	}
	if got, _ := ft.LastPayload("garage/light/state"); got != "ON" {
		t.Errorf("state after ON: got %q", got)
	}

	// Repeated ON is skipped entirely.
	ft.Inject("garage/light/set", "ON")
	if n := chip.WriteCount("GPIO5"); n != writes+1 {
		t.Errorf("redundant ON wrote pin: %d writes, want %d", n, writes+1)
	}

	ft.Inject("garage/light/set", "off") // case-insensitive
	if got, _ := ft.LastPayload("garage/light/state"); got != "OFF" {
		t.Errorf("state after off: got %q", got)
	}
}

func TestLockCommands(t *testing.T) {
	ctrl, chip, ft := newTestController(t)
	start(t, ctrl)

	// The default startup state is locked, which engages the output.
	if got, _ := chip.LastWrite("GPIO3"); !got.Value {
		t.Fatal("startup did not engage the lock output")
	}

	ft.Inject("garage/front_door/set", "UNLOCK")
	if got, _ := chip.LastWrite("GPIO3"); got.Value {
		t.Fatal("UNLOCK did not release the pin")
	}
	if got, _ := ft.LastPayload("garage/front_door/state"); got != "UNLOCKED" {
		t.Errorf("state after UNLOCK: got %q", got)
	}

	ft.Inject("garage/front_door/set", "LOCK")
	if got, _ := chip.LastWrite("GPIO3"); !got.Value {
		t.Fatal("LOCK did not engage the pin")
	}
	if got, _ := ft.LastPayload("garage/front_door/state"); got != "LOCKED" {
		t.Errorf("state after LOCK: got %q", got)
	}
}

func TestLockRestore(t *testing.T) {
	cfg, err := config.Parse([]byte(`
mqtt:
  base_topic: garage
actors:
  front_door:
    pin: GPIO3
    entity_type: lock
    startup_state: restore
  side_door:
    pin: GPIO8
    entity_type: lock
    startup_state: restore
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	chip := gpio.NewFakeChip()
	ft := mqtt.NewFakeTransport()
	ft.SetRetained("garage/front_door/state", "UNLOCKED")
	// side_door has no retained state and falls back to locked.

	ctrl, err := New(cfg, chip, ft, nil, testLogger())
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	start(t, ctrl)

	if w, _ := chip.LastWrite("GPIO3"); w.Value {
		t.Error("front_door was not restored to unlocked")
	}
	if got, _ := ft.LastPayload("garage/front_door/state"); got != "UNLOCKED" {
		t.Errorf("front_door state: got %q", got)
	}
	if w, _ := chip.LastWrite("GPIO8"); !w.Value {
		t.Error("side_door did not fall back to locked")
	}
	if got, _ := ft.LastPayload("garage/side_door/state"); got != "LOCKED" {
		t.Errorf("side_door state: got %q", got)
	}
}

func TestButtonAlwaysPulses(t *testing.T) {
	ctrl, chip, ft := newTestController(t)
	start(t, ctrl)

	ft.Inject("garage/bell/set", "PRESS")
	ft.Inject("garage/bell/set", "PRESS")

	high := 0
	for _, v := range chip.WritesFor("GPIO2") {
		if v {
			high++
		}
	}
	if high != 2 {
		t.Errorf("got %d high writes, want 2", high)
	}
	if _, ok := ft.LastPayload("garage/bell/state"); ok {
		t.Error("button press must not publish a state")
	}
}

func TestUnknownCommandIsDropped(t *testing.T) {
	ctrl, chip, _ := newTestController(t)
	start(t, ctrl)
	writes := chip.WriteCount("GPIO5")

	ctrl.handleCommand("light", "DIM")
	if n := chip.WriteCount("GPIO5"); n != writes {
		t.Errorf("unknown verb wrote pin: %d writes, want %d", n, writes)
	}

	// Entities not on the bus reject direct commands, including the
	// cover's internal relay.
	relayWrites := chip.WriteCount("GPIO4")
	ctrl.handleCommand("nonexistent", "ON")
	ctrl.handleCommand("door_relay", "PRESS")
	if n := chip.WriteCount("GPIO4"); n != relayWrites {
		t.Errorf("internal actor accepted a command: %d writes, want %d", n, relayWrites)
	}
}

func TestCoverOpenCommand(t *testing.T) {
	ctrl, chip, ft := newTestController(t)
	start(t, ctrl)
	relayHighs := func() int {
		n := 0
		for _, v := range chip.WritesFor("GPIO4") {
			if v {
				n++
			}
		}
		return n
	}

	ft.Inject("garage/garage_door/set", "OPEN")
	if relayHighs() != 1 {
		t.Fatalf("relay pulses: got %d, want 1", relayHighs())
	}
	if got, _ := ft.LastPayload("garage/garage_door/state"); got != "opening" {
		t.Errorf("state after OPEN: got %q", got)
	}

	// The relay auto-resets after its delay.
	waitFor(t, func() bool {
		w, err := chip.LastWrite("GPIO4")
		return err == nil && !w.Value
	}, "relay did not auto-reset")
}

func TestSensorChangeDrivesCover(t *testing.T) {
	ctrl, chip, ft := newTestController(t)
	start(t, ctrl)

	// Door leaves the closed switch.
	chip.SetPin("GPIO6", false)
	waitFor(t, func() bool {
		got, _ := ft.LastPayload("garage/door_closed/state")
		return got == "OFF"
	}, "door_closed never published OFF")
	waitFor(t, func() bool {
		got, _ := ft.LastPayload("garage/garage_door/state")
		return got == "opening"
	}, "cover never reported opening")

	// Door reaches the open switch.
	chip.SetPin("GPIO7", true)
	waitFor(t, func() bool {
		got, _ := ft.LastPayload("garage/garage_door/state")
		return got == "open"
	}, "cover never reported open")
}

func TestStartupRestoreFromRetained(t *testing.T) {
	cfg, err := config.Parse([]byte(`
mqtt:
  base_topic: garage
actors:
  light:
    pin: GPIO5
    startup_state: restore
  heater:
    pin: GPIO8
    startup_state: restore
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	chip := gpio.NewFakeChip()
	ft := mqtt.NewFakeTransport()
	ft.SetRetained("garage/light/state", "ON")
	// heater has no retained state and falls back to off.

	ctrl, err := New(cfg, chip, ft, nil, testLogger())
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	start(t, ctrl)

	if w, _ := chip.LastWrite("GPIO5"); !w.Value {
		t.Error("light was not restored to on")
	}
	if w, _ := chip.LastWrite("GPIO8"); w.Value {
		t.Error("heater did not fall back to off")
	}
	if got, _ := ft.LastPayload("garage/light/state"); got != "ON" {
		t.Errorf("restored state publish: got %q", got)
	}
}

func TestStartupStateOn(t *testing.T) {
	cfg, err := config.Parse([]byte(`
mqtt:
  base_topic: garage
actors:
  pump:
    pin: GPIO9
    startup_state: "on"
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	chip := gpio.NewFakeChip()
	ft := mqtt.NewFakeTransport()
	ctrl, err := New(cfg, chip, ft, nil, testLogger())
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	start(t, ctrl)

	if w, _ := chip.LastWrite("GPIO9"); !w.Value {
		t.Error("pump was not driven on at startup")
	}
	if got, _ := ft.LastPayload("garage/pump/state"); got != "ON" {
		t.Errorf("startup state publish: got %q", got)
	}
}

type recorderMap map[string]string

func (r recorderMap) SetEntity(id, state string) { r[id] = state }

func TestRecorderSeesStates(t *testing.T) {
	cfg, err := config.Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	chip := gpio.NewFakeChip()
	chip.SetPin("GPIO6", true)
	rec := recorderMap{}
	ctrl, err := New(cfg, chip, mqtt.NewFakeTransport(), rec, testLogger())
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	start(t, ctrl)

	if rec["garage_door"] != "closed" {
		t.Errorf("recorder cover state: got %q", rec["garage_door"])
	}
	if rec["door_closed"] != "ON" {
		t.Errorf("recorder sensor state: got %q", rec["door_closed"])
	}
}
