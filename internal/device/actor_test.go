package device

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestActorSetWritesPin(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", false), 0, testLogger())

	a.Set(true)
	if !a.State() {
		t.Fatal("state should be true after Set(true)")
	}
	if got := chip.writeCount("GPIO4"); got != 1 {
		t.Fatalf("expected 1 write, got %d", got)
	}
	if v := chip.levels["GPIO4"]; !v {
		t.Fatal("pin should be driven high")
	}

	a.Set(false)
	if a.State() {
		t.Fatal("state should be false after Set(false)")
	}
}

func TestActorInvertedPin(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", true), 0, testLogger())

	a.Set(true)
	if v := chip.levels["GPIO4"]; v {
		t.Fatal("inverted pin should be driven low for logical true")
	}
	if !a.State() {
		t.Fatal("logical state should be true")
	}
}

func TestActorToggle(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", false), 0, testLogger())

	a.Toggle()
	if !a.State() {
		t.Fatal("toggle from false should give true")
	}
	a.Toggle()
	if a.State() {
		t.Fatal("toggle from true should give false")
	}
}

func TestActorLatchWithoutResetDelay(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", false), 0, testLogger())

	a.Set(true)
	time.Sleep(50 * time.Millisecond)
	if !a.State() {
		t.Fatal("latch actor must not auto-reset")
	}
}

func TestActorAutoReset(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", false), 20*time.Millisecond, testLogger())

	a.Set(true)
	if !a.State() {
		t.Fatal("state should be true right after Set(true)")
	}

	deadline := time.Now().Add(time.Second)
	for a.State() {
		if time.Now().After(deadline) {
			t.Fatal("actor never auto-reset")
		}
		time.Sleep(time.Millisecond)
	}
	if got := chip.writeCount("GPIO4"); got != 2 {
		t.Fatalf("expected 2 writes (assert + reset), got %d", got)
	}
}

func TestActorResetTimerRearm(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", false), 50*time.Millisecond, testLogger())

	a.Set(true)
	time.Sleep(25 * time.Millisecond)
	a.Set(true) // restarts the timer

	// 25ms after the second trigger the first timer would have fired;
	// the restart must keep the output asserted.
	time.Sleep(35 * time.Millisecond)
	if !a.State() {
		t.Fatal("re-armed timer reset too early")
	}

	deadline := time.Now().Add(time.Second)
	for a.State() {
		if time.Now().After(deadline) {
			t.Fatal("actor never auto-reset")
		}
		time.Sleep(time.Millisecond)
	}

	// Two asserts, exactly one reset.
	low := 0
	for _, w := range chip.writes {
		if !w.value {
			low++
		}
	}
	if low != 1 {
		t.Fatalf("expected exactly one auto-reset write, got %d", low)
	}
}

func TestActorSetFalseCancelsReset(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", false), 20*time.Millisecond, testLogger())

	a.Set(true)
	a.Set(false)
	writes := chip.writeCount("GPIO4")

	time.Sleep(60 * time.Millisecond)
	if got := chip.writeCount("GPIO4"); got != writes {
		t.Fatalf("canceled timer still wrote the pin: %d -> %d writes", writes, got)
	}
}

func TestActorOnResetHandler(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", false), 10*time.Millisecond, testLogger())

	var calls atomic.Int32
	a.OnReset(func() {
		calls.Add(1)
		a.Set(false)
	})

	a.Set(true)
	deadline := time.Now().Add(time.Second)
	for a.State() {
		if time.Now().After(deadline) {
			t.Fatal("reset handler never ran")
		}
		time.Sleep(time.Millisecond)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 reset callback, got %d", calls.Load())
	}
}

func TestActorCloseCancelsTimer(t *testing.T) {
	chip := newTestChip()
	a := NewActor(NewPin(chip, "GPIO4", false), 10*time.Millisecond, testLogger())

	a.Set(true)
	a.Close()
	time.Sleep(40 * time.Millisecond)
	if !a.State() {
		t.Fatal("closed actor must not fire a pending reset")
	}
}
