package sim

import (
	"testing"
	"time"

	"github.com/ardnew/softi2c/master/hal"
)

// wire drives a Bus the way a master would, one edge at a time.
type wire struct {
	b *Bus
}

func (w wire) start() {
	w.b.WriteLine(hal.SDA, hal.Release)
	w.b.WriteLine(hal.SCL, hal.Release)
	w.b.WriteLine(hal.SDA, hal.Low)
}

func (w wire) restart() {
	w.b.WriteLine(hal.SCL, hal.Low)
	w.b.WriteLine(hal.SDA, hal.Release)
	w.b.WriteLine(hal.SCL, hal.Release)
	w.b.WriteLine(hal.SDA, hal.Low)
}

func (w wire) stop() {
	w.b.WriteLine(hal.SCL, hal.Low)
	w.b.WriteLine(hal.SDA, hal.Low)
	w.b.WriteLine(hal.SCL, hal.Release)
	w.b.WriteLine(hal.SDA, hal.Release)
}

func (w wire) bit(v bool) {
	w.b.WriteLine(hal.SCL, hal.Low)
	w.b.WriteLine(hal.SDA, v)
	w.b.WriteLine(hal.SCL, hal.Release)
}

func (w wire) sample() bool {
	w.b.WriteLine(hal.SCL, hal.Low)
	w.b.WriteLine(hal.SDA, hal.Release)
	w.b.WriteLine(hal.SCL, hal.Release)
	return w.b.ReadLine(hal.SDA)
}

// send clocks b out and returns true on ACK.
func (w wire) send(b byte) bool {
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		w.bit(b&mask != 0)
	}
	return !w.sample()
}

// recv clocks a byte in and answers with ACK unless last.
func (w wire) recv(last bool) byte {
	var b byte
	for i := 0; i < 8; i++ {
		b <<= 1
		if w.sample() {
			b |= 1
		}
	}
	w.bit(last)
	return b
}

// =============================================================================
// Line Resolution Tests
// =============================================================================

func TestBus_Idle(t *testing.T) {
	b := New()
	if !b.Idle() {
		t.Error("new bus is not idle")
	}
	if !b.ReadLine(hal.SCL) || !b.ReadLine(hal.SDA) {
		t.Error("new bus lines are not released")
	}
	if !b.ReadsClock() {
		t.Error("ReadsClock() = false")
	}
	if b.Transitions() != 0 || len(b.Events()) != 0 {
		t.Error("new bus has recorded activity")
	}
}

func TestBus_WiredAND(t *testing.T) {
	b := New(StuckSDA{})
	if b.ReadLine(hal.SDA) {
		t.Error("SDA released while a target holds it")
	}
	b.WriteLine(hal.SDA, hal.Release)
	if b.ReadLine(hal.SDA) {
		t.Error("master release overrode a target holding SDA")
	}
	if b.Transitions() != 0 {
		t.Errorf("Transitions() = %d, want 0", b.Transitions())
	}

	b.WriteLine(hal.SCL, hal.Low)
	if b.ReadLine(hal.SCL) || b.Transitions() != 1 {
		t.Error("SCL did not follow the master")
	}
}

func TestBus_Delay(t *testing.T) {
	b := New()
	b.Delay(5 * time.Microsecond)
	b.Delay(time.Millisecond)
	if got, want := b.Elapsed(), time.Millisecond+5*time.Microsecond; got != want {
		t.Errorf("Elapsed() = %v, want %v", got, want)
	}
	b.Reset()
	if b.Elapsed() != 0 {
		t.Error("Reset() did not clear elapsed time")
	}
}

// =============================================================================
// Monitor Tests
// =============================================================================

func TestMonitor_Conditions(t *testing.T) {
	b := New()
	w := wire{b}

	w.start()
	w.send(0x42)
	w.start()
	w.stop()

	if got, want := Trace(b.Events()), "START 0x42 NACK RESTART STOP"; got != want {
		t.Errorf("trace = %q, want %q", got, want)
	}
	if frames := b.Frames(); len(frames) != 1 || frames[0].Data != 0x42 {
		t.Errorf("Frames() = %v", frames)
	}
	if !b.Idle() {
		t.Error("bus not idle after STOP")
	}
}

func TestMonitor_IgnoresTrafficOutsideTransaction(t *testing.T) {
	b := New()
	w := wire{b}

	w.send(0xff)
	if len(b.Events()) != 0 {
		t.Errorf("events before START: %s", Trace(b.Events()))
	}
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		e    Event
		want string
	}{
		{Event{Kind: EventStart}, "START"},
		{Event{Kind: EventRestart}, "RESTART"},
		{Event{Kind: EventStop}, "STOP"},
		{Event{Kind: EventByte, Data: 0x0a, Ack: true}, "0x0a ACK"},
		{Event{Kind: EventByte, Data: 0xff}, "0xff NACK"},
		{Event{Kind: EventKind(99)}, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.e, got, tt.want)
		}
	}
}

// =============================================================================
// Clock Stretching Tests
// =============================================================================

func TestStretch_Polls(t *testing.T) {
	b := New()
	b.SetStretch(2)

	b.WriteLine(hal.SCL, hal.Low)
	b.WriteLine(hal.SCL, hal.Release)

	var reads []bool
	for i := 0; i < 4; i++ {
		reads = append(reads, b.ReadLine(hal.SCL))
	}
	want := []bool{false, false, true, true}
	for i := range want {
		if reads[i] != want[i] {
			t.Fatalf("SCL reads = %v, want %v", reads, want)
		}
	}
}

func TestStretch_Forever(t *testing.T) {
	b := New()
	b.SetStretch(StretchForever)

	b.WriteLine(hal.SCL, hal.Low)
	b.WriteLine(hal.SCL, hal.Release)
	for i := 0; i < 1000; i++ {
		if b.ReadLine(hal.SCL) {
			t.Fatalf("SCL released after %d polls", i)
		}
	}

	b.WriteLine(hal.SCL, hal.Low)
	b.SetStretch(0)
	b.WriteLine(hal.SCL, hal.Release)
	if !b.ReadLine(hal.SCL) {
		t.Error("SCL still held after stretching was disabled")
	}
}

func TestAttach(t *testing.T) {
	b := New()
	b.Attach(StuckSDA{})
	if b.ReadLine(hal.SDA) || b.Transitions() != 1 {
		t.Error("Attach() did not resolve the new target")
	}
	if len(b.Events()) != 1 || b.Events()[0].Kind != EventStart {
		t.Errorf("attaching a stuck target while SCL is high = %s, want START", Trace(b.Events()))
	}
}
