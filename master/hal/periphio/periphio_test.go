package periphio

import (
	"context"
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/ardnew/softi2c/master"
	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

// odPin is a test pin that reads back what it was last told to do, like a
// line with a pull-up and nothing else attached.
type odPin struct {
	gpiotest.Pin
	released bool
	pull     gpio.Pull
	fail     error
}

func newPin(name string) *odPin {
	return &odPin{Pin: gpiotest.Pin{N: name}}
}

func (p *odPin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.released = true
	p.pull = pull
	return nil
}

func (p *odPin) Out(l gpio.Level) error {
	if p.fail != nil {
		return p.fail
	}
	p.released = bool(l)
	return nil
}

func (p *odPin) Read() gpio.Level {
	return gpio.Level(p.released)
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_ReleasesLines(t *testing.T) {
	scl, sda := newPin("SCL"), newPin("SDA")

	l, err := New(scl, sda)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, p := range []*odPin{scl, sda} {
		if !p.released || p.pull != gpio.PullUp {
			t.Errorf("%s not released with pull-up", p.Name())
		}
	}
	if l.SCL() != scl || l.SDA() != sda {
		t.Error("pin accessors do not return the configured pins")
	}
	if got, want := l.String(), "gpio(SCL, SDA)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNew_NilPins(t *testing.T) {
	if _, err := New(nil, newPin("SDA")); !errors.Is(err, hal.ErrMissingFunc) {
		t.Errorf("New(nil, sda) error = %v, want ErrMissingFunc", err)
	}
	if _, err := New(newPin("SCL"), nil); !errors.Is(err, hal.ErrMissingFunc) {
		t.Errorf("New(scl, nil) error = %v, want ErrMissingFunc", err)
	}
}

func TestOpen(t *testing.T) {
	scl := &gpiotest.Pin{N: "SOFTI2C_TEST_SCL", Num: 9001}
	sda := &gpiotest.Pin{N: "SOFTI2C_TEST_SDA", Num: 9002}
	for _, p := range []gpio.PinIO{scl, sda} {
		if err := gpioreg.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p, err)
		}
	}
	defer gpioreg.Unregister(scl.Name())
	defer gpioreg.Unregister(sda.Name())

	l, err := Open("SOFTI2C_TEST_SCL", "SOFTI2C_TEST_SDA")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if l.SCL().Name() != "SOFTI2C_TEST_SCL" || l.SDA().Name() != "SOFTI2C_TEST_SDA" {
		t.Errorf("Open() resolved %s", l)
	}

	if _, err := Open("SOFTI2C_TEST_SCL", "NO_SUCH_PIN"); !errors.Is(err, pkg.ErrConfiguration) {
		t.Errorf("Open(unknown) error = %v, want ErrConfiguration", err)
	}
}

// =============================================================================
// Line Tests
// =============================================================================

func TestLines_OpenDrain(t *testing.T) {
	scl, sda := newPin("SCL"), newPin("SDA")
	l, _ := New(scl, sda)

	tests := []struct {
		line  hal.Line
		level bool
		pin   *odPin
	}{
		{hal.SCL, hal.Low, scl},
		{hal.SDA, hal.Low, sda},
		{hal.SCL, hal.Release, scl},
		{hal.SDA, hal.Release, sda},
	}

	for _, tt := range tests {
		l.WriteLine(tt.line, tt.level)
		if tt.pin.released != tt.level {
			t.Errorf("WriteLine(%s, %v) left pin released = %v", tt.line, tt.level, tt.pin.released)
		}
		if got := l.ReadLine(tt.line); got != tt.level {
			t.Errorf("ReadLine(%s) = %v, want %v", tt.line, got, tt.level)
		}
	}
	if !l.ReadsClock() {
		t.Error("ReadsClock() = false")
	}
}

func TestLines_LatchesFirstError(t *testing.T) {
	scl, sda := newPin("SCL"), newPin("SDA")
	l, _ := New(scl, sda)

	first := errors.New("pin busy")
	sda.fail = first
	l.WriteLine(hal.SDA, hal.Low)
	sda.fail = errors.New("second failure")
	l.WriteLine(hal.SDA, hal.Low)

	if err := l.Err(); !errors.Is(err, first) {
		t.Errorf("Err() = %v, want %v", err, first)
	}
}

// =============================================================================
// Master Tests
// =============================================================================

func TestMaster_NoTarget(t *testing.T) {
	l, _ := New(newPin("SCL"), newPin("SDA"))
	m, err := master.New(l, master.Config{Frequency: 100_000})
	if err != nil {
		t.Fatalf("master.New() error = %v", err)
	}
	if !m.ClockStretching() {
		t.Error("master over gpio lines does not wait for clock stretching")
	}

	n, err := m.Write(context.Background(), 0x50, []byte{0x55})
	if n != 0 || !errors.Is(err, pkg.ErrNACK) {
		t.Errorf("Write() = %d, %v; want 0, ErrNACK", n, err)
	}
	if !l.ReadLine(hal.SCL) || !l.ReadLine(hal.SDA) {
		t.Error("Write() left a line driven")
	}
	if err := l.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}
