// Package periphio drives the bus over two periph.io GPIO pins.
//
// Open-drain outputs are emulated the usual way for push-pull GPIO: a line
// is released by switching the pin to an input with the pull-up enabled and
// driven low by switching it to an output at gpio.Low. The external pull-up
// resistors required by the bus still have to be fitted.
//
// Pins are resolved by name through gpioreg, so host.Init from
// periph.io/x/host/v3 must have run before [Open] is called.
package periphio

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3/cpu"

	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

// SpinThreshold is the longest delay performed by busy waiting. Longer
// delays sleep.
const SpinThreshold = time.Millisecond

// Lines implements [hal.HAL] over a clock and a data pin.
//
// The HAL contract has no error channel, so the first pin error is latched
// and reported by [Lines.Err]; later writes are still attempted.
type Lines struct {
	scl gpio.PinIO
	sda gpio.PinIO

	mu  sync.Mutex
	err error
}

var (
	_ hal.HAL         = (*Lines)(nil)
	_ hal.ClockReader = (*Lines)(nil)
	_ hal.Validator   = (*Lines)(nil)
)

// New returns lines driving scl and sda. Both lines are released.
func New(scl, sda gpio.PinIO) (*Lines, error) {
	l := &Lines{scl: scl, sda: sda}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	l.WriteLine(hal.SCL, hal.Release)
	l.WriteLine(hal.SDA, hal.Release)
	if err := l.Err(); err != nil {
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentHAL, "gpio lines ready",
		"scl", scl.Name(), "sda", sda.Name())
	return l, nil
}

// Open resolves the named pins with gpioreg and calls [New].
func Open(sclName, sdaName string) (*Lines, error) {
	scl := gpioreg.ByName(sclName)
	if scl == nil {
		return nil, fmt.Errorf("%w: unknown pin %q", pkg.ErrConfiguration, sclName)
	}
	sda := gpioreg.ByName(sdaName)
	if sda == nil {
		return nil, fmt.Errorf("%w: unknown pin %q", pkg.ErrConfiguration, sdaName)
	}
	return New(scl, sda)
}

// Validate implements hal.Validator.
func (l *Lines) Validate() error {
	switch {
	case l.scl == nil:
		return fmt.Errorf("%w: nil SCL pin", hal.ErrMissingFunc)
	case l.sda == nil:
		return fmt.Errorf("%w: nil SDA pin", hal.ErrMissingFunc)
	}
	return nil
}

// WriteLine implements hal.HAL.
func (l *Lines) WriteLine(line hal.Line, level bool) {
	p := l.pin(line)
	var err error
	if level {
		err = p.In(gpio.PullUp, gpio.NoEdge)
	} else {
		err = p.Out(gpio.Low)
	}
	if err != nil {
		l.fail(line, err)
	}
}

// ReadLine implements hal.HAL.
func (l *Lines) ReadLine(line hal.Line) bool {
	return l.pin(line).Read() == gpio.High
}

// Delay implements hal.HAL.
func (l *Lines) Delay(d time.Duration) {
	if d < SpinThreshold {
		cpu.Nanospin(d)
		return
	}
	time.Sleep(d)
}

// ReadsClock implements hal.ClockReader.
func (l *Lines) ReadsClock() bool {
	return true
}

// Err returns the first error reported by a pin, if any.
func (l *Lines) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// SCL returns the clock pin.
func (l *Lines) SCL() gpio.PinIO {
	return l.scl
}

// SDA returns the data pin.
func (l *Lines) SDA() gpio.PinIO {
	return l.sda
}

func (l *Lines) String() string {
	return fmt.Sprintf("gpio(%s, %s)", l.scl.Name(), l.sda.Name())
}

func (l *Lines) pin(line hal.Line) gpio.PinIO {
	if line == hal.SCL {
		return l.scl
	}
	return l.sda
}

func (l *Lines) fail(line hal.Line, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return
	}
	l.err = fmt.Errorf("%s: %w", line, err)
	pkg.LogError(pkg.ComponentHAL, "pin write failed",
		"line", line.String(), "error", err)
}
