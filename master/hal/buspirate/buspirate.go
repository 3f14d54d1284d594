// Package buspirate drives the bus through a Bus Pirate in raw bitbang
// mode, so a bus can be exercised from any host with a serial port.
//
// The Bus Pirate's MOSI pin is used as SDA and CLK as SCL. Open-drain
// behavior comes from the pin direction: a line is driven low by making
// it an output at 0 and released by making it an input. The on-board
// pull-ups are enabled together with the power supply, so Vpu must be
// connected.
//
// Every line write or read is one command byte and one reply byte on the
// serial link, so bus rates are limited to a few hundred hertz in practice.
package buspirate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

// DefaultBaud is the Bus Pirate's factory serial rate.
const DefaultBaud = 115200

// Bitbang protocol commands and pin bits.
const (
	cmdReset   = 0x00 // Enter (or stay in) bitbang mode
	cmdExit    = 0x0F // Reset to the user terminal
	cmdConfig  = 0x40 // 010xxxxx: pin directions, 1 = input
	cmdPins    = 0x80 // 1xxxxxxx: power, pull-ups and output levels
	pinPower   = 0x40
	pinPullup  = 0x20
	pinAUX     = 0x10
	pinMOSI    = 0x08
	pinCLK     = 0x04
	pinMISO    = 0x02
	pinCS      = 0x01
	enterTries = 20
)

var bbioVersion = []byte("BBIO1")

// ErrHandshake is returned when the device does not enter bitbang mode.
var ErrHandshake = errors.New("bus pirate did not enter bitbang mode")

// Adapter implements [hal.HAL] on a Bus Pirate.
//
// Like any HAL it has no error channel: the first serial error is latched
// and reported by [Adapter.Err], and reads return released after it.
type Adapter struct {
	port io.ReadWriteCloser

	mu  sync.Mutex
	dir byte // Current direction bits; outputs are always 0
	err error
}

var (
	_ hal.HAL         = (*Adapter)(nil)
	_ hal.ClockReader = (*Adapter)(nil)
)

// Open opens the named serial device and calls [New].
func Open(name string, baud int) (*Adapter, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	a, err := New(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return a, nil
}

// New enters bitbang mode on port, turns on power and pull-ups and
// releases both lines. The adapter owns port from then on.
func New(port io.ReadWriteCloser) (*Adapter, error) {
	a := &Adapter{port: port}
	if err := a.enter(); err != nil {
		return nil, err
	}
	// Every pin an input: both lines released.
	a.dir = pinAUX | pinMOSI | pinCLK | pinMISO | pinCS
	if _, err := a.exchange(cmdConfig | a.dir); err != nil {
		return nil, err
	}
	if _, err := a.exchange(cmdPins | pinPower | pinPullup); err != nil {
		return nil, err
	}
	pkg.LogInfo(pkg.ComponentHAL, "bus pirate in bitbang mode")
	return a, nil
}

// enter sends reset bytes until the device answers with the bitbang
// version string.
func (a *Adapter) enter() error {
	var reply []byte
	buf := make([]byte, 16)
	for i := 0; i < enterTries; i++ {
		if _, err := a.port.Write([]byte{cmdReset}); err != nil {
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		n, err := a.port.Read(buf)
		reply = append(reply, buf[:n]...)
		if bytes.Contains(reply, bbioVersion) {
			if f, ok := a.port.(interface{ Flush() error }); ok {
				f.Flush()
			}
			pkg.LogDebug(pkg.ComponentHAL, "bitbang mode entered", "tries", i+1)
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
	}
	return fmt.Errorf("%w: got %q", ErrHandshake, reply)
}

// exchange sends one command and returns the pin-state reply.
func (a *Adapter) exchange(cmd byte) (byte, error) {
	if _, err := a.port.Write([]byte{cmd}); err != nil {
		return 0, err
	}
	var reply [1]byte
	if _, err := io.ReadFull(a.port, reply[:]); err != nil {
		return 0, fmt.Errorf("reply to 0x%02x: %w", cmd, err)
	}
	return reply[0], nil
}

// WriteLine implements hal.HAL.
func (a *Adapter) WriteLine(line hal.Line, level bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return
	}
	bit := lineBit(line)
	if level {
		a.dir |= bit
	} else {
		a.dir &^= bit
	}
	if _, err := a.exchange(cmdConfig | a.dir); err != nil {
		a.fail(err)
	}
}

// ReadLine implements hal.HAL.
func (a *Adapter) ReadLine(line hal.Line) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return hal.Release
	}
	state, err := a.exchange(cmdConfig | a.dir)
	if err != nil {
		a.fail(err)
		return hal.Release
	}
	return state&lineBit(line) != 0
}

// Delay implements hal.HAL.
func (a *Adapter) Delay(d time.Duration) {
	time.Sleep(d)
}

// ReadsClock implements hal.ClockReader.
func (a *Adapter) ReadsClock() bool {
	return true
}

// Err returns the first serial error, if any.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Close returns the device to its user terminal and closes the port.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.port == nil {
		return nil
	}
	_, werr := a.port.Write([]byte{cmdReset, cmdExit})
	err := a.port.Close()
	a.port = nil
	if a.err == nil {
		a.err = pkg.ErrClosed
	}
	if werr != nil {
		return werr
	}
	return err
}

func (a *Adapter) fail(err error) {
	a.err = err
	pkg.LogError(pkg.ComponentHAL, "bus pirate link failed", "error", err)
}

func lineBit(line hal.Line) byte {
	if line == hal.SCL {
		return pinCLK
	}
	return pinMOSI
}
