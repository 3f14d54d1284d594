// Package hal defines the line-level hardware abstraction consumed by the
// bit-banged I2C master.
package hal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Line identifies one of the two bus wires.
type Line uint8

// Bus lines.
const (
	SCL Line = iota // Serial clock
	SDA             // Serial data
)

// String returns the conventional line name.
func (l Line) String() string {
	switch l {
	case SCL:
		return "SCL"
	case SDA:
		return "SDA"
	default:
		return "unknown"
	}
}

// Level aliases for WriteLine and ReadLine.
const (
	Low     = false // Driven low
	Release = true  // Released; pulled high unless another device drives it
)

// HAL defines the Hardware Abstraction Layer consumed by the bus master.
//
// Both lines have open-drain semantics: WriteLine(line, false) drives the
// line low, WriteLine(line, true) releases it so the external pull-up (or
// another device holding it low) decides the level. ReadLine returns the
// instantaneous electrical level. Delay blocks the caller for at least d.
//
// The master borrows the HAL for its lifetime; ownership stays with the
// caller. There is no error channel: hardware failures are the HAL's
// concern.
type HAL interface {
	// WriteLine drives line low (false) or releases it (true).
	WriteLine(line Line, level bool)

	// ReadLine returns the current level of line.
	ReadLine(line Line) bool

	// Delay blocks for at least d.
	Delay(d time.Duration)
}

// ClockReader is implemented by HALs that can report whether
// ReadLine(SCL) reflects the wire. Masters only wait for clock stretching
// when the HAL reports true.
type ClockReader interface {
	ReadsClock() bool
}

// Validator is implemented by HALs that can detect missing capabilities
// before use.
type Validator interface {
	Validate() error
}

// ErrMissingFunc indicates a required function of a [Funcs] table is nil.
var ErrMissingFunc = errors.New("missing HAL function")

// Funcs is a HAL built from individual line and delay functions.
//
// WriteSDA, WriteSCL, ReadSDA and Sleep are required. ReadSCL is optional;
// when nil the master cannot observe clock stretching and ReadLine(SCL)
// reports the last level written.
type Funcs struct {
	WriteSDA func(level bool)
	WriteSCL func(level bool)
	ReadSDA  func() bool
	ReadSCL  func() bool
	Sleep    func(d time.Duration)

	scl bool
}

// Validate returns an error wrapping [ErrMissingFunc] naming every
// required function that is nil.
func (f *Funcs) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil function table", ErrMissingFunc)
	}
	var missing []string
	if f.WriteSDA == nil {
		missing = append(missing, "WriteSDA")
	}
	if f.WriteSCL == nil {
		missing = append(missing, "WriteSCL")
	}
	if f.ReadSDA == nil {
		missing = append(missing, "ReadSDA")
	}
	if f.Sleep == nil {
		missing = append(missing, "Sleep")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFunc, strings.Join(missing, ", "))
	}
	return nil
}

// ReadsClock reports whether ReadSCL is set.
func (f *Funcs) ReadsClock() bool {
	return f.ReadSCL != nil
}

// WriteLine implements HAL.
func (f *Funcs) WriteLine(line Line, level bool) {
	switch line {
	case SCL:
		f.scl = level
		f.WriteSCL(level)
	case SDA:
		f.WriteSDA(level)
	}
}

// ReadLine implements HAL.
func (f *Funcs) ReadLine(line Line) bool {
	switch line {
	case SCL:
		if f.ReadSCL == nil {
			return f.scl
		}
		return f.ReadSCL()
	case SDA:
		return f.ReadSDA()
	}
	return Release
}

// Delay implements HAL.
func (f *Funcs) Delay(d time.Duration) {
	f.Sleep(d)
}
