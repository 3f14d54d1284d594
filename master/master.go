package master

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

// Recommended clock range for bit-banged standard/fast-mode compatible
// buses. Frequencies outside this range are accepted with a warning.
const (
	MinFrequency = 8      // Hz
	MaxFrequency = 50_000 // Hz
)

// DefaultStretchTimeout bounds how long a target may hold SCL low. It
// matches the SMBus clock-low timeout.
const DefaultStretchTimeout = 35 * time.Millisecond

// Addressing and transfer limits.
const (
	MaxAddress      = 0x7F   // Highest 7-bit target address
	MaxTransferSize = 0xFFFF // Longest payload per operation
)

// Config holds master settings.
type Config struct {
	// Frequency is the SCL frequency in Hz. Must be non-zero.
	Frequency uint32

	// StretchTimeout bounds clock stretching. Zero selects
	// DefaultStretchTimeout; a negative value waits without bound.
	StretchTimeout time.Duration
}

// Master is a bit-banged I2C bus master driving two open-drain lines
// through a HAL.
//
// A Master is not safe for concurrent use. Masters bound to distinct line
// pairs are independent.
type Master struct {
	hal        hal.HAL
	frequency  uint32
	halfPeriod time.Duration

	// Clock stretching
	stretch  bool
	maxPolls int

	started bool
}

// New creates a master on the given HAL. It fails with an error wrapping
// [pkg.ErrConfiguration] if the HAL is nil or reports a missing function,
// or if the frequency is zero. The HAL is borrowed, not owned.
func New(h hal.HAL, cfg Config) (*Master, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil HAL", pkg.ErrConfiguration)
	}
	if v, ok := h.(hal.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", pkg.ErrConfiguration, err)
		}
	}
	if cfg.Frequency == 0 {
		return nil, fmt.Errorf("%w: zero frequency", pkg.ErrConfiguration)
	}
	if cfg.Frequency < MinFrequency || cfg.Frequency > MaxFrequency {
		pkg.LogWarn(pkg.ComponentMaster, "frequency outside recommended range",
			"frequency", cfg.Frequency,
			"min", MinFrequency,
			"max", MaxFrequency)
	}

	m := &Master{
		hal:        h,
		frequency:  cfg.Frequency,
		halfPeriod: HalfPeriod(cfg.Frequency),
	}
	if cr, ok := h.(hal.ClockReader); ok {
		m.stretch = cr.ReadsClock()
	}
	m.maxPolls = stretchPolls(cfg.StretchTimeout, m.halfPeriod)

	pkg.LogDebug(pkg.ComponentMaster, "master initialized",
		"frequency", m.frequency,
		"half_period", m.halfPeriod,
		"clock_stretching", m.stretch)
	return m, nil
}

// HalfPeriod returns the time SCL spends in each level at frequency Hz,
// round(500000/frequency) microseconds.
func HalfPeriod(frequency uint32) time.Duration {
	if frequency == 0 {
		return 0
	}
	f := uint64(frequency)
	return time.Duration((500_000+f/2)/f) * time.Microsecond
}

// stretchPolls converts a stretch timeout into a number of clock polls,
// one per half period. A negative result means unbounded.
func stretchPolls(timeout, halfPeriod time.Duration) int {
	if timeout < 0 {
		return -1
	}
	if timeout == 0 {
		timeout = DefaultStretchTimeout
	}
	step := halfPeriod
	if step <= 0 {
		step = time.Microsecond
	}
	polls := int((timeout + step - 1) / step)
	if polls < 1 {
		polls = 1
	}
	return polls
}

// Close releases the bus and drops the HAL. If a transaction is open it is
// terminated with a STOP first, so the bus is never left driven low.
// Close is idempotent; other operations return [pkg.ErrClosed] afterward.
func (m *Master) Close() error {
	if m.hal == nil {
		return nil
	}
	var err error
	if m.started {
		err = m.Stop(context.Background())
	}
	m.hal = nil
	pkg.LogDebug(pkg.ComponentMaster, "master closed")
	return err
}

// Frequency returns the configured SCL frequency in Hz.
func (m *Master) Frequency() uint32 {
	return m.frequency
}

// HalfPeriod returns the derived SCL half period.
func (m *Master) HalfPeriod() time.Duration {
	return m.halfPeriod
}

// Closed reports whether Close has been called.
func (m *Master) Closed() bool {
	return m.hal == nil
}

// Started reports whether a transaction is open.
func (m *Master) Started() bool {
	return m.started
}

// ClockStretching reports whether the master waits for targets holding
// SCL low.
func (m *Master) ClockStretching() bool {
	return m.stretch
}

// check validates the common preconditions of a public transfer.
func (m *Master) check(addr uint8, n int) error {
	if m.hal == nil {
		return pkg.ErrClosed
	}
	if addr > MaxAddress {
		return fmt.Errorf("%w: 0x%02x", pkg.ErrInvalidAddress, addr)
	}
	if n > MaxTransferSize {
		return fmt.Errorf("%w: length %d exceeds %d", pkg.ErrInvalidParameter, n, MaxTransferSize)
	}
	return nil
}
