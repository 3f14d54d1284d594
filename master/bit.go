package master

import (
	"context"

	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

// writeBit clocks one bit out on SDA.
//
// SDA only changes while SCL is low. Ends with SCL high and bit on SDA.
func (m *Master) writeBit(ctx context.Context, bit bool) error {
	m.hal.WriteLine(hal.SCL, hal.Low)
	m.hal.Delay(m.halfPeriod)
	m.hal.WriteLine(hal.SDA, bit)
	if err := m.releaseClock(ctx); err != nil {
		return err
	}
	m.hal.Delay(m.halfPeriod)
	return nil
}

// readBit releases SDA and samples it after one clock cycle.
//
// SCL is pulled low before SDA is released so a held-low SDA cannot rise
// while SCL is high. Ends with SCL high.
func (m *Master) readBit(ctx context.Context) (bool, error) {
	m.hal.WriteLine(hal.SCL, hal.Low)
	m.hal.WriteLine(hal.SDA, hal.Release)
	m.hal.Delay(m.halfPeriod)
	if err := m.releaseClock(ctx); err != nil {
		return false, err
	}
	m.hal.Delay(m.halfPeriod)
	return m.hal.ReadLine(hal.SDA), nil
}

// releaseClock releases SCL and, when the HAL can read the clock, waits
// for any target stretching it. The wait polls once per half period and
// gives up after maxPolls polls or when ctx is done.
func (m *Master) releaseClock(ctx context.Context) error {
	m.hal.WriteLine(hal.SCL, hal.Release)
	if !m.stretch {
		return nil
	}
	for polls := 0; !m.hal.ReadLine(hal.SCL); polls++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.maxPolls >= 0 && polls >= m.maxPolls {
			pkg.LogWarn(pkg.ComponentMaster, "clock held low",
				"polls", polls,
				"half_period", m.halfPeriod)
			return pkg.ErrTimeout
		}
		m.hal.Delay(m.halfPeriod)
	}
	return nil
}
