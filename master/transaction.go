package master

import (
	"context"
	"errors"

	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

// clearPulses walks a target through the rest of a byte and its
// acknowledge slot.
const clearPulses = 9

// Start generates a START condition: SDA falls while SCL is high. If a
// transaction is already open a repeated START is generated instead.
//
// Ends with SCL high and SDA low.
func (m *Master) Start(ctx context.Context) error {
	if m.hal == nil {
		return pkg.ErrClosed
	}
	if m.started {
		return m.restart(ctx)
	}
	m.hal.WriteLine(hal.SDA, hal.Release)
	if err := m.releaseClock(ctx); err != nil {
		return err
	}
	m.hal.Delay(m.halfPeriod)
	m.hal.WriteLine(hal.SDA, hal.Low)
	m.hal.Delay(m.halfPeriod)
	m.started = true
	return nil
}

// Stop generates a STOP condition: SDA rises while SCL is high. It is safe
// to call at any point of a transaction to abort it.
//
// A target still driving SDA, such as one addressed for reading, is
// clocked with SDA released until it lets go, and the STOP is reissued.
// [pkg.ErrBusFault] is returned if SDA stays low through a whole byte.
// If a target holds SCL past the stretch timeout, SDA is still released and
// the timeout error returned. Ends with both lines released.
func (m *Master) Stop(ctx context.Context) error {
	if m.hal == nil {
		return pkg.ErrClosed
	}
	err := m.stop(ctx)
	if err == nil && !m.hal.ReadLine(hal.SDA) {
		err = m.clearBus(ctx)
	}
	m.started = false
	return err
}

func (m *Master) stop(ctx context.Context) error {
	m.hal.WriteLine(hal.SCL, hal.Low)
	m.hal.Delay(m.halfPeriod)
	m.hal.WriteLine(hal.SDA, hal.Low)
	m.hal.Delay(m.halfPeriod)
	err := m.releaseClock(ctx)
	m.hal.Delay(m.halfPeriod)
	m.hal.WriteLine(hal.SDA, hal.Release)
	m.hal.Delay(m.halfPeriod)
	return err
}

// clearBus clocks out whatever a target is transmitting. SDA stays
// released, so a transmitting target sees NACK on its acknowledge slot and
// goes idle. Each time SDA is seen high the STOP is retried.
func (m *Master) clearBus(ctx context.Context) error {
	for pulse := 1; pulse <= clearPulses; pulse++ {
		sda, err := m.readBit(ctx)
		if err != nil {
			return err
		}
		if !sda {
			continue
		}
		if err := m.stop(ctx); err != nil {
			return err
		}
		if m.hal.ReadLine(hal.SDA) {
			pkg.LogDebug(pkg.ComponentMaster, "bus cleared", "pulses", pulse)
			return nil
		}
	}
	pkg.LogError(pkg.ComponentMaster, "data line held low", "pulses", clearPulses)
	return pkg.ErrBusFault
}

// restart generates a repeated START without releasing the bus.
func (m *Master) restart(ctx context.Context) error {
	m.hal.WriteLine(hal.SCL, hal.Low)
	m.hal.Delay(m.halfPeriod)
	m.hal.WriteLine(hal.SDA, hal.Release)
	m.hal.Delay(m.halfPeriod)
	if err := m.releaseClock(ctx); err != nil {
		return err
	}
	m.hal.Delay(m.halfPeriod)
	m.hal.WriteLine(hal.SDA, hal.Low)
	m.hal.Delay(m.halfPeriod)
	return nil
}

// ConnectSlave sends the header byte addressing addr for writing or
// reading and reports whether the target acknowledged.
//
// It requires an open transaction and returns [pkg.ErrNotStarted] without
// touching the lines otherwise.
func (m *Master) ConnectSlave(ctx context.Context, addr uint8, isWrite bool) (bool, error) {
	if m.hal == nil {
		return false, pkg.ErrClosed
	}
	if !m.started {
		return false, pkg.ErrNotStarted
	}
	if addr > MaxAddress {
		return false, pkg.ErrInvalidAddress
	}
	header := addr << 1
	if !isWrite {
		header |= 1
	}
	return m.writeByte(ctx, header)
}

// Write sends data to addr in a single transaction and returns the number
// of bytes acknowledged. Transmission stops at the first NACK, which is
// reported as a [*pkg.NackError]. A NACK of the address returns 0.
func (m *Master) Write(ctx context.Context, addr uint8, data []byte) (int, error) {
	if err := m.check(addr, len(data)); err != nil {
		return 0, err
	}
	return m.transact(ctx, addr, func() (int, error) {
		if err := m.connect(ctx, addr, true); err != nil {
			return 0, err
		}
		return m.send(ctx, addr, data)
	})
}

// Read fills buf from addr in a single transaction. Every byte but the
// last is acknowledged; the last is answered with NACK. It returns
// len(buf), or 0 if the address was not acknowledged.
func (m *Master) Read(ctx context.Context, addr uint8, buf []byte) (int, error) {
	if err := m.check(addr, len(buf)); err != nil {
		return 0, err
	}
	return m.transact(ctx, addr, func() (int, error) {
		if err := m.connect(ctx, addr, false); err != nil {
			return 0, err
		}
		return m.receive(ctx, buf)
	})
}

// WriteReg writes reg followed by data to addr in a single transaction.
// The register byte is not counted: the result is the number of data
// bytes acknowledged, 0 if the address or register byte was rejected.
func (m *Master) WriteReg(ctx context.Context, addr, reg uint8, data []byte) (int, error) {
	if err := m.check(addr, len(data)); err != nil {
		return 0, err
	}
	return m.transact(ctx, addr, func() (int, error) {
		if err := m.connect(ctx, addr, true); err != nil {
			return 0, err
		}
		if err := m.pointer(ctx, addr, reg); err != nil {
			return 0, err
		}
		return m.send(ctx, addr, data)
	})
}

// ReadReg writes the register pointer reg to addr, then issues a repeated
// START and reads len(buf) bytes. buf is filled in bus order: the first
// byte received is stored in buf[0].
func (m *Master) ReadReg(ctx context.Context, addr, reg uint8, buf []byte) (int, error) {
	if err := m.check(addr, len(buf)); err != nil {
		return 0, err
	}
	return m.transact(ctx, addr, func() (int, error) {
		if err := m.connect(ctx, addr, true); err != nil {
			return 0, err
		}
		if err := m.pointer(ctx, addr, reg); err != nil {
			return 0, err
		}
		if err := m.restart(ctx); err != nil {
			return 0, err
		}
		if err := m.connect(ctx, addr, false); err != nil {
			return 0, err
		}
		return m.receive(ctx, buf)
	})
}

// WriteRead sends w to addr, then issues a repeated START and fills r. An
// empty r degrades to [Master.Write] and an empty w to [Master.Read].
//
// The result counts acknowledged bytes of w plus bytes received into r.
// ReadReg is WriteRead with a one-byte w whose byte is not counted.
func (m *Master) WriteRead(ctx context.Context, addr uint8, w, r []byte) (int, error) {
	switch {
	case len(r) == 0:
		return m.Write(ctx, addr, w)
	case len(w) == 0:
		return m.Read(ctx, addr, r)
	}
	if err := m.check(addr, max(len(w), len(r))); err != nil {
		return 0, err
	}
	return m.transact(ctx, addr, func() (int, error) {
		if err := m.connect(ctx, addr, true); err != nil {
			return 0, err
		}
		if n, err := m.send(ctx, addr, w); err != nil {
			return n, err
		}
		if err := m.restart(ctx); err != nil {
			return len(w), err
		}
		if err := m.connect(ctx, addr, false); err != nil {
			return len(w), err
		}
		n, err := m.receive(ctx, r)
		return len(w) + n, err
	})
}

// transact runs body between a START and a STOP. The STOP is issued on
// every path once the START succeeded, even when ctx is already done.
//
// A failed repeated START leaves the earlier transaction open, so it is
// stopped as well.
func (m *Master) transact(ctx context.Context, addr uint8, body func() (int, error)) (int, error) {
	open := m.started
	if err := m.Start(ctx); err != nil {
		if open {
			m.Stop(context.WithoutCancel(ctx))
		}
		return 0, err
	}
	n, err := body()
	if serr := m.Stop(context.WithoutCancel(ctx)); err == nil {
		err = serr
	}
	if err != nil {
		if errors.Is(err, pkg.ErrNACK) {
			pkg.LogDebug(pkg.ComponentMaster, "transfer aborted",
				"addr", addr, "count", n, "error", err)
		} else {
			pkg.LogWarn(pkg.ComponentMaster, "transfer failed",
				"addr", addr, "count", n, "error", err)
		}
	}
	return n, err
}

// connect addresses addr and converts a NACK into a [*pkg.NackError].
// A done ctx aborts before the header is sent.
func (m *Master) connect(ctx context.Context, addr uint8, isWrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	acked, err := m.ConnectSlave(ctx, addr, isWrite)
	if err != nil {
		return err
	}
	if !acked {
		return &pkg.NackError{Addr: addr, Phase: pkg.PhaseAddress}
	}
	return nil
}

// pointer sends the register address byte.
func (m *Master) pointer(ctx context.Context, addr, reg uint8) error {
	acked, err := m.writeByte(ctx, reg)
	if err != nil {
		return err
	}
	if !acked {
		return &pkg.NackError{Addr: addr, Phase: pkg.PhaseRegister}
	}
	return nil
}

// send writes data until the first NACK or until ctx is done.
func (m *Master) send(ctx context.Context, addr uint8, data []byte) (int, error) {
	for i, b := range data {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		acked, err := m.writeByte(ctx, b)
		if err != nil {
			return i, err
		}
		if !acked {
			return i, &pkg.NackError{Addr: addr, Phase: pkg.PhaseData, Index: i}
		}
	}
	return len(data), nil
}

// receive fills buf, acknowledging all bytes but the last. A done ctx
// ends the read between bytes.
func (m *Master) receive(ctx context.Context, buf []byte) (int, error) {
	for i := range buf {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		b, err := m.readByte(ctx, i == len(buf)-1)
		buf[i] = b
		if err != nil {
			return i, err
		}
	}
	return len(buf), nil
}
