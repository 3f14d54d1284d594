package master

import (
	"context"

	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

// writeByte sends b MSB first and samples the acknowledge bit. Low on the
// ninth clock is ACK.
func (m *Master) writeByte(ctx context.Context, b byte) (bool, error) {
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		if err := m.writeBit(ctx, b&mask != 0); err != nil {
			return false, err
		}
	}
	nack, err := m.readBit(ctx)
	if err != nil {
		return false, err
	}
	return !nack, nil
}

// readByte receives one byte MSB first, then drives the acknowledge bit:
// ACK (low) when more bytes follow, NACK (released) when final is set.
//
// The driven level is read back while SCL is high. A mismatch means
// another device is holding SDA and is reported as [pkg.ErrBusFault].
func (m *Master) readByte(ctx context.Context, final bool) (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		bit, err := m.readBit(ctx)
		if err != nil {
			return b, err
		}
		b <<= 1
		if bit {
			b |= 1
		}
	}
	if err := m.writeBit(ctx, final); err != nil {
		return b, err
	}
	if m.hal.ReadLine(hal.SDA) != final {
		return b, pkg.ErrBusFault
	}
	return b, nil
}
