// Package master implements a bit-banged I2C bus master.
//
// The master generates the clock and data waveforms entirely in software,
// toggling two open-drain lines through a [hal.HAL] supplied by the caller.
// It is layered as:
//
//   - Bit engine: one clock cycle writing or sampling SDA
//   - Byte engine: 8 bits MSB first plus the acknowledge bit
//   - Transaction engine: START, STOP, repeated START, addressing and the
//     composite Write, Read, WriteReg, ReadReg and WriteRead operations
//
// Probe and Scan build on Write to discover targets.
//
// # Usage
//
//	m, err := master.New(h, master.Config{Frequency: 100_000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	buf := make([]byte, 2)
//	n, err := m.ReadReg(ctx, 0x41, 0x0e, buf)
//
// # Return Values
//
// Every transfer returns the number of bytes transferred or acknowledged.
// A target that stops acknowledging ends the transfer early: the count is
// short and the error is a [*pkg.NackError] matching [pkg.ErrNACK]. No
// operation retries.
//
// Every operation that issues a START issues a STOP before it returns,
// including when it aborts on a NACK, a timeout or a cancelled context.
// The context is checked before the address byte, between payload bytes
// and while waiting on a stretched clock. A target still transmitting when
// the STOP is due is clocked out with NACK first.
//
// # Timing
//
// Each SCL level lasts one half period, round(500000/f) microseconds for a
// frequency of f Hz, realized through the HAL's Delay. Operations block
// until the waveform is complete.
//
// # Clock Stretching
//
// When the HAL implements [hal.ClockReader] and reports true, every clock
// release waits for SCL to actually rise. The wait is bounded by
// Config.StretchTimeout and by the operation's context; exceeding it fails
// with [pkg.ErrTimeout].
//
// # Concurrency
//
// A Master must not be used from multiple goroutines at once. Use
// [github.com/ardnew/softi2c/bus.Bus] for serialized shared access.
package master
