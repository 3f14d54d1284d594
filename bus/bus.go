// Package bus adapts a [master.Master] to the I2C bus interfaces used by
// device driver ecosystems:
//
//   - periph.io: [i2c.Bus] and [i2c.BusCloser], plus [i2c.Pins] when the
//     HAL exposes its GPIO pins. The bus can be registered with i2creg.
//   - TinyGo drivers: [drivers.I2C], plus the ReadRegister and
//     WriteRegister helpers many TinyGo drivers still call.
//   - reef-pi: ReadBytes, WriteBytes, ReadFromReg, WriteToReg and Close.
//
// Unlike the master, which reports short counts, every method here fails
// unless the whole transfer completed. A Bus serializes access with a
// mutex so it can be shared between drivers.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"github.com/ardnew/softi2c/master"
	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

const maxTenBitAddress = 0x3FF

// Bus is a shared, mutex-protected software I2C bus.
type Bus struct {
	mu  sync.Mutex
	hal hal.HAL
	cfg master.Config
	m   *master.Master

	// Timeout bounds each transfer when non-zero. The deadline is checked
	// between bytes and while a target stretches the clock.
	Timeout time.Duration
}

var (
	_ i2c.BusCloser = (*Bus)(nil)
	_ i2c.Pins      = (*Bus)(nil)
	_ conn.Resource = (*Bus)(nil)
	_ drivers.I2C   = (*Bus)(nil)
)

// New creates a bus on h. See [master.New] for the configuration rules.
func New(h hal.HAL, cfg master.Config) (*Bus, error) {
	m, err := master.New(h, cfg)
	if err != nil {
		return nil, err
	}
	return &Bus{hal: h, cfg: cfg, m: m}, nil
}

// Register makes the bus openable by name through i2creg. The bus is
// created on the first Open; later Opens share it.
func Register(name string, number int, h hal.HAL, cfg master.Config) error {
	var (
		once sync.Once
		b    *Bus
		err  error
	)
	return i2creg.Register(name, nil, number, func() (i2c.BusCloser, error) {
		once.Do(func() { b, err = New(h, cfg) })
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}

func (b *Bus) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("softi2c(%s)", physic.Frequency(b.cfg.Frequency)*physic.Hertz)
}

// Halt implements conn.Resource. Transfers are synchronous, so there is
// nothing in flight to stop.
func (b *Bus) Halt() error {
	return nil
}

// Master returns the underlying master. Callers must not use it
// concurrently with the bus.
func (b *Bus) Master() *master.Master {
	return b.m
}

// Close implements i2c.BusCloser. It closes the master; the HAL is left
// to its owner.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.m.Close()
}

// SetSpeed implements i2c.Bus by rebuilding the master at frequency f.
// A closed bus stays closed.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	hz := f / physic.Hertz
	if hz <= 0 || hz > physic.Frequency(^uint32(0)) {
		return fmt.Errorf("%w: bus speed %s", pkg.ErrInvalidParameter, f)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.m.Closed() {
		return pkg.ErrClosed
	}
	cfg := b.cfg
	cfg.Frequency = uint32(hz)
	m, err := master.New(b.hal, cfg)
	if err != nil {
		return err
	}
	b.cfg, b.m = cfg, m
	pkg.LogDebug(pkg.ComponentBus, "speed changed", "frequency", cfg.Frequency)
	return nil
}

// Tx implements i2c.Bus and drivers.I2C: w is written, then r is read
// after a repeated START. Either may be empty.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	a, err := address(addr)
	if err != nil {
		return err
	}
	return b.run(func(ctx context.Context) error {
		_, err := b.m.WriteRead(ctx, a, w, r)
		return err
	})
}

// ReadRegister fills buf from register reg of addr.
func (b *Bus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.run(func(ctx context.Context) error {
		_, err := b.m.ReadReg(ctx, addr, reg, buf)
		return err
	})
}

// WriteRegister writes buf to register reg of addr.
func (b *Bus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.run(func(ctx context.Context) error {
		_, err := b.m.WriteReg(ctx, addr, reg, buf)
		return err
	})
}

// ReadBytes reads num bytes from addr.
func (b *Bus) ReadBytes(addr byte, num int) ([]byte, error) {
	if num < 0 {
		return nil, fmt.Errorf("%w: negative length %d", pkg.ErrInvalidParameter, num)
	}
	buf := make([]byte, num)
	err := b.run(func(ctx context.Context) error {
		_, err := b.m.Read(ctx, addr, buf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBytes writes value to addr.
func (b *Bus) WriteBytes(addr byte, value []byte) error {
	return b.run(func(ctx context.Context) error {
		_, err := b.m.Write(ctx, addr, value)
		return err
	})
}

// ReadFromReg fills value from register reg of addr.
func (b *Bus) ReadFromReg(addr, reg byte, value []byte) error {
	return b.ReadRegister(addr, reg, value)
}

// WriteToReg writes value to register reg of addr.
func (b *Bus) WriteToReg(addr, reg byte, value []byte) error {
	return b.WriteRegister(addr, reg, value)
}

// SCL implements i2c.Pins. It returns gpio.INVALID unless the HAL drives
// GPIO pins.
func (b *Bus) SCL() gpio.PinIO {
	if p, ok := b.hal.(i2c.Pins); ok {
		return p.SCL()
	}
	return gpio.INVALID
}

// SDA implements i2c.Pins. It returns gpio.INVALID unless the HAL drives
// GPIO pins.
func (b *Bus) SDA() gpio.PinIO {
	if p, ok := b.hal.(i2c.Pins); ok {
		return p.SDA()
	}
	return gpio.INVALID
}

// run serializes fn on the bus under the configured timeout.
func (b *Bus) run(fn func(ctx context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctx := context.Background()
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	return fn(ctx)
}

// address narrows a periph/TinyGo address to 7 bits.
func address(addr uint16) (uint8, error) {
	switch {
	case addr > maxTenBitAddress:
		return 0, fmt.Errorf("%w: 0x%x", pkg.ErrInvalidAddress, addr)
	case addr > master.MaxAddress:
		return 0, fmt.Errorf("%w: 10-bit address 0x%x", pkg.ErrNotSupported, addr)
	}
	return uint8(addr), nil
}
