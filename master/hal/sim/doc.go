// Package sim provides a simulated two-wire bus implementing [hal.HAL].
//
// The simulator resolves both lines as wired-AND: a line is high only when
// the master and every attached [Target] release it. Each master write is
// followed by edge detection, so targets observe the same events a real
// device would:
//
//   - START: SDA falls while SCL is high
//   - STOP: SDA rises while SCL is high
//   - Rise: SCL goes high (targets sample SDA)
//   - Fall: SCL goes low (targets change what they drive on SDA)
//
// A passive monitor decodes the traffic into [Event] values (START,
// repeated START, STOP, and each 9-bit byte frame with its acknowledge
// bit), which tests use to assert what actually appeared on the wire.
//
// # Usage
//
//	mem := sim.NewMemory(0x50)
//	bus := sim.New(mem)
//	m, _ := master.New(bus, master.Config{Frequency: 100_000})
//
//	n, err := m.WriteReg(ctx, 0x50, 0x10, []byte{0xde, 0xad})
//	fmt.Println(bus.Frames())
//
// # Timing
//
// Delay never sleeps. It accumulates the requested durations so tests can
// check timing through [Bus.Elapsed] without waiting on the wall clock.
//
// # Clock Stretching
//
// [Bus.SetStretch] makes the simulated targets hold SCL low for a number
// of master polls after each clock release, or forever. Masters observe
// the stretch through ReadLine(hal.SCL).
package sim
