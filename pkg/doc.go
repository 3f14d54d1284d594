// Package pkg provides shared utilities for the softi2c bus master.
//
// This package contains common functionality used by the master engine,
// its HAL implementations and the bus adapters, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for I2C protocol and configuration failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentMaster, "bus released", "addr", 0x50)
//
// # Errors
//
// Bus errors are defined as sentinel values. A missing acknowledge is
// reported as a [*NackError] that matches [ErrNACK]:
//
//	n, err := m.Write(ctx, 0x50, data)
//	if errors.Is(err, pkg.ErrNACK) {
//	    // n bytes were acknowledged before the target stopped responding
//	}
package pkg
