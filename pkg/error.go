package pkg

import (
	"errors"
	"fmt"
)

// I2C bus errors.
var (
	// ErrConfiguration indicates a master could not be built from the given
	// HAL and settings.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNACK indicates a byte was not acknowledged by the addressed target.
	ErrNACK = errors.New("NACK received")

	// ErrTimeout indicates a target held the clock line low for longer than
	// the configured stretch timeout.
	ErrTimeout = errors.New("clock stretch timeout")

	// ErrBusFault indicates the data line did not follow the level driven by
	// the master during an acknowledge bit.
	ErrBusFault = errors.New("bus fault")

	// ErrNotStarted indicates an operation that requires an open transaction
	// was called while the bus was idle.
	ErrNotStarted = errors.New("transaction not started")

	// ErrClosed indicates the master has been closed.
	ErrClosed = errors.New("master closed")

	// ErrInvalidAddress indicates a target address outside the 7-bit range.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")
)

// Phase identifies the part of a transaction in which a byte was sent.
type Phase int

// Transaction phases.
const (
	PhaseAddress  Phase = iota // Address header byte
	PhaseRegister              // Register pointer byte
	PhaseData                  // Payload byte
)

// String returns a string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseAddress:
		return "address"
	case PhaseRegister:
		return "register"
	case PhaseData:
		return "data"
	default:
		return "unknown"
	}
}

// NackError describes a byte that was not acknowledged.
type NackError struct {
	Addr  uint8 // 7-bit target address
	Phase Phase // Phase of the rejected byte
	Index int   // Payload index of the rejected byte (PhaseData only)
}

// Error implements error.
func (e *NackError) Error() string {
	if e.Phase == PhaseData {
		return fmt.Sprintf("%v: addr 0x%02x %s byte %d", ErrNACK, e.Addr, e.Phase, e.Index)
	}
	return fmt.Sprintf("%v: addr 0x%02x %s", ErrNACK, e.Addr, e.Phase)
}

// Unwrap returns [ErrNACK].
func (e *NackError) Unwrap() error {
	return ErrNACK
}
