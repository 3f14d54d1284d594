package sim

import "github.com/ardnew/softi2c/pkg"

// Target protocol states.
const (
	stateIdle      = iota // Not addressed; waiting for START
	stateAddress          // Shifting in the header byte
	stateAckOut           // Driving ACK for a received byte
	stateReceive          // Shifting in a payload byte
	stateTransmit         // Shifting out a payload byte
	stateMasterAck        // Waiting for the master's acknowledge bit
)

// Memory is a simulated register-file target: 256 bytes addressed by an
// 8-bit pointer that auto-increments after every byte read or written.
//
// In a write transaction the first payload byte sets the pointer and the
// following bytes are stored. In a read transaction bytes are returned from
// the pointer onward until the master answers with NACK.
type Memory struct {
	// Addr is the 7-bit target address.
	Addr uint8

	// Mem is the register file.
	Mem [256]byte

	// Pointer is the current register pointer.
	Pointer uint8

	// NackAt rejects the n-th byte (1-based) received after the header in
	// a write transaction. Zero acknowledges every byte.
	NackAt int

	state      int
	bits       int
	shift      byte
	read       bool
	low        bool
	received   int
	pointerSet bool
	masterAck  bool
}

var _ Target = (*Memory)(nil)

// NewMemory returns an idle memory target answering at addr.
func NewMemory(addr uint8) *Memory {
	return &Memory{Addr: addr}
}

// Start implements Target.
func (m *Memory) Start() {
	m.state = stateAddress
	m.bits = 0
	m.shift = 0
	m.low = false
	m.received = 0
	m.pointerSet = false
}

// Stop implements Target.
func (m *Memory) Stop() {
	m.state = stateIdle
	m.low = false
}

// Rise implements Target.
func (m *Memory) Rise(sda bool) {
	switch m.state {
	case stateAddress, stateReceive:
		if m.bits < 8 {
			m.shift <<= 1
			if sda {
				m.shift |= 1
			}
			m.bits++
		}
	case stateMasterAck:
		m.masterAck = !sda
	}
}

// Fall implements Target.
func (m *Memory) Fall() {
	switch m.state {
	case stateAddress:
		if m.bits < 8 {
			return
		}
		if m.shift>>1 != m.Addr {
			m.state = stateIdle
			return
		}
		m.read = m.shift&1 != 0
		m.ack()

	case stateReceive:
		if m.bits < 8 {
			return
		}
		m.received++
		if m.NackAt > 0 && m.received == m.NackAt {
			pkg.LogDebug(pkg.ComponentSim, "target rejecting byte",
				"addr", m.Addr, "index", m.received)
			m.state = stateIdle
			return
		}
		m.store(m.shift)
		m.ack()

	case stateAckOut:
		m.low = false
		if m.read {
			m.load()
			return
		}
		m.state = stateReceive
		m.bits = 0
		m.shift = 0

	case stateTransmit:
		if m.bits < 8 {
			m.low = m.shift&(0x80>>m.bits) == 0
			m.bits++
			return
		}
		m.low = false
		m.state = stateMasterAck

	case stateMasterAck:
		if m.masterAck {
			m.load()
			return
		}
		m.state = stateIdle
	}
}

// SDA implements Target.
func (m *Memory) SDA() bool {
	return !m.low
}

// ack drives the acknowledge bit for the byte just received.
func (m *Memory) ack() {
	m.low = true
	m.state = stateAckOut
}

// load fetches the byte at the pointer and drives its MSB.
func (m *Memory) load() {
	m.shift = m.Mem[m.Pointer]
	m.Pointer++
	m.state = stateTransmit
	m.low = m.shift&0x80 == 0
	m.bits = 1
}

// store writes a received payload byte.
func (m *Memory) store(b byte) {
	if !m.pointerSet {
		m.Pointer = b
		m.pointerSet = true
		return
	}
	m.Mem[m.Pointer] = b
	m.Pointer++
}

// StuckSDA is a faulty target that holds the data line low permanently.
type StuckSDA struct{}

var _ Target = StuckSDA{}

// Start implements Target.
func (StuckSDA) Start() {}

// Stop implements Target.
func (StuckSDA) Stop() {}

// Rise implements Target.
func (StuckSDA) Rise(bool) {}

// Fall implements Target.
func (StuckSDA) Fall() {}

// SDA implements Target.
func (StuckSDA) SDA() bool { return false }
