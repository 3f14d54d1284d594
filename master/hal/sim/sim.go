package sim

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ardnew/softi2c/master/hal"
	"github.com/ardnew/softi2c/pkg"
)

// Target is a simulated device attached to the bus.
type Target interface {
	// Start is called on a START or repeated START condition.
	Start()

	// Stop is called on a STOP condition.
	Stop()

	// Rise is called when SCL goes high. sda is the resolved data level.
	Rise(sda bool)

	// Fall is called when SCL goes low.
	Fall()

	// SDA returns the level the target drives on the data line
	// (true releases it).
	SDA() bool
}

// StretchForever makes targets hold SCL low indefinitely.
const StretchForever = -1

// Bus is a simulated open-drain bus implementing [hal.HAL].
type Bus struct {
	targets []Target

	// Master-side outputs (true = released)
	scl, sda bool

	// Resolved line levels
	lineSCL, lineSDA bool

	// Clock stretching
	stretch  int
	holding  bool
	holdLeft int

	// Trace
	monitor     monitor
	transitions int
	elapsed     time.Duration
}

var (
	_ hal.HAL         = (*Bus)(nil)
	_ hal.ClockReader = (*Bus)(nil)
)

// New creates an idle bus with the given targets attached.
func New(targets ...Target) *Bus {
	b := &Bus{
		targets: targets,
		scl:     true,
		sda:     true,
		lineSCL: true,
		lineSDA: true,
	}
	for _, t := range targets {
		b.lineSDA = b.lineSDA && t.SDA()
	}
	return b
}

// Attach adds a target to the bus.
func (b *Bus) Attach(t Target) {
	b.targets = append(b.targets, t)
	b.update()
}

// SetStretch makes targets hold SCL low for polls reads of the clock line
// after every clock release. Zero disables stretching; [StretchForever]
// never releases.
func (b *Bus) SetStretch(polls int) {
	b.stretch = polls
}

// WriteLine implements hal.HAL.
func (b *Bus) WriteLine(line hal.Line, level bool) {
	switch line {
	case hal.SCL:
		if level && !b.scl && b.stretch != 0 {
			b.holding = true
			b.holdLeft = b.stretch
		}
		if !level {
			b.holding = false
		}
		b.scl = level
	case hal.SDA:
		b.sda = level
	}
	b.update()
}

// ReadLine implements hal.HAL.
func (b *Bus) ReadLine(line hal.Line) bool {
	switch line {
	case hal.SCL:
		if b.holding {
			if b.holdLeft == 0 {
				b.holding = false
				b.update()
			} else if b.holdLeft > 0 {
				b.holdLeft--
			}
		}
		return b.lineSCL
	case hal.SDA:
		return b.lineSDA
	}
	return hal.Release
}

// Delay implements hal.HAL. It records d without sleeping.
func (b *Bus) Delay(d time.Duration) {
	b.elapsed += d
}

// ReadsClock implements hal.ClockReader.
func (b *Bus) ReadsClock() bool {
	return true
}

// Idle reports whether both lines are high.
func (b *Bus) Idle() bool {
	return b.lineSCL && b.lineSDA
}

// Transitions returns the number of level changes seen on either line.
func (b *Bus) Transitions() int {
	return b.transitions
}

// Elapsed returns the total duration requested through Delay.
func (b *Bus) Elapsed() time.Duration {
	return b.elapsed
}

// Events returns the decoded bus trace.
func (b *Bus) Events() []Event {
	return b.monitor.events
}

// Frames returns only the byte frames of the decoded bus trace.
func (b *Bus) Frames() []Event {
	var frames []Event
	for _, e := range b.monitor.events {
		if e.Kind == EventByte {
			frames = append(frames, e)
		}
	}
	return frames
}

// Reset clears the trace, transition counter and elapsed time.
func (b *Bus) Reset() {
	b.monitor = monitor{}
	b.transitions = 0
	b.elapsed = 0
}

// update resolves both lines and dispatches any resulting edges.
func (b *Bus) update() {
	scl := b.scl && !b.holding
	if scl != b.lineSCL {
		b.lineSCL = scl
		b.transitions++
		if scl {
			b.monitor.rise(b.lineSDA)
			for _, t := range b.targets {
				t.Rise(b.lineSDA)
			}
		} else {
			for _, t := range b.targets {
				t.Fall()
			}
		}
	}

	sda := b.sda
	for _, t := range b.targets {
		sda = sda && t.SDA()
	}
	if sda == b.lineSDA {
		return
	}
	b.lineSDA = sda
	b.transitions++
	if !b.lineSCL {
		return
	}
	if sda {
		b.monitor.stop()
		for _, t := range b.targets {
			t.Stop()
		}
	} else {
		b.monitor.start()
		for _, t := range b.targets {
			t.Start()
		}
	}
	if pkg.LogEnabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentSim, "bus condition",
			"event", b.monitor.events[len(b.monitor.events)-1].Kind.String(),
			"elapsed", b.elapsed)
	}
}

// EventKind classifies a decoded bus event.
type EventKind int

// Bus event kinds.
const (
	EventStart   EventKind = iota // START after idle
	EventRestart                  // START without an intervening STOP
	EventStop                     // STOP
	EventByte                     // 8 data bits plus acknowledge
)

// String returns a string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "START"
	case EventRestart:
		return "RESTART"
	case EventStop:
		return "STOP"
	case EventByte:
		return "BYTE"
	default:
		return "unknown"
	}
}

// Event is one decoded bus event.
type Event struct {
	Kind EventKind
	Data byte // EventByte only
	Ack  bool // EventByte only: acknowledge bit was low
}

func (e Event) String() string {
	if e.Kind != EventByte {
		return e.Kind.String()
	}
	if e.Ack {
		return fmt.Sprintf("0x%02x ACK", e.Data)
	}
	return fmt.Sprintf("0x%02x NACK", e.Data)
}

// Trace formats events as a single space-separated line.
func Trace(events []Event) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

// monitor decodes line edges into events.
type monitor struct {
	events []Event
	active bool
	bits   int
	shift  byte
}

func (m *monitor) start() {
	kind := EventStart
	if m.active {
		kind = EventRestart
	}
	m.events = append(m.events, Event{Kind: kind})
	m.active = true
	m.bits = 0
	m.shift = 0
}

func (m *monitor) stop() {
	m.events = append(m.events, Event{Kind: EventStop})
	m.active = false
	m.bits = 0
}

func (m *monitor) rise(sda bool) {
	if !m.active {
		return
	}
	m.bits++
	if m.bits <= 8 {
		m.shift <<= 1
		if sda {
			m.shift |= 1
		}
		return
	}
	m.events = append(m.events, Event{Kind: EventByte, Data: m.shift, Ack: !sda})
	m.bits = 0
	m.shift = 0
}
