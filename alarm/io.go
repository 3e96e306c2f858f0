package alarm

import (
	"time"

	"github.com/caarlos0/lora-alarm-node/eeprom"
	"github.com/caarlos0/lora-alarm-node/lora"
)

// Radio is the packet link to the gateway.
type Radio interface {
	// Send queues a packet for transmission.
	Send(p lora.Packet) error
	// Receive returns at most one verified packet without blocking.
	Receive() (*lora.Packet, error)
}

// Button is a keypad button.
type Button uint8

const (
	None Button = iota
	Up
	Down
	Next
	Prev
)

func (b Button) String() string {
	switch b {
	case Up:
		return "+"
	case Down:
		return "-"
	case Next:
		return "next"
	case Prev:
		return "prev"
	default:
		return "none"
	}
}

// Keypad reports the button currently held down, or None.
type Keypad interface {
	Pressed() Button
}

// MotionSensor reports whether motion is currently detected.
type MotionSensor interface {
	Motion() bool
}

// Tone is an audio cue.
type Tone uint8

const (
	ToneKeyPress Tone = iota
	ToneMotion
	ToneGoodCode
	ToneWrongCode
	ToneAlarm
	ToneAlarmTimeout
)

func (t Tone) String() string {
	switch t {
	case ToneKeyPress:
		return "key-press"
	case ToneMotion:
		return "motion"
	case ToneGoodCode:
		return "good-code"
	case ToneWrongCode:
		return "wrong-code"
	case ToneAlarm:
		return "alarm"
	case ToneAlarmTimeout:
		return "alarm-timeout"
	default:
		return "unknown"
	}
}

// Feedback renders the display, the indicator led and the buzzer.
type Feedback interface {
	// ShowCode shows the digits being entered. When blank is set the digit
	// under the cursor is hidden.
	ShowCode(code eeprom.Combination, cursor int, blank bool)
	Clear()
	// Indicate shows the given state on the indicator led.
	Indicate(s State)
	Play(t Tone)
}

// Clock is the real time clock. It gives the calendar time rules are
// evaluated against and the timestamp of outgoing packets.
type Clock interface {
	Now() time.Time
	Set(t time.Time)
}

// SystemClock is a Clock on top of the host clock, corrected by an offset
// whenever it is set.
type SystemClock struct {
	offset time.Duration
}

func (c *SystemClock) Now() time.Time {
	return time.Now().Add(c.offset)
}

func (c *SystemClock) Set(t time.Time) {
	c.offset = time.Until(t)
}

type noFeedback struct{}

func (noFeedback) ShowCode(eeprom.Combination, int, bool) {}
func (noFeedback) Clear()                                 {}
func (noFeedback) Indicate(State)                         {}
func (noFeedback) Play(Tone)                              {}

type noKeypad struct{}

func (noKeypad) Pressed() Button { return None }

type noMotion struct{}

func (noMotion) Motion() bool { return false }
