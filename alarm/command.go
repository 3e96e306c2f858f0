package alarm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/lora-alarm-node/eeprom"
	"github.com/caarlos0/lora-alarm-node/lora"
	"github.com/caarlos0/lora-alarm-node/timerange"
)

var ErrRejected = errors.New("command rejected")

// Command is an inbound packet, parsed and validated.
// It is one of SetCombination, SetTimeRange, SetAlarmState, SetRTCTime,
// MotionReport or Heartbeat.
type Command interface {
	command()
}

type SetCombination struct {
	Combination eeprom.Combination
}

type SetTimeRange struct {
	Rules []timerange.Rule
}

type SetAlarmState struct {
	State State
}

type SetRTCTime struct {
	Time time.Time
}

// MotionReport is motion detected by another device and relayed by the
// gateway.
type MotionReport struct {
	Motion bool
}

// Heartbeat is an echoed heartbeat. It carries nothing for this node.
type Heartbeat struct{}

func (SetCombination) command() {}
func (SetTimeRange) command()   {}
func (SetAlarmState) command()  {}
func (SetRTCTime) command()     {}
func (MotionReport) command()   {}
func (Heartbeat) command()      {}

// ParseCommand validates the packet data for its payload type. Invalid
// packets are rejected whole.
func ParseCommand(p lora.Packet) (Command, error) {
	switch p.Type {
	case lora.SetCombination:
		c, err := eeprom.ParseCombination(p.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRejected, err)
		}
		return SetCombination{Combination: c}, nil
	case lora.SetTimeRange:
		if len(p.Data) == 0 {
			return nil, fmt.Errorf("%w: empty rule set", ErrRejected)
		}
		rules, err := timerange.DecodeRules(p.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRejected, err)
		}
		if len(rules)*timerange.RuleSize > lora.MaxDataSize {
			return nil, fmt.Errorf("%w: %d rules do not fit a packet", ErrRejected, len(rules))
		}
		return SetTimeRange{Rules: rules}, nil
	case lora.SetAlarmState:
		if len(p.Data) < 1 {
			return nil, fmt.Errorf("%w: missing target state", ErrRejected)
		}
		s := State(p.Data[0])
		if !s.Valid() {
			return nil, fmt.Errorf("%w: unknown state %d", ErrRejected, p.Data[0])
		}
		return SetAlarmState{State: s}, nil
	case lora.SetRtcTime:
		switch len(p.Data) {
		case 0:
			return SetRTCTime{Time: time.Unix(int64(p.Timestamp), 0)}, nil
		case 4:
			return SetRTCTime{Time: time.Unix(int64(binary.BigEndian.Uint32(p.Data)), 0)}, nil
		default:
			return nil, fmt.Errorf("%w: time has %d bytes", ErrRejected, len(p.Data))
		}
	case lora.MotionState:
		if len(p.Data) < 1 {
			return nil, fmt.Errorf("%w: missing motion state", ErrRejected)
		}
		return MotionReport{Motion: p.Data[0] == 1}, nil
	case lora.EdgeHeartbeat:
		return Heartbeat{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrRejected, p.Type)
	}
}
