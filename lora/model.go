package lora

import "fmt"

// MaxDataSize is the maximum payload data carried by a single packet.
const MaxDataSize = 200

type PayloadType byte

const (
	Unknown        PayloadType = 0x00
	EdgeHeartbeat  PayloadType = 0x01 // node -> gateway, data[0] is the alarm state
	MotionState    PayloadType = 0x02 // data[0] is 1 when motion was detected
	SetCombination PayloadType = 0x03 // 4 digits
	SetTimeRange   PayloadType = 0x04 // packed time range rules
	SetAlarmState  PayloadType = 0x05 // data[0] is the target alarm state
	SetRtcTime     PayloadType = 0x06 // 4 bytes unix time, or empty to use the header timestamp
)

func (t PayloadType) String() string {
	switch t {
	case EdgeHeartbeat:
		return "EdgeHeartbeat"
	case MotionState:
		return "MotionState"
	case SetCombination:
		return "SetCombination"
	case SetTimeRange:
		return "SetTimeRange"
	case SetAlarmState:
		return "SetAlarmState"
	case SetRtcTime:
		return "SetRtcTime"
	default:
		return "Unknown"
	}
}

// parsePayloadType maps a wire byte into a known payload type.
// Anything else, including Unknown itself, is rejected.
func parsePayloadType(b byte) (PayloadType, error) {
	switch t := PayloadType(b); t {
	case EdgeHeartbeat,
		MotionState,
		SetCombination,
		SetTimeRange,
		SetAlarmState,
		SetRtcTime:
		return t, nil
	default:
		return Unknown, fmt.Errorf("%w: %#02x", ErrUnknownPayloadType, b)
	}
}

// Packet is a single radio frame.
type Packet struct {
	ID        uint8
	Timestamp uint32 // unix seconds
	Type      PayloadType
	Data      []byte
	Tag       uint32
}

// Length is the amount of data bytes, as sent on the wire.
func (p Packet) Length() int {
	return len(p.Data)
}
