package lora

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Message is the JSON shape the gateway exchanges with its controller for
// every frame.
type Message struct {
	ID     uint8  `json:"id"`
	TS     uint32 `json:"ts"`
	Type   uint8  `json:"type"`
	Length uint8  `json:"length"`
	Data   string `json:"data"`
	HMAC   string `json:"hmac"`
}

// ToMessage converts a packet into its gateway JSON message.
func ToMessage(p Packet) Message {
	var tag [tagSize]byte
	binary.BigEndian.PutUint32(tag[:], p.Tag)
	return Message{
		ID:     p.ID,
		TS:     p.Timestamp,
		Type:   uint8(p.Type),
		Length: uint8(len(p.Data)),
		Data:   strings.ToUpper(hex.EncodeToString(p.Data)),
		HMAC:   strings.ToUpper(hex.EncodeToString(tag[:])),
	}
}

// FromMessage converts a gateway JSON message back into a packet, applying
// the same checks as Decode.
func FromMessage(m Message) (Packet, error) {
	typ, err := parsePayloadType(m.Type)
	if err != nil {
		return Packet{}, err
	}
	if m.Length > MaxDataSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrOversized, m.Length)
	}
	data, err := hex.DecodeString(m.Data)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: data: %v", ErrInvalidHex, err)
	}
	switch {
	case len(data) < int(m.Length):
		return Packet{}, fmt.Errorf("%w: length is %d, data has %d bytes", ErrTooShort, m.Length, len(data))
	case len(data) > int(m.Length):
		return Packet{}, fmt.Errorf("%w: length is %d, data has %d bytes", ErrTrailingData, m.Length, len(data))
	}
	tag, err := hex.DecodeString(m.HMAC)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: hmac: %v", ErrInvalidHex, err)
	}
	if len(tag) != tagSize {
		return Packet{}, fmt.Errorf("%w: hmac has %d bytes", ErrInvalidHex, len(tag))
	}
	return Packet{
		ID:        m.ID,
		Timestamp: m.TS,
		Type:      typ,
		Data:      data,
		Tag:       binary.BigEndian.Uint32(tag),
	}, nil
}
