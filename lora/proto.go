package lora

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	headerSize = 1 + 4 + 1 + 1 // id, timestamp, type, length
	tagSize    = 4
)

var (
	ErrTooShort           = errors.New("frame too short")
	ErrOversized          = errors.New("frame data too large")
	ErrTrailingData       = errors.New("frame has trailing data")
	ErrInvalidHex         = errors.New("frame is not valid hex")
	ErrUnknownPayloadType = errors.New("unknown payload type")
	ErrBadTag             = errors.New("integrity tag mismatch")
	ErrWrongNode          = errors.New("frame addressed to another node")
)

// hexLen is the exact hex length of a frame carrying n data bytes.
func hexLen(n int) int {
	return (headerSize + n + tagSize) * 2
}

// Encode renders the packet as uppercase, big-endian hex. The tag is written
// as is, see Sign.
func Encode(p Packet) (string, error) {
	if len(p.Data) > MaxDataSize {
		return "", fmt.Errorf("%w: %d bytes", ErrOversized, len(p.Data))
	}
	if _, err := parsePayloadType(byte(p.Type)); err != nil {
		return "", err
	}
	b := make([]byte, 0, headerSize+len(p.Data)+tagSize)
	b = append(b, p.ID)
	b = binary.BigEndian.AppendUint32(b, p.Timestamp)
	b = append(b, byte(p.Type), byte(len(p.Data)))
	b = append(b, p.Data...)
	b = binary.BigEndian.AppendUint32(b, p.Tag)
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// Decode parses a hex frame. The declared data length is only trusted after
// the header was fully parsed, and the frame must be exactly as long as it
// declares.
func Decode(s string) (Packet, error) {
	if len(s) < hexLen(0) {
		return Packet{}, fmt.Errorf("%w: %d hex chars, wanted at least %d", ErrTooShort, len(s), hexLen(0))
	}
	header, err := hex.DecodeString(s[:headerSize*2])
	if err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	typ, err := parsePayloadType(header[5])
	if err != nil {
		return Packet{}, err
	}
	length := int(header[6])
	if length > MaxDataSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrOversized, length)
	}
	switch want := hexLen(length); {
	case len(s) < want:
		return Packet{}, fmt.Errorf("%w: %d hex chars, wanted %d", ErrTooShort, len(s), want)
	case len(s) > want:
		return Packet{}, fmt.Errorf("%w: %d hex chars, wanted %d", ErrTrailingData, len(s), want)
	}
	rest, err := hex.DecodeString(s[headerSize*2:])
	if err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	p := Packet{
		ID:        header[0],
		Timestamp: binary.BigEndian.Uint32(header[1:5]),
		Type:      typ,
		Data:      rest[:length],
		Tag:       binary.BigEndian.Uint32(rest[length:]),
	}
	return p, nil
}

// Tag computes the integrity tag of a packet.
//
// It is a DJB2 hash over the decimal header fields, the uppercase hex data and
// the shared key. It detects corruption, it does not authenticate.
func Tag(p Packet, key string) uint32 {
	return djb2(tagInput(p) + key)
}

// Sign returns the packet with its tag set.
func Sign(p Packet, key string) Packet {
	p.Tag = Tag(p, key)
	return p
}

// Verify reports whether the packet tag matches the locally computed one.
func Verify(p Packet, key string) bool {
	return Tag(p, key) == p.Tag
}

func tagInput(p Packet) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(p.ID)))
	sb.WriteString(strconv.FormatUint(uint64(p.Timestamp), 10))
	sb.WriteString(strconv.Itoa(int(p.Type)))
	sb.WriteString(strconv.Itoa(len(p.Data)))
	sb.WriteString(strings.ToUpper(hex.EncodeToString(p.Data)))
	return sb.String()
}

func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h<<5 + h + uint32(s[i])
	}
	return h
}
