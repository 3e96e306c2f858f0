package timerange

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// RuleSize is the encoded size of a Rule, both on the radio and in the EEPROM.
const RuleSize = 11

// MaxRules is the maximum amount of rules a rule set may hold.
const MaxRules = 255

// masks are most significant bit first: the first weekday (Sunday), hour,
// day and month each map to the highest bit of their field.
const (
	weekDayBits  = 0x7f
	hourBits     = 0x00ffffff
	monthDayBits = 0x7fffffff
	monthBits    = 0x0fff
)

var ErrInvalidRule = errors.New("invalid time range rule")

// Rule is a recurring calendar window.
// It matches an instant when all four masks intersect the instant's masks.
type Rule struct {
	WeekDays  uint8
	Hours     uint32
	MonthDays uint32
	Months    uint16
}

// Validate checks that no mask has bits set outside of its field.
func (r Rule) Validate() error {
	switch {
	case r.WeekDays&^weekDayBits != 0:
		return fmt.Errorf("%w: weekday mask %#x", ErrInvalidRule, r.WeekDays)
	case r.Hours&^hourBits != 0:
		return fmt.Errorf("%w: hour mask %#x", ErrInvalidRule, r.Hours)
	case r.MonthDays&^monthDayBits != 0:
		return fmt.Errorf("%w: day of month mask %#x", ErrInvalidRule, r.MonthDays)
	case r.Months&^monthBits != 0:
		return fmt.Errorf("%w: month mask %#x", ErrInvalidRule, r.Months)
	}
	return nil
}

func (r Rule) matches(at Rule) bool {
	return r.WeekDays&at.WeekDays != 0 &&
		r.Hours&at.Hours != 0 &&
		r.MonthDays&at.MonthDays != 0 &&
		r.Months&at.Months != 0
}

func (r Rule) String() string {
	return fmt.Sprintf(
		"weekdays=%07b hours=%024b days=%031b months=%012b",
		r.WeekDays, r.Hours, r.MonthDays, r.Months,
	)
}

// AppendBinary appends the big-endian encoding of the rule to b.
func (r Rule) AppendBinary(b []byte) ([]byte, error) {
	b = append(b, r.WeekDays)
	b = binary.BigEndian.AppendUint32(b, r.Hours)
	b = binary.BigEndian.AppendUint32(b, r.MonthDays)
	b = binary.BigEndian.AppendUint16(b, r.Months)
	return b, nil
}

// DecodeRule decodes a single rule from the first RuleSize bytes of b.
func DecodeRule(b []byte) (Rule, error) {
	if len(b) < RuleSize {
		return Rule{}, fmt.Errorf("%w: wanted %d bytes, got %d", ErrInvalidRule, RuleSize, len(b))
	}
	return Rule{
		WeekDays:  b[0],
		Hours:     binary.BigEndian.Uint32(b[1:5]),
		MonthDays: binary.BigEndian.Uint32(b[5:9]),
		Months:    binary.BigEndian.Uint16(b[9:11]),
	}, nil
}

// DecodeRules decodes a packed sequence of rules. The input length must be a
// multiple of RuleSize and every rule must validate.
func DecodeRules(b []byte) ([]Rule, error) {
	if len(b)%RuleSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrInvalidRule, len(b), RuleSize)
	}
	if len(b)/RuleSize > MaxRules {
		return nil, fmt.Errorf("%w: more than %d rules", ErrInvalidRule, MaxRules)
	}
	rules := make([]Rule, 0, len(b)/RuleSize)
	for off := 0; off < len(b); off += RuleSize {
		rule, err := DecodeRule(b[off : off+RuleSize])
		if err != nil {
			return nil, err
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", off/RuleSize, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// EncodeRules packs rules into their wire representation.
func EncodeRules(rules []Rule) []byte {
	b := make([]byte, 0, len(rules)*RuleSize)
	for _, r := range rules {
		b, _ = r.AppendBinary(b)
	}
	return b
}

// WeekDays builds a weekday mask.
func WeekDays(days ...time.Weekday) uint8 {
	var m uint8
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			m |= 1 << (6 - uint(d))
		}
	}
	return m
}

// Hours builds an hour mask from hours in 0..23.
func Hours(hours ...int) uint32 {
	var m uint32
	for _, h := range hours {
		if h >= 0 && h <= 23 {
			m |= 1 << (23 - uint(h))
		}
	}
	return m
}

// HourRange builds an hour mask covering from..to, both inclusive.
func HourRange(from, to int) uint32 {
	var m uint32
	for h := from; h <= to; h++ {
		m |= Hours(h)
	}
	return m
}

// MonthDays builds a day of month mask from days in 1..31.
func MonthDays(days ...int) uint32 {
	var m uint32
	for _, d := range days {
		if d >= 1 && d <= 31 {
			m |= 1 << (31 - uint(d))
		}
	}
	return m
}

// Months builds a month mask.
func Months(months ...time.Month) uint16 {
	var m uint16
	for _, mo := range months {
		if mo >= time.January && mo <= time.December {
			m |= 1 << (12 - uint(mo))
		}
	}
	return m
}

// Every matches every instant.
var Every = Rule{
	WeekDays:  weekDayBits,
	Hours:     hourBits,
	MonthDays: monthDayBits,
	Months:    monthBits,
}
