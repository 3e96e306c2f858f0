// Package eeprom persists the node configuration in a fixed, byte addressed
// layout:
//
//	0       secret combination, 4 bytes, one digit per byte
//	100     rule count, 1 byte
//	101...  rules, timerange.RuleSize bytes each, big-endian
package eeprom

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/lora-alarm-node/timerange"
	logp "github.com/charmbracelet/log"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "eeprom",
})

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

const (
	CombinationAddress = 0
	RuleCountAddress   = 100
	RulesAddress       = 101

	// Size is the size of a full image.
	Size = RulesAddress + timerange.MaxRules*timerange.RuleSize

	// blank is the value of an erased cell.
	blank = 0xff
)

var (
	ErrInvalidCombination = errors.New("invalid secret combination")
	ErrNoRules            = errors.New("no time range rules")
)

// Combination is the 4 digit secret code.
type Combination [4]uint8

// Unset is the combination of an erased image.
var Unset = Combination{blank, blank, blank, blank}

// ParseCombination parses raw digits. Every value must be in 0..9.
func ParseCombination(b []byte) (Combination, error) {
	var c Combination
	if len(b) < len(c) {
		return c, fmt.Errorf("%w: wanted %d digits, got %d", ErrInvalidCombination, len(c), len(b))
	}
	copy(c[:], b)
	return c, c.Validate()
}

// Validate checks that every digit is in 0..9.
func (c Combination) Validate() error {
	for i, d := range c {
		if d > 9 {
			return fmt.Errorf("%w: digit %d is %d", ErrInvalidCombination, i, d)
		}
	}
	return nil
}

// Equal compares all four digits, without stopping at the first mismatch.
func (c Combination) Equal(o Combination) bool {
	var diff uint8
	for i := range c {
		diff |= c[i] ^ o[i]
	}
	return diff == 0
}

func (c Combination) String() string {
	if c.Validate() != nil {
		return "unset"
	}
	return "****"
}

// Device is the durable medium behind a Store.
type Device interface {
	// Load returns the whole stored image. A device that was never written
	// returns an empty image.
	Load() ([]byte, error)
	// Save replaces the whole stored image.
	Save(image []byte) error
}

// Store reads and writes the configuration image.
// Writes go to a copy of the image which only replaces the current one once
// the device saved it.
type Store struct {
	dev   Device
	image []byte
}

// Open loads the image from the device.
func Open(dev Device) (*Store, error) {
	image, err := dev.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load eeprom image: %w", err)
	}
	if len(image) > Size {
		image = image[:Size]
	}
	written := len(image)
	for len(image) < Size {
		image = append(image, blank)
	}
	// an image that never got a rule count holds no rules, like an erased one
	if written <= RuleCountAddress {
		image[RuleCountAddress] = 0
	}
	return &Store{dev: dev, image: image}, nil
}

// Load returns the stored combination and rule count, without validating
// either.
func (s *Store) Load() (Combination, int) {
	var c Combination
	copy(c[:], s.image[CombinationAddress:])
	count := int(s.image[RuleCountAddress])
	log.Debug("loaded configuration", "combination", c, "rules", count)
	return c, count
}

// LoadRules decodes the first count stored rules. A count larger than the
// stored rule count is clamped to it.
func (s *Store) LoadRules(count int) ([]timerange.Rule, error) {
	if stored := int(s.image[RuleCountAddress]); count > stored {
		log.Warn("asked for more rules than stored", "wanted", count, "stored", stored)
		count = stored
	}
	rules := make([]timerange.Rule, 0, count)
	for i := 0; i < count; i++ {
		addr := RulesAddress + i*timerange.RuleSize
		rule, err := timerange.DecodeRule(s.image[addr : addr+timerange.RuleSize])
		if err != nil {
			return nil, fmt.Errorf("could not load rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Validate reports whether the stored configuration can be trusted: every
// combination digit must be in 0..9 and at least one rule must be stored.
func (s *Store) Validate() error {
	c, count := s.Load()
	if err := c.Validate(); err != nil {
		return err
	}
	if count == 0 {
		return ErrNoRules
	}
	return nil
}

// Store persists the combination. It is not validated, so an erased
// combination can be written on purpose.
func (s *Store) Store(c Combination) error {
	return s.write(func(image []byte) {
		copy(image[CombinationAddress:], c[:])
	})
}

// StoreRules persists the rule count and the rules.
func (s *Store) StoreRules(rules []timerange.Rule) error {
	if len(rules) > timerange.MaxRules {
		return fmt.Errorf("could not store rules: %d is more than %d", len(rules), timerange.MaxRules)
	}
	encoded := timerange.EncodeRules(rules)
	return s.write(func(image []byte) {
		image[RuleCountAddress] = byte(len(rules))
		copy(image[RulesAddress:], encoded)
	})
}

// Erase resets the image so the node boots into configuration mode.
func (s *Store) Erase() error {
	return s.write(func(image []byte) {
		for i := range image {
			image[i] = blank
		}
		image[RuleCountAddress] = 0
	})
}

func (s *Store) write(fn func(image []byte)) error {
	image := make([]byte, len(s.image))
	copy(image, s.image)
	fn(image)
	if err := s.dev.Save(image); err != nil {
		return fmt.Errorf("could not save eeprom image: %w", err)
	}
	s.image = image
	return nil
}
