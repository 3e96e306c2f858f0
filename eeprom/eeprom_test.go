package eeprom

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/lora-alarm-node/timerange"
	"github.com/stretchr/testify/require"
)

var weekdays = timerange.Rule{
	WeekDays:  timerange.WeekDays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
	Hours:     timerange.HourRange(8, 18),
	MonthDays: timerange.Every.MonthDays,
	Months:    timerange.Every.Months,
}

func TestBlankImage(t *testing.T) {
	s, err := Open(&Memory{})
	require.NoError(t, err)

	c, count := s.Load()
	require.Equal(t, Unset, c)
	require.Zero(t, count)
	require.ErrorIs(t, s.Validate(), ErrInvalidCombination)

	require.NoError(t, s.Store(Combination{1, 2, 3, 4}))
	require.ErrorIs(t, s.Validate(), ErrNoRules)

	rules, err := s.LoadRules(timerange.MaxRules)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestShortImage(t *testing.T) {
	t.Run("without rule count", func(t *testing.T) {
		s, err := Open(&Memory{Image: []byte{1, 2, 3, 4}})
		require.NoError(t, err)
		c, count := s.Load()
		require.Equal(t, Combination{1, 2, 3, 4}, c)
		require.Zero(t, count)
		require.ErrorIs(t, s.Validate(), ErrNoRules)
	})

	t.Run("with rule count", func(t *testing.T) {
		image := make([]byte, RulesAddress)
		image[RuleCountAddress] = 1
		s, err := Open(&Memory{Image: image})
		require.NoError(t, err)
		_, count := s.Load()
		require.Equal(t, 1, count)
	})
}

func TestStoreAndLoad(t *testing.T) {
	dev := &Memory{}
	s, err := Open(dev)
	require.NoError(t, err)

	require.NoError(t, s.Store(Combination{1, 2, 3, 4}))
	require.NoError(t, s.StoreRules([]timerange.Rule{weekdays, timerange.Every}))
	require.NoError(t, s.Validate())

	// reopening reads back what the device persisted
	s, err = Open(dev)
	require.NoError(t, err)

	c, count := s.Load()
	require.Equal(t, Combination{1, 2, 3, 4}, c)
	require.Equal(t, 2, count)

	rules, err := s.LoadRules(count)
	require.NoError(t, err)
	require.Equal(t, []timerange.Rule{weekdays, timerange.Every}, rules)

	rules, err = s.LoadRules(10)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	require.Equal(t, []byte{1, 2, 3, 4}, dev.Image[CombinationAddress:CombinationAddress+4])
	require.Equal(t, byte(2), dev.Image[RuleCountAddress])
	require.Equal(t, timerange.EncodeRules([]timerange.Rule{weekdays}), dev.Image[RulesAddress:RulesAddress+timerange.RuleSize])
}

func TestValidate(t *testing.T) {
	for name, tt := range map[string]struct {
		combination Combination
		rules       []timerange.Rule
		err         error
	}{
		"valid":       {Combination{0, 9, 0, 9}, []timerange.Rule{weekdays}, nil},
		"digit 10":    {Combination{1, 2, 10, 4}, []timerange.Rule{weekdays}, ErrInvalidCombination},
		"digit -1":    {Combination{0xff, 2, 3, 4}, []timerange.Rule{weekdays}, ErrInvalidCombination},
		"no rules":    {Combination{1, 2, 3, 4}, nil, ErrNoRules},
		"both broken": {Unset, nil, ErrInvalidCombination},
	} {
		t.Run(name, func(t *testing.T) {
			s, err := Open(&Memory{})
			require.NoError(t, err)
			require.NoError(t, s.Store(tt.combination))
			require.NoError(t, s.StoreRules(tt.rules))
			if tt.err == nil {
				require.NoError(t, s.Validate())
				return
			}
			require.ErrorIs(t, s.Validate(), tt.err)
		})
	}
}

func TestStoreIsIdempotent(t *testing.T) {
	dev := &Memory{}
	s, err := Open(dev)
	require.NoError(t, err)

	require.NoError(t, s.Store(Combination{4, 3, 2, 1}))
	require.NoError(t, s.StoreRules([]timerange.Rule{weekdays}))
	once := append([]byte(nil), dev.Image...)

	require.NoError(t, s.Store(Combination{4, 3, 2, 1}))
	require.NoError(t, s.StoreRules([]timerange.Rule{weekdays}))
	require.Equal(t, once, dev.Image)
}

func TestFailedSaveKeepsPreviousImage(t *testing.T) {
	dev := &Memory{}
	s, err := Open(dev)
	require.NoError(t, err)
	require.NoError(t, s.Store(Combination{1, 2, 3, 4}))
	require.NoError(t, s.StoreRules([]timerange.Rule{weekdays}))

	dev.Err = errors.New("write protected")
	require.Error(t, s.Store(Combination{9, 9, 9, 9}))
	require.Error(t, s.StoreRules([]timerange.Rule{timerange.Every, timerange.Every}))

	c, count := s.Load()
	require.Equal(t, Combination{1, 2, 3, 4}, c)
	require.Equal(t, 1, count)
}

func TestErase(t *testing.T) {
	s, err := Open(&Memory{})
	require.NoError(t, err)
	require.NoError(t, s.Store(Combination{1, 2, 3, 4}))
	require.NoError(t, s.StoreRules([]timerange.Rule{weekdays}))

	require.NoError(t, s.Erase())
	c, count := s.Load()
	require.Equal(t, Unset, c)
	require.Zero(t, count)
	require.Error(t, s.Validate())
}

func TestStoreRulesTooMany(t *testing.T) {
	s, err := Open(&Memory{})
	require.NoError(t, err)
	require.Error(t, s.StoreRules(make([]timerange.Rule, timerange.MaxRules+1)))

	require.NoError(t, s.StoreRules(make([]timerange.Rule, timerange.MaxRules)))
	_, count := s.Load()
	require.Equal(t, timerange.MaxRules, count)
}

func TestParseCombination(t *testing.T) {
	c, err := ParseCombination([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, Combination{1, 2, 3, 4}, c)

	_, err = ParseCombination([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidCombination)

	_, err = ParseCombination([]byte{1, 2, 3, 10})
	require.ErrorIs(t, err, ErrInvalidCombination)
}

func TestCombinationEqual(t *testing.T) {
	require.True(t, Combination{1, 2, 3, 4}.Equal(Combination{1, 2, 3, 4}))
	require.False(t, Combination{1, 2, 3, 4}.Equal(Combination{1, 2, 3, 5}))
	require.False(t, Combination{1, 2, 3, 4}.Equal(Combination{0, 2, 3, 4}))
	require.Equal(t, "unset", Unset.String())
	require.NotContains(t, Combination{1, 2, 3, 4}.String(), "1234")
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")
	dev := File{Path: path}

	s, err := Open(dev)
	require.NoError(t, err)
	require.Error(t, s.Validate())

	require.NoError(t, s.Store(Combination{5, 6, 7, 8}))
	require.NoError(t, s.StoreRules([]timerange.Rule{weekdays}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, b, Size)

	s, err = Open(dev)
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	c, _ := s.Load()
	require.Equal(t, Combination{5, 6, 7, 8}, c)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}
