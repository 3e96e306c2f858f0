package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caarlos0/lora-alarm-node/eeprom"
	"github.com/caarlos0/lora-alarm-node/timerange"
)

// File is the provisioning file.
//
//	combination: "1234"
//	rules:
//	  - weekdays: mon-fri
//	    hours: 8-18
//	  - weekdays: sat
//	    hours: 9-12
//	    months: jan-jun,sep
//
// Empty fields match everything.
type File struct {
	Combination string `yaml:"combination"`
	Rules       []Rule `yaml:"rules"`
}

// Rule holds comma separated values and inclusive spans.
type Rule struct {
	WeekDays string `yaml:"weekdays"`
	Hours    string `yaml:"hours"`
	Days     string `yaml:"days"`
	Months   string `yaml:"months"`
}

var weekDayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func loadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("could not read provisioning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("could not parse provisioning file: %w", err)
	}
	return f, nil
}

// Parse validates the file into what goes into the eeprom.
func (f File) Parse() (eeprom.Combination, []timerange.Rule, error) {
	var digits []byte
	for _, r := range strings.TrimSpace(f.Combination) {
		if r < '0' || r > '9' {
			return eeprom.Combination{}, nil, fmt.Errorf("%w: %q is not a digit", eeprom.ErrInvalidCombination, r)
		}
		digits = append(digits, byte(r-'0'))
	}
	if len(digits) != len(eeprom.Combination{}) {
		return eeprom.Combination{}, nil, fmt.Errorf("%w: wanted 4 digits, got %d", eeprom.ErrInvalidCombination, len(digits))
	}
	combination, err := eeprom.ParseCombination(digits)
	if err != nil {
		return combination, nil, err
	}

	if len(f.Rules) == 0 {
		return combination, nil, eeprom.ErrNoRules
	}
	if len(f.Rules) > timerange.MaxRules {
		return combination, nil, fmt.Errorf("too many rules: %d, max is %d", len(f.Rules), timerange.MaxRules)
	}
	rules := make([]timerange.Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		rule, err := r.parse()
		if err != nil {
			return combination, nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return combination, rules, nil
}

func (r Rule) parse() (timerange.Rule, error) {
	rule := timerange.Every
	var errs []error

	if days, err := spans(r.WeekDays, 0, 6, weekDayNames); err != nil {
		errs = append(errs, fmt.Errorf("weekdays: %w", err))
	} else if days != nil {
		weekDays := make([]time.Weekday, 0, len(days))
		for _, d := range days {
			weekDays = append(weekDays, time.Weekday(d))
		}
		rule.WeekDays = timerange.WeekDays(weekDays...)
	}
	if hours, err := spans(r.Hours, 0, 23, nil); err != nil {
		errs = append(errs, fmt.Errorf("hours: %w", err))
	} else if hours != nil {
		rule.Hours = timerange.Hours(hours...)
	}
	if days, err := spans(r.Days, 1, 31, nil); err != nil {
		errs = append(errs, fmt.Errorf("days: %w", err))
	} else if days != nil {
		rule.MonthDays = timerange.MonthDays(days...)
	}
	if months, err := spans(r.Months, 1, 12, monthNames); err != nil {
		errs = append(errs, fmt.Errorf("months: %w", err))
	} else if months != nil {
		ms := make([]time.Month, 0, len(months))
		for _, m := range months {
			ms = append(ms, time.Month(m))
		}
		rule.Months = timerange.Months(ms...)
	}
	return rule, errors.Join(errs...)
}

// spans parses "1,3-5,sat" into the listed values. An empty string is nil.
func spans(s string, lo, hi int, names map[string]int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var result []int
	for _, part := range strings.Split(s, ",") {
		from, to, isSpan := strings.Cut(strings.TrimSpace(part), "-")
		a, err := value(from, lo, hi, names)
		if err != nil {
			return nil, err
		}
		b := a
		if isSpan {
			if b, err = value(to, lo, hi, names); err != nil {
				return nil, err
			}
		}
		if b < a {
			return nil, fmt.Errorf("span %q goes backwards", part)
		}
		for v := a; v <= b; v++ {
			result = append(result, v)
		}
	}
	return result, nil
}

func value(s string, lo, hi int, names map[string]int) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := names[s]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%d is not in %d..%d", v, lo, hi)
	}
	return v, nil
}
