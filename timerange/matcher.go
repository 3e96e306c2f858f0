package timerange

import (
	"os"
	"time"

	logp "github.com/charmbracelet/log"
	"golang.org/x/exp/slices"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "timerange",
})

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

// Instant holds the calendar fields the rules are evaluated against.
type Instant struct {
	Weekday int // 0-6, 0 is Sunday
	Hour    int // 0-23
	Day     int // 1-31
	Month   int // 1-12
}

// InstantOf extracts the calendar fields of t in its own location.
func InstantOf(t time.Time) Instant {
	return Instant{
		Weekday: int(t.Weekday()),
		Hour:    t.Hour(),
		Day:     t.Day(),
		Month:   int(t.Month()),
	}
}

func (i Instant) valid() bool {
	return i.Weekday >= 0 && i.Weekday <= 6 &&
		i.Hour >= 0 && i.Hour <= 23 &&
		i.Day >= 1 && i.Day <= 31 &&
		i.Month >= 1 && i.Month <= 12
}

func (i Instant) masks() Rule {
	return Rule{
		WeekDays:  1 << (6 - uint(i.Weekday)),
		Hours:     1 << (23 - uint(i.Hour)),
		MonthDays: 1 << (31 - uint(i.Day)),
		Months:    1 << (12 - uint(i.Month)),
	}
}

// IsMonitoring reports whether any rule matches the given instant.
// An empty rule set never matches, and neither does a malformed instant.
func IsMonitoring(at Instant, rules []Rule) bool {
	if !at.valid() {
		log.Warn(
			"invalid time values",
			"weekday", at.Weekday,
			"hour", at.Hour,
			"day", at.Day,
			"month", at.Month,
		)
		return false
	}
	current := at.masks()
	return slices.ContainsFunc(rules, func(r Rule) bool {
		return r.matches(current)
	})
}

// Matcher holds the active rule set.
type Matcher struct {
	rules []Rule
}

// NewMatcher returns a matcher with the given rules.
func NewMatcher(rules []Rule) *Matcher {
	m := &Matcher{}
	m.SetRules(rules)
	return m
}

// SetRules replaces the whole rule set. An empty or nil set disables
// monitoring. Sets larger than MaxRules are truncated.
func (m *Matcher) SetRules(rules []Rule) {
	if len(rules) == 0 {
		log.Info("no time range rules, monitoring disabled")
		m.rules = nil
		return
	}
	if len(rules) > MaxRules {
		log.Warn("too many time range rules, truncating", "count", len(rules), "max", MaxRules)
		rules = rules[:MaxRules]
	}
	m.rules = slices.Clone(rules)
	log.Debug("time range rules set", "count", len(m.rules))
}

// Rules returns a copy of the active rule set.
func (m *Matcher) Rules() []Rule {
	return slices.Clone(m.rules)
}

// Len returns the amount of active rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// IsMonitoring reports whether t falls in any of the active rules.
func (m *Matcher) IsMonitoring(t time.Time) bool {
	return IsMonitoring(InstantOf(t), m.rules)
}
