package main

import (
	"strings"

	"github.com/caarlos0/lora-alarm-node/alarm"
	"github.com/caarlos0/lora-alarm-node/eeprom"
)

// logFeedback renders the display, indicator and buzzer as log lines.
type logFeedback struct {
	last string
}

func (f *logFeedback) ShowCode(code eeprom.Combination, cursor int, blank bool) {
	display := renderCode(code, cursor, blank)
	if display == f.last {
		return
	}
	f.last = display
	log.Debug("display", "code", display)
}

func (f *logFeedback) Clear() {
	f.last = ""
	log.Debug("display cleared")
}

func (f *logFeedback) Indicate(s alarm.State) {
	log.Info("indicator", "color", color(s))
}

func (f *logFeedback) Play(t alarm.Tone) {
	log.Info("buzzer", "tone", t)
}

func renderCode(code eeprom.Combination, cursor int, blank bool) string {
	var sb strings.Builder
	for i, d := range code {
		if i == cursor && blank {
			sb.WriteByte('_')
			continue
		}
		sb.WriteByte('0' + d%10)
	}
	return sb.String()
}

func color(s alarm.State) string {
	switch s {
	case alarm.Monitoring:
		return "blue"
	case alarm.Triggered:
		return "yellow"
	case alarm.Disarmed:
		return "green"
	case alarm.FailedDisarm:
		return "red"
	case alarm.Configuration:
		return "purple"
	default:
		return "off"
	}
}
