package alarm

// State is the alarm state. Its numeric value is what heartbeats carry and
// what SetAlarmState packets target.
type State uint8

const (
	Inactive State = iota
	Monitoring
	Triggered
	Disarmed
	FailedDisarm
	Configuration
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Monitoring:
		return "monitoring"
	case Triggered:
		return "triggered"
	case Disarmed:
		return "disarmed"
	case FailedDisarm:
		return "failed-disarm"
	case Configuration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return s <= Configuration
}
