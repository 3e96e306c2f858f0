// Package alarm implements the node state machine: monitoring windows,
// intrusion, keypad disarm, lockout and remote configuration.
package alarm

import (
	"errors"
	"fmt"
	"os"
	"time"

	logp "github.com/charmbracelet/log"

	"github.com/caarlos0/lora-alarm-node/eeprom"
	"github.com/caarlos0/lora-alarm-node/lora"
	"github.com/caarlos0/lora-alarm-node/timerange"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "alarm",
})

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

const (
	MaxTries        = 3
	MaxDisarmTime   = 15 * time.Second
	DisarmedTimeout = 10 * time.Second
	AlarmTimeout    = 60 * time.Second
	BlinkInterval   = 400 * time.Millisecond

	// MinimumUnixTime is the earliest plausible packet timestamp. Older
	// timestamps come from gateways without a synced clock.
	MinimumUnixTime = 1770665090
	// MaxClockDrift is how far the clock may be from a packet timestamp
	// before it is corrected.
	MaxClockDrift = 1000 * time.Second

	syncHoldOff = 10 * time.Minute
)

// Observer is notified of what the controller does. All methods are called
// from Tick or Request.
type Observer interface {
	Transition(from, to State)
	Rejected(t lora.PayloadType, err error)
	Attempt(correct bool)
}

type noObserver struct{}

func (noObserver) Transition(State, State)          {}
func (noObserver) Rejected(lora.PayloadType, error) {}
func (noObserver) Attempt(bool)                     {}

type noRadio struct{}

func (noRadio) Send(lora.Packet) error          { return lora.ErrNotOperational }
func (noRadio) Receive() (*lora.Packet, error) { return nil, nil }

// Options configures a Controller. Store and Clock are required, everything
// else may be left empty.
type Options struct {
	NodeID   uint8
	Store    *eeprom.Store
	Clock    Clock
	Radio    Radio
	Keypad   Keypad
	Motion   MotionSensor
	Feedback Feedback
	Observer Observer
	// Location is where the time range rules are evaluated. Defaults to
	// time.Local.
	Location *time.Location
	// Heartbeat is the interval between heartbeats. Zero only sends them on
	// state changes.
	Heartbeat time.Duration
}

// Controller is the alarm state machine. It is not safe for concurrent use:
// a single loop calls Tick and Request.
type Controller struct {
	opts        Options
	state       State
	combination eeprom.Combination
	matcher     *timerange.Matcher

	now       time.Time
	enteredAt time.Time

	entry     eeprom.Combination
	cursor    int
	tries     int
	held      Button
	blank     bool
	lastBlink time.Time

	remoteMotion  bool
	lastHeartbeat time.Time
	syncHold      time.Time

	// configuration packets still expected before leaving Configuration
	awaitCombination bool
	awaitRules       bool
}

// New loads the configuration from the store. An invalid configuration
// starts the controller in Configuration, otherwise it starts Inactive.
func New(opts Options) *Controller {
	if opts.Radio == nil {
		opts.Radio = noRadio{}
	}
	if opts.Keypad == nil {
		opts.Keypad = noKeypad{}
	}
	if opts.Motion == nil {
		opts.Motion = noMotion{}
	}
	if opts.Feedback == nil {
		opts.Feedback = noFeedback{}
	}
	if opts.Observer == nil {
		opts.Observer = noObserver{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	c := &Controller{
		opts:    opts,
		state:   Inactive,
		matcher: timerange.NewMatcher(nil),
	}
	if err := c.load(); err != nil {
		log.Error("invalid configuration, waiting for one", "err", err)
		c.state = Configuration
		c.awaitMissing()
	}
	opts.Feedback.Indicate(c.state)
	return c
}

// awaitMissing expects only the parts of the stored configuration that are
// invalid. A valid combination means the rules are what failed.
func (c *Controller) awaitMissing() {
	combination, count := c.opts.Store.Load()
	c.awaitCombination = combination.Validate() != nil
	c.awaitRules = count == 0 || !c.awaitCombination
}

func (c *Controller) load() error {
	combination, count := c.opts.Store.Load()
	c.combination = combination
	if err := c.opts.Store.Validate(); err != nil {
		return err
	}
	rules, err := c.opts.Store.LoadRules(count)
	if err != nil {
		return err
	}
	c.matcher.SetRules(rules)
	log.Info("configuration loaded", "combination", combination, "rules", len(rules))
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Tick runs one iteration: at most one inbound packet is handled, then the
// body of the current state runs once. now is a monotonic timestamp used for
// timers only, calendar time comes from the Clock.
func (c *Controller) Tick(now time.Time) State {
	c.now = now
	c.receive()
	c.step()
	c.heartbeat()
	return c.state
}

// Request moves to the target state as a SetAlarmState packet would.
// Any target but Configuration requires a valid stored configuration, which
// is read again when leaving Configuration.
func (c *Controller) Request(target State) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown state %d", ErrRejected, target)
	}
	if target != Configuration && target != c.state {
		check := c.opts.Store.Validate
		if c.state == Configuration {
			check = c.load
		}
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
	}
	c.transition(target)
	return nil
}

func (c *Controller) receive() {
	p, err := c.opts.Radio.Receive()
	if err != nil {
		log.Warn("dropped frame", "err", err)
		return
	}
	if p == nil {
		return
	}
	if p.ID != c.opts.NodeID {
		log.Warn("dropped frame", "err", fmt.Errorf("%w: id %d", lora.ErrWrongNode, p.ID))
		return
	}
	log.Debug("packet received", "type", p.Type, "length", p.Length(), "ts", p.Timestamp)

	c.syncClock(*p)
	cmd, err := ParseCommand(*p)
	if err == nil {
		err = c.apply(cmd)
	}
	if err != nil {
		log.Warn("rejected command", "type", p.Type, "err", err)
		c.opts.Observer.Rejected(p.Type, err)
	}
}

// syncClock corrects the clock from the timestamp of any packet other than a
// SetRtcTime, as long as a SetRtcTime was not applied recently.
func (c *Controller) syncClock(p lora.Packet) {
	if p.Type == lora.SetRtcTime || p.Timestamp < MinimumUnixTime {
		return
	}
	if c.now.Before(c.syncHold) {
		return
	}
	ts := time.Unix(int64(p.Timestamp), 0)
	drift := ts.Sub(c.opts.Clock.Now())
	if drift < 0 {
		drift = -drift
	}
	if drift <= MaxClockDrift {
		return
	}
	log.Info("clock drifted, syncing from packet", "drift", drift.Truncate(time.Second), "time", ts)
	c.opts.Clock.Set(ts)
}

func (c *Controller) apply(cmd Command) error {
	switch cmd := cmd.(type) {
	case SetCombination:
		if err := c.opts.Store.Store(cmd.Combination); err != nil {
			return err
		}
		c.combination = cmd.Combination
		c.awaitCombination = false
		log.Info("secret combination updated")
	case SetTimeRange:
		if err := c.opts.Store.StoreRules(cmd.Rules); err != nil {
			return err
		}
		c.matcher.SetRules(cmd.Rules)
		c.awaitRules = false
		log.Info("time range rules updated", "count", len(cmd.Rules))
	case SetAlarmState:
		return c.Request(cmd.State)
	case SetRTCTime:
		c.opts.Clock.Set(cmd.Time)
		c.syncHold = c.now.Add(syncHoldOff)
		log.Info("clock set", "time", cmd.Time)
	case MotionReport:
		c.remoteMotion = cmd.Motion
	case Heartbeat:
		log.Debug("ignoring heartbeat")
	}
	return nil
}

func (c *Controller) step() {
	defer func() { c.remoteMotion = false }()

	switch c.state {
	case Inactive:
		if c.monitoring() {
			c.transition(Monitoring)
		}
	case Monitoring:
		if !c.monitoring() {
			c.transition(Inactive)
		} else if c.remoteMotion || c.opts.Motion.Motion() {
			log.Warn("motion detected", "remote", c.remoteMotion)
			c.transition(Triggered)
		}
	case Triggered:
		c.disarm()
	case Disarmed:
		if c.now.Sub(c.enteredAt) > DisarmedTimeout {
			c.transition(Inactive)
		}
	case FailedDisarm:
		if c.now.Sub(c.enteredAt) > AlarmTimeout {
			c.opts.Feedback.Play(ToneAlarmTimeout)
			c.transition(Inactive)
		}
	case Configuration:
		if c.awaitCombination || c.awaitRules {
			return
		}
		if err := c.load(); err != nil {
			log.Warn("configuration still invalid", "err", err)
			c.awaitMissing()
			return
		}
		if c.monitoring() {
			c.transition(Monitoring)
		} else {
			c.transition(Inactive)
		}
	}
}

func (c *Controller) monitoring() bool {
	return c.matcher.IsMonitoring(c.opts.Clock.Now().In(c.opts.Location))
}

func (c *Controller) disarm() {
	if c.tries >= MaxTries || c.now.Sub(c.enteredAt) > MaxDisarmTime {
		c.transition(FailedDisarm)
		return
	}

	pressed := c.opts.Keypad.Pressed()
	if c.held != None {
		if pressed == c.held {
			return
		}
		c.held = None
	}

	if c.now.Sub(c.lastBlink) > BlinkInterval {
		c.blank = !c.blank
		c.lastBlink = c.now
		c.show()
	}

	if pressed == None {
		return
	}
	log.Debug("button pressed", "button", pressed, "cursor", c.cursor)
	c.held = pressed
	c.press(pressed)
}

func (c *Controller) press(b Button) {
	switch b {
	case Up:
		c.opts.Feedback.Play(ToneKeyPress)
		c.entry[c.cursor] = (c.entry[c.cursor] + 1) % 10
		c.resetBlink()
	case Down:
		c.opts.Feedback.Play(ToneKeyPress)
		c.entry[c.cursor] = (c.entry[c.cursor] + 9) % 10
		c.resetBlink()
	case Next:
		if c.cursor < len(c.entry)-1 {
			c.opts.Feedback.Play(ToneKeyPress)
			c.cursor++
			c.resetBlink()
			return
		}
		c.check()
	case Prev:
		c.opts.Feedback.Play(ToneKeyPress)
		if c.cursor > 0 {
			c.cursor--
		}
		c.resetBlink()
	}
}

func (c *Controller) check() {
	correct := c.entry.Equal(c.combination)
	c.cursor = 0
	c.opts.Observer.Attempt(correct)
	if correct {
		c.transition(Disarmed)
		return
	}

	c.entry = eeprom.Combination{}
	c.tries++
	log.Warn("wrong code", "attempt", c.tries, "max", MaxTries)
	if c.tries >= MaxTries {
		c.transition(FailedDisarm)
		return
	}
	c.opts.Feedback.Play(ToneWrongCode)
	c.resetBlink()
}

func (c *Controller) resetBlink() {
	c.blank = false
	c.lastBlink = c.now
	c.show()
}

func (c *Controller) show() {
	if c.state == Triggered {
		c.opts.Feedback.ShowCode(c.entry, c.cursor, c.blank)
	}
}

// transition is the only place the state changes. Entry effects run here.
func (c *Controller) transition(to State) {
	if to == c.state {
		return
	}
	from := c.state
	c.state = to
	c.enteredAt = c.now
	log.Info("alarm state changed", "from", from, "to", to)

	fb := c.opts.Feedback
	fb.Indicate(to)
	switch to {
	case Configuration:
		c.awaitCombination = true
		c.awaitRules = true
		fb.Clear()
	case Inactive, Monitoring:
		fb.Clear()
	case Triggered:
		c.tries = 0
		c.cursor = 0
		c.entry = eeprom.Combination{}
		c.held = None
		c.resetBlink()
		fb.Play(ToneMotion)
		c.send(lora.MotionState, 1)
	case Disarmed:
		fb.Play(ToneGoodCode)
		c.send(lora.MotionState, 0)
	case FailedDisarm:
		fb.Clear()
		fb.Play(ToneAlarm)
	}
	c.sendHeartbeat()
	c.opts.Observer.Transition(from, to)
}

func (c *Controller) heartbeat() {
	if c.opts.Heartbeat <= 0 {
		return
	}
	if c.lastHeartbeat.IsZero() || c.now.Sub(c.lastHeartbeat) >= c.opts.Heartbeat {
		c.sendHeartbeat()
	}
}

func (c *Controller) sendHeartbeat() {
	c.lastHeartbeat = c.now
	c.send(lora.EdgeHeartbeat, byte(c.state))
}

func (c *Controller) send(typ lora.PayloadType, data ...byte) {
	p := lora.Packet{
		ID:        c.opts.NodeID,
		Timestamp: uint32(c.opts.Clock.Now().Unix()),
		Type:      typ,
		Data:      data,
	}
	if err := c.opts.Radio.Send(p); err != nil {
		if errors.Is(err, lora.ErrNotOperational) {
			log.Debug("radio not operational, packet not sent", "type", typ)
			return
		}
		log.Warn("could not send packet", "type", typ, "err", err)
	}
}
