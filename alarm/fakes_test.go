package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/caarlos0/lora-alarm-node/eeprom"
	"github.com/caarlos0/lora-alarm-node/lora"
	"github.com/caarlos0/lora-alarm-node/timerange"
)

var (
	code   = eeprom.Combination{1, 2, 3, 4}
	office = timerange.Rule{
		WeekDays:  timerange.WeekDays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
		Hours:     timerange.HourRange(8, 18),
		MonthDays: timerange.Every.MonthDays,
		Months:    timerange.Every.Months,
	}
	wednesday = time.Date(2026, 10, 21, 10, 0, 0, 0, time.UTC)
	saturday  = time.Date(2026, 10, 24, 10, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	now  time.Time
	sets int
}

func (c *fakeClock) Now() time.Time  { return c.now }
func (c *fakeClock) Set(t time.Time) { c.now = t; c.sets++ }

type fakeKeypad struct{ held Button }

func (k *fakeKeypad) Pressed() Button { return k.held }

type fakeMotion struct{ motion bool }

func (m *fakeMotion) Motion() bool { return m.motion }

type shown struct {
	code   eeprom.Combination
	cursor int
	blank  bool
}

type fakeFeedback struct {
	tones     []Tone
	indicated []State
	shown     []shown
	clears    int
}

func (f *fakeFeedback) ShowCode(code eeprom.Combination, cursor int, blank bool) {
	f.shown = append(f.shown, shown{code, cursor, blank})
}
func (f *fakeFeedback) Clear()           { f.clears++ }
func (f *fakeFeedback) Indicate(s State) { f.indicated = append(f.indicated, s) }
func (f *fakeFeedback) Play(t Tone)      { f.tones = append(f.tones, t) }

type fakeRadio struct {
	inbox []*lora.Packet
	errs  []error
	sent  []lora.Packet
}

func (r *fakeRadio) Send(p lora.Packet) error {
	r.sent = append(r.sent, p)
	return nil
}

func (r *fakeRadio) Receive() (*lora.Packet, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return nil, err
	}
	if len(r.inbox) == 0 {
		return nil, nil
	}
	p := r.inbox[0]
	r.inbox = r.inbox[1:]
	return p, nil
}

func (r *fakeRadio) deliver(typ lora.PayloadType, ts uint32, data ...byte) {
	r.inbox = append(r.inbox, &lora.Packet{ID: 1, Timestamp: ts, Type: typ, Data: data})
}

func (r *fakeRadio) sentOf(typ lora.PayloadType) [][]byte {
	var result [][]byte
	for _, p := range r.sent {
		if p.Type == typ {
			result = append(result, p.Data)
		}
	}
	return result
}

type transition struct{ from, to State }

type recorder struct {
	transitions []transition
	rejected    []lora.PayloadType
	attempts    []bool
}

func (r *recorder) Transition(from, to State)              { r.transitions = append(r.transitions, transition{from, to}) }
func (r *recorder) Rejected(t lora.PayloadType, err error) { r.rejected = append(r.rejected, t) }
func (r *recorder) Attempt(correct bool)                   { r.attempts = append(r.attempts, correct) }

type harness struct {
	*Controller
	mem      *eeprom.Memory
	store    *eeprom.Store
	clock    *fakeClock
	keypad   *fakeKeypad
	motion   *fakeMotion
	feedback *fakeFeedback
	radio    *fakeRadio
	observed *recorder
	tick     time.Time
}

// newHarness builds a controller at wednesday 10:00. With configured set the
// store holds code and the office rule.
func newHarness(t *testing.T, configured bool) *harness {
	t.Helper()
	mem := &eeprom.Memory{}
	store, err := eeprom.Open(mem)
	require.NoError(t, err)
	if configured {
		require.NoError(t, store.Store(code))
		require.NoError(t, store.StoreRules([]timerange.Rule{office}))
	}
	h := &harness{
		mem:      mem,
		store:    store,
		clock:    &fakeClock{now: wednesday},
		keypad:   &fakeKeypad{},
		motion:   &fakeMotion{},
		feedback: &fakeFeedback{},
		radio:    &fakeRadio{},
		observed: &recorder{},
		tick:     time.Unix(0, 0).Add(time.Hour),
	}
	h.Controller = New(Options{
		NodeID:   1,
		Store:    store,
		Clock:    h.clock,
		Radio:    h.radio,
		Keypad:   h.keypad,
		Motion:   h.motion,
		Feedback: h.feedback,
		Observer: h.observed,
		Location: time.UTC,
	})
	return h
}

// step advances the monotonic tick clock and runs one tick.
func (h *harness) step(d time.Duration) State {
	h.tick = h.tick.Add(d)
	return h.Tick(h.tick)
}

// press holds a button for one tick and releases it on the next one.
func (h *harness) press(b Button) {
	h.keypad.held = b
	h.step(50 * time.Millisecond)
	h.keypad.held = None
	h.step(50 * time.Millisecond)
}

func (h *harness) enter(code eeprom.Combination) {
	for _, digit := range code {
		for i := uint8(0); i < digit; i++ {
			h.press(Up)
		}
		h.press(Next)
	}
}

// trigger moves a configured harness into Triggered through local motion.
func (h *harness) trigger(t *testing.T) {
	t.Helper()
	require.Equal(t, Monitoring, h.step(100*time.Millisecond))
	h.motion.motion = true
	require.Equal(t, Triggered, h.step(100*time.Millisecond))
	h.motion.motion = false
}
