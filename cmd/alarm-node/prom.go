package main

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/caarlos0/lora-alarm-node/alarm"
	"github.com/caarlos0/lora-alarm-node/lora"
)

var stateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lora_alarm",
	Subsystem: "alarm",
	Name:      "state",
	Help:      "Current alarm state: 0 inactive, 1 monitoring, 2 triggered, 3 disarmed, 4 failed disarm, 5 configuration.",
})

var transitionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lora_alarm",
	Subsystem: "alarm",
	Name:      "transitions_total",
	Help:      "",
}, []string{"from", "to"})

var attemptCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lora_alarm",
	Subsystem: "alarm",
	Name:      "disarm_attempts_total",
	Help:      "",
}, []string{"result"})

var rejectedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lora_alarm",
	Subsystem: "alarm",
	Name:      "rejected_commands_total",
	Help:      "",
}, []string{"type"})

var radioGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lora_alarm",
	Subsystem: "radio",
	Name:      "operational",
	Help:      "",
})

var receivedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lora_alarm",
	Subsystem: "radio",
	Name:      "frames_received_total",
	Help:      "",
}, []string{"type"})

var sentCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lora_alarm",
	Subsystem: "radio",
	Name:      "frames_sent_total",
	Help:      "",
}, []string{"type"})

var droppedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lora_alarm",
	Subsystem: "radio",
	Name:      "frames_dropped_total",
	Help:      "",
}, []string{"reason"})

type metrics struct{}

func (metrics) Transition(from, to alarm.State) {
	stateGauge.Set(float64(to))
	transitionCounter.WithLabelValues(from.String(), to.String()).Inc()
}

func (metrics) Rejected(t lora.PayloadType, _ error) {
	rejectedCounter.WithLabelValues(t.String()).Inc()
}

func (metrics) Attempt(correct bool) {
	if correct {
		attemptCounter.WithLabelValues("correct").Inc()
		return
	}
	attemptCounter.WithLabelValues("wrong").Inc()
}

// instrumented counts the frames going through a radio.
type instrumented struct {
	alarm.Radio
}

func (r instrumented) Send(p lora.Packet) error {
	if err := r.Radio.Send(p); err != nil {
		return err
	}
	sentCounter.WithLabelValues(p.Type.String()).Inc()
	return nil
}

func (r instrumented) Receive() (*lora.Packet, error) {
	p, err := r.Radio.Receive()
	if err != nil {
		droppedCounter.WithLabelValues(dropReason(err)).Inc()
		return nil, err
	}
	if p != nil {
		receivedCounter.WithLabelValues(p.Type.String()).Inc()
	}
	return p, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, lora.ErrBadTag):
		return "bad_tag"
	case errors.Is(err, lora.ErrWrongNode):
		return "wrong_node"
	case errors.Is(err, lora.ErrTooShort):
		return "too_short"
	case errors.Is(err, lora.ErrOversized):
		return "oversized"
	case errors.Is(err, lora.ErrTrailingData):
		return "trailing_data"
	case errors.Is(err, lora.ErrInvalidHex):
		return "invalid_hex"
	case errors.Is(err, lora.ErrUnknownPayloadType):
		return "unknown_type"
	default:
		return "io"
	}
}
