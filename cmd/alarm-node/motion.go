package main

import (
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/service"

	"github.com/caarlos0/lora-alarm-node/alarm"
)

// IntrusionSensor shows motion while an intrusion is being handled.
type IntrusionSensor struct {
	*accessory.A
	Motion *service.MotionSensor
}

func newIntrusionSensor(info accessory.Info) *IntrusionSensor {
	a := IntrusionSensor{}
	a.A = accessory.New(info, accessory.TypeSensor)
	a.Motion = service.NewMotionSensor()
	a.AddS(a.Motion.S)
	return &a
}

func (sensor *IntrusionSensor) Update(state alarm.State) {
	current := intrusion(state)
	if v := sensor.Motion.MotionDetected.Value(); v == current {
		return
	}
	sensor.Motion.MotionDetected.SetValue(current)
	log.Info("motion", "status", current, "state", state)
}

func intrusion(state alarm.State) bool {
	return state == alarm.Triggered || state == alarm.FailedDisarm
}
