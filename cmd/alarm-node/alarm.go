package main

import (
	"net/http"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"

	"github.com/caarlos0/lora-alarm-node/alarm"
)

type SecuritySystem struct {
	*accessory.A
	SecuritySystem *service.SecuritySystem
	Fault          *characteristic.StatusFault

	requests chan<- alarm.State
}

func NewSecuritySystem(info accessory.Info, requests chan<- alarm.State) *SecuritySystem {
	a := &SecuritySystem{
		requests: requests,
	}
	a.A = accessory.New(info, accessory.TypeSecuritySystem)

	a.SecuritySystem = service.NewSecuritySystem()
	a.AddS(a.SecuritySystem.S)

	a.Fault = characteristic.NewStatusFault()
	a.SecuritySystem.AddC(a.Fault.C)

	a.SecuritySystem.SecuritySystemTargetState.SetValueRequestFunc = a.updateHandler

	return a
}

// Update reflects the node state. The node is faulty while it waits for a
// configuration or has no working radio.
func (a *SecuritySystem) Update(state alarm.State, radioUp bool) {
	if v := currentState(state); a.SecuritySystem.SecuritySystemCurrentState.Value() != v {
		err := a.SecuritySystem.SecuritySystemCurrentState.SetValue(v)
		log.Info("set current state", "state", v, "err", err)
	}
	if v := targetState(state); a.SecuritySystem.SecuritySystemTargetState.Value() != v {
		_ = a.SecuritySystem.SecuritySystemTargetState.SetValue(v)
	}

	fault := characteristic.StatusFaultNoFault
	if state == alarm.Configuration || !radioUp {
		fault = characteristic.StatusFaultGeneralFault
	}
	if a.Fault.Value() != fault {
		_ = a.Fault.SetValue(fault)
		log.Info("alarm status", "fault", fault == characteristic.StatusFaultGeneralFault, "radio", radioUp, "state", state)
	}
}

func (a *SecuritySystem) updateHandler(
	v interface{},
	_ *http.Request,
) (response interface{}, code int) {
	switch v.(int) {
	case characteristic.SecuritySystemTargetStateStayArm,
		characteristic.SecuritySystemTargetStateAwayArm,
		characteristic.SecuritySystemTargetStateNightArm:
		log.Info("arm")
		return request(a.requests, alarm.Monitoring)
	case characteristic.SecuritySystemTargetStateDisarm:
		log.Info("disarm")
		return request(a.requests, alarm.Inactive)
	default:
		return nil, hap.JsonStatusResourceDoesNotExist
	}
}

// request hands the target state to the tick loop without waiting for it.
func request(requests chan<- alarm.State, state alarm.State) (interface{}, int) {
	select {
	case requests <- state:
		return nil, hap.JsonStatusSuccess
	default:
		log.Warn("too many pending requests", "state", state)
		return nil, hap.JsonStatusResourceBusy
	}
}

func currentState(state alarm.State) int {
	switch state {
	case alarm.Monitoring, alarm.Triggered:
		return characteristic.SecuritySystemCurrentStateAwayArm
	case alarm.FailedDisarm:
		return characteristic.SecuritySystemCurrentStateAlarmTriggered
	default:
		return characteristic.SecuritySystemCurrentStateDisarmed
	}
}

func targetState(state alarm.State) int {
	switch state {
	case alarm.Monitoring, alarm.Triggered, alarm.FailedDisarm:
		return characteristic.SecuritySystemTargetStateAwayArm
	default:
		return characteristic.SecuritySystemTargetStateDisarm
	}
}
