package main

import (
	"net/http"

	"github.com/brutella/hap/accessory"

	"github.com/caarlos0/lora-alarm-node/alarm"
)

func setupPanicButton(requests chan<- alarm.State) *accessory.Switch {
	a := accessory.NewSwitch(accessory.Info{
		Name:         "Audible Panic",
		Manufacturer: manufacturer,
	})
	a.Switch.On.SetValueRequestFunc = func(value interface{}, _ *http.Request) (response interface{}, code int) {
		if value.(bool) {
			log.Warn("triggering an audible panic!")
			return request(requests, alarm.FailedDisarm)
		}
		return request(requests, alarm.Inactive)
	}
	return a
}
