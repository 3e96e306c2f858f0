package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/caarlos0/env/v11"
	"github.com/cenkalti/backoff/v4"
	logp "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.bug.st/serial"

	"github.com/caarlos0/lora-alarm-node/alarm"
	"github.com/caarlos0/lora-alarm-node/eeprom"
	"github.com/caarlos0/lora-alarm-node/lora"
	"github.com/caarlos0/lora-alarm-node/timerange"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "node",
})

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	manufacturer = "LoRa Alarm"
	serialRead   = 10 * time.Millisecond
)

func main() {
	log.Info(
		"alarm-node",
		"version", version,
		"commit", commit,
		"date", date,
	)

	cfg, err := parseConfig(nil)
	if err != nil {
		var agg env.AggregateError
		if errors.As(err, &agg) {
			err = errors.Join(agg.Errors...)
		}
		log.Fatal(
			"could not parse env",
			"err",
			strings.TrimPrefix(strings.ReplaceAll(err.Error(), "; ", "\n"), "env: ")+"\n",
		)
	}
	if cfg.Debug {
		log.SetLevel(logp.DebugLevel)
		alarm.SetLogLevel(logp.DebugLevel)
		lora.SetLogLevel(logp.DebugLevel)
		eeprom.SetLogLevel(logp.DebugLevel)
		timerange.SetLogLevel(logp.DebugLevel)
	}

	store, err := eeprom.Open(eeprom.File{Path: cfg.EEPROM})
	if err != nil {
		log.Fatal("could not open eeprom", "path", cfg.EEPROM, "err", err)
	}

	radio := setupRadio(cfg)
	defer func() {
		if err := radio.Close(); err != nil {
			log.Error("could not close serial port", "err", err)
		}
	}()

	keys := newConsole(os.Stdin)
	ctrl := alarm.New(alarm.Options{
		NodeID:    cfg.NodeID,
		Store:     store,
		Clock:     &alarm.SystemClock{},
		Radio:     instrumented{radio},
		Keypad:    keys,
		Motion:    keys,
		Feedback:  &logFeedback{},
		Observer:  metrics{},
		Heartbeat: cfg.Heartbeat,
	})
	stateGauge.Set(float64(ctrl.State()))

	requests := make(chan alarm.State, 4)

	bridge := accessory.NewBridge(accessory.Info{
		Name:         "Alarm Bridge",
		Manufacturer: manufacturer,
		Firmware:     version,
	})

	system := NewSecuritySystem(accessory.Info{
		Name:         "Alarm",
		SerialNumber: cfg.Device,
		Manufacturer: manufacturer,
		Firmware:     version,
	}, requests)
	system.Id = 2

	panicBtn := setupPanicButton(requests)
	panicBtn.Id = 3

	intrusion := newIntrusionSensor(accessory.Info{
		Name:         "Intrusion",
		Manufacturer: manufacturer,
	})
	intrusion.Id = 4

	update := func(state alarm.State) {
		radioGauge.Set(boolAs[float64](radio.Operational()))
		system.Update(state, radio.Operational())
		intrusion.Update(state)
		panicBtn.Switch.On.SetValue(state == alarm.FailedDisarm)
	}
	update(ctrl.State())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c
		log.Info("stopping server")
		signal.Stop(c)
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx, cfg.Tick, ctrl, requests, update)
	}()

	fs := hap.NewFsStore(cfg.DB)
	server, err := hap.NewServer(fs, bridge.A, system.A, panicBtn.A, intrusion.A)
	if err != nil {
		log.Fatal("fail to create server", "error", err)
	}
	server.Addr = cfg.Address
	if cfg.Pin != "" {
		server.Pin = cfg.Pin
	}
	server.ServeMux().Handle("/metrics", promhttp.Handler())

	log.Info("starting server", "addr", server.Addr)
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to close server", "err", err)
	}
	cancel()
	<-done
}

// run is the tick loop. Pending requests are applied before the next tick.
func run(
	ctx context.Context,
	every time.Duration,
	ctrl *alarm.Controller,
	requests <-chan alarm.State,
	update func(alarm.State),
) {
	tick := time.NewTicker(every)
	defer tick.Stop()
	last := ctrl.State()
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-requests:
			if err := ctrl.Request(state); err != nil {
				log.Warn("could not change alarm state", "state", state, "err", err)
			}
		case now := <-tick.C:
			if state := ctrl.Tick(now); state != last {
				last = state
				update(state)
			}
		}
	}
}

// setupRadio opens the serial port and configures the modem, retrying for a
// while. The node keeps running without a radio when the modem never answers.
func setupRadio(cfg Config) *lora.Client {
	var port lora.Port = offline{}
	p, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		log.Error("could not open serial port, running without radio", "device", cfg.Device, "err", err)
	} else {
		if err := p.SetReadTimeout(serialRead); err != nil {
			log.Warn("could not set serial read timeout", "err", err)
		}
		port = p
	}

	cli := lora.New(port, lora.Options{
		NodeID:   cfg.NodeID,
		Key:      cfg.Key,
		RFConfig: cfg.RFConfig,
		Timeout:  cfg.HandshakeTimeout,
		Settle:   cfg.Settle,
	})
	if err != nil {
		return cli
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Second * 5
	bo.MaxElapsedTime = cfg.HandshakeRetry
	if err := backoff.RetryNotify(cli.Handshake, bo, func(err error, d time.Duration) {
		log.Warn("modem handshake failed, retrying", "in", d, "err", err)
	}); err != nil {
		log.Error("modem did not answer, running without radio", "device", cfg.Device, "err", err)
	}
	return cli
}

// offline is the port used when the serial device could not be opened.
type offline struct{}

func (offline) Read([]byte) (int, error)  { return 0, nil }
func (offline) Write([]byte) (int, error) { return 0, errors.New("serial port not open") }

func boolAs[T int | float64](b bool) T {
	if b {
		return 1
	}
	return 0
}
