package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/caarlos0/lora-alarm-node/lora"
)

type Config struct {
	Device           string        `env:"DEVICE,notEmpty"`
	Baud             int           `env:"BAUD"              envDefault:"9600"`
	NodeID           uint8         `env:"NODE_ID"           envDefault:"1"`
	Key              string        `env:"KEY,notEmpty"`
	RFConfig         string        `env:"RFCFG"`
	EEPROM           string        `env:"EEPROM"            envDefault:"./eeprom.bin"`
	Tick             time.Duration `env:"TICK"              envDefault:"100ms"`
	Heartbeat        time.Duration `env:"HEARTBEAT"         envDefault:"1m"`
	Settle           time.Duration `env:"SETTLE"            envDefault:"300ms"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"4s"`
	HandshakeRetry   time.Duration `env:"HANDSHAKE_RETRY"   envDefault:"30s"`
	Address          string        `env:"LISTEN"            envDefault:":9009"`
	DB               string        `env:"DB"                envDefault:"./db"`
	Pin              string        `env:"PIN"`
	Debug            bool          `env:"DEBUG"`
}

// parseConfig reads the configuration from environ, or from the process
// environment when environ is nil.
func parseConfig(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, err
	}
	if cfg.RFConfig == "" {
		cfg.RFConfig = lora.DefaultRFConfig
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.NodeID == 0 {
		errs = append(errs, errors.New("NODE_ID must be between 1 and 255"))
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("TICK must be positive, got %s", c.Tick))
	}
	if c.Baud <= 0 {
		errs = append(errs, fmt.Errorf("BAUD must be positive, got %d", c.Baud))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("HEARTBEAT must not be negative, got %s", c.Heartbeat))
	}
	return errors.Join(errs...)
}
