// Command provision writes the secret combination and the monitoring time
// ranges into a node's eeprom image, or erases it so the node boots into
// configuration mode.
package main

import (
	"errors"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	logp "github.com/charmbracelet/log"

	"github.com/caarlos0/lora-alarm-node/eeprom"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "provision",
})

type Config struct {
	EEPROM string `env:"EEPROM" envDefault:"./eeprom.bin"`
	File   string `env:"FILE"`
	Erase  bool   `env:"ERASE"`
	Debug  bool   `env:"DEBUG"`
}

func parseConfig(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, err
	}
	if cfg.Erase == (cfg.File != "") {
		return cfg, errors.New("set either FILE or ERASE")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(nil)
	if err != nil {
		log.Fatal("could not parse env", "err", err)
	}
	if cfg.Debug {
		log.SetLevel(logp.DebugLevel)
		eeprom.SetLogLevel(logp.DebugLevel)
	}

	store, err := eeprom.Open(eeprom.File{Path: cfg.EEPROM})
	if err != nil {
		log.Fatal("could not open eeprom", "path", cfg.EEPROM, "err", err)
	}
	if err := provision(cfg, store); err != nil {
		log.Fatal("could not provision", "path", cfg.EEPROM, "err", err)
	}
}

func provision(cfg Config, store *eeprom.Store) error {
	if cfg.Erase {
		if err := store.Erase(); err != nil {
			return err
		}
		log.Info("erased", "path", cfg.EEPROM)
		return nil
	}

	f, err := loadFile(cfg.File)
	if err != nil {
		return err
	}
	combination, rules, err := f.Parse()
	if err != nil {
		return err
	}
	for i, r := range rules {
		log.Debug("rule", "index", i, "rule", r)
	}
	if err := store.Store(combination); err != nil {
		return err
	}
	if err := store.StoreRules(rules); err != nil {
		return err
	}
	log.Info("provisioned", "path", cfg.EEPROM, "rules", len(rules))
	return store.Validate()
}
