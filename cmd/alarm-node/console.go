package main

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/lora-alarm-node/alarm"
)

// console is a keypad and motion sensor driven by lines typed on a terminal:
// "+" and "-" change the digit, "n" and "p" move the cursor, "m" reports
// motion. Each key is held for one poll and released on the next.
// Motion only counts when it is polled within motionWindow of being typed.
type console struct {
	buttons chan alarm.Button
	motion  chan time.Time
	held    bool
	now     func() time.Time
}

const motionWindow = 2 * time.Second

func newConsole(r io.Reader) *console {
	c := &console{
		buttons: make(chan alarm.Button, 16),
		motion:  make(chan time.Time, 1),
		now:     time.Now,
	}
	go c.read(r)
	return c
}

func (c *console) read(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		for _, key := range strings.TrimSpace(scanner.Text()) {
			c.handle(key)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error("could not read console", "err", err)
	}
}

func (c *console) handle(key rune) {
	var b alarm.Button
	switch key {
	case '+':
		b = alarm.Up
	case '-':
		b = alarm.Down
	case 'n':
		b = alarm.Next
	case 'p':
		b = alarm.Prev
	case 'm':
		select {
		case c.motion <- c.now():
		default:
		}
		return
	default:
		log.Warn("unknown key", "key", string(key))
		return
	}
	select {
	case c.buttons <- b:
	default:
		log.Warn("too many keys pressed, dropping", "key", string(key))
	}
}

func (c *console) Pressed() alarm.Button {
	if c.held {
		c.held = false
		return alarm.None
	}
	select {
	case b := <-c.buttons:
		c.held = true
		return b
	default:
		return alarm.None
	}
}

func (c *console) Motion() bool {
	select {
	case at := <-c.motion:
		if age := c.now().Sub(at); age > motionWindow {
			log.Debug("ignoring stale motion", "age", age)
			return false
		}
		return true
	default:
		return false
	}
}
