package lora

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/sync/cio"
	logp "github.com/charmbracelet/log"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "lora",
})

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

const (
	cmdTestMode = "AT+MODE=TEST"
	cmdListen   = "AT+TEST=RXLRPKT"
	cmdSend     = "AT+TEST=TXLRPKT"

	rxPrefix = `+TEST: RX "`

	// DefaultRFConfig is 868.1MHz, SF7, 125kHz.
	DefaultRFConfig = "AT+TEST=RFCFG,868.1,SF7,125,8,15,14,ON,OFF,OFF"

	maxQueue   = 8
	maxPending = 1024
	readChunk  = 256
	readWindow = 250 * time.Millisecond
)

var errorTokens = []string{"ERROR", "FAIL"}

var ErrNotOperational = errors.New("lora module not operational")

// Port is the serial line to the modem.
// Reads are expected to return quickly when there is nothing to read.
type Port interface {
	io.Reader
	io.Writer
}

// Options configures a Client.
type Options struct {
	// NodeID is this node's id: inbound frames must carry it and outbound
	// frames are sent with it.
	NodeID uint8
	// Key is the shared string mixed into the integrity tag.
	Key string
	// RFConfig is the AT command that configures the radio.
	RFConfig string
	// Timeout bounds the configuration handshake.
	Timeout time.Duration
	// Settle is how long the modem needs after a command before it accepts
	// the next one.
	Settle time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Client drives a LoRa modem in raw test mode over a line oriented serial
// channel.
type Client struct {
	port    Port
	opts    Options
	working bool

	pending   []byte
	queue     []string
	busyUntil time.Time
	listening bool
}

func New(port Port, opts Options) *Client {
	if opts.RFConfig == "" {
		opts.RFConfig = DefaultRFConfig
	}
	if opts.Timeout == 0 {
		opts.Timeout = 4 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		port: port,
		opts: opts,
	}
}

// Operational reports whether the last handshake succeeded.
func (c *Client) Operational() bool {
	return c.working
}

// Handshake puts the modem in test mode, applies the RF configuration and
// starts listening. It blocks for at most the configured timeout and fails
// as soon as the modem answers with an error.
func (c *Client) Handshake() error {
	c.working = false
	c.pending = c.pending[:0]
	c.queue = c.queue[:0]

	if err := c.writeLine(cmdTestMode); err != nil {
		return fmt.Errorf("could not set test mode: %w", err)
	}
	c.settle()
	if err := c.writeLine(c.opts.RFConfig); err != nil {
		return fmt.Errorf("could not configure radio: %w", err)
	}
	c.settle()
	if err := c.waitAny(c.opts.Timeout, "RFCFG", "OK"); err != nil {
		return fmt.Errorf("could not configure radio: %w", err)
	}
	if err := c.writeLine(cmdListen); err != nil {
		return fmt.Errorf("could not start listening: %w", err)
	}
	c.working = true
	c.listening = true
	c.busyUntil = c.opts.Now().Add(c.opts.Settle)
	log.Info("module initialized in test mode")
	return nil
}

// Send signs the packet and queues it for transmission. The frame goes out
// right away when the modem is idle, otherwise on a later Receive.
func (c *Client) Send(p Packet) error {
	if !c.working {
		return ErrNotOperational
	}
	p = Sign(p, c.opts.Key)
	frame, err := Encode(p)
	if err != nil {
		return fmt.Errorf("could not encode packet: %w", err)
	}
	if len(c.queue) == maxQueue {
		log.Warn("send queue full, dropping oldest frame", "frame", c.queue[0])
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, fmt.Sprintf("%s,%q", cmdSend, frame))
	log.Debug("queued packet", "type", p.Type, "length", p.Length(), "frame", frame)
	return c.pump()
}

// Receive reads whatever the modem has buffered and returns at most one
// verified packet. It never blocks: a nil packet and a nil error mean
// nothing arrived. Lines other than received frames are ignored.
func (c *Client) Receive() (*Packet, error) {
	if !c.working {
		return nil, nil
	}
	if err := c.pump(); err != nil {
		return nil, err
	}

	buf := make([]byte, readChunk)
	n, err := c.port.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not read from module: %w", err)
	}
	c.pending = append(c.pending, buf[:n]...)

	line, ok := c.nextLine()
	if !ok {
		return nil, nil
	}
	if !strings.HasPrefix(line, rxPrefix) {
		log.Debug("ignoring line", "line", line)
		return nil, nil
	}

	log.Debug("frame received", "line", line)
	frame, _, _ := strings.Cut(strings.TrimPrefix(line, rxPrefix), `"`)
	p, err := Decode(frame)
	if err != nil {
		return nil, fmt.Errorf("could not decode frame: %w", err)
	}
	if p.ID != c.opts.NodeID {
		return nil, fmt.Errorf("%w: id %d", ErrWrongNode, p.ID)
	}
	if !Verify(p, c.opts.Key) {
		return nil, fmt.Errorf("%w: type %s", ErrBadTag, p.Type)
	}
	return &p, nil
}

func (c *Client) Close() error {
	if closer, ok := c.port.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// pump transmits the next queued frame once the modem settled, and puts it
// back in listen mode after the last one.
func (c *Client) pump() error {
	now := c.opts.Now()
	if now.Before(c.busyUntil) {
		return nil
	}
	if len(c.queue) > 0 {
		cmd := c.queue[0]
		c.queue = c.queue[1:]
		log.Debug("sending", "cmd", cmd)
		if err := c.writeLine(cmd); err != nil {
			return fmt.Errorf("could not send packet: %w", err)
		}
		c.listening = false
		c.busyUntil = now.Add(c.opts.Settle)
		return nil
	}
	if !c.listening {
		if err := c.writeLine(cmdListen); err != nil {
			return fmt.Errorf("could not start listening: %w", err)
		}
		c.listening = true
		c.busyUntil = now.Add(c.opts.Settle)
	}
	return nil
}

func (c *Client) nextLine() (string, bool) {
	i := bytes.IndexByte(c.pending, '\n')
	if i < 0 {
		if len(c.pending) > maxPending {
			log.Warn("discarding unterminated input", "bytes", len(c.pending))
			c.pending = c.pending[:0]
		}
		return "", false
	}
	line := strings.TrimSpace(string(c.pending[:i]))
	c.pending = append(c.pending[:0], c.pending[i+1:]...)
	return line, true
}

// waitAny blocks until the modem output contains any of the expected tokens,
// an error token, or the timeout elapses.
func (c *Client) waitAny(timeout time.Duration, expected ...string) error {
	deadline := c.opts.Now().Add(timeout)
	var resp strings.Builder
	buf := make([]byte, readChunk)
	for c.opts.Now().Before(deadline) {
		n, err := cio.TimeoutReader(c.port, readWindow).Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			log.Debug("read failed while waiting", "err", err)
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp.Write(buf[:n])

		got := resp.String()
		for _, token := range errorTokens {
			if strings.Contains(got, token) {
				log.Error("module answered with an error", "resp", got)
				return fmt.Errorf("module answered: %q", strings.TrimSpace(got))
			}
		}
		for _, token := range expected {
			if strings.Contains(got, token) {
				log.Debug("module answered", "resp", got)
				return nil
			}
		}
	}
	return fmt.Errorf("module did not answer in %s: %q", timeout, strings.TrimSpace(resp.String()))
}

func (c *Client) writeLine(s string) error {
	_, err := io.WriteString(c.port, s+"\r\n")
	return err
}

func (c *Client) settle() {
	if c.opts.Settle > 0 {
		time.Sleep(c.opts.Settle)
	}
}
