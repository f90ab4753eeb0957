package riolink

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables for a Stack: queue sizing, the retransmission
// timeout, and the STATUS bring-up cadence. Zero-value fields are filled in
// with conventional defaults by Check.
type Config struct {
	InboundSlots   int           `yaml:"inbound_slots"`
	OutboundSlots  int           `yaml:"outbound_slots"`
	PortTimeout    time.Duration `yaml:"port_timeout"`
	StatusBurst    int           `yaml:"status_burst"`
	StatusIdleTail int           `yaml:"status_idle_tail"`
}

// DefaultConfig returns the conventional bring-up and queue sizing values:
// a 15-STATUS-symbol burst followed by a 15-idle tail before declaring
// the link initialized.
func DefaultConfig() Config {
	return Config{
		InboundSlots:   8,
		OutboundSlots:  8,
		PortTimeout:    2 * time.Second,
		StatusBurst:    15,
		StatusIdleTail: 15,
	}
}

// Check validates a Config, filling in DefaultConfig's values for any field
// left at its zero value and rejecting anything out of range.
func (c *Config) Check() error {
	d := DefaultConfig()
	if c.InboundSlots == 0 {
		c.InboundSlots = d.InboundSlots
	}
	if c.OutboundSlots == 0 {
		c.OutboundSlots = d.OutboundSlots
	}
	if c.PortTimeout == 0 {
		c.PortTimeout = d.PortTimeout
	}
	if c.StatusBurst == 0 {
		c.StatusBurst = d.StatusBurst
	}
	if c.StatusIdleTail == 0 {
		c.StatusIdleTail = d.StatusIdleTail
	}

	switch {
	case c.InboundSlots < 1 || c.InboundSlots > 255:
		return errors.New("riolink: inbound_slots must be between 1 and 255")
	case c.OutboundSlots < 1 || c.OutboundSlots > 255:
		return errors.New("riolink: outbound_slots must be between 1 and 255")
	case c.PortTimeout < 0:
		return errors.New("riolink: port_timeout must not be negative")
	case c.StatusBurst < 1:
		return errors.New("riolink: status_burst must be at least 1")
	case c.StatusIdleTail < 0:
		return errors.New("riolink: status_idle_tail must not be negative")
	}
	return nil
}

// LoadConfig reads a YAML-encoded Config from r and validates it with Check.
func LoadConfig(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("riolink: decode config: %w", err)
	}
	if err := c.Check(); err != nil {
		return Config{}, err
	}
	return c, nil
}
