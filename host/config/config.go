// Package config loads the host-side shield profile: link settings plus the
// shields and motors to create on connect.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"

	"motorshield/core"
	"motorshield/host/serial"
)

var ErrInvalid = errors.New("config: invalid profile")

// Shield address range selectable with the board's address jumpers.
const (
	MinAddress = 0x60
	MaxAddress = 0x7F
)

const (
	DefaultPWMFreq    = 1600
	DefaultAckTimeout = 2 * time.Second
	DefaultLogLevel   = "info"
	DefaultListen     = "127.0.0.1:8080"
)

type Stepper struct {
	Index       uint8  `yaml:"index"`
	StepsPerRev uint16 `yaml:"steps_per_rev"`
	RPM         uint16 `yaml:"rpm"`
}

type Shield struct {
	Index    uint8     `yaml:"index"`
	Address  uint8     `yaml:"address"`
	PWMFreq  uint16    `yaml:"pwm_freq"`
	DCMotors []uint8   `yaml:"dc_motors"`
	Steppers []Stepper `yaml:"steppers"`
}

type Config struct {
	Device        string        `yaml:"device" env:"SHIELD_DEVICE"`
	Baud          int           `yaml:"baud" env:"SHIELD_BAUD"`
	ReadTimeoutMS int           `yaml:"read_timeout_ms"`
	AckTimeout    time.Duration `yaml:"ack_timeout" env:"SHIELD_ACK_TIMEOUT"`
	LogLevel      string        `yaml:"log_level" env:"SHIELD_LOG_LEVEL"`
	TraceFile     string        `yaml:"trace_file" env:"SHIELD_TRACE_FILE"`
	Listen        string        `yaml:"listen" env:"SHIELD_LISTEN"`

	// AlwaysAck makes the simulated device ack motor commands addressed to
	// a shield index past its table, as older firmware did.
	AlwaysAck bool `yaml:"always_ack"`

	Shields []Shield `yaml:"shields"`
}

// Load reads the profile at path (skipped when empty), applies environment
// overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML profile without touching the environment.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Baud == 0 {
		c.Baud = serial.DefaultBaud
	}
	if c.ReadTimeoutMS == 0 {
		c.ReadTimeoutMS = serial.DefaultReadTimeout
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	for i := range c.Shields {
		if c.Shields[i].PWMFreq == 0 {
			c.Shields[i].PWMFreq = DefaultPWMFreq
		}
	}
}

// Validate checks indices and addresses against the device limits.
func (c *Config) Validate() error {
	if c.Baud < 0 {
		return fmt.Errorf("%w: negative baud %d", ErrInvalid, c.Baud)
	}
	seen := make(map[uint8]bool)
	addrs := make(map[uint8]uint8)
	for _, s := range c.Shields {
		if int(s.Index) >= core.MaxShields {
			return fmt.Errorf("%w: shield index %d out of range (max %d)", ErrInvalid, s.Index, core.MaxShields-1)
		}
		if seen[s.Index] {
			return fmt.Errorf("%w: shield index %d listed twice", ErrInvalid, s.Index)
		}
		seen[s.Index] = true

		if s.Address < MinAddress || s.Address > MaxAddress {
			return fmt.Errorf("%w: shield %d address 0x%02x outside 0x%02x..0x%02x",
				ErrInvalid, s.Index, s.Address, MinAddress, MaxAddress)
		}
		if other, ok := addrs[s.Address]; ok {
			return fmt.Errorf("%w: shields %d and %d share address 0x%02x", ErrInvalid, other, s.Index, s.Address)
		}
		addrs[s.Address] = s.Index

		for _, m := range s.DCMotors {
			if m >= core.MaxDCMotors {
				return fmt.Errorf("%w: shield %d dc motor %d out of range", ErrInvalid, s.Index, m)
			}
		}
		for _, st := range s.Steppers {
			if st.Index >= core.MaxSteppers {
				return fmt.Errorf("%w: shield %d stepper %d out of range", ErrInvalid, s.Index, st.Index)
			}
			if st.StepsPerRev == 0 || st.RPM == 0 {
				return fmt.Errorf("%w: shield %d stepper %d needs steps_per_rev and rpm", ErrInvalid, s.Index, st.Index)
			}
		}
	}
	return nil
}

// Serial returns the port settings for the configured device.
func (c *Config) Serial() *serial.Config {
	return &serial.Config{
		Device:      c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeoutMS,
	}
}

// Addresses lists the I2C addresses of all configured shields.
func (c *Config) Addresses() []uint8 {
	addrs := make([]uint8, 0, len(c.Shields))
	for _, s := range c.Shields {
		addrs = append(addrs, s.Address)
	}
	return addrs
}
