// Package serial opens the USB CDC link to a shield controller.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

var ErrNoDevice = errors.New("serial: no device configured")

// Port is the link to the controller.
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input and unsent output.
	Flush() error
}

// Config holds serial port settings.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	// Baud is ignored by USB CDC but used on a UART bridge.
	Baud int

	// ReadTimeout in milliseconds, 0 blocks.
	ReadTimeout int
}

const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100
)

func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
	}
}

type nativePort struct {
	*serial.Port
}

// Open opens the port described by cfg.
func Open(cfg *Config) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, ErrNoDevice
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	return nativePort{port}, nil
}
