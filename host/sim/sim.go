// Package sim runs the device firmware in-process: the command dispatcher
// and the shield driver on a simulated I2C bus, reachable over an in-memory
// pipe.
package sim

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"motorshield/afms"
	"motorshield/core"
	"motorshield/i2csim"
)

// Config describes the simulated board.
type Config struct {
	// Addresses get a PCA9685 each. Commands for other addresses fail the
	// way a missing shield does.
	Addresses []uint8

	AlwaysAck bool

	// Trace receives the dispatcher's trace lines.
	Trace core.DebugWriter

	// Sleep replaces time.Sleep between stepper steps. Nil keeps real
	// timing.
	Sleep func(time.Duration)

	Logger *zerolog.Logger
}

// Sim is a running simulated device.
type Sim struct {
	bus      *i2csim.Bus
	dev      *core.Device
	devConn  net.Conn
	hostConn net.Conn
	logger   zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Start builds the device and begins serving the pipe.
func Start(cfg Config) *Sim {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "sim").Logger()
	}

	bus := i2csim.NewBus()
	for _, addr := range cfg.Addresses {
		bus.AddPCA9685(addr)
	}

	factory := afms.Factory{Bus: bus}
	if cfg.Sleep != nil {
		factory.Options = append(factory.Options, afms.WithSleep(cfg.Sleep))
	}

	var opts []core.Option
	if cfg.Trace != nil {
		opts = append(opts, core.WithTrace(cfg.Trace))
	}
	if cfg.AlwaysAck {
		opts = append(opts, core.WithAlwaysAck())
	}

	hostConn, devConn := net.Pipe()
	s := &Sim{
		bus:      bus,
		devConn:  devConn,
		hostConn: hostConn,
		logger:   logger,
		done:     make(chan struct{}),
	}
	s.dev = core.NewDevice(devConn, factory, opts...)
	s.dev.SetErrorHandler(func(cmdID uint8, err error) {
		s.logger.Warn().Err(err).Str("cmd", core.CommandID(cmdID).String()).Msg("command failed")
	})

	go s.serve()

	logger.Info().Int("shields", len(cfg.Addresses)).Msg("simulated device started")
	return s
}

func (s *Sim) serve() {
	defer close(s.done)

	buf := make([]byte, 64)
	for {
		n, err := s.devConn.Read(buf)
		if n > 0 {
			if ferr := s.dev.Feed(buf[:n]); ferr != nil {
				if errors.Is(ferr, io.ErrClosedPipe) {
					return
				}
				s.logger.Error().Err(ferr).Msg("link write failed")
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Error().Err(err).Msg("link read failed")
			}
			return
		}
	}
}

// Conn is the host end of the link.
func (s *Sim) Conn() net.Conn {
	return s.hostConn
}

func (s *Sim) Bus() *i2csim.Bus {
	return s.bus
}

func (s *Sim) Device() *core.Device {
	return s.dev
}

// Close stops serving and releases every shield on the device.
func (s *Sim) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.devConn.Close()
		<-s.done
		err = s.dev.Close()
		s.logger.Info().Msg("simulated device stopped")
	})
	return err
}
