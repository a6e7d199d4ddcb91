// Package client is the host end of the shield command protocol: one method
// per command, each waiting for the device's ack.
package client

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"motorshield/core"
	"motorshield/host/config"
	"motorshield/host/metrics"
	"motorshield/host/serial"
	"motorshield/protocol"
)

var (
	ErrAckTimeout = errors.New("client: command ack timeout")
	ErrClosed     = errors.New("client: connection closed")
)

const (
	DefaultAckTimeout = 2 * time.Second

	// DefaultMoveTimeout bounds a move on a stepper whose speed the client
	// has not seen.
	DefaultMoveTimeout = 2 * time.Minute
)

// Option configures a Client.
type Option func(*Client)

func WithAckTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type stepperKey struct {
	shield, motor uint8
}

type stepperSpeed struct {
	stepsPerRev uint16
	rpm         uint16
}

// Client sends commands over one link. Calls are serialised: the device
// handles one command at a time.
type Client struct {
	mu         sync.Mutex
	transport  *protocol.HostTransport
	ackTimeout time.Duration
	logger     zerolog.Logger
	steppers   map[stepperKey]stepperSpeed
	closed     bool
}

// New runs the protocol over port. The client owns port and closes it.
func New(port io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		transport:  protocol.NewHostTransport(port),
		ackTimeout: DefaultAckTimeout,
		logger:     zerolog.Nop(),
		steppers:   make(map[stepperKey]stepperSpeed),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens the serial device in cfg.
func Dial(cfg *serial.Config, opts ...Option) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", cfg.Device, err)
	}
	return New(port, opts...), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.transport.Close()
}

// Send transmits cmd and waits for the link ack and then the command ack.
func (c *Client) Send(cmd core.Command) error {
	return c.send(cmd, c.ackTimeout)
}

func (c *Client) send(cmd core.Command, timeout time.Duration) error {
	start := time.Now()
	err := c.exchange(cmd, timeout)
	metrics.RecordCommand(cmd.ID().String(), time.Since(start), err, failureReason(err))
	return err
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAckTimeout):
		return metrics.ReasonAckTimeout
	case errors.Is(err, ErrClosed):
		return metrics.ReasonClosed
	}
	return metrics.ReasonError
}

func (c *Client) exchange(cmd core.Command, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	id := cmd.ID()
	start := time.Now()

	// Responses left over from a timed-out command must not be taken for
	// this one's.
	c.transport.DrainResponses()

	ackSeq, err := c.transport.SendCommandSeq(uint8(id), core.EncodePayload(cmd), timeout)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrTransportClosed):
			return ErrClosed
		case errors.Is(err, protocol.ErrAckTimeout):
			return fmt.Errorf("%w: %s: no link ack", ErrAckTimeout, id)
		}
		return fmt.Errorf("%s: %w", id, err)
	}

	// The device frames a command's ack before the link ACK, so by now it
	// is queued if it was sent at all.
	for {
		msg, ok := c.transport.PollResponse()
		if !ok {
			return fmt.Errorf("%w: %s not acknowledged", ErrAckTimeout, id)
		}
		got, _ := msg.CommandID()
		if msg.Sequence != ackSeq || got != uint8(id) {
			c.logger.Debug().Uint8("cmd_id", got).Uint8("seq", msg.Sequence).
				Str("want", id.String()).Msg("skipping stale response")
			continue
		}
		c.logger.Debug().Str("cmd", id.String()).Dur("elapsed", time.Since(start)).Msg("acked")
		return nil
	}
}

func (c *Client) CreateShield(shield, address uint8, pwmFreq uint16) error {
	err := c.Send(core.CreateShield{Shield: shield, Address: address, PWMFreq: pwmFreq})
	if err == nil {
		c.forgetSteppers(shield)
	}
	return err
}

func (c *Client) DeleteShield(shield uint8) error {
	err := c.Send(core.DeleteShield{Shield: shield})
	if err == nil {
		c.forgetSteppers(shield)
	}
	return err
}

func (c *Client) CreateDCMotor(shield, motor uint8) error {
	return c.Send(core.CreateDCMotor{Shield: shield, Motor: motor})
}

func (c *Client) StartDCMotor(shield, motor, speed, direction uint8) error {
	return c.Send(core.StartDCMotor{Shield: shield, Motor: motor, Speed: speed, Direction: direction})
}

func (c *Client) StopDCMotor(shield, motor uint8) error {
	return c.Send(core.StopDCMotor{Shield: shield, Motor: motor})
}

func (c *Client) SetSpeedDCMotor(shield, motor, speed, direction uint8) error {
	return c.Send(core.SetSpeedDCMotor{Shield: shield, Motor: motor, Speed: speed, Direction: direction})
}

func (c *Client) CreateStepper(shield, motor uint8, stepsPerRev, rpm uint16) error {
	err := c.Send(core.CreateStepper{Shield: shield, Motor: motor, StepsPerRev: stepsPerRev, RPM: rpm})
	if err == nil {
		c.mu.Lock()
		c.steppers[stepperKey{shield, motor}] = stepperSpeed{stepsPerRev: stepsPerRev, rpm: rpm}
		c.mu.Unlock()
	}
	return err
}

func (c *Client) ReleaseStepper(shield, motor uint8) error {
	return c.Send(core.ReleaseStepper{Shield: shield, Motor: motor})
}

// MoveStepper blocks until the device has finished stepping, so its timeout
// grows with the move length.
func (c *Client) MoveStepper(shield, motor uint8, steps uint16, direction, style uint8) error {
	cmd := core.MoveStepper{Shield: shield, Motor: motor, Steps: steps, Direction: direction, Style: style}
	return c.send(cmd, c.moveTimeout(shield, motor, steps))
}

func (c *Client) SetSpeedStepper(shield, motor uint8, rpm uint16) error {
	err := c.Send(core.SetSpeedStepper{Shield: shield, Motor: motor, RPM: rpm})
	if err == nil {
		c.mu.Lock()
		key := stepperKey{shield, motor}
		if s, ok := c.steppers[key]; ok {
			s.rpm = rpm
			c.steppers[key] = s
		}
		c.mu.Unlock()
	}
	return err
}

// moveTimeout estimates how long the device needs for steps full steps,
// doubled, plus the normal ack timeout.
func (c *Client) moveTimeout(shield, motor uint8, steps uint16) time.Duration {
	c.mu.Lock()
	s, ok := c.steppers[stepperKey{shield, motor}]
	c.mu.Unlock()
	if !ok || s.rpm == 0 || s.stepsPerRev == 0 {
		return DefaultMoveTimeout
	}
	perStep := time.Minute / time.Duration(uint32(s.stepsPerRev)*uint32(s.rpm))
	return 2*time.Duration(steps)*perStep + c.ackTimeout
}

func (c *Client) forgetSteppers(shield uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.steppers {
		if key.shield == shield {
			delete(c.steppers, key)
		}
	}
}

// ApplyProfile creates every shield and motor listed in cfg.
func (c *Client) ApplyProfile(cfg *config.Config) error {
	for _, s := range cfg.Shields {
		if err := c.CreateShield(s.Index, s.Address, s.PWMFreq); err != nil {
			return fmt.Errorf("shield %d: %w", s.Index, err)
		}
		c.logger.Info().Uint8("shield", s.Index).Str("address", fmt.Sprintf("0x%02x", s.Address)).
			Uint16("pwm_freq", s.PWMFreq).Msg("shield created")

		for _, m := range s.DCMotors {
			if err := c.CreateDCMotor(s.Index, m); err != nil {
				return fmt.Errorf("shield %d dc motor %d: %w", s.Index, m, err)
			}
		}
		for _, st := range s.Steppers {
			if err := c.CreateStepper(s.Index, st.Index, st.StepsPerRev, st.RPM); err != nil {
				return fmt.Errorf("shield %d stepper %d: %w", s.Index, st.Index, err)
			}
		}
		c.logger.Info().Uint8("shield", s.Index).Int("dc_motors", len(s.DCMotors)).
			Int("steppers", len(s.Steppers)).Msg("motors created")
	}
	return nil
}
