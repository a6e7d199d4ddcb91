// Package afms drives the Adafruit Motor Shield V2: a PCA9685 PWM controller
// feeding two TB6612 H-bridges, giving four DC motors or two steppers.
package afms

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/pca9685"
)

var (
	ErrBadFrequency = errors.New("afms: PWM frequency must be non-zero")
	ErrBadAddress   = errors.New("afms: I2C address must be 7-bit")
	ErrBadMotor     = errors.New("afms: motor number out of range")
	ErrBadMode      = errors.New("afms: unknown run mode")
	ErrBadStyle     = errors.New("afms: unknown step style")
	ErrBadSpeed     = errors.New("afms: speed must be non-zero")
	ErrBadSteps     = errors.New("afms: steps per revolution must be non-zero")
	ErrNotStarted   = errors.New("afms: shield not started")
	ErrClosed       = errors.New("afms: shield closed")
)

// DefaultAddress is the shield address with no jumpers soldered.
const DefaultAddress = 0x60

const (
	oscillatorHz = 25000000
	pwmSteps     = 4096

	// Bit 4 of the high byte forces a channel fully on or off.
	fullOn = 0x1000

	minPrescale = 3
	maxPrescale = 255
)

// Option configures a Shield.
type Option func(*Shield)

// WithSleep replaces time.Sleep for the delays between stepper steps.
func WithSleep(fn func(time.Duration)) Option {
	return func(s *Shield) { s.sleep = fn }
}

// Shield is one motor shield on the bus. Motor and stepper handles are owned
// by the shield and stop working once it is closed.
type Shield struct {
	bus   drivers.I2C
	dev   pca9685.Dev
	addr  uint8
	sleep func(time.Duration)

	freq     uint16
	started  bool
	closed   bool
	motors   [4]*DCMotor
	steppers [2]*StepperMotor
}

// New returns a shield at addr. It performs no bus traffic until Begin.
func New(bus drivers.I2C, addr uint8, opts ...Option) *Shield {
	s := &Shield{
		bus:   bus,
		dev:   pca9685.New(bus, addr),
		addr:  addr,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Shield) Address() uint8 {
	return s.addr
}

// Frequency returns the PWM frequency passed to Begin.
func (s *Shield) Frequency() uint16 {
	return s.freq
}

// Begin verifies the PCA9685 is present and programs its prescaler for
// freq Hz. Every output is then driven low.
func (s *Shield) Begin(freq uint16) error {
	if s.closed {
		return ErrClosed
	}
	if freq == 0 {
		return ErrBadFrequency
	}
	if err := s.dev.IsConnected(); err != nil {
		return err
	}
	// PRESCALE only latches while the oscillator is stopped.
	if err := s.dev.Sleep(true); err != nil {
		return err
	}
	if err := s.writeReg(pca9685.PRESCALE, Prescale(freq)); err != nil {
		return err
	}
	if err := s.dev.Sleep(false); err != nil {
		return err
	}
	if err := s.dev.SetAI(true); err != nil {
		return err
	}
	if err := s.dev.SetDrive(true); err != nil {
		return err
	}
	if err := s.writeChannel(pca9685.ALLLED, 0, 0); err != nil {
		return err
	}
	s.freq = freq
	s.started = true
	return nil
}

// Prescale returns the PCA9685 prescaler value for freq Hz. The target is
// scaled to 90% first since the chip runs fast of the nominal oscillator.
func Prescale(freq uint16) uint8 {
	if freq == 0 {
		return maxPrescale
	}
	div := uint32(pwmSteps) * 9 * uint32(freq)
	p := (oscillatorHz*10 + div/2) / div
	switch {
	case p < minPrescale+1:
		return minPrescale
	case p > maxPrescale+1:
		return maxPrescale
	}
	return uint8(p - 1)
}

// Motor returns DC motor n (1..4).
func (s *Shield) Motor(n uint8) (*DCMotor, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if n < 1 || int(n) > len(s.motors) {
		return nil, ErrBadMotor
	}
	if s.motors[n-1] == nil {
		s.motors[n-1] = newDCMotor(s, n)
	}
	return s.motors[n-1], nil
}

// Stepper returns stepper n (1..2) with stepsPerRev full steps per
// revolution. Fetching an existing stepper updates its steps per revolution
// and keeps its coil position.
func (s *Shield) Stepper(stepsPerRev uint16, n uint8) (*StepperMotor, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if n < 1 || int(n) > len(s.steppers) {
		return nil, ErrBadMotor
	}
	if stepsPerRev == 0 {
		return nil, ErrBadSteps
	}
	if s.steppers[n-1] == nil {
		s.steppers[n-1] = newStepper(s, n)
	}
	st := s.steppers[n-1]
	st.revSteps = stepsPerRev
	return st, nil
}

// Close drives every output low and puts the PCA9685 to sleep.
func (s *Shield) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if !s.started {
		return nil
	}
	s.dev.SetAll(0)
	return s.dev.Sleep(true)
}

func (s *Shield) ready() error {
	if s.closed {
		return ErrClosed
	}
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// setPWM sets the high time of ch out of 4096; values past 4095 mean full on.
func (s *Shield) setPWM(ch uint8, val uint16) error {
	if val > pwmSteps-1 {
		return s.writeChannel(ch, fullOn, 0)
	}
	return s.writeChannel(ch, 0, val)
}

func (s *Shield) setPin(ch uint8, high bool) error {
	if high {
		return s.writeChannel(ch, fullOn, 0)
	}
	return s.writeChannel(ch, 0, 0)
}

// writeChannel writes the four LED registers of ch in one transfer. The
// pca9685 helpers mask values to 12 bits, which loses the full-on bit.
func (s *Shield) writeChannel(ch uint8, on, off uint16) error {
	onL, _, _, _ := pca9685.LED(ch)
	return s.writeReg(onL, uint8(on), uint8(on>>8), uint8(off), uint8(off>>8))
}

func (s *Shield) writeReg(reg uint8, data ...uint8) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	return s.bus.Tx(uint16(s.addr), buf, nil)
}
