package afms

import (
	"tinygo.org/x/drivers"

	"motorshield/core"
)

// Factory builds shields on one bus for the command dispatcher.
type Factory struct {
	Bus     drivers.I2C
	Options []Option
}

var _ core.ShieldFactory = Factory{}

func (f Factory) NewShield(address uint8) (core.Shield, error) {
	if address > 0x7F {
		return nil, ErrBadAddress
	}
	return shieldAdapter{New(f.Bus, address, f.Options...)}, nil
}

// shieldAdapter narrows the concrete handle types to the core interfaces.
type shieldAdapter struct {
	*Shield
}

func (a shieldAdapter) Motor(n uint8) (core.DCMotor, error) {
	m, err := a.Shield.Motor(n)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (a shieldAdapter) Stepper(stepsPerRev uint16, n uint8) (core.Stepper, error) {
	s, err := a.Shield.Stepper(stepsPerRev, n)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Unwrap returns the concrete shield behind a handle produced by Factory.
func Unwrap(s core.Shield) (*Shield, bool) {
	a, ok := s.(shieldAdapter)
	if !ok {
		return nil, false
	}
	return a.Shield, true
}
