package core

import "errors"

// ErrShieldIndex is returned for a shield index at or beyond MaxShields.
var ErrShieldIndex = errors.New("core: shield index out of range")

type shieldSlot struct {
	shield   Shield
	dc       [MaxDCMotors]DCMotor
	steppers [MaxSteppers]Stepper
}

// Registry owns the shield instances and the motor handles borrowed from
// them. A slot's motor handles never outlive its shield: replacing or
// removing the shield clears them.
//
// Registry is not safe for concurrent use; the dispatcher that owns it is
// driven from a single receive loop.
type Registry struct {
	slots [MaxShields]shieldSlot
}

// NewRegistry returns a registry with every slot empty.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) slot(index uint8) (*shieldSlot, error) {
	if int(index) >= len(r.slots) {
		return nil, ErrShieldIndex
	}
	return &r.slots[index], nil
}

// Put installs shield at index, closing the previous occupant first.
func (r *Registry) Put(index uint8, shield Shield) error {
	s, err := r.slot(index)
	if err != nil {
		return err
	}
	closeErr := s.clear()
	s.shield = shield
	return closeErr
}

// Remove closes and clears the shield at index. An empty slot is a no-op.
func (r *Registry) Remove(index uint8) error {
	s, err := r.slot(index)
	if err != nil {
		return err
	}
	return s.clear()
}

func (s *shieldSlot) clear() error {
	old := s.shield
	*s = shieldSlot{}
	if old == nil {
		return nil
	}
	return old.Close()
}

// Shield returns the shield at index, or ErrShieldNotCreated for an
// empty slot.
func (r *Registry) Shield(index uint8) (Shield, error) {
	s, err := r.slot(index)
	if err != nil {
		return nil, err
	}
	if s.shield == nil {
		return nil, ErrShieldNotCreated
	}
	return s.shield, nil
}

// Occupied reports whether a shield lives at index.
func (r *Registry) Occupied(index uint8) bool {
	s, err := r.slot(index)
	return err == nil && s.shield != nil
}

// SetDCMotor records the handle for DC motor slot motor on an occupied
// shield. A later call for the same slot replaces the handle.
func (r *Registry) SetDCMotor(shield, motor uint8, m DCMotor) error {
	s, err := r.occupiedSlot(shield)
	if err != nil {
		return err
	}
	if int(motor) >= len(s.dc) {
		return ErrMotorIndex
	}
	s.dc[motor] = m
	return nil
}

// DCMotor looks up a handle stored by SetDCMotor. It fails with
// ErrMotorNotCreated when the slot was never filled.
func (r *Registry) DCMotor(shield, motor uint8) (DCMotor, error) {
	s, err := r.occupiedSlot(shield)
	if err != nil {
		return nil, err
	}
	if int(motor) >= len(s.dc) {
		return nil, ErrMotorIndex
	}
	if s.dc[motor] == nil {
		return nil, ErrMotorNotCreated
	}
	return s.dc[motor], nil
}

// SetStepper is SetDCMotor for stepper slots.
func (r *Registry) SetStepper(shield, motor uint8, m Stepper) error {
	s, err := r.occupiedSlot(shield)
	if err != nil {
		return err
	}
	if int(motor) >= len(s.steppers) {
		return ErrMotorIndex
	}
	s.steppers[motor] = m
	return nil
}

// Stepper looks up a handle stored by SetStepper.
func (r *Registry) Stepper(shield, motor uint8) (Stepper, error) {
	s, err := r.occupiedSlot(shield)
	if err != nil {
		return nil, err
	}
	if int(motor) >= len(s.steppers) {
		return nil, ErrMotorIndex
	}
	if s.steppers[motor] == nil {
		return nil, ErrMotorNotCreated
	}
	return s.steppers[motor], nil
}

func (r *Registry) occupiedSlot(index uint8) (*shieldSlot, error) {
	s, err := r.slot(index)
	if err != nil {
		return nil, err
	}
	if s.shield == nil {
		return nil, ErrShieldNotCreated
	}
	return s, nil
}

// Close releases every shield. All slots are cleared even when some
// closes fail; the failures are joined.
func (r *Registry) Close() error {
	var errs []error
	for i := range r.slots {
		if err := r.slots[i].clear(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
