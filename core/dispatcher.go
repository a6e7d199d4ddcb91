package core

import "errors"

// Responder carries command acks back to the host.
type Responder interface {
	SendResponse(cmdID uint8, payload []byte)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTrace emits one human-readable line per executed command.
func WithTrace(w DebugWriter) Option {
	return func(d *Dispatcher) { d.trace = w }
}

// WithAlwaysAck acks every recognised command, including motor commands
// addressed to a shield index past MaxShields.
func WithAlwaysAck() Option {
	return func(d *Dispatcher) { d.alwaysAck = true }
}

// WithRegistry makes the dispatcher operate on an existing registry.
func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.registry = r }
}

// Dispatcher maps decoded commands onto the shield registry and the driver
// library behind it.
type Dispatcher struct {
	factory   ShieldFactory
	registry  *Registry
	responder Responder
	trace     DebugWriter
	alwaysAck bool
}

// NewDispatcher builds a dispatcher that creates shields through factory
// and reports results through responder. Without WithRegistry it starts
// from an empty registry.
func NewDispatcher(factory ShieldFactory, responder Responder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		factory:   factory,
		responder: responder,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = NewRegistry()
	}
	return d
}

// Registry exposes the registry the dispatcher acts on.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Handle decodes one command and executes it. It matches
// protocol.CommandHandler.
func (d *Dispatcher) Handle(cmdID uint8, payload []byte) error {
	cmd, err := Decode(CommandID(cmdID), payload)
	if err != nil {
		return err
	}
	return d.Execute(cmd)
}

// Execute runs cmd against the registry.
//
// A shield index past MaxShields is a silent no-op; only CreateShield and
// DeleteShield are still acked. Commands that address an empty shield slot,
// an uncreated motor or a motor index past its table return an error without
// touching the driver, and are neither traced nor acked. Driver failures are
// traced and acked like any relayed command, and the error is returned.
func (d *Dispatcher) Execute(cmd Command) error {
	if int(cmd.ShieldIndex()) >= MaxShields {
		switch cmd.(type) {
		case CreateShield, DeleteShield:
			d.ack(cmd.ID())
		default:
			if d.alwaysAck {
				d.ack(cmd.ID())
			}
		}
		return nil
	}

	var (
		line    string
		relayed bool
		err     error
	)
	switch c := cmd.(type) {
	case CreateShield:
		line, relayed, err = d.createShield(c)
	case DeleteShield:
		line, relayed, err = d.deleteShield(c)
	case CreateDCMotor:
		line, relayed, err = d.createDCMotor(c)
	case StartDCMotor:
		line, relayed, err = d.runDCMotor(c.Shield, c.Motor, c.Speed, c.Direction)
	case SetSpeedDCMotor:
		line, relayed, err = d.runDCMotor(c.Shield, c.Motor, c.Speed, c.Direction)
	case StopDCMotor:
		line, relayed, err = d.stopDCMotor(c)
	case CreateStepper:
		line, relayed, err = d.createStepper(c)
	case ReleaseStepper:
		line, relayed, err = d.releaseStepper(c)
	case MoveStepper:
		line, relayed, err = d.moveStepper(c)
	case SetSpeedStepper:
		line, relayed, err = d.setSpeedStepper(c)
	default:
		return &CommandError{ID: cmd.ID(), Err: ErrUnknownCommand}
	}

	if relayed {
		d.emit(line)
		d.ack(cmd.ID())
	}
	if err != nil {
		return &CommandError{ID: cmd.ID(), Err: err}
	}
	return nil
}

// Close releases every shield in the registry.
func (d *Dispatcher) Close() error {
	return d.registry.Close()
}

func (d *Dispatcher) createShield(c CreateShield) (string, bool, error) {
	if d.factory == nil {
		return "", false, ErrNoFactory
	}
	// The previous occupant goes away before the new shield is built.
	closeErr := d.registry.Remove(c.Shield)

	line := traceCreateShield(c)
	shield, err := d.factory.NewShield(c.Address)
	if err != nil {
		return line, true, errors.Join(closeErr, err)
	}
	beginErr := shield.Begin(c.PWMFreq)
	if err := d.registry.Put(c.Shield, shield); err != nil {
		return line, true, errors.Join(closeErr, beginErr, err)
	}
	return line, true, errors.Join(closeErr, beginErr)
}

func (d *Dispatcher) deleteShield(c DeleteShield) (string, bool, error) {
	return traceDeleteShield(c.Shield), true, d.registry.Remove(c.Shield)
}

func (d *Dispatcher) createDCMotor(c CreateDCMotor) (string, bool, error) {
	shield, err := d.registry.Shield(c.Shield)
	if err != nil {
		return "", false, err
	}
	if c.Motor >= MaxDCMotors {
		return "", false, ErrMotorIndex
	}
	line := traceCreateDCMotor(c.Shield, c.Motor)
	motor, err := shield.Motor(c.Motor + 1)
	if err != nil {
		return line, true, err
	}
	return line, true, d.registry.SetDCMotor(c.Shield, c.Motor, motor)
}

func (d *Dispatcher) runDCMotor(shield, motor, speed, direction uint8) (string, bool, error) {
	m, err := d.registry.DCMotor(shield, motor)
	if err != nil {
		return "", false, err
	}
	line := traceRunDCMotor(shield, motor, speed, direction)
	if err := m.SetSpeed(speed); err != nil {
		return line, true, err
	}
	return line, true, m.Run(direction)
}

func (d *Dispatcher) stopDCMotor(c StopDCMotor) (string, bool, error) {
	m, err := d.registry.DCMotor(c.Shield, c.Motor)
	if err != nil {
		return "", false, err
	}
	return traceStopDCMotor(c.Shield, c.Motor), true, m.Run(RunRelease)
}

func (d *Dispatcher) createStepper(c CreateStepper) (string, bool, error) {
	shield, err := d.registry.Shield(c.Shield)
	if err != nil {
		return "", false, err
	}
	if c.Motor >= MaxSteppers {
		return "", false, ErrMotorIndex
	}
	line := traceCreateStepper(c)
	stepper, err := shield.Stepper(c.StepsPerRev, c.Motor+1)
	if err != nil {
		return line, true, err
	}
	if err := d.registry.SetStepper(c.Shield, c.Motor, stepper); err != nil {
		return line, true, err
	}
	return line, true, stepper.SetSpeed(c.RPM)
}

func (d *Dispatcher) releaseStepper(c ReleaseStepper) (string, bool, error) {
	s, err := d.registry.Stepper(c.Shield, c.Motor)
	if err != nil {
		return "", false, err
	}
	return traceReleaseStepper(c.Shield, c.Motor), true, s.Release()
}

func (d *Dispatcher) moveStepper(c MoveStepper) (string, bool, error) {
	s, err := d.registry.Stepper(c.Shield, c.Motor)
	if err != nil {
		return "", false, err
	}
	return traceMoveStepper(c), true, s.Step(c.Steps, c.Direction, c.Style)
}

func (d *Dispatcher) setSpeedStepper(c SetSpeedStepper) (string, bool, error) {
	s, err := d.registry.Stepper(c.Shield, c.Motor)
	if err != nil {
		return "", false, err
	}
	return traceSetSpeedStepper(c.Shield, c.Motor, c.RPM), true, s.SetSpeed(c.RPM)
}

func (d *Dispatcher) emit(line string) {
	if d.trace != nil && line != "" {
		d.trace(line)
	}
}

func (d *Dispatcher) ack(id CommandID) {
	if d.responder != nil {
		d.responder.SendResponse(uint8(id), nil)
	}
}
