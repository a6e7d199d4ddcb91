package core

// Per-shield motor tables.
const (
	MaxDCMotors = 4
	MaxSteppers = 2
)

// RunMode is the DC motor run-state passed to DCMotor.Run.
type RunMode = uint8

const (
	RunForward  RunMode = 1
	RunBackward RunMode = 2
	RunBrake    RunMode = 3
	RunRelease  RunMode = 4
)

// StepStyle selects the coil drive pattern for Stepper.Step.
type StepStyle = uint8

const (
	StepSingle     StepStyle = 1
	StepDouble     StepStyle = 2
	StepInterleave StepStyle = 3
	StepMicrostep  StepStyle = 4
)

// ShieldFactory constructs shield instances. Implementations talk to the
// hardware; the dispatcher only relays.
type ShieldFactory interface {
	NewShield(address uint8) (Shield, error)
}

// Shield is one motor-controller board. It owns its motor handles.
type Shield interface {
	// Begin initialises the board with the PWM frequency in Hz.
	Begin(pwmFreq uint16) error

	// Motor returns DC motor n, numbered from 1.
	Motor(n uint8) (DCMotor, error)

	// Stepper returns stepper n, numbered from 1, configured for
	// stepsPerRev full steps per revolution.
	Stepper(stepsPerRev uint16, n uint8) (Stepper, error)

	// Close releases the board. Handles obtained from it become invalid.
	Close() error
}

// DCMotor is one H-bridge channel of a shield.
type DCMotor interface {
	// SetSpeed sets the PWM duty, 0 to 255.
	SetSpeed(speed uint8) error
	Run(mode RunMode) error
}

// Stepper is a bipolar stepper wired across two H-bridge channels.
type Stepper interface {
	// SetSpeed sets the delay between steps from a speed in RPM.
	SetSpeed(rpm uint16) error
	// Step blocks until all steps have been issued.
	Step(steps uint16, direction uint8, style StepStyle) error
	Release() error
}

// ShieldFactoryFunc adapts a function to ShieldFactory.
type ShieldFactoryFunc func(address uint8) (Shield, error)

// NewShield calls f(address).
func (f ShieldFactoryFunc) NewShield(address uint8) (Shield, error) {
	return f(address)
}
