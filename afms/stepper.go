package afms

import "time"

// Step styles.
const (
	Single     uint8 = 1
	Double     uint8 = 2
	Interleave uint8 = 3
	Microstep  uint8 = 4
)

// Microsteps is the number of microsteps per full step.
const Microsteps = 16

var microstepCurve = [Microsteps + 1]uint8{0, 25, 50, 74, 98, 120, 141, 162, 180, 197, 212, 225, 236, 244, 250, 253, 255}

type stepperChannels struct {
	pwmA, ain2, ain1 uint8
	pwmB, bin2, bin1 uint8
}

var stepperMotorChannels = [2]stepperChannels{
	{pwmA: 8, ain2: 9, ain1: 10, pwmB: 13, bin2: 12, bin1: 11},
	{pwmA: 2, ain2: 3, ain1: 4, pwmB: 7, bin2: 6, bin1: 5},
}

// Coil bits of the latch state.
const (
	coilAIN2 = 0x1
	coilBIN1 = 0x2
	coilAIN1 = 0x4
	coilBIN2 = 0x8
)

// fullStepLatch maps the half-step position (0..7) to energised coils.
var fullStepLatch = [8]uint8{0x1, 0x3, 0x2, 0x6, 0x4, 0xC, 0x8, 0x9}

// microstepLatch maps the quarter of the electrical cycle to energised coils.
var microstepLatch = [4]uint8{0x3, 0x6, 0xC, 0x9}

// StepperMotor is a bipolar stepper wired across both H-bridges of a shield.
type StepperMotor struct {
	shield      *Shield
	num         uint8
	pins        stepperChannels
	revSteps    uint16
	usPerStep   uint32
	currentStep uint8
}

func newStepper(s *Shield, n uint8) *StepperMotor {
	return &StepperMotor{shield: s, num: n, pins: stepperMotorChannels[n-1]}
}

func (m *StepperMotor) Number() uint8 {
	return m.num
}

func (m *StepperMotor) StepsPerRevolution() uint16 {
	return m.revSteps
}

// StepInterval returns the delay between full steps set by SetSpeed.
func (m *StepperMotor) StepInterval() time.Duration {
	return time.Duration(m.usPerStep) * time.Microsecond
}

// Position returns the electrical position in microsteps, 0..63.
func (m *StepperMotor) Position() uint8 {
	return m.currentStep
}

// SetSpeed sets the rotation speed in revolutions per minute.
func (m *StepperMotor) SetSpeed(rpm uint16) error {
	if m.shield.closed {
		return ErrClosed
	}
	if rpm == 0 {
		return ErrBadSpeed
	}
	m.usPerStep = 60000000 / (uint32(m.revSteps) * uint32(rpm))
	return nil
}

// Step moves steps full steps and blocks until done. Microstep moves
// Microsteps microsteps per full step in the same time, then keeps going
// until the coils rest on a full-step position.
func (m *StepperMotor) Step(steps uint16, direction uint8, style uint8) error {
	if m.shield.closed {
		return ErrClosed
	}
	if direction != Forward && direction != Backward {
		return ErrBadMode
	}
	delay := m.StepInterval()
	count := uint32(steps)
	switch style {
	case Single, Double:
	case Interleave:
		delay /= 2
	case Microstep:
		delay /= Microsteps
		count *= Microsteps
	default:
		return ErrBadStyle
	}

	for ; count > 0; count-- {
		if err := m.OneStep(direction, style); err != nil {
			return err
		}
		m.shield.sleep(delay)
	}
	if style == Microstep && steps > 0 {
		for m.currentStep%Microsteps != 0 {
			if err := m.OneStep(direction, style); err != nil {
				return err
			}
			m.shield.sleep(delay)
		}
	}
	return nil
}

// OneStep advances the coils by one step of the given style without delay.
func (m *StepperMotor) OneStep(direction uint8, style uint8) error {
	if m.shield.closed {
		return ErrClosed
	}
	const half = Microsteps / 2
	const cycle = Microsteps * 4

	advance := func(n uint8) {
		if direction == Forward {
			m.currentStep += n
		} else {
			m.currentStep -= n
		}
	}

	ocrA, ocrB := uint8(255), uint8(255)
	odd := (m.currentStep/half)%2 != 0
	switch style {
	case Single:
		// Single steps sit on even half-step positions.
		if odd {
			advance(half)
		} else {
			advance(Microsteps)
		}
	case Double:
		// Double steps sit on odd half-step positions.
		if odd {
			advance(Microsteps)
		} else {
			advance(half)
		}
	case Interleave:
		advance(half)
	case Microstep:
		advance(1)
		m.currentStep %= cycle
		ocrA, ocrB = microstepDuty(m.currentStep)
	default:
		return ErrBadStyle
	}
	m.currentStep %= cycle

	if err := m.shield.setPWM(m.pins.pwmA, uint16(ocrA)*16); err != nil {
		return err
	}
	if err := m.shield.setPWM(m.pins.pwmB, uint16(ocrB)*16); err != nil {
		return err
	}

	var latch uint8
	if style == Microstep {
		latch = microstepLatch[m.currentStep/Microsteps]
	} else {
		latch = fullStepLatch[m.currentStep/half]
	}
	return m.latch(latch)
}

// microstepDuty returns the coil A and B duty for a position in 0..63.
func microstepDuty(pos uint8) (a, b uint8) {
	const ms = Microsteps
	switch {
	case pos < ms:
		return microstepCurve[ms-pos], microstepCurve[pos]
	case pos < ms*2:
		return microstepCurve[pos-ms], microstepCurve[ms*2-pos]
	case pos < ms*3:
		return microstepCurve[ms*3-pos], microstepCurve[pos-ms*2]
	default:
		return microstepCurve[pos-ms*3], microstepCurve[ms*4-pos]
	}
}

func (m *StepperMotor) latch(state uint8) error {
	pins := [4]struct {
		ch  uint8
		bit uint8
	}{
		{m.pins.ain2, coilAIN2},
		{m.pins.bin1, coilBIN1},
		{m.pins.ain1, coilAIN1},
		{m.pins.bin2, coilBIN2},
	}
	for _, p := range pins {
		if err := m.shield.setPin(p.ch, state&p.bit != 0); err != nil {
			return err
		}
	}
	return nil
}

// Release de-energises both coils so the shaft turns freely.
func (m *StepperMotor) Release() error {
	if m.shield.closed {
		return ErrClosed
	}
	if err := m.latch(0); err != nil {
		return err
	}
	if err := m.shield.setPWM(m.pins.pwmA, 0); err != nil {
		return err
	}
	return m.shield.setPWM(m.pins.pwmB, 0)
}
