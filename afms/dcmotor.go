package afms

// Run modes.
const (
	Forward  uint8 = 1
	Backward uint8 = 2
	Brake    uint8 = 3
	Release  uint8 = 4
)

type dcChannels struct {
	pwm, in2, in1 uint8
}

var dcMotorChannels = [4]dcChannels{
	{pwm: 8, in2: 9, in1: 10},
	{pwm: 13, in2: 12, in1: 11},
	{pwm: 2, in2: 3, in1: 4},
	{pwm: 7, in2: 6, in1: 5},
}

// DCMotor is one H-bridge channel of a shield.
type DCMotor struct {
	shield *Shield
	num    uint8
	pins   dcChannels
}

func newDCMotor(s *Shield, n uint8) *DCMotor {
	return &DCMotor{shield: s, num: n, pins: dcMotorChannels[n-1]}
}

func (m *DCMotor) Number() uint8 {
	return m.num
}

// SetSpeed sets the duty cycle, 0 (off) to 255 (max).
func (m *DCMotor) SetSpeed(speed uint8) error {
	if m.shield.closed {
		return ErrClosed
	}
	return m.shield.setPWM(m.pins.pwm, uint16(speed)*16)
}

// Run switches the bridge inputs. Release lets the motor coast, Brake
// shorts it.
func (m *DCMotor) Run(mode uint8) error {
	if m.shield.closed {
		return ErrClosed
	}
	var first, second uint8
	var firstHigh, secondHigh bool
	switch mode {
	case Forward:
		first, second, secondHigh = m.pins.in2, m.pins.in1, true
	case Backward:
		first, second, secondHigh = m.pins.in1, m.pins.in2, true
	case Release:
		first, second = m.pins.in1, m.pins.in2
	case Brake:
		first, second, firstHigh, secondHigh = m.pins.in1, m.pins.in2, true, true
	default:
		return ErrBadMode
	}
	// The input going low is written first.
	if err := m.shield.setPin(first, firstHigh); err != nil {
		return err
	}
	return m.shield.setPin(second, secondHigh)
}
