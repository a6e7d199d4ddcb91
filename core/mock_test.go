package core

import (
	"errors"
	"strconv"
)

// callLog records driver calls across every mock object, in order.
type callLog struct {
	calls []string
}

func (l *callLog) add(call string) {
	l.calls = append(l.calls, call)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.calls {
		if c == call {
			n++
		}
	}
	return n
}

// MockShieldFactory builds MockShields and counts constructions and
// destructions.
type MockShieldFactory struct {
	log       *callLog
	shields   []*MockShield
	created   int
	destroyed int
	failNew   error
	failBegin error
}

func NewMockShieldFactory() *MockShieldFactory {
	return &MockShieldFactory{log: &callLog{}}
}

func (f *MockShieldFactory) NewShield(address uint8) (Shield, error) {
	f.log.add("new(0x" + hex8(address) + ")")
	if f.failNew != nil {
		return nil, f.failNew
	}
	f.created++
	s := &MockShield{
		factory:  f,
		Address:  address,
		dc:       map[uint8]*MockDCMotor{},
		steppers: map[uint8]*MockStepper{},
	}
	f.shields = append(f.shields, s)
	return s, nil
}

// live returns the shields that have not been closed.
func (f *MockShieldFactory) live() int {
	return f.created - f.destroyed
}

type MockShield struct {
	factory  *MockShieldFactory
	Address  uint8
	PWMFreq  uint16
	Closed   bool
	dc       map[uint8]*MockDCMotor
	steppers map[uint8]*MockStepper
}

func (s *MockShield) tag() string {
	return "0x" + hex8(s.Address)
}

func (s *MockShield) Begin(pwmFreq uint16) error {
	s.factory.log.add(s.tag() + ".begin(" + strconv.Itoa(int(pwmFreq)) + ")")
	s.PWMFreq = pwmFreq
	return s.factory.failBegin
}

func (s *MockShield) Motor(n uint8) (DCMotor, error) {
	s.factory.log.add(s.tag() + ".motor(" + strconv.Itoa(int(n)) + ")")
	if n < 1 || n > MaxDCMotors {
		return nil, errors.New("mock: bad motor number")
	}
	m, ok := s.dc[n]
	if !ok {
		m = &MockDCMotor{log: s.factory.log, name: s.tag() + ".dc" + strconv.Itoa(int(n))}
		s.dc[n] = m
	}
	return m, nil
}

func (s *MockShield) Stepper(stepsPerRev uint16, n uint8) (Stepper, error) {
	s.factory.log.add(s.tag() + ".stepper(" + strconv.Itoa(int(stepsPerRev)) + "," + strconv.Itoa(int(n)) + ")")
	if n < 1 || n > MaxSteppers {
		return nil, errors.New("mock: bad stepper number")
	}
	m, ok := s.steppers[n]
	if !ok {
		m = &MockStepper{log: s.factory.log, name: s.tag() + ".stepper" + strconv.Itoa(int(n))}
		s.steppers[n] = m
	}
	m.StepsPerRev = stepsPerRev
	return m, nil
}

func (s *MockShield) Close() error {
	s.factory.log.add(s.tag() + ".close")
	if s.Closed {
		return errors.New("mock: double close")
	}
	s.Closed = true
	s.factory.destroyed++
	return nil
}

type MockDCMotor struct {
	log   *callLog
	name  string
	Speed uint8
	Mode  RunMode
	fail  error
}

func (m *MockDCMotor) SetSpeed(speed uint8) error {
	m.log.add(m.name + ".setSpeed(" + strconv.Itoa(int(speed)) + ")")
	m.Speed = speed
	return m.fail
}

func (m *MockDCMotor) Run(mode RunMode) error {
	m.log.add(m.name + ".run(" + strconv.Itoa(int(mode)) + ")")
	m.Mode = mode
	return m.fail
}

type stepCall struct {
	Steps     uint16
	Direction uint8
	Style     StepStyle
}

type MockStepper struct {
	log         *callLog
	name        string
	StepsPerRev uint16
	RPM         uint16
	Steps       []stepCall
	Released    int
}

func (m *MockStepper) SetSpeed(rpm uint16) error {
	m.log.add(m.name + ".setSpeed(" + strconv.Itoa(int(rpm)) + ")")
	m.RPM = rpm
	return nil
}

func (m *MockStepper) Step(steps uint16, direction uint8, style StepStyle) error {
	m.log.add(m.name + ".step(" + strconv.Itoa(int(steps)) + "," + strconv.Itoa(int(direction)) + "," + strconv.Itoa(int(style)) + ")")
	m.Steps = append(m.Steps, stepCall{steps, direction, style})
	return nil
}

func (m *MockStepper) Release() error {
	m.log.add(m.name + ".release")
	m.Released++
	return nil
}

// MockResponder records acked command ids.
type MockResponder struct {
	acks []uint8
}

func (r *MockResponder) SendResponse(cmdID uint8, payload []byte) {
	r.acks = append(r.acks, cmdID)
}

// run sends each command through Handle and stops at the first error.
func run(d *Dispatcher, cmds ...Command) error {
	for _, c := range cmds {
		if err := d.Handle(uint8(c.ID()), EncodePayload(c)); err != nil {
			return err
		}
	}
	return nil
}
