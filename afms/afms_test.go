package afms

import (
	"errors"
	"testing"
	"time"

	"motorshield/i2csim"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.calls = append(r.calls, d)
}

func newTestShield(t *testing.T, addr uint8) (*Shield, *i2csim.PCA9685, *sleepRecorder) {
	t.Helper()
	bus := i2csim.NewBus()
	chip := bus.AddPCA9685(addr)
	rec := &sleepRecorder{}
	s := New(bus, addr, WithSleep(rec.sleep))
	if err := s.Begin(1600); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	return s, chip, rec
}

func TestPrescale(t *testing.T) {
	tests := []struct {
		freq uint16
		want uint8
	}{
		{1600, 3},
		{1000, 6},
		{50, 135},
		{60, 112},
		{1, 255},
		{65535, 3},
	}
	for _, tt := range tests {
		if got := Prescale(tt.freq); got != tt.want {
			t.Errorf("Prescale(%d): Expected %d, got %d", tt.freq, tt.want, got)
		}
	}
}

func TestBeginProgramsChip(t *testing.T) {
	bus := i2csim.NewBus()
	chip := bus.AddPCA9685(0x61)
	s := New(bus, 0x61)

	if err := s.Begin(50); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if chip.Prescale() != 135 {
		t.Errorf("Expected prescale 135, got %d", chip.Prescale())
	}
	if chip.Sleeping() {
		t.Error("Expected oscillator running after Begin")
	}
	for ch := uint8(0); ch < 16; ch++ {
		if on, off := chip.Channel(ch); on != 0 || off != 0 {
			t.Errorf("Expected channel %d cleared, got on=%d off=%d", ch, on, off)
		}
	}
	if s.Frequency() != 50 {
		t.Errorf("Expected frequency 50, got %d", s.Frequency())
	}
}

func TestBeginErrors(t *testing.T) {
	bus := i2csim.NewBus()
	if err := New(bus, 0x60).Begin(1600); !errors.Is(err, i2csim.ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}

	bus.AddPCA9685(0x60)
	if err := New(bus, 0x60).Begin(0); !errors.Is(err, ErrBadFrequency) {
		t.Errorf("Expected ErrBadFrequency, got %v", err)
	}

	s := New(bus, 0x60)
	if _, err := s.Motor(1); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Expected ErrNotStarted, got %v", err)
	}
}

func TestDCMotorRun(t *testing.T) {
	s, chip, _ := newTestShield(t, 0x60)

	tests := []struct {
		motor   uint8
		pwm     uint8
		in1     uint8
		in2     uint8
		mode    uint8
		in1High bool
		in2High bool
	}{
		{1, 8, 10, 9, Forward, true, false},
		{2, 13, 11, 12, Backward, false, true},
		{3, 2, 4, 3, Brake, true, true},
		{4, 7, 5, 6, Release, false, false},
	}
	for _, tt := range tests {
		m, err := s.Motor(tt.motor)
		if err != nil {
			t.Fatalf("Motor(%d) failed: %v", tt.motor, err)
		}
		if err := m.SetSpeed(200); err != nil {
			t.Fatalf("SetSpeed failed: %v", err)
		}
		if err := m.Run(tt.mode); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if d := chip.Duty(tt.pwm); d != 3200 {
			t.Errorf("motor %d: Expected duty 3200 on ch%d, got %d", tt.motor, tt.pwm, d)
		}
		if chip.High(tt.in1) != tt.in1High || chip.High(tt.in2) != tt.in2High {
			t.Errorf("motor %d mode %d: Expected in1=%v in2=%v, got %v %v",
				tt.motor, tt.mode, tt.in1High, tt.in2High, chip.High(tt.in1), chip.High(tt.in2))
		}
	}

	m, _ := s.Motor(1)
	if err := m.Run(9); !errors.Is(err, ErrBadMode) {
		t.Errorf("Expected ErrBadMode, got %v", err)
	}
	if _, err := s.Motor(5); !errors.Is(err, ErrBadMotor) {
		t.Errorf("Expected ErrBadMotor, got %v", err)
	}
	if _, err := s.Motor(0); !errors.Is(err, ErrBadMotor) {
		t.Errorf("Expected ErrBadMotor, got %v", err)
	}
}

func TestMotorHandlesAreCached(t *testing.T) {
	s, _, _ := newTestShield(t, 0x60)

	a, _ := s.Motor(2)
	b, _ := s.Motor(2)
	if a != b {
		t.Error("Expected the same DC motor handle")
	}

	st1, _ := s.Stepper(200, 1)
	st2, _ := s.Stepper(48, 1)
	if st1 != st2 {
		t.Error("Expected the same stepper handle")
	}
	if st2.StepsPerRevolution() != 48 {
		t.Errorf("Expected 48 steps/rev after refetch, got %d", st2.StepsPerRevolution())
	}
}

func TestStepperSpeed(t *testing.T) {
	s, _, _ := newTestShield(t, 0x60)
	st, err := s.Stepper(200, 1)
	if err != nil {
		t.Fatalf("Stepper failed: %v", err)
	}

	if err := st.SetSpeed(60); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	if st.StepInterval() != 5*time.Millisecond {
		t.Errorf("Expected 5ms per step, got %v", st.StepInterval())
	}
	if err := st.SetSpeed(0); !errors.Is(err, ErrBadSpeed) {
		t.Errorf("Expected ErrBadSpeed, got %v", err)
	}
	if _, err := s.Stepper(0, 1); !errors.Is(err, ErrBadSteps) {
		t.Errorf("Expected ErrBadSteps, got %v", err)
	}
	if _, err := s.Stepper(200, 3); !errors.Is(err, ErrBadMotor) {
		t.Errorf("Expected ErrBadMotor, got %v", err)
	}
}

func TestSingleStepSequence(t *testing.T) {
	s, chip, rec := newTestShield(t, 0x60)
	st, _ := s.Stepper(200, 1)
	_ = st.SetSpeed(60)

	// Stepper 1: AIN2=9 BIN1=11 AIN1=10 BIN2=12.
	coils := func() [4]bool {
		return [4]bool{chip.High(9), chip.High(11), chip.High(10), chip.High(12)}
	}
	want := [][4]bool{
		{false, true, false, false}, // 0x2
		{false, false, true, false}, // 0x4
		{false, false, false, true}, // 0x8
		{true, false, false, false}, // 0x1
	}
	for i, w := range want {
		if err := st.Step(1, Forward, Single); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if got := coils(); got != w {
			t.Errorf("step %d: Expected coils %v, got %v", i, w, got)
		}
	}
	if chip.Duty(8) != 4080 || chip.Duty(13) != 4080 {
		t.Errorf("Expected full drive on both bridges, got %d %d", chip.Duty(8), chip.Duty(13))
	}
	if st.Position() != 0 {
		t.Errorf("Expected position back at 0, got %d", st.Position())
	}
	if len(rec.calls) != 4 || rec.calls[0] != 5*time.Millisecond {
		t.Errorf("Expected 4 sleeps of 5ms, got %v", rec.calls)
	}
}

func TestStepStyles(t *testing.T) {
	tests := []struct {
		style    uint8
		steps    uint16
		dir      uint8
		calls    int
		interval time.Duration
		position uint8
	}{
		{Single, 3, Forward, 3, 5 * time.Millisecond, 48},
		{Double, 1, Forward, 1, 5 * time.Millisecond, 8},
		{Interleave, 3, Forward, 3, 2500 * time.Microsecond, 24},
		{Microstep, 2, Forward, 32, 312500 * time.Nanosecond, 32},
		{Single, 1, Backward, 1, 5 * time.Millisecond, 48},
		{Microstep, 1, Backward, 16, 312500 * time.Nanosecond, 48},
	}
	for _, tt := range tests {
		s, _, rec := newTestShield(t, 0x60)
		st, _ := s.Stepper(200, 2)
		_ = st.SetSpeed(60)

		if err := st.Step(tt.steps, tt.dir, tt.style); err != nil {
			t.Fatalf("style %d: Step failed: %v", tt.style, err)
		}
		if len(rec.calls) != tt.calls {
			t.Errorf("style %d: Expected %d steps, got %d", tt.style, tt.calls, len(rec.calls))
		}
		if rec.calls[0] != tt.interval {
			t.Errorf("style %d: Expected interval %v, got %v", tt.style, tt.interval, rec.calls[0])
		}
		if st.Position() != tt.position {
			t.Errorf("style %d dir %d: Expected position %d, got %d", tt.style, tt.dir, tt.position, st.Position())
		}
	}
}

func TestMicrostepFinishesOnFullStep(t *testing.T) {
	s, _, rec := newTestShield(t, 0x60)
	st, _ := s.Stepper(200, 1)
	_ = st.SetSpeed(60)

	for i := 0; i < 3; i++ {
		if err := st.OneStep(Forward, Microstep); err != nil {
			t.Fatalf("OneStep failed: %v", err)
		}
	}

	// 16 microsteps reach position 19; 13 more reach 32.
	if err := st.Step(1, Forward, Microstep); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if st.Position() != 32 {
		t.Errorf("Expected position 32, got %d", st.Position())
	}
	if len(rec.calls) != 29 {
		t.Errorf("Expected 29 microsteps, got %d", len(rec.calls))
	}

	rec.calls = nil
	for i := 0; i < 5; i++ {
		_ = st.OneStep(Backward, Microstep)
	}
	// From 27, backward: 16 to 11, then 11 more to 0.
	if err := st.Step(1, Backward, Microstep); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if st.Position() != 0 {
		t.Errorf("Expected position 0, got %d", st.Position())
	}
	if len(rec.calls) != 27 {
		t.Errorf("Expected 27 microsteps, got %d", len(rec.calls))
	}
}

func TestMicrostepDuty(t *testing.T) {
	s, chip, _ := newTestShield(t, 0x60)
	st, _ := s.Stepper(200, 1)
	_ = st.SetSpeed(60)

	// After four microsteps from 0: A = curve[12], B = curve[4].
	for i := 0; i < 4; i++ {
		if err := st.OneStep(Forward, Microstep); err != nil {
			t.Fatalf("OneStep failed: %v", err)
		}
	}
	if a := chip.Duty(8); a != 236*16 {
		t.Errorf("Expected coil A duty %d, got %d", 236*16, a)
	}
	if b := chip.Duty(13); b != 98*16 {
		t.Errorf("Expected coil B duty %d, got %d", 98*16, b)
	}
	// First quarter energises AIN2 and BIN1.
	if !chip.High(9) || !chip.High(11) || chip.High(10) || chip.High(12) {
		t.Error("Expected latch 0x3 in the first quarter")
	}
}

func TestStepperRejectsBadInput(t *testing.T) {
	s, _, _ := newTestShield(t, 0x60)
	st, _ := s.Stepper(200, 1)
	_ = st.SetSpeed(10)

	if err := st.Step(1, 0, Single); !errors.Is(err, ErrBadMode) {
		t.Errorf("Expected ErrBadMode, got %v", err)
	}
	if err := st.Step(1, Forward, 7); !errors.Is(err, ErrBadStyle) {
		t.Errorf("Expected ErrBadStyle, got %v", err)
	}
}

func TestStepperRelease(t *testing.T) {
	s, chip, _ := newTestShield(t, 0x60)
	st, _ := s.Stepper(200, 2)
	_ = st.SetSpeed(60)
	_ = st.Step(2, Forward, Double)

	if err := st.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	for _, ch := range []uint8{2, 3, 4, 5, 6, 7} {
		if chip.Duty(ch) != 0 {
			t.Errorf("Expected channel %d off after release, got %d", ch, chip.Duty(ch))
		}
	}
}

func TestCloseSleepsChip(t *testing.T) {
	s, chip, _ := newTestShield(t, 0x60)
	m, _ := s.Motor(1)
	_ = m.SetSpeed(255)
	_ = m.Run(Forward)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !chip.Sleeping() {
		t.Error("Expected chip asleep after Close")
	}
	if chip.High(10) {
		t.Error("Expected outputs low after Close")
	}
	if err := m.Run(Forward); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from motor, got %v", err)
	}
	if err := s.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on second Close, got %v", err)
	}
}

func TestFactory(t *testing.T) {
	bus := i2csim.NewBus()
	bus.AddPCA9685(0x60)
	f := Factory{Bus: bus, Options: []Option{WithSleep(func(time.Duration) {})}}

	shield, err := f.NewShield(0x60)
	if err != nil {
		t.Fatalf("NewShield failed: %v", err)
	}
	if err := shield.Begin(1600); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	m, err := shield.Motor(1)
	if err != nil || m == nil {
		t.Fatalf("Motor failed: %v", err)
	}
	if _, err := shield.Motor(9); !errors.Is(err, ErrBadMotor) {
		t.Errorf("Expected ErrBadMotor, got %v", err)
	}
	raw, ok := Unwrap(shield)
	if !ok || raw.Address() != 0x60 {
		t.Errorf("Expected to unwrap shield at 0x60, got %v %v", raw, ok)
	}
	if _, err := f.NewShield(0x80); !errors.Is(err, ErrBadAddress) {
		t.Errorf("Expected ErrBadAddress, got %v", err)
	}
}
