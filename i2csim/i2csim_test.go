package i2csim

import (
	"errors"
	"testing"

	"tinygo.org/x/drivers/pca9685"
)

func TestUnknownAddress(t *testing.T) {
	bus := NewBus()
	err := bus.Tx(0x60, []byte{pca9685.MODE1}, make([]byte, 1))
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}
}

func TestPowerOnState(t *testing.T) {
	bus := NewBus()
	chip := bus.AddPCA9685(0x60)

	if !chip.Sleeping() {
		t.Error("Expected chip asleep after power-on")
	}
	if chip.Prescale() != defaultPrescale {
		t.Errorf("Expected prescale 0x%02x, got 0x%02x", defaultPrescale, chip.Prescale())
	}
	for ch := uint8(0); ch < channels; ch++ {
		if chip.Duty(ch) != 0 {
			t.Errorf("Expected channel %d off, got %d", ch, chip.Duty(ch))
		}
	}
}

func TestDriverTalksToChip(t *testing.T) {
	bus := NewBus()
	chip := bus.AddPCA9685(0x41)
	dev := pca9685.New(bus, 0x41)

	if err := dev.IsConnected(); err != nil {
		t.Fatalf("IsConnected failed: %v", err)
	}
	if err := dev.SetAI(true); err != nil {
		t.Fatalf("SetAI failed: %v", err)
	}
	dev.SetAll(0)
	dev.Set(3, 1024)

	if on, off := chip.Channel(3); on != 1024 || off != 0 {
		t.Errorf("Expected on=1024 off=0, got on=%d off=%d", on, off)
	}
	if chip.Duty(4) != 0 {
		t.Errorf("Expected channel 4 at 0, got %d", chip.Duty(4))
	}
}

func TestPrescaleLatchesOnlyWhileAsleep(t *testing.T) {
	bus := NewBus()
	chip := bus.AddPCA9685(0x60)
	dev := pca9685.New(bus, 0x60)

	if err := dev.Sleep(false); err != nil {
		t.Fatalf("wake failed: %v", err)
	}
	_ = bus.Tx(0x60, []byte{pca9685.PRESCALE, 3}, nil)
	if chip.Prescale() != defaultPrescale {
		t.Errorf("Expected prescale unchanged while awake, got %d", chip.Prescale())
	}

	if err := dev.Sleep(true); err != nil {
		t.Fatalf("sleep failed: %v", err)
	}
	_ = bus.Tx(0x60, []byte{pca9685.PRESCALE, 3}, nil)
	if chip.Prescale() != 3 {
		t.Errorf("Expected prescale 3, got %d", chip.Prescale())
	}
}

func TestFullOnAndFullOff(t *testing.T) {
	bus := NewBus()
	chip := bus.AddPCA9685(0x60)
	_ = bus.Tx(0x60, []byte{pca9685.MODE1, pca9685.AI}, nil)

	onL, _, _, _ := pca9685.LED(9)
	_ = bus.Tx(0x60, []byte{onL, 0x00, 0x10, 0x00, 0x00}, nil)
	if !chip.High(9) {
		t.Errorf("Expected channel 9 fully on, duty %d", chip.Duty(9))
	}

	// Full off takes precedence.
	_ = bus.Tx(0x60, []byte{onL, 0x00, 0x10, 0x00, 0x10}, nil)
	if chip.Duty(9) != 0 {
		t.Errorf("Expected channel 9 off, got %d", chip.Duty(9))
	}
}

func TestWriteWithoutAutoIncrement(t *testing.T) {
	bus := NewBus()
	chip := bus.AddPCA9685(0x60)
	_ = bus.Tx(0x60, []byte{pca9685.MODE1, 0x00}, nil)

	onL, onH, _, _ := pca9685.LED(0)
	_ = bus.Tx(0x60, []byte{onL, 1, 2, 3}, nil)
	if chip.Register(onL) != 3 || chip.Register(onH) != 0 {
		t.Errorf("Expected all bytes on ONL, got ONL=%d ONH=%d", chip.Register(onL), chip.Register(onH))
	}
}

func TestFault(t *testing.T) {
	bus := NewBus()
	bus.AddPCA9685(0x60)
	fault := errors.New("bus stuck")
	bus.SetFault(fault)

	if err := bus.Tx(0x60, []byte{0}, nil); !errors.Is(err, fault) {
		t.Errorf("Expected fault, got %v", err)
	}
	bus.SetFault(nil)
	if err := bus.Tx(0x60, []byte{0}, make([]byte, 1)); err != nil {
		t.Errorf("Expected success after clearing fault, got %v", err)
	}
	if bus.Transfers() != 1 {
		t.Errorf("Expected 1 transfer, got %d", bus.Transfers())
	}
}
