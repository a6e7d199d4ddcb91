package core

import "motorshield/protocol"

// CommandID identifies a command on the wire.
type CommandID uint8

const (
	CmdCreateShield    CommandID = 0x00
	CmdDeleteShield    CommandID = 0x01
	CmdCreateDCMotor   CommandID = 0x02
	CmdStartDCMotor    CommandID = 0x03
	CmdStopDCMotor     CommandID = 0x04
	CmdSetSpeedDCMotor CommandID = 0x05
	CmdCreateStepper   CommandID = 0x06
	CmdReleaseStepper  CommandID = 0x07
	CmdMoveStepper     CommandID = 0x08
	CmdSetSpeedStepper CommandID = 0x09
)

// commandInfo describes the fixed payload layout of a command.
type commandInfo struct {
	Name       string
	Format     string
	PayloadLen int
}

var commandTable = [...]commandInfo{
	CmdCreateShield:    {"create_shield", "shield=%c addr=%c pwm_freq=%hu", 4},
	CmdDeleteShield:    {"delete_shield", "shield=%c", 1},
	CmdCreateDCMotor:   {"create_dc_motor", "shield=%c motor=%c", 2},
	CmdStartDCMotor:    {"start_dc_motor", "shield=%c motor=%c speed=%c direction=%c", 4},
	CmdStopDCMotor:     {"stop_dc_motor", "shield=%c motor=%c", 2},
	CmdSetSpeedDCMotor: {"set_speed_dc_motor", "shield=%c motor=%c speed=%c direction=%c", 4},
	CmdCreateStepper:   {"create_stepper", "shield=%c motor=%c steps_per_rev=%hu rpm=%hu", 6},
	CmdReleaseStepper:  {"release_stepper", "shield=%c motor=%c", 2},
	CmdMoveStepper:     {"move_stepper", "shield=%c motor=%c steps=%hu direction=%c style=%c", 6},
	CmdSetSpeedStepper: {"set_speed_stepper", "shield=%c motor=%c rpm=%hu", 4},
}

func (id CommandID) info() (commandInfo, bool) {
	if int(id) >= len(commandTable) {
		return commandInfo{}, false
	}
	return commandTable[id], true
}

// Known reports whether id is part of the command set.
func (id CommandID) Known() bool {
	_, ok := id.info()
	return ok
}

func (id CommandID) String() string {
	if info, ok := id.info(); ok {
		return info.Name
	}
	return "unknown(0x" + hex8(uint8(id)) + ")"
}

// Format returns the dictionary-style field layout, e.g. "shield=%c".
func (id CommandID) Format() string {
	info, _ := id.info()
	return info.Format
}

// PayloadLen returns the payload size in bytes, or -1 for unknown ids.
func (id CommandID) PayloadLen() int {
	info, ok := id.info()
	if !ok {
		return -1
	}
	return info.PayloadLen
}

// Command is a decoded command. The set is closed: only the types in this
// file implement it.
type Command interface {
	ID() CommandID
	// ShieldIndex is the shield slot every command addresses.
	ShieldIndex() uint8
	// Encode writes the payload (without the id byte).
	Encode(output protocol.OutputBuffer)
	isCommand()
}

// CreateShield attaches a shield at I2C Address to slot Shield and starts
// its PWM at PWMFreq Hz.
type CreateShield struct {
	Shield  uint8
	Address uint8
	PWMFreq uint16
}

// DeleteShield closes the shield in a slot along with its motors.
type DeleteShield struct {
	Shield uint8
}

// CreateDCMotor binds DC motor Motor (0-based) of a shield.
type CreateDCMotor struct {
	Shield uint8
	Motor  uint8
}

// StartDCMotor sets the speed and then runs the motor in Direction.
type StartDCMotor struct {
	Shield    uint8
	Motor     uint8
	Speed     uint8
	Direction uint8
}

type StopDCMotor struct {
	Shield uint8
	Motor  uint8
}

// SetSpeedDCMotor issues the same driver calls as StartDCMotor.
type SetSpeedDCMotor struct {
	Shield    uint8
	Motor     uint8
	Speed     uint8
	Direction uint8
}

// CreateStepper binds stepper Motor (0-based) and sets its speed.
type CreateStepper struct {
	Shield      uint8
	Motor       uint8
	StepsPerRev uint16
	RPM         uint16
}

type ReleaseStepper struct {
	Shield uint8
	Motor  uint8
}

// MoveStepper blocks the device until Steps have been issued.
type MoveStepper struct {
	Shield    uint8
	Motor     uint8
	Steps     uint16
	Direction uint8
	Style     StepStyle
}

type SetSpeedStepper struct {
	Shield uint8
	Motor  uint8
	RPM    uint16
}

func (CreateShield) ID() CommandID    { return CmdCreateShield }
func (DeleteShield) ID() CommandID    { return CmdDeleteShield }
func (CreateDCMotor) ID() CommandID   { return CmdCreateDCMotor }
func (StartDCMotor) ID() CommandID    { return CmdStartDCMotor }
func (StopDCMotor) ID() CommandID     { return CmdStopDCMotor }
func (SetSpeedDCMotor) ID() CommandID { return CmdSetSpeedDCMotor }
func (CreateStepper) ID() CommandID   { return CmdCreateStepper }
func (ReleaseStepper) ID() CommandID  { return CmdReleaseStepper }
func (MoveStepper) ID() CommandID     { return CmdMoveStepper }
func (SetSpeedStepper) ID() CommandID { return CmdSetSpeedStepper }

func (c CreateShield) ShieldIndex() uint8    { return c.Shield }
func (c DeleteShield) ShieldIndex() uint8    { return c.Shield }
func (c CreateDCMotor) ShieldIndex() uint8   { return c.Shield }
func (c StartDCMotor) ShieldIndex() uint8    { return c.Shield }
func (c StopDCMotor) ShieldIndex() uint8     { return c.Shield }
func (c SetSpeedDCMotor) ShieldIndex() uint8 { return c.Shield }
func (c CreateStepper) ShieldIndex() uint8   { return c.Shield }
func (c ReleaseStepper) ShieldIndex() uint8  { return c.Shield }
func (c MoveStepper) ShieldIndex() uint8     { return c.Shield }
func (c SetSpeedStepper) ShieldIndex() uint8 { return c.Shield }

func (CreateShield) isCommand()    {}
func (DeleteShield) isCommand()    {}
func (CreateDCMotor) isCommand()   {}
func (StartDCMotor) isCommand()    {}
func (StopDCMotor) isCommand()     {}
func (SetSpeedDCMotor) isCommand() {}
func (CreateStepper) isCommand()   {}
func (ReleaseStepper) isCommand()  {}
func (MoveStepper) isCommand()     {}
func (SetSpeedStepper) isCommand() {}

func (c CreateShield) Encode(output protocol.OutputBuffer) {
	protocol.EncodeUint8(output, c.Shield)
	protocol.EncodeUint8(output, c.Address)
	protocol.EncodeUint16(output, c.PWMFreq)
}

func (c DeleteShield) Encode(output protocol.OutputBuffer) {
	protocol.EncodeUint8(output, c.Shield)
}

func (c CreateDCMotor) Encode(output protocol.OutputBuffer) {
	encodePair(output, c.Shield, c.Motor)
}

func (c StartDCMotor) Encode(output protocol.OutputBuffer) {
	encodePair(output, c.Shield, c.Motor)
	protocol.EncodeUint8(output, c.Speed)
	protocol.EncodeUint8(output, c.Direction)
}

func (c StopDCMotor) Encode(output protocol.OutputBuffer) {
	encodePair(output, c.Shield, c.Motor)
}

func (c SetSpeedDCMotor) Encode(output protocol.OutputBuffer) {
	encodePair(output, c.Shield, c.Motor)
	protocol.EncodeUint8(output, c.Speed)
	protocol.EncodeUint8(output, c.Direction)
}

func (c CreateStepper) Encode(output protocol.OutputBuffer) {
	encodePair(output, c.Shield, c.Motor)
	protocol.EncodeUint16(output, c.StepsPerRev)
	protocol.EncodeUint16(output, c.RPM)
}

func (c ReleaseStepper) Encode(output protocol.OutputBuffer) {
	encodePair(output, c.Shield, c.Motor)
}

func (c MoveStepper) Encode(output protocol.OutputBuffer) {
	encodePair(output, c.Shield, c.Motor)
	protocol.EncodeUint16(output, c.Steps)
	protocol.EncodeUint8(output, c.Direction)
	protocol.EncodeUint8(output, c.Style)
}

func (c SetSpeedStepper) Encode(output protocol.OutputBuffer) {
	encodePair(output, c.Shield, c.Motor)
	protocol.EncodeUint16(output, c.RPM)
}

func encodePair(output protocol.OutputBuffer, shield, motor uint8) {
	protocol.EncodeUint8(output, shield)
	protocol.EncodeUint8(output, motor)
}

// EncodePayload returns the wire payload of cmd.
func EncodePayload(cmd Command) []byte {
	out := protocol.NewScratchOutput()
	cmd.Encode(out)
	payload := make([]byte, len(out.Result()))
	copy(payload, out.Result())
	return payload
}

// Decode parses payload according to id's fixed layout. Bytes past the
// layout are ignored.
func Decode(id CommandID, payload []byte) (Command, error) {
	info, ok := id.info()
	if !ok {
		return nil, &CommandError{ID: id, Err: ErrUnknownCommand}
	}
	if len(payload) < info.PayloadLen {
		return nil, &CommandError{ID: id, Err: ErrShortPayload,
			Detail: "need " + itoa(info.PayloadLen) + " bytes, got " + itoa(len(payload))}
	}

	// Lengths are checked above, so the field decoders cannot fail.
	d := &payload
	u8 := func() uint8 { v, _ := protocol.DecodeUint8(d); return v }
	u16 := func() uint16 { v, _ := protocol.DecodeUint16(d); return v }

	switch id {
	case CmdCreateShield:
		return CreateShield{Shield: u8(), Address: u8(), PWMFreq: u16()}, nil
	case CmdDeleteShield:
		return DeleteShield{Shield: u8()}, nil
	case CmdCreateDCMotor:
		return CreateDCMotor{Shield: u8(), Motor: u8()}, nil
	case CmdStartDCMotor:
		return StartDCMotor{Shield: u8(), Motor: u8(), Speed: u8(), Direction: u8()}, nil
	case CmdStopDCMotor:
		return StopDCMotor{Shield: u8(), Motor: u8()}, nil
	case CmdSetSpeedDCMotor:
		return SetSpeedDCMotor{Shield: u8(), Motor: u8(), Speed: u8(), Direction: u8()}, nil
	case CmdCreateStepper:
		return CreateStepper{Shield: u8(), Motor: u8(), StepsPerRev: u16(), RPM: u16()}, nil
	case CmdReleaseStepper:
		return ReleaseStepper{Shield: u8(), Motor: u8()}, nil
	case CmdMoveStepper:
		return MoveStepper{Shield: u8(), Motor: u8(), Steps: u16(), Direction: u8(), Style: u8()}, nil
	case CmdSetSpeedStepper:
		return SetSpeedStepper{Shield: u8(), Motor: u8(), RPM: u16()}, nil
	}
	return nil, &CommandError{ID: id, Err: ErrUnknownCommand}
}
