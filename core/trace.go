package core

// Trace lines name the registry handles the command touched, e.g.
//
//	AFMS[0] = NewShield(0x60).Begin(1600)
//	DC[0][1].SetSpeed(200); DC[0][1].Run(1)

func shieldName(shield uint8) string {
	return "AFMS[" + itoa(int(shield)) + "]"
}

func dcName(shield, motor uint8) string {
	return "DC[" + itoa(int(shield)) + "][" + itoa(int(motor)) + "]"
}

func stepperName(shield, motor uint8) string {
	return "Stepper[" + itoa(int(shield)) + "][" + itoa(int(motor)) + "]"
}

func traceCreateShield(c CreateShield) string {
	return shieldName(c.Shield) + " = NewShield(0x" + hex8(c.Address) + ").Begin(" + utoa(uint32(c.PWMFreq)) + ")"
}

func traceDeleteShield(shield uint8) string {
	return "delete " + shieldName(shield)
}

func traceCreateDCMotor(shield, motor uint8) string {
	return dcName(shield, motor) + " = " + shieldName(shield) + ".Motor(" + itoa(int(motor)+1) + ")"
}

func traceRunDCMotor(shield, motor, speed, direction uint8) string {
	name := dcName(shield, motor)
	return name + ".SetSpeed(" + itoa(int(speed)) + "); " + name + ".Run(" + itoa(int(direction)) + ")"
}

func traceStopDCMotor(shield, motor uint8) string {
	return dcName(shield, motor) + ".Run(" + itoa(int(RunRelease)) + ")"
}

func traceCreateStepper(c CreateStepper) string {
	name := stepperName(c.Shield, c.Motor)
	return name + " = " + shieldName(c.Shield) + ".Stepper(" + utoa(uint32(c.StepsPerRev)) + ", " +
		itoa(int(c.Motor)+1) + "); " + name + ".SetSpeed(" + utoa(uint32(c.RPM)) + ")"
}

func traceReleaseStepper(shield, motor uint8) string {
	return stepperName(shield, motor) + ".Release()"
}

func traceMoveStepper(c MoveStepper) string {
	return stepperName(c.Shield, c.Motor) + ".Step(" + utoa(uint32(c.Steps)) + ", " +
		itoa(int(c.Direction)) + ", " + itoa(int(c.Style)) + ")"
}

func traceSetSpeedStepper(shield, motor uint8, rpm uint16) string {
	return stepperName(shield, motor) + ".SetSpeed(" + utoa(uint32(rpm)) + ")"
}
