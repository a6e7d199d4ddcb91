//go:build rp2040

package main

import (
	"machine"
	"time"

	"motorshield/afms"
	"motorshield/core"
)

var (
	device *core.Device

	// Debug counters
	feedErrors uint32
	panics     uint32
)

func main() {
	// Disable the watchdog so a previous reset's timeout does not persist.
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()

	err = machine.I2C0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
	})
	if err != nil {
		DebugPrintln("i2c0 configure failed: " + err.Error())
	}

	trace, _ := core.NewAsyncWriter(DebugPrintln, 32)

	device = core.NewDevice(usbLink{}, afms.Factory{Bus: machine.I2C0}, core.WithTrace(trace))
	device.SetErrorHandler(func(cmdID uint8, err error) {
		DebugPrintln("error: " + err.Error())
	})

	DebugPrintln("motor shield firmware ready, " + itoa(core.MaxShields) + " shield slots")

	buf := make([]byte, 64)
	for {
		// Recover from panics so a bad command cannot take the firmware down.
		func() {
			defer func() {
				if r := recover(); r != nil {
					panics++
					device.Reset()
				}
			}()

			n := USBReadInto(buf)
			if n == 0 {
				return
			}

			// The host reopened the port; start from a clean link.
			if usbWasDisconnected {
				usbWasDisconnected = false
				device.Reset()
			}

			if err := device.Feed(buf[:n]); err != nil {
				feedErrors++
			}
		}()

		// Yield to the trace writer
		time.Sleep(100 * time.Microsecond)
	}
}

// itoa converts int to string without importing strconv (for embedded)
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
