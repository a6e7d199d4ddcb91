//go:build rp2040

package main

import (
	"io"
	"machine"
)

var (
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

// InitUSB configures machine.Serial, which is USB CDC on RP2040.
func InitUSB() {
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// USBReadInto copies buffered USB bytes into buf and returns the count.
func USBReadInto(buf []byte) int {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// usbLink is the device's output. Repeated failed writes mark the host as
// gone so the next received byte resets the link.
type usbLink struct{}

func (usbLink) Write(data []byte) (int, error) {
	n, err := machine.Serial.Write(data)
	if err == nil && n == 0 && len(data) > 0 {
		err = io.ErrShortWrite
	}
	if err != nil {
		consecutiveWriteFailures++
		if consecutiveWriteFailures > 10 {
			usbWasDisconnected = true
			consecutiveWriteFailures = 0
		}
		return n, err
	}
	consecutiveWriteFailures = 0
	return n, nil
}
