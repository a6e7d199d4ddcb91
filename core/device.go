package core

import (
	"io"

	"motorshield/protocol"
)

// DeviceStats counts link activity since the last reset.
type DeviceStats struct {
	Passes      uint32
	Flushes     uint32
	Errors      uint32
	WriteErrors uint32
}

// Device is the firmware side of the link: it buffers incoming bytes, runs
// the transport over them and writes acks and responses to out. It is the
// dispatcher's Responder.
type Device struct {
	out        io.Writer
	input      *protocol.LinkBuffer
	output     *protocol.ScratchOutput
	transport  *protocol.Transport
	dispatcher *Dispatcher

	onError  func(cmdID uint8, err error)
	writeErr error
	stats    DeviceStats
}

// DeviceInputSize is the receive link buffer capacity.
const DeviceInputSize = 256

// NewDevice wires a transport, dispatcher and buffers together. Frames
// answering the host are written to out.
func NewDevice(out io.Writer, factory ShieldFactory, opts ...Option) *Device {
	d := &Device{
		out:    out,
		input:  protocol.NewLinkBuffer(DeviceInputSize),
		output: protocol.NewScratchOutput(),
	}
	d.dispatcher = NewDispatcher(factory, d, opts...)
	d.transport = protocol.NewTransport(d.output, d.dispatcher.Handle)
	d.transport.SetFlushCallback(d.flush)
	// The reset frame is still being parsed out of d.input, so the
	// callback must not touch the input buffer.
	d.transport.SetResetCallback(func() {
		d.stats = DeviceStats{}
	})
	d.transport.SetErrorHandler(func(cmdID uint8, err error) {
		d.stats.Errors++
		if d.onError != nil {
			d.onError(cmdID, err)
		}
	})
	return d
}

func (d *Device) Dispatcher() *Dispatcher {
	return d.dispatcher
}

// Stats returns the counters since the last reset.
func (d *Device) Stats() DeviceStats {
	return d.stats
}

// SetErrorHandler is told about every command that returned an error.
func (d *Device) SetErrorHandler(handler func(cmdID uint8, err error)) {
	d.onError = handler
}

// SendResponse frames an ack or response onto the link.
func (d *Device) SendResponse(cmdID uint8, payload []byte) {
	d.transport.SendResponse(cmdID, payload)
}

// Feed buffers data and processes every complete frame in it. Bytes that
// do not fit in the input buffer are retried after a pass frees room. The first
// link write error since the previous call is returned.
func (d *Device) Feed(data []byte) error {
	for len(data) > 0 {
		n := d.input.Write(data)
		data = data[n:]
		before := d.input.Available()
		d.Poll()
		if n == 0 && d.input.Available() == before {
			// Full of bytes that never form a frame; drop them.
			d.input.Reset()
		}
	}
	d.Poll()

	err := d.writeErr
	d.writeErr = nil
	return err
}

// Poll runs one receive pass over buffered input.
func (d *Device) Poll() {
	if d.input.Available() > 0 {
		d.stats.Passes++
		d.transport.Receive(d.input)
	}
	d.flush()
}

// Reset drops buffered input and pending output and restarts the link
// sequence. Shields stay registered.
func (d *Device) Reset() {
	d.input.Reset()
	d.output.Reset()
	d.transport.Reset()
}

// Close releases every registered shield.
func (d *Device) Close() error {
	return d.dispatcher.Close()
}

func (d *Device) flush() {
	result := d.output.Result()
	if len(result) == 0 {
		return
	}
	written := 0
	for written < len(result) {
		n, err := d.out.Write(result[written:])
		if err != nil {
			d.stats.WriteErrors++
			if d.writeErr == nil {
				d.writeErr = err
			}
			break
		}
		if n == 0 {
			d.stats.WriteErrors++
			if d.writeErr == nil {
				d.writeErr = io.ErrShortWrite
			}
			break
		}
		written += n
	}
	d.stats.Flushes++
	d.output.Reset()
}
