package protocol

import (
	"bytes"
	"errors"
	"sync/atomic"
)

var ErrHandlerPanic = errors.New("protocol: command handler panicked")

// CommandHandler receives one decoded command frame: the command id and the
// payload bytes that followed it.
type CommandHandler func(cmdID uint8, payload []byte) error

// ErrorHandler is told about handler failures. The link stays synchronised
// on handler errors; only a panic forces a resync.
type ErrorHandler func(cmdID uint8, err error)

type scanResult int

const (
	scanNeedMore scanResult = iota
	scanOK
	scanBad
)

// scanFrame validates the frame at the start of data. data must not start
// with a sync byte.
func scanFrame(data []byte) (int, scanResult) {
	if len(data) < MessageLengthMin {
		return 0, scanNeedMore
	}
	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return 0, scanBad
	}
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return 0, scanBad
	}
	if len(data) < msgLen {
		return 0, scanNeedMore
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return 0, scanBad
	}
	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
		uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return 0, scanBad
	}
	return msgLen, scanOK
}

// Transport is the device end of the link. It validates incoming frames,
// hands in-sequence commands to the handler, and answers every frame with
// an ACK/NAK carrying the next expected sequence.
type Transport struct {
	isSynchronized uint32 // atomic bool
	nextSequence   uint32 // atomic, 0x10..0x1F

	output        OutputBuffer
	handler       CommandHandler
	errorHandler  ErrorHandler
	resetCallback func()
	flushCallback func()
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		isSynchronized: 1,
		nextSequence:   MessageDest,
		output:         output,
		handler:        handler,
	}
}

// Receive consumes complete frames from input. Partial frames are left in
// place for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.getSynchronized() {
			syncPos := bytes.IndexByte(data, MessageValueSync)
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			t.setSynchronized(true)
			t.encodeAckNak()
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msgLen, res := scanFrame(data)
		if res == scanNeedMore {
			break
		}
		if res == scanBad {
			t.setSynchronized(false)
			continue
		}

		seq := data[MessagePositionSeq]
		body := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		t.processFrame(seq, body)
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) processFrame(seq uint8, body []byte) {
	expected := uint8(atomic.LoadUint32(&t.nextSequence))

	// The host restarts its sequence at MessageDest after reconnecting.
	if seq == MessageDest && expected != MessageDest {
		atomic.StoreUint32(&t.nextSequence, MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	// Out-of-sequence frames are not executed; the ACK below then acts as
	// a NAK naming the sequence we still expect.
	if seq == expected {
		atomic.StoreUint32(&t.nextSequence, uint32(nextSeq(seq)))
		t.dispatch(body)
	}
	t.encodeAckNak()
}

func (t *Transport) dispatch(body []byte) {
	if len(body) == 0 || t.handler == nil {
		return
	}
	cmdID := body[0]

	defer func() {
		if r := recover(); r != nil {
			t.setSynchronized(false)
			t.reportError(cmdID, ErrHandlerPanic)
		}
	}()

	if err := t.handler(cmdID, body[1:]); err != nil {
		t.reportError(cmdID, err)
	}
}

func (t *Transport) reportError(cmdID uint8, err error) {
	if t.errorHandler != nil {
		t.errorHandler(cmdID, err)
	}
}

// encodeAckNak writes an empty-bodied frame carrying the next expected
// sequence and flushes it right away.
func (t *Transport) encodeAckNak() {
	ns := uint8(atomic.LoadUint32(&t.nextSequence))
	ack := []byte{MessageLengthMin, ns}
	t.output.Output(appendTrailer(ack, CRC16(ack)))

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame wraps whatever body writes into a frame on the output.
func (t *Transport) EncodeFrame(body func(output OutputBuffer)) {
	cursor := t.output.CurPosition()

	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output([]byte{0, seq})

	body(t.output)

	t.output.Update(cursor, uint8(len(t.output.DataSince(cursor))+MessageTrailerSize))
	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output(appendTrailer(nil, crc))
}

// SendResponse sends a response frame tagged with cmdID.
func (t *Transport) SendResponse(cmdID uint8, payload []byte) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeUint8(output, cmdID)
		if len(payload) > 0 {
			output.Output(payload)
		}
	})
}

// Reset returns the link to its power-on state.
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.nextSequence, MessageDest)

	if t.resetCallback != nil {
		t.resetCallback()
	}
}

func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback installs a hook run after every ACK/NAK so the ACK
// reaches the host before the next receive pass.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

func (t *Transport) SetErrorHandler(handler ErrorHandler) {
	t.errorHandler = handler
}

func (t *Transport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *Transport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&t.isSynchronized, 0)
	}
}
