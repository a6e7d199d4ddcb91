package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTransportClosed = errors.New("protocol: transport stopped")
	ErrAckTimeout      = errors.New("protocol: link ack timeout")
	ErrResponseTimeout = errors.New("protocol: response timeout")
	ErrBodyTooLong     = errors.New("protocol: frame body too long")
)

// ResponseHandler is called from the read loop for every response frame.
type ResponseHandler func(cmdID uint8, payload []byte)

// Message is a validated frame received from the device. The Sequence of
// a response frame is the link ACK sequence of the command that produced
// it.
type Message struct {
	Length   uint8
	Sequence uint8
	Body     []byte
	CRC      uint16
}

// CommandID returns the id a response frame is tagged with.
func (m *Message) CommandID() (uint8, bool) {
	if len(m.Body) == 0 {
		return 0, false
	}
	return m.Body[0], true
}

// BuildFrame encodes body into a complete frame with the given sequence.
func BuildFrame(seq uint8, body []byte) ([]byte, error) {
	if len(body) > MessageBodyMax {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrBodyTooLong, len(body), MessageBodyMax)
	}
	frame := make([]byte, 0, len(body)+MessageLengthMin)
	frame = append(frame, uint8(len(body)+MessageLengthMin), seq)
	frame = append(frame, body...)
	return appendTrailer(frame, CRC16(frame)), nil
}

// HostTransport is the host end of the link. A background goroutine parses
// incoming frames; link ACKs and command responses are delivered on
// separate channels.
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq     uint32 // atomic, sequence of the next frame to send
	isSynchronized uint32 // atomic bool

	inputBuffer *LinkBuffer

	ackChan      chan *Message
	responseChan chan *Message

	responseHandler ResponseHandler

	writeMutex sync.Mutex
	readMutex  sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:           port,
		currentSeq:     MessageDest,
		isSynchronized: 1,
		inputBuffer:    NewLinkBuffer(512),
		ackChan:        make(chan *Message, 4),
		responseChan:   make(chan *Message, 16),
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}

	go t.readLoop()

	return t
}

// maxResends bounds how often one command is resent after the device names
// a different expected sequence.
const maxResends = 2

// SendCommand frames cmdID and payload, writes it and waits for the link
// ACK.
func (t *HostTransport) SendCommand(cmdID uint8, payload []byte) error {
	return t.SendCommandWithTimeout(cmdID, payload, 2*time.Second)
}

func (t *HostTransport) SendCommandWithTimeout(cmdID uint8, payload []byte, timeout time.Duration) error {
	_, err := t.SendCommandSeq(cmdID, payload, timeout)
	return err
}

// SendCommandSeq sends a command like SendCommandWithTimeout and returns
// the sequence its link ACK carried. Responses produced by the command are
// framed with the same sequence.
//
// A NAK naming another sequence means the device never accepted the frame;
// it is resent with the sequence the device expects. On an ACK timeout the
// frame counts as sent: a busy device still executes it later, so the next
// command must not reuse its sequence.
func (t *HostTransport) SendCommandSeq(cmdID uint8, payload []byte, timeout time.Duration) (uint8, error) {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	body := make([]byte, 0, len(payload)+1)
	body = append(body, cmdID)
	body = append(body, payload...)

	deadline := time.Now().Add(timeout)
	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	t.drainAcks()

	for resends := 0; ; resends++ {
		frame, err := BuildFrame(seq, body)
		if err != nil {
			return 0, fmt.Errorf("failed to build command: %w", err)
		}

		n, err := t.port.Write(frame)
		if err != nil {
			return 0, fmt.Errorf("failed to write message: %w", err)
		}
		if n != len(frame) {
			return 0, fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
		}

		expected, err := t.waitForAck(seq, time.Until(deadline))
		switch {
		case err == nil:
			atomic.StoreUint32(&t.currentSeq, uint32(nextSeq(seq)))
			return nextSeq(seq), nil
		case errors.Is(err, errNak) && resends < maxResends:
			seq = expected
		case errors.Is(err, ErrAckTimeout):
			atomic.StoreUint32(&t.currentSeq, uint32(nextSeq(seq)))
			return 0, err
		default:
			return 0, err
		}
	}
}

var errNak = errors.New("protocol: frame refused")

// waitForAck waits for the ACK of the frame sent with seq. An ACK naming
// seq itself belongs to the previous frame and is skipped. Any other
// sequence is a NAK; it is returned with errNak.
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) (uint8, error) {
	want := nextSeq(seq)
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var last *Message
	for {
		select {
		case ack := <-t.ackChan:
			switch ack.Sequence {
			case want:
				return want, nil
			case seq:
				last = ack
			default:
				return ack.Sequence, fmt.Errorf("%w: sent seq 0x%02x, device expects 0x%02x", errNak, seq, ack.Sequence)
			}
		case <-deadline.C:
			if last != nil {
				return 0, fmt.Errorf("%w after %v: expected seq 0x%02x, last 0x%02x", ErrAckTimeout, timeout, want, last.Sequence)
			}
			return 0, fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
		case <-t.stopChan:
			return 0, ErrTransportClosed
		}
	}
}

func (t *HostTransport) drainAcks() {
	for {
		select {
		case <-t.ackChan:
		default:
			return
		}
	}
}

// PollResponse returns the next queued response frame without waiting.
func (t *HostTransport) PollResponse() (*Message, bool) {
	select {
	case resp := <-t.responseChan:
		return resp, true
	default:
		return nil, false
	}
}

// DrainResponses drops every queued response frame.
func (t *HostTransport) DrainResponses() {
	for {
		select {
		case <-t.responseChan:
		default:
			return
		}
	}
}

// ReceiveResponse returns the next response frame.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v", ErrResponseTimeout, timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// SetResponseHandler must be called before the first frame arrives.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.responseHandler = handler
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.inputBuffer.Write(buffer[:n])
			t.processMessages()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) processMessages() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	data := t.inputBuffer.Data()
	total := len(data)

	for len(data) > 0 {
		if !t.getSynchronized() {
			syncPos := bytes.IndexByte(data, MessageValueSync)
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			t.setSynchronized(true)
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

		body := make([]byte, msgLen-MessageLengthMin)
		copy(body, data[MessageHeaderSize:msgLen-MessageTrailerSize])
		msg := &Message{
			Length:   data[MessagePositionLen],
			Sequence: data[MessagePositionSeq],
			Body:     body,
			CRC:      uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1]),
		}
		data = data[msgLen:]

		t.dispatchMessage(msg)
	}

	t.inputBuffer.Pop(total - len(data))
}

func (t *HostTransport) dispatchMessage(msg *Message) {
	if len(msg.Body) == 0 {
		select {
		case t.ackChan <- msg:
		default:
			// Keep the newest ACK.
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return
	}

	if t.responseHandler != nil {
		t.responseHandler(msg.Body[0], msg.Body[1:])
	}

	select {
	case t.responseChan <- msg:
	default:
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the read loop and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset drops pending frames and restarts the sequence, which the device
// treats as a host reconnect.
func (t *HostTransport) Reset() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.currentSeq, MessageDest)

	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}
	t.inputBuffer.Reset()
}

func (t *HostTransport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *HostTransport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&t.isSynchronized, 0)
	}
}

// CurrentSequence returns the sequence the next command will carry.
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
