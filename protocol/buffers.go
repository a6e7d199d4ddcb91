package protocol

// InputBuffer is what Transport.Receive reads frames from.
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer is what frames are encoded into. Update patches a byte
// already written, used for the length and CRC fields.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// ScratchOutput collects the responses of one receive pass in a fixed
// array. Output past ScratchMax is dropped.
type ScratchOutput struct {
	buf [ScratchMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result is the output collected since the last Reset.
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

func (s *ScratchOutput) Reset() { s.pos = 0 }

// LinkBuffer holds received link bytes until they form whole frames.
// Unread bytes are always contiguous; consumed space at the front is
// reclaimed by sliding the remainder down when a write needs room, so
// Data never allocates.
type LinkBuffer struct {
	buf        []byte
	start, end int
}

func NewLinkBuffer(capacity int) *LinkBuffer {
	return &LinkBuffer{buf: make([]byte, capacity)}
}

// Write stores as much of data as fits and returns the count stored.
func (b *LinkBuffer) Write(data []byte) int {
	if len(data) > len(b.buf)-b.end && b.start > 0 {
		b.end = copy(b.buf, b.buf[b.start:b.end])
		b.start = 0
	}
	n := copy(b.buf[b.end:], data)
	b.end += n
	return n
}

func (b *LinkBuffer) Data() []byte { return b.buf[b.start:b.end] }

func (b *LinkBuffer) Available() int { return b.end - b.start }

func (b *LinkBuffer) Pop(n int) {
	if n > b.Available() {
		n = b.Available()
	}
	b.start += n
	if b.start == b.end {
		b.start, b.end = 0, 0
	}
}

func (b *LinkBuffer) Reset() { b.start, b.end = 0, 0 }
