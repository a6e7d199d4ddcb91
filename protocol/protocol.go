// Package protocol implements the serial link between the host and the
// motor-shield firmware: framing, sequencing and fixed-width field codecs.
package protocol

// Version is the link protocol version reported by the host tools.
const Version = "0.1.0"

// Frame layout constants.
//
//	[len][seq][body...][crc hi][crc lo][sync]
//
// A command frame body is the command id followed by its payload. A frame
// with an empty body is a link-level ACK/NAK.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessageBodyMax     = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F

	// ScratchMax bounds a single flush of device output (several
	// responses plus the ACK).
	ScratchMax = 512
)

// nextSeq advances a sequence byte within the 0x10..0x1F window.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
