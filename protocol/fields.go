package protocol

import "errors"

var ErrBufferTooSmall = errors.New("protocol: buffer too small for field")

// DecodeUint8 reads one byte and advances data past it.
func DecodeUint8(data *[]byte) (uint8, error) {
	if len(*data) < 1 {
		return 0, ErrBufferTooSmall
	}
	v := (*data)[0]
	*data = (*data)[1:]
	return v, nil
}

// DecodeUint16 reads a little-endian 16-bit field (low byte first) and
// advances data past it.
func DecodeUint16(data *[]byte) (uint16, error) {
	if len(*data) < 2 {
		return 0, ErrBufferTooSmall
	}
	v := uint16((*data)[0]) | uint16((*data)[1])<<8
	*data = (*data)[2:]
	return v, nil
}

func EncodeUint8(output OutputBuffer, v uint8) {
	output.Output([]byte{v})
}

// EncodeUint16 writes v low byte first.
func EncodeUint16(output OutputBuffer, v uint16) {
	output.Output([]byte{uint8(v), uint8(v >> 8)})
}
