package protocol

// CRC16 computes the frame checksum (CCITT polynomial, reflected, init
// 0xFFFF) over the header and body of a frame.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// appendTrailer appends the big-endian checksum and the sync byte.
func appendTrailer(dst []byte, crc uint16) []byte {
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync)
}
