package core

// itoa converts an integer to a string without the fmt package.
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}

func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

const hexDigits = "0123456789abcdef"

// hex8 renders v as two lowercase hex digits.
func hex8(v uint8) string {
	return string([]byte{hexDigits[v>>4], hexDigits[v&0x0F]})
}
