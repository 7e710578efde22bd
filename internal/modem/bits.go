package modem

// BytesToBits unpacks bytes MSB first, eight bits per byte.
func BytesToBits(data []byte) []byte {
	bits := make([]byte, len(data)*8)
	for i, b := range data {
		for j := 7; j >= 0; j-- {
			bits[i*8+(7-j)] = (b >> uint(j)) & 1
		}
	}
	return bits
}

// BitsToBytes packs bits MSB first. A trailing group of fewer than eight
// bits is dropped.
func BitsToBytes(bits []byte) []byte {
	numBytes := len(bits) / 8
	data := make([]byte, numBytes)
	for i := 0; i < numBytes; i++ {
		var b byte
		for j := 0; j < 8; j++ {
			b = (b << 1) | (bits[i*8+j] & 1)
		}
		data[i] = b
	}
	return data
}

// TextToBits encodes a string as 8 bits per byte.
func TextToBits(text string) []byte {
	return BytesToBits([]byte(text))
}

// BitsToText decodes complete 8-bit groups back into a string.
func BitsToText(bits []byte) string {
	return string(BitsToBytes(bits))
}
