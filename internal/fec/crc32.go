package fec

import (
	"encoding/binary"
	"hash/crc32"
)

// CRCSize is the length of the big-endian CRC-32 trailer.
const CRCSize = 4

// AppendCRC returns data followed by its IEEE CRC-32.
func AppendCRC(data []byte) []byte {
	out := make([]byte, len(data), len(data)+CRCSize)
	copy(out, data)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(data))
}

// CheckCRC splits a CRC-32 trailer from block and reports whether it matches.
func CheckCRC(block []byte) ([]byte, bool) {
	if len(block) < CRCSize {
		return nil, false
	}
	data := block[:len(block)-CRCSize]
	want := binary.BigEndian.Uint32(block[len(block)-CRCSize:])
	return data, crc32.ChecksumIEEE(data) == want
}
