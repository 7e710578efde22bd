// Package packet frames short messages into fixed-size blocks so a receiver
// always knows how many bits follow the preamble.
package packet

import (
	"errors"
	"fmt"

	"github.com/jeongseonghan/acoustic-modem/internal/fec"
)

var (
	// ErrTooLarge is returned when a payload does not fit the layout.
	ErrTooLarge = errors.New("payload too large")
	// ErrCorrupt is returned when a block fails its CRC and cannot be repaired.
	ErrCorrupt = errors.New("corrupt packet")
)

// Type identifies the payload kind.
type Type byte

// Packet types. ACK is carried as data only; there is no retransmission.
const (
	TypeUnknown Type = 0x00
	TypeText    Type = 0x01
	TypeControl Type = 0x06
	TypeAck     Type = 0x07
	TypeError   Type = 0x08
)

// String returns a human-readable name for the packet type.
func (t Type) String() string {
	switch t {
	case TypeText:
		return "TEXT"
	case TypeControl:
		return "CONTROL"
	case TypeAck:
		return "ACK"
	case TypeError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}

// Block layout sizes.
const (
	HeaderSize = 3 // type, seq, payload length
	CRCSize    = fec.CRCSize
)

// Packet is one message.
// Block format: [Type][Seq][Len][Payload][CRC-32][zero pad][RS parity].
type Packet struct {
	Type    Type
	Seq     byte
	Payload []byte
}

// NewText creates a TEXT packet.
func NewText(seq byte, text string) Packet {
	return Packet{Type: TypeText, Seq: seq, Payload: []byte(text)}
}

// NewAck creates an ACK packet for seq.
func NewAck(seq byte) Packet {
	return Packet{Type: TypeAck, Seq: seq}
}

// NewControl creates a CONTROL packet.
func NewControl(payload []byte) Packet {
	return Packet{Type: TypeControl, Payload: payload}
}

// Layout fixes the block size on both ends of the link.
type Layout struct {
	DataBytes   int `yaml:"data_bytes"`
	ParityBytes int `yaml:"parity_bytes"`
}

// DefaultLayout carries up to 25 payload bytes with 8 bytes of parity.
func DefaultLayout() Layout {
	return Layout{DataBytes: 32, ParityBytes: 8}
}

// Validate checks that the layout can hold an empty packet and fits one
// Reed-Solomon block.
func (l Layout) Validate() error {
	switch {
	case l.DataBytes < HeaderSize+CRCSize:
		return fmt.Errorf("data bytes %d below minimum %d", l.DataBytes, HeaderSize+CRCSize)
	case l.DataBytes > 255+HeaderSize+CRCSize:
		return fmt.Errorf("data bytes %d exceed one-byte length field", l.DataBytes)
	case l.ParityBytes < 1:
		return fmt.Errorf("parity bytes must be positive, got %d", l.ParityBytes)
	case l.DataBytes+l.ParityBytes > fec.MaxBlockBytes:
		return fmt.Errorf("block of %d bytes exceeds %d", l.DataBytes+l.ParityBytes, fec.MaxBlockBytes)
	}
	return nil
}

// MaxPayload is the largest payload a block can carry.
func (l Layout) MaxPayload() int { return l.DataBytes - HeaderSize - CRCSize }

// BlockBytes is the encoded block length.
func (l Layout) BlockBytes() int { return l.DataBytes + l.ParityBytes }

// Bits is the number of modem bits following the preamble.
func (l Layout) Bits() int { return 8 * l.BlockBytes() }
