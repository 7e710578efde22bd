package packet

import (
	"errors"
	"fmt"

	"github.com/jeongseonghan/acoustic-modem/internal/fec"
	"github.com/jeongseonghan/acoustic-modem/internal/modem"
)

// Codec converts packets to and from fixed-size protected blocks.
type Codec struct {
	layout Layout
	rs     *fec.Codec
}

// Stats reports what decoding had to do.
type Stats struct {
	Erased int // bytes reconstructed from parity
}

// NewCodec validates the layout and builds its Reed-Solomon code.
func NewCodec(layout Layout) (*Codec, error) {
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("packet layout: %w", err)
	}
	rs, err := fec.New(layout.DataBytes, layout.ParityBytes)
	if err != nil {
		return nil, err
	}
	return &Codec{layout: layout, rs: rs}, nil
}

// Layout returns the block layout.
func (c *Codec) Layout() Layout { return c.layout }

// Encode serializes p into one block.
func (c *Codec) Encode(p Packet) ([]byte, error) {
	if len(p.Payload) > c.layout.MaxPayload() {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, len(p.Payload), c.layout.MaxPayload())
	}

	buf := make([]byte, HeaderSize+len(p.Payload))
	buf[0] = byte(p.Type)
	buf[1] = p.Seq
	buf[2] = byte(len(p.Payload))
	copy(buf[HeaderSize:], p.Payload)

	block, err := c.rs.Encode(fec.AppendCRC(buf))
	if err != nil {
		return nil, fmt.Errorf("encode packet: %w", err)
	}
	return block, nil
}

// EncodeBits serializes p into the bits handed to the modulator.
func (c *Codec) EncodeBits(p Packet) ([]byte, error) {
	block, err := c.Encode(p)
	if err != nil {
		return nil, err
	}
	return modem.BytesToBits(block), nil
}

// Decode parses a block. reliability holds one score per block byte and may
// be nil, in which case a CRC failure is final.
func (c *Codec) Decode(block []byte, reliability []float64) (Packet, Stats, error) {
	if len(block) != c.layout.BlockBytes() {
		return Packet{}, Stats{}, fmt.Errorf("%w: block is %d bytes, want %d", ErrCorrupt, len(block), c.layout.BlockBytes())
	}

	data := block[:c.layout.DataBytes]
	var stats Stats
	if !intact(data) {
		if reliability == nil {
			return Packet{}, stats, fmt.Errorf("%w: CRC mismatch", ErrCorrupt)
		}
		repaired, erased, err := c.rs.Repair(block, reliability, intact)
		if errors.Is(err, fec.ErrUnrecoverable) {
			return Packet{}, stats, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if err != nil {
			return Packet{}, stats, err
		}
		data, stats.Erased = repaired, erased
	}

	n := int(data[2])
	p := Packet{Type: Type(data[0]), Seq: data[1]}
	if n > 0 {
		p.Payload = make([]byte, n)
		copy(p.Payload, data[HeaderSize:HeaderSize+n])
	}
	return p, stats, nil
}

// DecodeFrame decodes the bits of a received modem frame, using the
// demodulator's per-bit confidence to pick erasures.
func (c *Codec) DecodeFrame(f modem.Frame) (Packet, Stats, error) {
	if len(f.Bits) < c.layout.Bits() {
		return Packet{}, Stats{}, fmt.Errorf("%w: frame has %d bits, want %d", ErrCorrupt, len(f.Bits), c.layout.Bits())
	}
	bits := f.Bits[:c.layout.Bits()]

	var reliability []float64
	if len(f.Decisions) >= len(bits) {
		conf := make([]float64, len(bits))
		for i := range conf {
			conf[i] = f.Decisions[i].Confidence
		}
		reliability = fec.ByteReliability(conf)
	}
	return c.Decode(modem.BitsToBytes(bits), reliability)
}

// intact reports whether data starts with a well-formed header whose
// payload is followed by a matching CRC.
func intact(data []byte) bool {
	if len(data) < HeaderSize+CRCSize {
		return false
	}
	end := HeaderSize + int(data[2]) + CRCSize
	if end > len(data) {
		return false
	}
	_, ok := fec.CheckCRC(data[:end])
	return ok
}
