// Package fec protects fixed-size blocks with Reed-Solomon parity and
// repairs them using per-byte reliability from the demodulator.
package fec

import (
	"errors"
	"fmt"
	"slices"

	"github.com/klauspost/reedsolomon"
)

// ErrUnrecoverable is returned when no erasure pattern within the parity
// budget yields a block that passes validation.
var ErrUnrecoverable = errors.New("unrecoverable block")

// Codec is a systematic RS(data+parity, data) code over bytes. Each byte is
// one shard, so a block is DataBytes followed by ParityBytes.
type Codec struct {
	enc    reedsolomon.Encoder
	data   int
	parity int
}

// MaxBlockBytes bounds a block to the GF(2^8) code length.
const MaxBlockBytes = 256

// New creates a codec for blocks of at most MaxBlockBytes.
func New(dataBytes, parityBytes int) (*Codec, error) {
	if dataBytes < 1 || parityBytes < 1 || dataBytes+parityBytes > MaxBlockBytes {
		return nil, fmt.Errorf("reed-solomon shards: data=%d parity=%d", dataBytes, parityBytes)
	}
	enc, err := reedsolomon.New(dataBytes, parityBytes)
	if err != nil {
		return nil, fmt.Errorf("create reed-solomon encoder: %w", err)
	}
	return &Codec{enc: enc, data: dataBytes, parity: parityBytes}, nil
}

// DataBytes is the systematic part of a block.
func (c *Codec) DataBytes() int { return c.data }

// ParityBytes is the number of erasures a block can absorb.
func (c *Codec) ParityBytes() int { return c.parity }

// BlockBytes is DataBytes + ParityBytes.
func (c *Codec) BlockBytes() int { return c.data + c.parity }

// Encode zero-pads data to DataBytes and appends parity.
func (c *Codec) Encode(data []byte) ([]byte, error) {
	if len(data) > c.data {
		return nil, fmt.Errorf("data too large: %d > %d", len(data), c.data)
	}
	shards := make([][]byte, c.BlockBytes())
	for i := range shards {
		shards[i] = make([]byte, 1)
		if i < len(data) {
			shards[i][0] = data[i]
		}
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}

	block := make([]byte, len(shards))
	for i, s := range shards {
		block[i] = s[0]
	}
	return block, nil
}

// Decode rebuilds the data part of block treating the listed byte positions
// as lost.
func (c *Codec) Decode(block []byte, erasures []int) ([]byte, error) {
	if len(block) != c.BlockBytes() {
		return nil, fmt.Errorf("invalid block size: %d != %d", len(block), c.BlockBytes())
	}
	shards := make([][]byte, len(block))
	for i, b := range block {
		shards[i] = []byte{b}
	}
	for _, idx := range erasures {
		if idx < 0 || idx >= len(shards) {
			return nil, fmt.Errorf("erasure index %d out of range", idx)
		}
		shards[idx] = nil
	}

	if err := c.enc.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnrecoverable, err)
	}
	data := make([]byte, c.data)
	for i := range data {
		data[i] = shards[i][0]
	}
	return data, nil
}

// Repair returns the data part of block, accepted by valid. When the block
// as received is rejected, the least reliable bytes are erased one more at a
// time, up to the parity budget, and reconstructed until valid accepts.
// reliability holds one score per block byte; higher is more trustworthy.
func (c *Codec) Repair(block []byte, reliability []float64, valid func(data []byte) bool) ([]byte, int, error) {
	if len(block) != c.BlockBytes() {
		return nil, 0, fmt.Errorf("invalid block size: %d != %d", len(block), c.BlockBytes())
	}
	if len(reliability) != len(block) {
		return nil, 0, fmt.Errorf("reliability has %d entries, block has %d bytes", len(reliability), len(block))
	}

	data := slices.Clone(block[:c.data])
	if valid(data) {
		return data, 0, nil
	}

	order := make([]int, len(block))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case reliability[a] < reliability[b]:
			return -1
		case reliability[a] > reliability[b]:
			return 1
		}
		return 0
	})

	for k := 1; k <= c.parity; k++ {
		repaired, err := c.Decode(block, order[:k])
		if err != nil {
			continue
		}
		if valid(repaired) {
			return repaired, k, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %d parity bytes exhausted", ErrUnrecoverable, c.parity)
}

// ByteReliability folds per-bit confidences (MSB first, eight per byte) into
// one score per byte: the weakest bit decides. A trailing partial byte is
// dropped.
func ByteReliability(bitConfidence []float64) []float64 {
	out := make([]float64, len(bitConfidence)/8)
	for i := range out {
		out[i] = slices.Min(bitConfidence[i*8 : i*8+8])
	}
	return out
}
