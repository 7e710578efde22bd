// Package wavio reads and writes waveforms as WAV files.
package wavio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	wav "github.com/youpy/go-wav"
)

// BitsPerSample is the PCM depth of written files.
const BitsPerSample = 16

// ErrUnsupportedFormat is returned for WAV encodings the reader cannot map to
// samples.
var ErrUnsupportedFormat = errors.New("unsupported wav format")

const readChunk = 4096

// Write encodes samples in [-1, 1] as mono 16-bit PCM. Values outside the
// range are clipped.
func Write(w io.Writer, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	out := make([]wav.Sample, len(samples))
	scale := float64(math.MaxInt16)
	for i, s := range samples {
		s = max(-1, min(1, s))
		out[i].Values[0] = int(math.Round(s * scale))
	}
	writer := wav.NewWriter(w, uint32(len(samples)), 1, uint32(sampleRate), BitsPerSample)
	if err := writer.WriteSamples(out); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return nil
}

// WriteFile writes samples to path, replacing any existing file.
func WriteFile(path string, samples []float64, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return Write(f, samples, sampleRate)
}

// Encode returns the WAV bytes for samples.
func Encode(samples []float64, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Source is what Read needs from its input: sequential and random access.
type Source interface {
	io.Reader
	io.ReaderAt
}

// Read decodes the first channel of a WAV stream into samples in [-1, 1] and
// returns them with the file's sample rate.
func Read(r Source) ([]float64, int, error) {
	reader := wav.NewReader(r)
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("read format: %w", err)
	}
	switch format.AudioFormat {
	case wav.AudioFormatPCM, wav.AudioFormatIEEEFloat:
	default:
		return nil, 0, fmt.Errorf("%w: audio format %d", ErrUnsupportedFormat, format.AudioFormat)
	}
	if format.NumChannels == 0 || format.NumChannels > 2 {
		return nil, 0, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, format.NumChannels)
	}
	if format.AudioFormat == wav.AudioFormatPCM && format.BitsPerSample != 8 && format.BitsPerSample != 16 &&
		format.BitsPerSample != 24 && format.BitsPerSample != 32 {
		return nil, 0, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, format.BitsPerSample)
	}

	var out []float64
	for {
		chunk, err := reader.ReadSamples(readChunk)
		for _, s := range chunk {
			out = append(out, sampleValue(reader, format, s))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read samples: %w", err)
		}
		if len(chunk) == 0 {
			break
		}
	}
	return out, int(format.SampleRate), nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

func sampleValue(r *wav.Reader, format *wav.WavFormat, s wav.Sample) float64 {
	// 8-bit PCM is stored unsigned.
	if format.AudioFormat == wav.AudioFormatPCM && format.BitsPerSample == 8 {
		return (float64(s.Values[0]) - 128) / 128
	}
	if format.AudioFormat == wav.AudioFormatIEEEFloat {
		return float64(s.Values[0]) / math.MaxInt32
	}
	return r.FloatValue(s, 0)
}
