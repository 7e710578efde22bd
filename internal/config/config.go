// Package config loads the modem's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/jeongseonghan/acoustic-modem/internal/channel"
	"github.com/jeongseonghan/acoustic-modem/internal/modem"
	"github.com/jeongseonghan/acoustic-modem/internal/packet"
	"github.com/jeongseonghan/acoustic-modem/internal/station"
)

// ErrInvalidPreamble is returned for a preamble string that is not all 0s
// and 1s.
var ErrInvalidPreamble = errors.New("preamble must be a string of 0 and 1")

const defaultBlockSize = 1024

// File is the on-disk configuration. Fields missing from the YAML keep their
// Default values.
type File struct {
	Modem struct {
		SampleRate         float64 `yaml:"sample_rate"`
		BitRate            float64 `yaml:"bit_rate"`
		Freq0              float64 `yaml:"freq0"`
		Freq1              float64 `yaml:"freq1"`
		GuardBand          float64 `yaml:"guard_band"`
		FilterOrder        int     `yaml:"filter_order"`
		Preamble           string  `yaml:"preamble"`
		NeighborBins       int     `yaml:"neighbor_bins"`
		DetectionThreshold float64 `yaml:"detection_threshold"`
		Squelch            float64 `yaml:"squelch"`
	} `yaml:"modem"`

	Channel struct {
		Medium       channel.Medium `yaml:"medium"`
		Distance     float64        `yaml:"distance"`
		Temperature  float64        `yaml:"temperature"`
		Salinity     float64        `yaml:"salinity"`
		Depth        float64        `yaml:"depth"`
		SpeedOfSound float64        `yaml:"speed_of_sound"`
		EchoGain     float64        `yaml:"echo_gain"`
		Seed         int64          `yaml:"seed"`
	} `yaml:"channel"`

	Packet packet.Layout `yaml:"packet"`

	Audio struct {
		SampleRate float64 `yaml:"sample_rate"`
		BlockSize  int     `yaml:"block_size"`
		Level      float64 `yaml:"level"`
	} `yaml:"audio"`

	Server struct {
		Addr      string `yaml:"addr"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"server"`

	Log Log `yaml:"log"`
}

// Log selects the logrus level and formatter.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the reference configuration.
func Default() *File {
	var f File

	mc := modem.DefaultConfig()
	f.Modem.SampleRate = mc.SampleRate
	f.Modem.BitRate = mc.BitRate
	f.Modem.Freq0 = mc.Freq0
	f.Modem.Freq1 = mc.Freq1
	f.Modem.GuardBand = mc.GuardBand
	f.Modem.FilterOrder = mc.FilterOrder
	f.Modem.Preamble = FormatBits(mc.Preamble)
	f.Modem.NeighborBins = mc.NeighborBins
	f.Modem.DetectionThreshold = mc.DetectionThreshold

	cp := channel.DefaultParameters()
	f.Channel.Medium = cp.Medium
	f.Channel.Distance = 100
	f.Channel.Temperature = cp.Temperature
	f.Channel.Salinity = cp.Salinity
	f.Channel.Depth = cp.Depth
	f.Channel.EchoGain = cp.EchoGain
	f.Channel.Seed = 1

	f.Packet = packet.DefaultLayout()

	f.Audio.SampleRate = mc.SampleRate
	f.Audio.BlockSize = defaultBlockSize
	f.Audio.Level = station.DefaultLevel

	f.Server.Addr = "localhost:8080"
	f.Server.StaticDir = "web"

	f.Log.Level = "info"
	return &f
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate runs every section's own validation.
func (f *File) Validate() error {
	mc, err := f.ModemConfig()
	if err != nil {
		return err
	}
	if err := mc.Validate(); err != nil {
		return fmt.Errorf("modem: %w", err)
	}
	if err := f.ChannelParameters().Validate(); err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	if err := f.Packet.Validate(); err != nil {
		return fmt.Errorf("packet: %w", err)
	}
	if f.Audio.SampleRate != f.Modem.SampleRate {
		return fmt.Errorf("audio sample rate %g differs from modem sample rate %g", f.Audio.SampleRate, f.Modem.SampleRate)
	}
	if f.Audio.BlockSize <= 0 {
		return fmt.Errorf("audio block size must be positive, got %d", f.Audio.BlockSize)
	}
	if _, err := log.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// ModemConfig converts the modem section.
func (f *File) ModemConfig() (modem.Config, error) {
	preamble, err := ParseBits(f.Modem.Preamble)
	if err != nil {
		return modem.Config{}, fmt.Errorf("modem: %w", err)
	}
	return modem.Config{
		SampleRate:         f.Modem.SampleRate,
		BitRate:            f.Modem.BitRate,
		Freq0:              f.Modem.Freq0,
		Freq1:              f.Modem.Freq1,
		GuardBand:          f.Modem.GuardBand,
		FilterOrder:        f.Modem.FilterOrder,
		Preamble:           preamble,
		NeighborBins:       f.Modem.NeighborBins,
		DetectionThreshold: f.Modem.DetectionThreshold,
		Squelch:            f.Modem.Squelch,
	}, nil
}

// ChannelParameters converts the channel section.
func (f *File) ChannelParameters() channel.Parameters {
	return channel.Parameters{
		Medium:       f.Channel.Medium,
		Distance:     f.Channel.Distance,
		Temperature:  f.Channel.Temperature,
		Salinity:     f.Channel.Salinity,
		Depth:        f.Channel.Depth,
		SpeedOfSound: f.Channel.SpeedOfSound,
		EchoGain:     f.Channel.EchoGain,
		Seed:         f.Channel.Seed,
	}
}

// Apply configures the standard logrus logger.
func (l Log) Apply() error {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if l.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// ParseBits turns "10110010" into a bit slice. Spaces are ignored.
func ParseBits(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "")
	bits := make([]byte, len(s))
	for i, c := range s {
		switch c {
		case '0':
		case '1':
			bits[i] = 1
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidPreamble, s)
		}
	}
	return bits, nil
}

// FormatBits is the inverse of ParseBits.
func FormatBits(bits []byte) string {
	var b strings.Builder
	for _, bit := range bits {
		b.WriteByte('0' + bit&1)
	}
	return b.String()
}
