// Package device describes sound devices independently of the audio
// backend that enumerates them.
package device

import (
	"fmt"
	"io"
)

// Info holds audio device information.
type Info struct {
	Name              string  `json:"name"`
	MaxInputChannels  int     `json:"maxInputChannels"`
	MaxOutputChannels int     `json:"maxOutputChannels"`
	DefaultSampleRate float64 `json:"defaultSampleRate"`
	IsDefault         bool    `json:"isDefault"`
}

// Report is a device listing plus whether default input and output exist,
// since listen and send each need one.
type Report struct {
	Devices   []Info `json:"devices"`
	HasInput  bool   `json:"hasInput"`
	HasOutput bool   `json:"hasOutput"`
}

// Write prints a device table.
func Write(w io.Writer, r Report) {
	fmt.Fprintln(w, "Audio Devices:")
	if len(r.Devices) == 0 {
		fmt.Fprintln(w, "  (no devices found)")
	}
	for i, d := range r.Devices {
		def := ""
		if d.IsDefault {
			def = " [DEFAULT]"
		}
		fmt.Fprintf(w, "  %d: %s (in:%d out:%d rate:%.0f)%s\n",
			i, d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, def)
	}
	if !r.HasInput {
		fmt.Fprintln(w, "\n  WARNING: No default input device. Listen mode unavailable.")
	}
	if !r.HasOutput {
		fmt.Fprintln(w, "\n  WARNING: No default output device. Send mode unavailable.")
	}
}
