package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/jeongseonghan/acoustic-modem/internal/audio/device"
	"github.com/jeongseonghan/acoustic-modem/internal/channel"
	"github.com/jeongseonghan/acoustic-modem/internal/packet"
	"github.com/jeongseonghan/acoustic-modem/internal/sim"
	"github.com/jeongseonghan/acoustic-modem/internal/station"
	"github.com/jeongseonghan/acoustic-modem/internal/wavio"
)

// Request limits for /api/simulate.
const (
	maxDataBits  = 4096
	maxTrials    = 100
	maxDistances = 64
)

// DeviceLister enumerates audio devices for /api/devices.
type DeviceLister func() (device.Report, error)

// Handlers holds the HTTP API handlers.
type Handlers struct {
	station   *station.Station
	scenario  sim.Scenario
	devices   DeviceLister
	hub       *Hub
	listening atomic.Bool
}

// NewHandlers creates the API handlers. scenario is the base for simulation
// requests; devices may be nil when no audio backend is available.
func NewHandlers(st *station.Station, scenario sim.Scenario, devices DeviceLister) *Handlers {
	return &Handlers{
		station:  st,
		scenario: scenario,
		devices:  devices,
		hub:      NewHub(),
	}
}

// Hub returns the websocket hub.
func (h *Handlers) Hub() *Hub { return h.hub }

// HandleWebSocket upgrades the request and keeps the client until it
// disconnects.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	h.hub.AddClient(conn)

	// Drain client messages so close frames are seen.
	go func() {
		defer h.hub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleTransmit renders a text packet and returns it as a WAV download.
func (h *Handlers) HandleTransmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Parse request: %v", err), http.StatusBadRequest)
		return
	}

	p := h.station.NextText(req.Text)
	wave, err := h.station.Waveform(p)
	if errors.Is(err, packet.ErrTooLarge) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Modulate: %v", err), http.StatusInternalServerError)
		return
	}
	data, err := wavio.Encode(wave, int(h.station.Config().SampleRate))
	if err != nil {
		http.Error(w, fmt.Sprintf("Encode wav: %v", err), http.StatusInternalServerError)
		return
	}

	log.WithFields(log.Fields{"seq": p.Seq, "bytes": len(p.Payload)}).Info("Transmit rendered")
	h.hub.BroadcastLog("info", fmt.Sprintf("Rendered packet %d (%d bytes)", p.Seq, len(p.Payload)))

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("packet-%03d.wav", p.Seq)))
	w.Write(data)
}

type simulateRequest struct {
	Medium    string    `json:"medium"`
	Distance  *float64  `json:"distance"`
	Distances []float64 `json:"distances"`
	Trials    int       `json:"trials"`
	DataBits  int       `json:"dataBits"`
	Seed      *int64    `json:"seed"`
}

// scenario applies the request over the configured base scenario.
func (req simulateRequest) scenario(base sim.Scenario) (sim.Scenario, error) {
	sc := base
	if req.Medium != "" {
		m, err := channel.ParseMedium(req.Medium)
		if err != nil {
			return sc, err
		}
		sc.Channel.Medium = m
	}
	if req.Distance != nil {
		sc.Channel.Distance = *req.Distance
	}
	if req.Seed != nil {
		sc.Seed = *req.Seed
		sc.Channel.Seed = *req.Seed
	}
	if req.DataBits != 0 {
		sc.DataBits = req.DataBits
	}
	switch {
	case sc.DataBits <= 0 || sc.DataBits > maxDataBits:
		return sc, fmt.Errorf("dataBits must be in 1..%d", maxDataBits)
	case req.Trials < 0 || req.Trials > maxTrials:
		return sc, fmt.Errorf("trials must be in 0..%d", maxTrials)
	case len(req.Distances) > maxDistances:
		return sc, fmt.Errorf("at most %d distances", maxDistances)
	}
	if err := sc.Channel.Validate(); err != nil {
		return sc, err
	}
	for _, d := range req.Distances {
		if d < 0 {
			return sc, fmt.Errorf("distance must be non-negative, got %g", d)
		}
	}
	return sc, nil
}

// HandleSimulate runs one link simulation, or a sweep when distances are
// given, and returns the result as JSON.
func (h *Handlers) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Parse request: %v", err), http.StatusBadRequest)
		return
	}
	sc, err := req.scenario(h.scenario)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(req.Distances) > 0 {
		trials := max(req.Trials, 1)
		points, err := sim.Sweep(r.Context(), sc, req.Distances, trials)
		if err != nil {
			http.Error(w, fmt.Sprintf("Sweep: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"medium": sc.Channel.Medium.String(),
			"points": points,
		})
		return
	}

	res, err := sim.Run(r.Context(), sc)
	if err != nil {
		http.Error(w, fmt.Sprintf("Simulate: %v", err), http.StatusInternalServerError)
		return
	}
	h.hub.BroadcastLog("info", fmt.Sprintf("Simulated %s at %g m: BER %.4f", res.Medium, res.Distance, res.BER))
	writeJSON(w, res)
}

// HandleStatus reports whether the station is listening and its link
// parameters.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := "idle"
	if h.listening.Load() {
		status = "listening"
	}
	cfg := h.station.Config()
	writeJSON(w, map[string]any{
		"status":      status,
		"clients":     h.hub.Clients(),
		"sampleRate":  cfg.SampleRate,
		"bitRate":     cfg.BitRate,
		"freq0":       cfg.Freq0,
		"freq1":       cfg.Freq1,
		"payloadBits": cfg.PayloadBits,
	})
}

// HandleDevices lists available audio devices.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	if h.devices == nil {
		http.Error(w, "No audio backend", http.StatusServiceUnavailable)
		return
	}
	report, err := h.devices()
	if err != nil {
		writeJSON(w, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, map[string]any{
		"status":    "ok",
		"devices":   report.Devices,
		"hasInput":  report.HasInput,
		"hasOutput": report.HasOutput,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Write response failed")
	}
}

func isAPI(path string) bool {
	return strings.HasPrefix(path, "/api/") || path == "/ws"
}
