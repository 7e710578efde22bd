// Package sim runs transmissions through the channel emulator and scores the
// received bits.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	log "github.com/sirupsen/logrus"

	"github.com/jeongseonghan/acoustic-modem/internal/channel"
	"github.com/jeongseonghan/acoustic-modem/internal/modem"
)

// LostFrameBER is charged to a trial whose preamble was never found: the
// receiver has no better information than a coin toss.
const LostFrameBER = 0.5

// Scenario is one simulated link.
type Scenario struct {
	Modem   modem.Config       `json:"-"`
	Channel channel.Parameters `json:"-"`

	DataBits int   `json:"dataBits"` // random payload bits after the preamble
	Seed     int64 `json:"seed"`     // payload generator seed
	Lead     int   `json:"lead"`     // silence before the transmission, samples
	Trail    int   `json:"trail"`    // silence after it, samples; grows to hold the echo
}

// DefaultScenario sends 64 random bits through 100 m of seawater.
func DefaultScenario() Scenario {
	params := channel.DefaultParameters()
	params.Distance = 100
	return Scenario{
		Modem:    modem.DefaultConfig(),
		Channel:  params,
		DataBits: 64,
		Seed:     1,
		Lead:     2000,
		Trail:    2000,
	}
}

// Result holds every intermediate of one run.
type Result struct {
	Distance float64 `json:"distance"`
	Medium   string  `json:"medium"`
	Found    bool    `json:"found"`
	Score    float64 `json:"score"`
	Offset   int     `json:"offset"`
	Errors   int     `json:"errors"`
	BER      float64 `json:"ber"`

	TxBits   []byte    `json:"-"`
	RxBits   []byte    `json:"-"`
	TxSignal []float64 `json:"-"`
	RxSignal []float64 `json:"-"`
	Filtered []float64 `json:"-"`
}

// BitErrorRate is mismatches over the shorter of the two streams, 0 when
// either is empty.
func BitErrorRate(tx, rx []byte) float64 {
	n := min(len(tx), len(rx))
	if n == 0 {
		return 0
	}
	return float64(countErrors(tx, rx)) / float64(n)
}

func countErrors(tx, rx []byte) int {
	var errs int
	for i := range min(len(tx), len(rx)) {
		if tx[i] != rx[i] {
			errs++
		}
	}
	return errs
}

// Run transmits random bits, passes them through the channel and receives
// them.
func Run(ctx context.Context, sc Scenario) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if sc.DataBits <= 0 {
		return Result{}, fmt.Errorf("data bits must be positive, got %d", sc.DataBits)
	}
	cfg := sc.Modem
	cfg.PayloadBits = sc.DataBits

	rng := rand.New(rand.NewSource(sc.Seed))
	data := make([]byte, sc.DataBits)
	for i := range data {
		data[i] = byte(rng.Intn(2))
	}

	tx, err := modem.Transmit(data, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("transmit: %w", err)
	}
	emu, err := channel.New(sc.Channel, cfg.SampleRate, cfg.CenterFrequency())
	if err != nil {
		return Result{}, fmt.Errorf("channel: %w", err)
	}

	lead, trail := max(sc.Lead, 0), max(sc.Trail, 0)
	// An echo that starts inside the capture is recorded to its end.
	if delay := emu.EchoDelay(); sc.Channel.EchoGain != 0 && delay < len(tx)+trail {
		trail += delay
	}
	padded := make([]float64, 0, lead+len(tx)+trail)
	padded = append(padded, make([]float64, lead)...)
	padded = append(padded, tx...)
	padded = append(padded, make([]float64, trail)...)

	rx, err := emu.Apply(padded)
	if err != nil {
		return Result{}, fmt.Errorf("channel: %w", err)
	}

	res := Result{
		Distance: sc.Channel.Distance,
		Medium:   sc.Channel.Medium.String(),
		TxBits:   data,
		TxSignal: tx,
		RxSignal: rx,
	}

	frame, filtered, err := modem.Receive(rx, cfg)
	res.Filtered = filtered
	switch {
	case errors.Is(err, modem.ErrPreambleNotFound):
		res.BER = LostFrameBER
		res.Errors = int(LostFrameBER * float64(len(data)))
		return res, nil
	case err != nil:
		return res, fmt.Errorf("receive: %w", err)
	}

	res.Found = true
	res.Score = frame.Score
	res.Offset = frame.Offset
	res.RxBits = frame.Bits
	if len(frame.Bits) == 0 {
		res.BER = LostFrameBER
		res.Errors = int(LostFrameBER * float64(len(data)))
		return res, nil
	}
	res.Errors = countErrors(data, frame.Bits)
	res.BER = BitErrorRate(data, frame.Bits)
	return res, nil
}

// Point is the mean outcome of several trials at one distance.
type Point struct {
	Distance float64 `json:"distance"`
	MeanBER  float64 `json:"meanBer"`
	Lost     int     `json:"lost"`
	Trials   int     `json:"trials"`
}

// Sweep runs trials at each distance. Trial i uses payload seed
// scenario.Seed+i and channel seed scenario.Channel.Seed+i, so every
// distance sees the same payloads.
func Sweep(ctx context.Context, sc Scenario, distances []float64, trials int) ([]Point, error) {
	if trials <= 0 {
		return nil, fmt.Errorf("trials must be positive, got %d", trials)
	}
	points := make([]Point, 0, len(distances))
	for _, d := range distances {
		p := Point{Distance: d, Trials: trials}
		for i := range trials {
			trial := sc
			trial.Seed = sc.Seed + int64(i)
			trial.Channel.Distance = d
			trial.Channel.Seed = sc.Channel.Seed + int64(i)

			res, err := Run(ctx, trial)
			if err != nil {
				return points, fmt.Errorf("distance %g trial %d: %w", d, i, err)
			}
			p.MeanBER += res.BER
			if !res.Found {
				p.Lost++
			}
		}
		p.MeanBER /= float64(trials)

		log.WithFields(log.Fields{
			"distance": d,
			"medium":   sc.Channel.Medium,
			"ber":      fmt.Sprintf("%.4f", p.MeanBER),
			"lost":     p.Lost,
		}).Info("Sweep point")
		points = append(points, p)
	}
	return points, nil
}
