package modem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/jeongseonghan/acoustic-modem/internal/filter"
)

// Phase is the receive state machine position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAccumulating
	PhaseSynchronizing
	PhaseDecoding
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseAccumulating:
		return "ACCUMULATING"
	case PhaseSynchronizing:
		return "SYNCHRONIZING"
	case PhaseDecoding:
		return "DECODING"
	default:
		return "UNKNOWN"
	}
}

// RxState is everything the receiver carries between capture blocks.
type RxState struct {
	Phase  Phase
	Buffer []float64
}

// Outcome is the result of feeding one block to the state machine.
type Outcome struct {
	State  RxState
	Frames []Frame
	Path   []Phase // phases entered while handling the block, in order
}

// Machine holds the precomputed filter, synchronizer and demodulator for a
// config. Step is a pure function of its arguments.
type Machine struct {
	cfg       Config
	band      filter.Spec
	finder    *SignalFinder
	demod     *Demodulator
	frame     int // preamble + payload in samples
	maxBuffer int
}

// NewMachine validates cfg and prepares the receive chain.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PayloadBits <= 0 {
		return nil, fmt.Errorf("%w: receiver needs a fixed payload length", ErrInvalidConfig)
	}
	band, err := cfg.Band()
	if err != nil {
		return nil, fmt.Errorf("receive band: %w", err)
	}
	finder, err := NewSignalFinder(cfg)
	if err != nil {
		return nil, err
	}
	demod, err := NewDemodulator(cfg)
	if err != nil {
		return nil, err
	}
	frame := cfg.FrameSamples()
	return &Machine{
		cfg:       cfg,
		band:      band,
		finder:    finder,
		demod:     demod,
		frame:     frame,
		maxBuffer: 4 * frame,
	}, nil
}

// Step appends block to the state's buffer and advances the machine as far
// as the buffered samples allow. The input state is not modified.
func (m *Machine) Step(st RxState, block []float64) (Outcome, error) {
	var out Outcome
	enter := func(p Phase) {
		if len(out.Path) == 0 || out.Path[len(out.Path)-1] != p {
			out.Path = append(out.Path, p)
		}
	}

	phase := st.Phase
	if phase == PhaseIdle {
		if m.cfg.Squelch > 0 && peakAbs(block) < m.cfg.Squelch {
			out.State = RxState{Phase: PhaseIdle}
			return out, nil
		}
		phase = PhaseAccumulating
	}
	enter(PhaseAccumulating)

	buf := make([]float64, 0, len(st.Buffer)+len(block))
	buf = append(buf, st.Buffer...)
	buf = append(buf, block...)

	for len(buf) >= m.frame {
		enter(PhaseSynchronizing)
		filtered := filter.Apply(buf, m.band)
		match, err := m.finder.Find(filtered)
		if errors.Is(err, ErrPreambleNotFound) {
			// Retry once the next block arrives.
			buf = tail(buf, m.frame)
			enter(PhaseAccumulating)
			break
		}
		if err != nil {
			return Outcome{State: st}, err
		}

		end := match.Payload + m.cfg.PayloadBits*m.demod.SamplesPerBit()
		if end > len(buf) {
			// Payload still arriving; drop samples well before the preamble.
			if cut := match.Preamble - m.demod.SamplesPerBit(); cut > 0 {
				buf = tail(buf, len(buf)-cut)
			}
			enter(PhaseAccumulating)
			break
		}

		enter(PhaseDecoding)
		decisions := m.demod.Decode(filtered, match.Payload, m.cfg.PayloadBits)
		bits := make([]byte, len(decisions))
		for i, d := range decisions {
			bits[i] = d.Bit
		}
		out.Frames = append(out.Frames, Frame{
			Offset:    match.Payload,
			Score:     match.Score,
			Bits:      bits,
			Decisions: decisions,
		})
		buf = tail(buf, len(buf)-end)
		enter(PhaseAccumulating)
	}

	if len(buf) > m.maxBuffer {
		buf = tail(buf, m.maxBuffer)
	}
	phase = PhaseAccumulating
	if len(buf) == 0 || (m.cfg.Squelch > 0 && peakAbs(buf) < m.cfg.Squelch) {
		phase = PhaseIdle
		buf = nil
		enter(PhaseIdle)
	}

	out.State = RxState{Phase: phase, Buffer: buf}
	return out, nil
}

// tail returns a copy of the last n samples of x.
func tail(x []float64, n int) []float64 {
	n = max(0, min(n, len(x)))
	out := make([]float64, n)
	copy(out, x[len(x)-n:])
	return out
}

// Step runs a single transition with a freshly prepared Machine.
func Step(cfg Config, st RxState, block []float64) (RxState, []Frame, error) {
	m, err := NewMachine(cfg)
	if err != nil {
		return st, nil, err
	}
	out, err := m.Step(st, block)
	return out.State, out.Frames, err
}

// Receiver owns the accumulation buffer for a single capture stream.
// Push may be called from any goroutine; calls are serialized.
type Receiver struct {
	mu      sync.Mutex
	machine *Machine
	state   RxState
}

// NewReceiver creates an idle receiver.
func NewReceiver(cfg Config) (*Receiver, error) {
	m, err := NewMachine(cfg)
	if err != nil {
		return nil, err
	}
	return &Receiver{machine: m}, nil
}

// Push feeds one capture block and returns any frames it completed.
func (r *Receiver) Push(block []float64) ([]Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.state.Phase
	out, err := r.machine.Step(r.state, block)
	if err != nil {
		r.state = RxState{Phase: PhaseIdle}
		return nil, fmt.Errorf("receiver step: %w", err)
	}
	r.state = out.State

	if from != out.State.Phase {
		log.WithFields(log.Fields{
			"from":     from,
			"to":       out.State.Phase,
			"buffered": len(out.State.Buffer),
		}).Debug("Receiver phase change")
	}
	for _, f := range out.Frames {
		log.WithFields(log.Fields{
			"offset": f.Offset,
			"score":  fmt.Sprintf("%.3f", f.Score),
			"bits":   len(f.Bits),
		}).Info("Frame decoded")
	}
	return out.Frames, nil
}

// Phase returns the current state machine phase.
func (r *Receiver) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Phase
}

// Buffered returns the number of samples awaiting a complete frame.
func (r *Receiver) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.Buffer)
}

// Reset discards buffered audio and returns to Idle.
func (r *Receiver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = RxState{Phase: PhaseIdle}
}

// Run consumes blocks until ctx is done or blocks is closed, sending every
// decoded frame to out.
func (r *Receiver) Run(ctx context.Context, blocks <-chan []float64, out chan<- Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-blocks:
			if !ok {
				return nil
			}
			frames, err := r.Push(block)
			if err != nil {
				log.WithError(err).Warn("Dropping capture block")
				continue
			}
			for _, f := range frames {
				select {
				case out <- f:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
