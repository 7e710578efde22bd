package station

import (
	"time"

	"github.com/jeongseonghan/acoustic-modem/internal/packet"
)

// EventKind classifies station events.
type EventKind string

const (
	EventSent     EventKind = "sent"
	EventReceived EventKind = "received"
	EventCorrupt  EventKind = "corrupt"
	EventError    EventKind = "error"
)

// Event is published for every packet sent, received or lost.
type Event struct {
	Kind   EventKind `json:"kind"`
	Time   time.Time `json:"time"`
	Type   string    `json:"type,omitempty"`
	Seq    int       `json:"seq"`
	Text   string    `json:"text,omitempty"`
	Score  float64   `json:"score,omitempty"`
	Erased int       `json:"erased,omitempty"`
	Error  string    `json:"error,omitempty"`
}

func newPacketEvent(kind EventKind, p packet.Packet, score float64, erased int) Event {
	e := Event{
		Kind:   kind,
		Time:   time.Now(),
		Type:   p.Type.String(),
		Seq:    int(p.Seq),
		Score:  score,
		Erased: erased,
	}
	if p.Type == packet.TypeText {
		e.Text = string(p.Payload)
	}
	return e
}
