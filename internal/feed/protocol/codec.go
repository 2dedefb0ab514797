// Package protocol defines the JSON envelope spoken on the WebSocket feed.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/signalsfoundry/marslink-sim/core"
)

const (
	MsgWelcome = "welcome"
	MsgFrame   = "frame"
)

// Version is reported in the welcome message.
const Version = "marslink.feed.v1"

// FrameHz is the nominal frame rate of the simulation.
const FrameHz = 60

// Envelope wraps every message: T names the payload type, P holds it.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

// Welcome is the first message sent to a subscriber.
type Welcome struct {
	Version    string                `json:"version"`
	FrameHz    int                   `json:"frameHz"`
	Subscriber string                `json:"subscriber"`
	Frame      uint64                `json:"frame"`
	Entities   []core.EntitySnapshot `json:"entities,omitempty"`
}

// NewWelcome builds the welcome payload, seeding it with the entity list of
// latest when one is available.
func NewWelcome(subscriber string, latest *core.Frame) Welcome {
	w := Welcome{Version: Version, FrameHz: FrameHz, Subscriber: subscriber}
	if latest != nil {
		w.Frame = latest.Number
		w.Entities = latest.Entities
	}
	return w
}

// Encode marshals payload inside an envelope of type t.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode envelope: empty type")
	}
	if payload == nil {
		return nil, fmt.Errorf("encode envelope %q: nil payload", t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %q: %w", t, err)
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

// EncodeFrame is Encode(MsgFrame, f).
func EncodeFrame(f *core.Frame) ([]byte, error) {
	return Encode(MsgFrame, f)
}

// DecodeEnvelope parses the outer envelope only.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: empty message")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// DecodePayload unmarshals env.P into a T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	err := json.Unmarshal(env.P, &out)
	return out, err
}
