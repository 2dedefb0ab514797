package protocol

import (
	"testing"

	"github.com/signalsfoundry/marslink-sim/core"
)

func TestEncodeFrameEnvelope(t *testing.T) {
	f := &core.Frame{Number: 12, SimTime: 0.2, Links: []core.CommLink{{Kind: core.LinkEarthGround, A: 1, B: 2}}}
	b, err := EncodeFrame(f)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	env, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.T != MsgFrame {
		t.Fatalf("envelope type = %q", env.T)
	}
	got, err := DecodePayload[core.Frame](env)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.Number != 12 || len(got.Links) != 1 || got.Links[0].Kind != core.LinkEarthGround {
		t.Fatalf("decoded frame = %+v", got)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	if _, err := Encode("", struct{}{}); err == nil {
		t.Fatalf("expected error for empty type")
	}
	if _, err := Encode(MsgFrame, nil); err == nil {
		t.Fatalf("expected error for nil payload")
	}
	if _, err := DecodeEnvelope(nil); err == nil {
		t.Fatalf("expected error for empty message")
	}
	if _, err := DecodePayload[Welcome](Envelope{T: MsgWelcome}); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestNewWelcome(t *testing.T) {
	w := NewWelcome("abc", nil)
	if w.FrameHz != 60 || w.Version != Version || w.Subscriber != "abc" || w.Entities != nil {
		t.Fatalf("welcome without frame = %+v", w)
	}
	latest := &core.Frame{Number: 9, Entities: []core.EntitySnapshot{{ID: 1, Name: "earth-sat-0"}}}
	w = NewWelcome("abc", latest)
	if w.Frame != 9 || len(w.Entities) != 1 {
		t.Fatalf("welcome with frame = %+v", w)
	}
}
