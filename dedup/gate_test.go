package dedup

import (
	"testing"
	"time"
)

var gateNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestGate() *Gate {
	return NewGate(GateConfig{
		Cooldown:      180 * time.Second,
		PruneHorizon:  5 * time.Minute,
		BustedCheck:   true,
		BustedFreqKHz: 0.5,
	})
}

func TestGateSuppressesWithinCooldown(t *testing.T) {
	g := newTestGate()
	if !g.ShouldEmit("K1ABC", gateNow) {
		t.Fatalf("expected first spot to pass")
	}
	g.Record("K1ABC", 7.0261, gateNow)

	if g.ShouldEmit("K1ABC", gateNow.Add(10*time.Second)) {
		t.Fatalf("expected spot 10s later to be suppressed")
	}
	if !g.ShouldEmit("K1ABC", gateNow.Add(200*time.Second)) {
		t.Fatalf("expected spot 200s later to pass")
	}
}

func TestGateDoesNotRecordOnShouldEmit(t *testing.T) {
	g := newTestGate()
	g.ShouldEmit("K1ABC", gateNow)
	// Without an explicit Record the next check must still pass.
	if !g.ShouldEmit("K1ABC", gateNow.Add(time.Second)) {
		t.Fatalf("ShouldEmit must not record; a rejected spot burned the cooldown")
	}
}

func TestGateTracksCallsignsIndependently(t *testing.T) {
	g := newTestGate()
	g.Record("K1ABC", 7.0261, gateNow)
	if !g.ShouldEmit("W2XYZ", gateNow.Add(time.Second)) {
		t.Fatalf("expected unrelated callsign to pass")
	}
}

func TestGatePruneBoundsMemory(t *testing.T) {
	g := newTestGate()
	g.Record("K1ABC", 7.0261, gateNow)
	g.Record("W2XYZ", 14.058, gateNow.Add(4*time.Minute))
	g.Prune(gateNow.Add(6 * time.Minute))
	if g.Size() != 1 {
		t.Fatalf("expected one entry to survive prune, got %d", g.Size())
	}
	// Pruned entries behave as never seen.
	if !g.ShouldEmit("K1ABC", gateNow.Add(6*time.Minute)) {
		t.Fatalf("expected pruned callsign to pass")
	}
}

func TestSeenHashWithinWindow(t *testing.T) {
	g := newTestGate()
	if g.SeenHash(0xdeadbeef, gateNow) {
		t.Fatalf("expected first hash sighting to be new")
	}
	if !g.SeenHash(0xdeadbeef, gateNow.Add(30*time.Second)) {
		t.Fatalf("expected repeat hash within window to be seen")
	}
	if g.SeenHash(0xdeadbeef, gateNow.Add(10*time.Minute)) {
		t.Fatalf("expected hash outside window to be new again")
	}
}

func TestLooksBustedNearbyCall(t *testing.T) {
	g := newTestGate()
	g.Record("K1ABC", 7.0261, gateNow)

	// One edit away, 0.1 kHz off: classic busted decode.
	if !g.LooksBusted("K1ABX", 7.0262, gateNow.Add(5*time.Second)) {
		t.Fatalf("expected distance-1 call on same frequency to look busted")
	}
	// Same call is never busted against itself.
	if g.LooksBusted("K1ABC", 7.0261, gateNow.Add(5*time.Second)) {
		t.Fatalf("same call must not be flagged")
	}
	// Far away in frequency: a different station.
	if g.LooksBusted("K1ABX", 14.058, gateNow.Add(5*time.Second)) {
		t.Fatalf("distant frequency must not be flagged")
	}
	// Two edits away: a genuinely different call.
	if g.LooksBusted("K1XYZ", 7.0261, gateNow.Add(5*time.Second)) {
		t.Fatalf("distance-2 call must not be flagged")
	}
	// Outside the cooldown the heuristic no longer applies.
	if g.LooksBusted("K1ABX", 7.0262, gateNow.Add(4*time.Minute)) {
		t.Fatalf("expected no busted match outside cooldown")
	}
}

func TestGateDisabledBustedCheck(t *testing.T) {
	g := NewGate(GateConfig{BustedCheck: false})
	g.Record("K1ABC", 7.0261, gateNow)
	if g.LooksBusted("K1ABX", 7.0261, gateNow.Add(time.Second)) {
		t.Fatalf("busted check disabled; nothing should be flagged")
	}
}
