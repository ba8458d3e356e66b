// Package dedup suppresses repeat announcements of the same station within a
// cooldown window, plus two secondary filters: exact-duplicate lines by spot
// hash, and likely busted calls (one edit away from a recently emitted call
// on nearly the same frequency).
package dedup

import (
	"sync"
	"time"

	"github.com/agnivade/levenshtein"

	"skccspotter/strutil"
)

// GateConfig drives the duplicate gate. Zero values fall back to the
// observed program behavior (180 s cooldown, 5 m prune horizon).
type GateConfig struct {
	Cooldown      time.Duration
	PruneHorizon  time.Duration
	BustedCheck   bool
	BustedFreqKHz float64
}

type emitRecord struct {
	call    string
	freqKHz float64
	at      time.Time
}

// Gate tracks when each callsign was last emitted. The gate does not record
// on ShouldEmit; the caller records only after the spot survives the rest of
// the pipeline, so rejected spots never burn the cooldown. Safe for
// concurrent use.
type Gate struct {
	mu       sync.Mutex
	cfg      GateConfig
	lastEmit map[string]emitRecord
	hashes   map[uint32]time.Time
}

// NewGate constructs a gate with defaults applied.
func NewGate(cfg GateConfig) *Gate {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 180 * time.Second
	}
	if cfg.PruneHorizon < cfg.Cooldown {
		cfg.PruneHorizon = 5 * time.Minute
	}
	if cfg.BustedFreqKHz <= 0 {
		cfg.BustedFreqKHz = 0.5
	}
	return &Gate{
		cfg:      cfg,
		lastEmit: make(map[string]emitRecord),
		hashes:   make(map[uint32]time.Time),
	}
}

// ShouldEmit reports whether the callsign is outside its cooldown window.
func (g *Gate) ShouldEmit(call string, now time.Time) bool {
	call = strutil.NormalizeUpper(call)
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.lastEmit[call]
	if !ok {
		return true
	}
	return now.Sub(entry.at) >= g.cfg.Cooldown
}

// Record notes that a spot for call was emitted at now. Callers invoke this
// only after the spot has actually been delivered.
func (g *Gate) Record(call string, freqMHz float64, now time.Time) {
	call = strutil.NormalizeUpper(call)
	g.mu.Lock()
	g.lastEmit[call] = emitRecord{call: call, freqKHz: freqMHz * 1000, at: now}
	g.mu.Unlock()
}

// SeenHash reports whether this exact spot (per Spot.Hash32) was already
// seen within the cooldown, recording the hash as a side effect. Unlike the
// per-call cooldown, recording here is safe because an identical line clears
// or fails the pipeline identically every time.
func (g *Gate) SeenHash(h uint32, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if at, ok := g.hashes[h]; ok && now.Sub(at) < g.cfg.Cooldown {
		return true
	}
	g.hashes[h] = now
	return false
}

// LooksBusted reports whether call is one edit away from a different call
// emitted within the cooldown on nearly the same frequency. Skimmers decode
// marginal signals into near-miss calls; emitting both would double-announce
// the same station under two names.
func (g *Gate) LooksBusted(call string, freqMHz float64, now time.Time) bool {
	if !g.cfg.BustedCheck {
		return false
	}
	call = strutil.NormalizeUpper(call)
	freqKHz := freqMHz * 1000

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, entry := range g.lastEmit {
		if entry.call == call {
			continue
		}
		if now.Sub(entry.at) >= g.cfg.Cooldown {
			continue
		}
		if diff := entry.freqKHz - freqKHz; diff > g.cfg.BustedFreqKHz || diff < -g.cfg.BustedFreqKHz {
			continue
		}
		if levenshtein.ComputeDistance(call, entry.call) == 1 {
			return true
		}
	}
	return false
}

// Prune removes entries older than the horizon so memory stays bounded.
// The pipeline runs this on a ticker.
func (g *Gate) Prune(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := now.Add(-g.cfg.PruneHorizon)
	for call, entry := range g.lastEmit {
		if entry.at.Before(cutoff) {
			delete(g.lastEmit, call)
		}
	}
	for h, at := range g.hashes {
		if at.Before(cutoff) {
			delete(g.hashes, h)
		}
	}
}

// Size returns the tracked entry count, for the status ticker.
func (g *Gate) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lastEmit) + len(g.hashes)
}
