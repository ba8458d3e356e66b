// Package awards computes SKCC award progress from the contact log.
//
// Tier thresholds follow the published SKCC rules: Centurion at 100 member
// contacts, Tribune endorsements at 50 per level up to Tx8 (400), Senator at
// 200 Tribune/Senator contacts made after reaching Tx8, and Triple Key at
// 100 members per key type.
package awards

import (
	"fmt"
	"time"

	"skccspotter/roster"
)

const (
	// CenturionRequired is the member contact count for Centurion.
	CenturionRequired = 100
	// TribuneStep is the contact count per Tribune endorsement level.
	TribuneStep = 50
	// TribuneMaxLevel is the highest Tribune endorsement, Tx8.
	TribuneMaxLevel = 8
	// SenatorRequired is the T/S contact count for Senator, counted only
	// after the Tx8 gate is reached.
	SenatorRequired = 200
	// TripleKeyRequired is the member count per key type.
	TripleKeyRequired = 100
)

// KeyTypes are the straight-key variants tracked for Triple Key.
var KeyTypes = []string{"SK", "BUG", "SS"}

// Tier is progress toward one award threshold.
type Tier struct {
	Current   int
	Required  int
	Qualified bool
}

// Remaining returns how many contacts are still needed, never negative.
func (t Tier) Remaining() int {
	if t.Current >= t.Required {
		return 0
	}
	return t.Required - t.Current
}

// Summary is the full award picture computed from the logbook.
type Summary struct {
	Centurion    Tier
	Tribune      Tier // next unearned endorsement level
	TribuneLevel int  // highest endorsement already earned, 0..8
	Senator      Tier
	TripleKey    map[string]Tier
}

// Counter is the slice of the logbook the progress computation reads.
type Counter interface {
	DistinctMemberCount(minDate time.Time, suffixes ...string) (int, error)
	DistinctMemberCountByKey(keyType string) (int, error)
}

// Progress computes the current Summary. senatorSince bounds the Senator
// count to contacts made after the Tx8 gate; zero counts all time.
func Progress(log Counter, senatorSince time.Time) (Summary, error) {
	var s Summary

	members, err := log.DistinctMemberCount(time.Time{})
	if err != nil {
		return s, fmt.Errorf("awards: centurion count: %w", err)
	}
	s.Centurion = Tier{Current: members, Required: CenturionRequired, Qualified: members >= CenturionRequired}

	cts, err := log.DistinctMemberCount(time.Time{}, "C", "T", "S")
	if err != nil {
		return s, fmt.Errorf("awards: tribune count: %w", err)
	}
	s.TribuneLevel = cts / TribuneStep
	if s.TribuneLevel > TribuneMaxLevel {
		s.TribuneLevel = TribuneMaxLevel
	}
	// Tribune itself requires Centurion first.
	if !s.Centurion.Qualified {
		s.TribuneLevel = 0
	}
	next := (s.TribuneLevel + 1) * TribuneStep
	if s.TribuneLevel >= TribuneMaxLevel {
		next = TribuneMaxLevel * TribuneStep
	}
	s.Tribune = Tier{Current: cts, Required: next, Qualified: s.TribuneLevel >= 1}

	if s.TribuneLevel >= TribuneMaxLevel {
		ts, err := log.DistinctMemberCount(senatorSince, "T", "S")
		if err != nil {
			return s, fmt.Errorf("awards: senator count: %w", err)
		}
		s.Senator = Tier{Current: ts, Required: SenatorRequired, Qualified: ts >= SenatorRequired}
	} else {
		s.Senator = Tier{Current: 0, Required: SenatorRequired}
	}

	s.TripleKey = make(map[string]Tier, len(KeyTypes))
	for _, kt := range KeyTypes {
		n, err := log.DistinctMemberCountByKey(kt)
		if err != nil {
			return s, fmt.Errorf("awards: key count %s: %w", kt, err)
		}
		s.TripleKey[kt] = Tier{Current: n, Required: TripleKeyRequired, Qualified: n >= TripleKeyRequired}
	}
	return s, nil
}

// NearestTier returns the unqualified tier with the fewest remaining
// contacts, ok=false when every tier is already earned.
func (s Summary) NearestTier() (string, Tier, bool) {
	best := ""
	var bestTier Tier
	consider := func(name string, t Tier) {
		if t.Qualified {
			return
		}
		if best == "" || t.Remaining() < bestTier.Remaining() {
			best, bestTier = name, t
		}
	}
	consider("Centurion", s.Centurion)
	if s.Centurion.Qualified && s.TribuneLevel < TribuneMaxLevel {
		consider(fmt.Sprintf("Tx%d", s.TribuneLevel+1), Tier{
			Current:  s.Tribune.Current,
			Required: s.Tribune.Required,
		})
	}
	if s.TribuneLevel >= TribuneMaxLevel {
		consider("Senator", s.Senator)
	}
	for _, kt := range KeyTypes {
		consider("TripleKey/"+kt, s.TripleKey[kt])
	}
	return best, bestTier, best != ""
}

// DefaultGoalPolicy tags roster members the operator still needs for the
// award picture in summary. worked is the already-contacted callsign set.
func DefaultGoalPolicy(summary Summary, worked map[string]struct{}) roster.GoalPolicy {
	return func(m roster.Member) roster.GoalTag {
		if _, done := worked[m.Callsign]; done {
			return roster.GoalNone
		}
		// Before Centurion every unworked member counts.
		if !summary.Centurion.Qualified {
			return roster.GoalNeeded
		}
		switch m.Suffix {
		case "C", "T", "S":
			if summary.TribuneLevel < TribuneMaxLevel {
				return roster.GoalNeeded
			}
		}
		switch m.Suffix {
		case "T", "S":
			if !summary.Senator.Qualified {
				return roster.GoalNeeded
			}
		}
		return roster.GoalNone
	}
}

// CriticalMembers lists unworked roster calls whose contact would advance
// the nearest unearned tier, capped at limit (0 means no cap).
func CriticalMembers(summary Summary, snapshot map[string]roster.Member, worked map[string]struct{}, limit int) []string {
	name, _, ok := summary.NearestTier()
	if !ok {
		return nil
	}
	var want func(roster.Member) bool
	switch {
	case name == "Centurion":
		want = func(roster.Member) bool { return true }
	case name == "Senator":
		want = func(m roster.Member) bool { return m.Suffix == "T" || m.Suffix == "S" }
	case len(name) > 2 && name[:2] == "Tx":
		want = func(m roster.Member) bool {
			return m.Suffix == "C" || m.Suffix == "T" || m.Suffix == "S"
		}
	default:
		// Triple Key targets depend on the operator's key, which the
		// roster does not record per member, so any unworked member helps.
		want = func(roster.Member) bool { return true }
	}
	out := make([]string, 0, 32)
	for call, m := range snapshot {
		if _, done := worked[call]; done {
			continue
		}
		if want(m) {
			out = append(out, call)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}
