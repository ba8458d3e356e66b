// Package eligibility ranks spots by how urgently the operator needs the
// spotted station for an unmet award tier.
//
// The scorer reads the contact log and award progress through two TTL
// caches so that scoring a spot never waits on more than one external
// query. A refresh already in flight means other callers read the stale
// value; an explicit Invalidate forces both caches to recompute on next
// access, which is how logbook mutations stay visible.
package eligibility

import (
	"fmt"
	"sync"
	"time"

	"skccspotter/awards"
	"skccspotter/spot"
)

// Level is the urgency of a spot relative to the operator's award goals.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// SpotEvent is a scored spot delivered to pipeline subscribers. Seq is
// assigned when the event enters the recent-events ring.
type SpotEvent struct {
	Seq     uint64
	Spot    *spot.Spot
	Level   Level
	Reasons []string
}

const (
	// workedEnough is the contact count past which a station is routine.
	workedEnough = 3

	// recentWindow demotes any station worked within it, regardless of
	// contact count.
	recentWindow = 30 * 24 * time.Hour

	criticalRemaining = 5
	highRemaining     = 20
)

// WorkedStat is the scorer's view of one logged callsign.
type WorkedStat struct {
	Count int
	Last  time.Time
}

// ttlCache caches one fetched value for ttl. The first caller to see a
// stale or invalidated entry performs the refresh; concurrent callers read
// the stale value instead of waiting, except after Invalidate, where no
// pre-invalidation value may be served.
type ttlCache[T any] struct {
	mu         sync.Mutex
	fetch      func() (T, error)
	ttl        time.Duration
	value      T
	fetchedAt  time.Time
	valid      bool
	refreshing bool
}

func (c *ttlCache[T]) get(now time.Time) (T, error) {
	c.mu.Lock()
	if c.valid && (now.Sub(c.fetchedAt) <= c.ttl || c.refreshing) {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	c.refreshing = true
	c.mu.Unlock()

	v, err := c.fetch()

	c.mu.Lock()
	c.refreshing = false
	if err != nil {
		if c.valid {
			v = c.value
			c.mu.Unlock()
			return v, nil
		}
		c.mu.Unlock()
		var zero T
		return zero, err
	}
	c.value = v
	c.fetchedAt = now
	c.valid = true
	c.mu.Unlock()
	return v, nil
}

func (c *ttlCache[T]) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// Scorer computes a Level for each spot from cached logbook and award state.
type Scorer struct {
	worked   *ttlCache[map[string]WorkedStat]
	progress *ttlCache[awards.Summary]
	now      func() time.Time
}

// ScorerOptions configures cache TTLs and data sources.
type ScorerOptions struct {
	FetchWorked   func() (map[string]WorkedStat, error)
	FetchProgress func() (awards.Summary, error)
	WorkedTTL     time.Duration // default 60 s
	ProgressTTL   time.Duration // default 300 s
	Now           func() time.Time
}

// NewScorer builds a Scorer. FetchWorked and FetchProgress must be set.
func NewScorer(opts ScorerOptions) *Scorer {
	if opts.WorkedTTL <= 0 {
		opts.WorkedTTL = 60 * time.Second
	}
	if opts.ProgressTTL <= 0 {
		opts.ProgressTTL = 300 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scorer{
		worked:   &ttlCache[map[string]WorkedStat]{fetch: opts.FetchWorked, ttl: opts.WorkedTTL},
		progress: &ttlCache[awards.Summary]{fetch: opts.FetchProgress, ttl: opts.ProgressTTL},
		now:      opts.Now,
	}
}

// Invalidate forces both caches to recompute on next access. Call it after
// any contact log mutation.
func (s *Scorer) Invalidate() {
	s.worked.invalidate()
	s.progress.invalidate()
}

// Score assigns a Level and the reasons behind it. The spot must already
// carry its roster classification.
func (s *Scorer) Score(sp *spot.Spot) (Level, []string) {
	now := s.now()

	// Worked history outranks membership: a station already in the log is
	// routine whether or not the roster knows it.
	base := spot.BaseCallsign(sp.Callsign)
	stats, err := s.worked.get(now)
	if err == nil {
		st := stats[base]
		if st.Count >= workedEnough {
			return LevelLow, []string{fmt.Sprintf("already worked %d times", st.Count)}
		}
		if st.Count > 0 && now.Sub(st.Last) <= recentWindow {
			days := int(now.Sub(st.Last).Hours() / 24)
			return LevelLow, []string{fmt.Sprintf("worked %d days ago", days)}
		}
	}

	if !sp.IsMember {
		return LevelNone, []string{"not a member"}
	}

	summary, perr := s.progress.get(now)
	if perr != nil {
		return LevelMedium, []string{"member not yet worked", "award progress unavailable"}
	}

	remaining, tier, relevant := remainingFor(summary, memberSuffix(sp.MemberNumber))
	if !relevant {
		return LevelMedium, []string{"member not yet worked"}
	}
	reason := fmt.Sprintf("%d remaining for %s", remaining, tier)
	switch {
	case remaining <= criticalRemaining:
		return LevelCritical, []string{reason}
	case remaining <= highRemaining:
		return LevelHigh, []string{reason}
	default:
		// Remaining count never drops a member below Medium.
		return LevelMedium, []string{reason}
	}
}

// memberSuffix extracts the award suffix from an SKCC number like "1234T".
func memberSuffix(number string) string {
	if number == "" {
		return ""
	}
	last := number[len(number)-1]
	switch last {
	case 'C', 'T', 'S':
		return string(last)
	}
	return ""
}

// remainingFor returns the distance to the nearest unmet tier this member
// can advance. relevant=false means working them helps no open tier.
func remainingFor(summary awards.Summary, suffix string) (remaining int, tier string, relevant bool) {
	if !summary.Centurion.Qualified {
		return summary.Centurion.Remaining(), "Centurion", true
	}
	ct := suffix == "C" || suffix == "T" || suffix == "S"
	if summary.TribuneLevel < awards.TribuneMaxLevel && ct {
		return summary.Tribune.Required - summary.Tribune.Current,
			fmt.Sprintf("Tx%d", summary.TribuneLevel+1), true
	}
	ts := suffix == "T" || suffix == "S"
	if summary.TribuneLevel >= awards.TribuneMaxLevel && !summary.Senator.Qualified && ts {
		return summary.Senator.Remaining(), "Senator", true
	}
	return 0, "", false
}
