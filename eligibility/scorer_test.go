package eligibility

import (
	"errors"
	"sync"
	"testing"
	"time"

	"skccspotter/awards"
	"skccspotter/spot"
)

// testClock is a settable clock for driving TTL expiry.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func memberSpot(call, number string) *spot.Spot {
	return &spot.Spot{Callsign: call, IsMember: true, MemberNumber: number}
}

func summaryWithCenturion(current int) awards.Summary {
	return awards.Summary{
		Centurion: awards.Tier{Current: current, Required: 100, Qualified: current >= 100},
		Tribune:   awards.Tier{Required: 50},
		Senator:   awards.Tier{Required: 200},
		TripleKey: map[string]awards.Tier{},
	}
}

func newTestScorer(clk *testClock, worked map[string]WorkedStat, summary *awards.Summary) (*Scorer, *int, *int) {
	workedFetches := 0
	progressFetches := 0
	s := NewScorer(ScorerOptions{
		FetchWorked: func() (map[string]WorkedStat, error) {
			workedFetches++
			return worked, nil
		},
		FetchProgress: func() (awards.Summary, error) {
			progressFetches++
			return *summary, nil
		},
		Now: clk.Now,
	})
	return s, &workedFetches, &progressFetches
}

func TestScoreNonMember(t *testing.T) {
	clk := &testClock{now: time.Now()}
	s, _, _ := newTestScorer(clk, nil, &awards.Summary{})

	level, reasons := s.Score(&spot.Spot{Callsign: "G4XYZ"})
	if level != LevelNone {
		t.Fatalf("expected none for non-member, got %s", level)
	}
	if len(reasons) == 0 {
		t.Fatal("expected a reason")
	}
}

func TestScoreThresholds(t *testing.T) {
	cases := []struct {
		name    string
		current int
		want    Level
	}{
		{"remaining 5 is critical", 95, LevelCritical},
		{"remaining 20 is high", 80, LevelHigh},
		{"remaining 50 is medium", 50, LevelMedium},
		{"remaining 80 stays medium", 20, LevelMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clk := &testClock{now: time.Now()}
			summary := summaryWithCenturion(tc.current)
			s, _, _ := newTestScorer(clk, map[string]WorkedStat{}, &summary)

			level, _ := s.Score(memberSpot("K1ABC", "1234"))
			if level != tc.want {
				t.Fatalf("current=%d: expected %s, got %s", tc.current, tc.want, level)
			}
		})
	}
}

func TestScoreWorkedEnoughIsLow(t *testing.T) {
	clk := &testClock{now: time.Now()}
	summary := summaryWithCenturion(95) // would be critical if unworked
	s, _, _ := newTestScorer(clk, map[string]WorkedStat{"K1ABC": {Count: 3}}, &summary)

	level, reasons := s.Score(memberSpot("K1ABC", "1234"))
	if level != LevelLow {
		t.Fatalf("expected low for a station worked 3 times, got %s (%v)", level, reasons)
	}

	// Portable suffixes resolve to the same base callsign.
	level, _ = s.Score(memberSpot("K1ABC/P", "1234"))
	if level != LevelLow {
		t.Fatalf("expected low for K1ABC/P, got %s", level)
	}
}

func TestScoreRecentContactIsLow(t *testing.T) {
	clk := &testClock{now: time.Now()}
	summary := summaryWithCenturion(95) // would be critical if unworked
	worked := map[string]WorkedStat{
		"K1ABC": {Count: 1, Last: clk.Now().Add(-2 * 24 * time.Hour)},
		"N3DEF": {Count: 1, Last: clk.Now().Add(-40 * 24 * time.Hour)},
	}
	s, _, _ := newTestScorer(clk, worked, &summary)

	// One contact two days ago is enough to demote the spot.
	level, reasons := s.Score(memberSpot("K1ABC", "1234"))
	if level != LevelLow {
		t.Fatalf("expected low for a station worked 2 days ago, got %s (%v)", level, reasons)
	}

	// The same single contact outside the window scores on award need.
	level, _ = s.Score(memberSpot("N3DEF", "5678"))
	if level != LevelCritical {
		t.Fatalf("expected critical for a station worked 40 days ago, got %s", level)
	}
}

func TestScoreWorkedNonMemberIsLow(t *testing.T) {
	clk := &testClock{now: time.Now()}
	worked := map[string]WorkedStat{
		"G4XYZ": {Count: 3, Last: clk.Now().Add(-90 * 24 * time.Hour)},
		"G0AAA": {Count: 1, Last: clk.Now().Add(-90 * 24 * time.Hour)},
	}
	s, _, _ := newTestScorer(clk, worked, &awards.Summary{})

	// Worked history applies before the membership check.
	level, _ := s.Score(&spot.Spot{Callsign: "G4XYZ"})
	if level != LevelLow {
		t.Fatalf("expected low for a non-member worked 3 times, got %s", level)
	}

	// A single stale contact leaves a non-member at none.
	level, _ = s.Score(&spot.Spot{Callsign: "G0AAA"})
	if level != LevelNone {
		t.Fatalf("expected none for a non-member with one old contact, got %s", level)
	}
}

func TestScoreTribuneRelevance(t *testing.T) {
	clk := &testClock{now: time.Now()}
	summary := awards.Summary{
		Centurion:    awards.Tier{Current: 150, Required: 100, Qualified: true},
		Tribune:      awards.Tier{Current: 97, Required: 100, Qualified: true},
		TribuneLevel: 1,
		Senator:      awards.Tier{Required: 200},
		TripleKey:    map[string]awards.Tier{},
	}
	s, _, _ := newTestScorer(clk, map[string]WorkedStat{}, &summary)

	// A Tribune member advances Tx2, 3 remaining.
	level, _ := s.Score(memberSpot("K1ABC", "1234T"))
	if level != LevelCritical {
		t.Fatalf("expected critical for Tribune member 3 from Tx2, got %s", level)
	}

	// A plain member cannot advance Tribune endorsements.
	level, _ = s.Score(memberSpot("N3DEF", "5678"))
	if level != LevelMedium {
		t.Fatalf("expected medium for plain member past Centurion, got %s", level)
	}
}

func TestProgressCacheTTLBoundary(t *testing.T) {
	clk := &testClock{now: time.Now()}
	summary := summaryWithCenturion(95)
	s, _, progressFetches := newTestScorer(clk, map[string]WorkedStat{}, &summary)

	sp := memberSpot("K1ABC", "1234")
	s.Score(sp)
	if *progressFetches != 1 {
		t.Fatalf("expected 1 fetch after first score, got %d", *progressFetches)
	}

	// Within TTL the cached value is served even though progress changed.
	summary = summaryWithCenturion(50)
	clk.Advance(299 * time.Second)
	level, _ := s.Score(sp)
	if *progressFetches != 1 {
		t.Fatalf("expected stale value at T+299s, got %d fetches", *progressFetches)
	}
	if level != LevelCritical {
		t.Fatalf("expected cached critical at T+299s, got %s", level)
	}

	// Past TTL the cache refreshes and the new progress shows.
	clk.Advance(2 * time.Second)
	level, _ = s.Score(sp)
	if *progressFetches != 2 {
		t.Fatalf("expected refresh at T+301s, got %d fetches", *progressFetches)
	}
	if level != LevelMedium {
		t.Fatalf("expected medium after refresh, got %s", level)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	clk := &testClock{now: time.Now()}
	summary := summaryWithCenturion(95)
	worked := map[string]WorkedStat{}
	s, workedFetches, progressFetches := newTestScorer(clk, worked, &summary)

	sp := memberSpot("K1ABC", "1234")
	if level, _ := s.Score(sp); level != LevelCritical {
		t.Fatal("expected critical before invalidation")
	}

	// The operator logs K1ABC; TTL has not elapsed but Invalidate must make
	// the change visible immediately.
	worked["K1ABC"] = WorkedStat{Count: 3}
	summary = summaryWithCenturion(96)
	s.Invalidate()

	level, _ := s.Score(sp)
	if level != LevelLow {
		t.Fatalf("expected low after logging the contact, got %s", level)
	}
	if *workedFetches != 2 {
		t.Fatalf("expected worked cache refetch, got %d", *workedFetches)
	}
	_ = progressFetches
}

func TestScoreSurvivesFetchErrors(t *testing.T) {
	clk := &testClock{now: time.Now()}
	s := NewScorer(ScorerOptions{
		FetchWorked: func() (map[string]WorkedStat, error) {
			return nil, errors.New("db closed")
		},
		FetchProgress: func() (awards.Summary, error) {
			return awards.Summary{}, errors.New("db closed")
		},
		Now: clk.Now,
	})

	level, reasons := s.Score(memberSpot("K1ABC", "1234"))
	if level != LevelMedium {
		t.Fatalf("expected medium fallback when data is unavailable, got %s", level)
	}
	if len(reasons) != 2 {
		t.Fatalf("expected two reasons, got %v", reasons)
	}
}

func TestStaleValueServedWhileRefreshInFlight(t *testing.T) {
	clk := &testClock{now: time.Now()}
	block := make(chan struct{})
	fetches := 0
	cache := &ttlCache[int]{
		ttl: time.Minute,
		fetch: func() (int, error) {
			fetches++
			if fetches > 1 {
				<-block
			}
			return fetches, nil
		},
	}

	v, err := cache.get(clk.Now())
	if err != nil || v != 1 {
		t.Fatalf("first get: %d, %v", v, err)
	}

	// Expire the entry; a slow refresh starts on another goroutine.
	clk.Advance(2 * time.Minute)
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		cache.get(clk.Now())
		close(done)
	}()
	<-started
	for {
		cache.mu.Lock()
		refreshing := cache.refreshing
		cache.mu.Unlock()
		if refreshing {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// A concurrent caller gets the stale value without blocking.
	v, err = cache.get(clk.Now())
	if err != nil || v != 1 {
		t.Fatalf("expected stale value during refresh, got %d, %v", v, err)
	}

	close(block)
	<-done
	if v, _ := cache.get(clk.Now()); v != 2 {
		t.Fatalf("expected refreshed value, got %d", v)
	}
}

func TestLevelString(t *testing.T) {
	if LevelCritical.String() != "critical" || LevelNone.String() != "none" {
		t.Fatal("level names changed")
	}
	if LevelLow >= LevelMedium || LevelMedium >= LevelHigh || LevelHigh >= LevelCritical {
		t.Fatal("levels must be ordered")
	}
}
