package roster

import (
	"log"
	"sync"

	"skccspotter/spot"
)

// GoalTag is the award relevance of a member per the operator's goals.
type GoalTag int

const (
	GoalNone GoalTag = iota
	GoalNeeded
)

func (g GoalTag) String() string {
	if g == GoalNeeded {
		return "goal"
	}
	return "none"
}

// GoalPolicy decides whether a member helps the operator's unfinished
// awards. The default policy lives in the awards package; tests and other
// award programs can plug their own.
type GoalPolicy func(Member) GoalTag

// Classifier answers membership and goal questions against the latest
// roster snapshot. Snapshots are replaced wholesale by Reload; lookups take
// a read lock only.
type Classifier struct {
	mu       sync.RWMutex
	snapshot map[string]Member
	policy   GoalPolicy
}

// NewClassifier builds a classifier over an initial snapshot. A nil or
// empty snapshot is not an error; every lookup just misses. policy may be
// nil, in which case no member is ever a goal.
func NewClassifier(snapshot map[string]Member, policy GoalPolicy) *Classifier {
	c := &Classifier{policy: policy}
	c.Reload(snapshot)
	return c
}

// Reload swaps in a new roster snapshot. An empty roster is logged here,
// once per refresh, so the per-spot path stays quiet.
func (c *Classifier) Reload(snapshot map[string]Member) {
	if len(snapshot) == 0 {
		log.Printf("Roster: empty snapshot loaded; spots will not match members")
	}
	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()
}

// Size returns the number of entries in the current snapshot.
func (c *Classifier) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshot)
}

// Classify looks up a spotted callsign. Portable and skimmer decorations
// are stripped before the lookup so "K1ABC/P" matches the roster entry for
// K1ABC. Misses return a zero Member, false, and GoalNone.
func (c *Classifier) Classify(call string) (Member, bool, GoalTag) {
	base := spot.BaseCallsign(call)

	c.mu.RLock()
	m, ok := c.snapshot[base]
	policy := c.policy
	c.mu.RUnlock()

	if !ok {
		return Member{}, false, GoalNone
	}
	tag := GoalNone
	if policy != nil {
		tag = policy(m)
	}
	return m, true, tag
}
