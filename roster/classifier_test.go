package roster

import "testing"

func testSnapshot() map[string]Member {
	return map[string]Member{
		"K1ABC": {Callsign: "K1ABC", Number: "12345T", Suffix: "T"},
		"W2XYZ": {Callsign: "W2XYZ", Number: "200", Suffix: ""},
	}
}

func TestClassifyMember(t *testing.T) {
	c := NewClassifier(testSnapshot(), nil)
	m, ok, tag := c.Classify("K1ABC")
	if !ok {
		t.Fatalf("expected member")
	}
	if m.Number != "12345T" {
		t.Fatalf("expected number 12345T, got %q", m.Number)
	}
	if tag != GoalNone {
		t.Fatalf("nil policy must yield GoalNone, got %v", tag)
	}
}

func TestClassifyStripsDecorations(t *testing.T) {
	c := NewClassifier(testSnapshot(), nil)
	if _, ok, _ := c.Classify("K1ABC/P"); !ok {
		t.Fatalf("expected portable suffix to match roster entry")
	}
	if _, ok, _ := c.Classify("k1abc"); !ok {
		t.Fatalf("expected lookup to be case-insensitive")
	}
}

func TestClassifyMiss(t *testing.T) {
	c := NewClassifier(testSnapshot(), func(Member) GoalTag { return GoalNeeded })
	m, ok, tag := c.Classify("N0CALL")
	if ok {
		t.Fatalf("expected miss, got %+v", m)
	}
	if tag != GoalNone {
		t.Fatalf("miss must be GoalNone, got %v", tag)
	}
}

func TestClassifyEmptyRosterDegrades(t *testing.T) {
	c := NewClassifier(nil, func(Member) GoalTag { return GoalNeeded })
	if _, ok, _ := c.Classify("K1ABC"); ok {
		t.Fatalf("empty roster must never match")
	}
}

func TestClassifyAppliesPolicy(t *testing.T) {
	policy := func(m Member) GoalTag {
		if m.Suffix == "T" {
			return GoalNeeded
		}
		return GoalNone
	}
	c := NewClassifier(testSnapshot(), policy)
	if _, _, tag := c.Classify("K1ABC"); tag != GoalNeeded {
		t.Fatalf("expected Tribune member to be a goal")
	}
	if _, _, tag := c.Classify("W2XYZ"); tag != GoalNone {
		t.Fatalf("expected plain member to not be a goal")
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	c := NewClassifier(testSnapshot(), nil)
	c.Reload(map[string]Member{"N3QQQ": {Callsign: "N3QQQ", Number: "999S", Suffix: "S"}})
	if _, ok, _ := c.Classify("K1ABC"); ok {
		t.Fatalf("old snapshot must be gone after Reload")
	}
	if _, ok, _ := c.Classify("N3QQQ"); !ok {
		t.Fatalf("new snapshot must be live after Reload")
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1, got %d", c.Size())
	}
}
