package roster

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "roster"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := Member{Callsign: "K1ABC", Number: "12345T", Suffix: "T", KeyType: "SK"}
	if err := s.Put(want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.Get("k1abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected member to be found")
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}

	_, ok, err = s.Get("W9XYZ")
	if err != nil {
		t.Fatalf("get miss: %v", err)
	}
	if ok {
		t.Fatalf("expected miss for unknown callsign")
	}
}

func TestStoreSnapshot(t *testing.T) {
	s := openTestStore(t)
	members := []Member{
		{Callsign: "K1ABC", Number: "12345T", Suffix: "T"},
		{Callsign: "W2XYZ", Number: "200", Suffix: ""},
		{Callsign: "N3QQQ", Number: "999S", Suffix: "S", KeyType: "BUG"},
	}
	if err := s.PutBatch(members); err != nil {
		t.Fatalf("put batch: %v", err)
	}

	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	if snap["N3QQQ"].KeyType != "BUG" {
		t.Fatalf("expected key type preserved, got %+v", snap["N3QQQ"])
	}
}

func TestImportSnapshot(t *testing.T) {
	s := openTestStore(t)
	path := filepath.Join(t.TempDir(), "roster.json")
	blob := `[
  {"callsign": "k1abc", "number": "12345T", "suffix": "T", "key_type": "SK"},
  {"callsign": "W2XYZ", "number": "200", "suffix": ""},
  {"callsign": "", "number": "ignored"}
]`
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	n, err := s.ImportSnapshot(path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 parsed records, got %d", n)
	}

	// The blank callsign is skipped at write time.
	count, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored records, got %d", count)
	}

	m, ok, err := s.Get("K1ABC")
	if err != nil || !ok {
		t.Fatalf("expected K1ABC present, ok=%v err=%v", ok, err)
	}
	if m.Number != "12345T" {
		t.Fatalf("expected number 12345T, got %q", m.Number)
	}
}

func TestImportSnapshotBadJSON(t *testing.T) {
	s := openTestStore(t)
	path := filepath.Join(t.TempDir(), "roster.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if _, err := s.ImportSnapshot(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
