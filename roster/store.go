// Package roster persists the SKCC membership list in a Pebble key/value
// store and answers the one question the pipeline asks: is this callsign a
// member, and under which number.
package roster

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"skccspotter/strutil"
)

// Member is one roster entry. Suffix tracks the highest award level the
// member holds ("" none, "C" Centurion, "T" Tribune, "S" Senator); KeyType is
// the key the member predominantly uses (SK, BUG, SS) when known.
type Member struct {
	Callsign string `json:"callsign"`
	Number   string `json:"number"`
	Suffix   string `json:"suffix"`
	KeyType  string `json:"key_type"`
}

const memberPrefix = "m|"

var errStoreClosed = errors.New("roster: store is closed")

// Store owns the Pebble database holding the roster. Reads vastly outnumber
// writes (the roster changes roughly daily), so there is no writer queue;
// imports batch directly.
type Store struct {
	db *pebble.DB

	mu     sync.Mutex
	closed bool
}

// Open opens or creates the roster database at path (a directory).
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("roster: database path is empty")
	}
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("roster: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("roster: stat path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("roster: ensure directory: %w", err)
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("roster: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	return nil
}

func memberKey(call string) []byte {
	return []byte(memberPrefix + call)
}

// Put upserts a single member record.
func (s *Store) Put(m Member) error {
	if err := s.guard(); err != nil {
		return err
	}
	call := strutil.NormalizeUpper(m.Callsign)
	if call == "" {
		return errors.New("roster: member callsign is empty")
	}
	m.Callsign = call
	return s.db.Set(memberKey(call), encodeMember(m), pebble.Sync)
}

// PutBatch writes many members in one batch, as snapshot import does.
func (s *Store) PutBatch(members []Member) error {
	if err := s.guard(); err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, m := range members {
		call := strutil.NormalizeUpper(m.Callsign)
		if call == "" {
			continue
		}
		m.Callsign = call
		if err := batch.Set(memberKey(call), encodeMember(m), nil); err != nil {
			return fmt.Errorf("roster: batch set %s: %w", call, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("roster: batch commit: %w", err)
	}
	return nil
}

// Get returns the member record for a callsign, or ok=false when the call is
// not on the roster.
func (s *Store) Get(call string) (Member, bool, error) {
	if err := s.guard(); err != nil {
		return Member{}, false, err
	}
	call = strutil.NormalizeUpper(call)
	value, closer, err := s.db.Get(memberKey(call))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Member{}, false, nil
		}
		return Member{}, false, fmt.Errorf("roster: get %s: %w", call, err)
	}
	defer closer.Close()
	m, err := decodeMember(call, value)
	if err != nil {
		return Member{}, false, err
	}
	return m, true, nil
}

// Snapshot loads the full roster into a map for the classifier. The map is
// a private copy; callers own it.
func (s *Store) Snapshot() (map[string]Member, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(memberPrefix),
		UpperBound: []byte(memberPrefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("roster: snapshot iterator: %w", err)
	}
	defer iter.Close()

	snapshot := make(map[string]Member)
	for iter.First(); iter.Valid(); iter.Next() {
		call := strings.TrimPrefix(string(iter.Key()), memberPrefix)
		m, err := decodeMember(call, iter.Value())
		if err != nil {
			return nil, err
		}
		snapshot[call] = m
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("roster: iterate snapshot: %w", err)
	}
	return snapshot, nil
}

// Count returns the number of roster entries.
func (s *Store) Count() (int, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return 0, err
	}
	return len(snap), nil
}

// Values are a fixed-order, tab-separated record: number, suffix, key type.
// The callsign lives in the key.
func encodeMember(m Member) []byte {
	return []byte(m.Number + "\t" + m.Suffix + "\t" + m.KeyType)
}

func decodeMember(call string, value []byte) (Member, error) {
	fields := strings.Split(string(value), "\t")
	if len(fields) != 3 {
		return Member{}, fmt.Errorf("roster: invalid record for %s", call)
	}
	return Member{
		Callsign: call,
		Number:   fields[0],
		Suffix:   fields[1],
		KeyType:  fields[2],
	}, nil
}
