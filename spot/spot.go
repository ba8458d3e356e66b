// Package spot defines the canonical RBN spot structure and the line parser
// used by the ingest pipeline: parsing, validation, band mapping, and hashing
// for exact-duplicate suppression.
package spot

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Frequency sanity bounds for the kHz token on an RBN line. Anything outside
// this range is a corrupt or non-amateur report and the whole line is dropped.
const (
	minFrequencyKHz = 0.1
	maxFrequencyKHz = 300000.0
)

// minTokens is the smallest token count a well-formed RBN spot line can have:
// DX de CALL: FREQ DXCALL MODE DB dB TIME
const minTokens = 9

// sentinel marks RBN spot lines; anything else is server chatter.
const sentinel = "DX de "

// Spot represents a single skimmer report in canonical form. Spots are built
// by ParseLine and not mutated afterwards except for the membership fields,
// which the roster classifier fills in on the pipeline worker before the spot
// is published.
type Spot struct {
	Callsign     string    // Station heard (uppercased, e.g. "K1ABC")
	Reporter     string    // Skimmer that heard it (e.g. "W3LPL-#")
	FrequencyMHz float64   // Frequency in MHz (the feed reports kHz)
	Band         string    // Band label derived from frequency (e.g. "40m")
	Mode         string    // "CW", "SSB", or whatever the feed reported
	SignalDB     int       // Signal strength in dB; 0 when unknown
	SpeedWPM     int       // CW speed; meaningful only when HasSpeed is true
	HasSpeed     bool      // Whether a WPM token was present on the line
	Time         time.Time // Parse time in UTC
	IsMember     bool      // Set by the roster classifier
	MemberNumber string    // SKCC number with suffix (e.g. "14947T"), when IsMember
}

// ParseLine parses one raw feed line into a Spot. Lines that do not start
// with the spot sentinel are not errors, just chatter, and return (nil,
// false) without logging. A line that starts like a spot but fails any parse
// step is discarded whole; partial spots are never produced.
//
// Expected shape (whitespace-separated):
//
//	DX de LZ5DI-#:  7026.1  ON6QS  CW  6 dB  18 WPM  CQ  1544Z
func ParseLine(line string, now time.Time) (*Spot, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, sentinel) {
		return nil, false
	}

	parts := strings.Fields(line)
	if len(parts) < minTokens {
		return nil, false
	}

	reporter := NormalizeCallsign(strings.TrimSuffix(parts[2], ":"))
	if !IsValidCallsign(reporter) {
		return nil, false
	}

	freqKHz, err := strconv.ParseFloat(parts[3], 64)
	if err != nil || freqKHz < minFrequencyKHz || freqKHz > maxFrequencyKHz {
		return nil, false
	}

	call := NormalizeCallsign(parts[4])
	if !IsValidCallsign(call) {
		return nil, false
	}

	mode := strings.ToUpper(parts[5])

	// Signal strength is the integer token directly before the "dB" marker.
	// Without the marker the remaining line shape is unknown, so the line is
	// rejected rather than guessed at.
	signalDB, ok := intBeforeMarker(parts, "DB")
	if !ok {
		return nil, false
	}

	// CW lines carry a speed token before "WPM"; digital lines do not, so a
	// missing marker just means no speed.
	speed, hasSpeed := intBeforeMarker(parts, "WPM")

	s := &Spot{
		Callsign:     call,
		Reporter:     reporter,
		FrequencyMHz: freqKHz / 1000.0,
		Band:         FreqToBand(freqKHz),
		Mode:         mode,
		SignalDB:     signalDB,
		SpeedWPM:     speed,
		HasSpeed:     hasSpeed,
		Time:         now.UTC(),
	}
	return s, true
}

// intBeforeMarker finds the first token equal to marker (case-insensitive)
// and parses the preceding token as an integer. Returns ok=false when the
// marker is missing or its predecessor is not an integer.
func intBeforeMarker(parts []string, marker string) (int, bool) {
	for i := 1; i < len(parts); i++ {
		if strings.EqualFold(parts[i], marker) {
			v, err := strconv.Atoi(parts[i-1])
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

// Hash32 returns a 32-bit hash identifying this spot for exact-duplicate
// suppression: same station, same reporter, same whole-kHz frequency within
// the same minute hash identically. Fixed-layout buffer keeps it allocation
// free on the ingest path.
func (s *Spot) Hash32() uint32 {
	var buf [36]byte
	t := s.Time.Truncate(time.Minute).Unix()
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.FrequencyMHz*1000))
	writeFixedCall(buf[12:24], s.Reporter)
	writeFixedCall(buf[24:36], s.Callsign)
	return uint32(xxh3.Hash(buf[:]))
}

// writeFixedCall assumes call is already normalized/uppercased ASCII.
func writeFixedCall(dst []byte, call string) {
	const width = 12
	n := 0
	for i := 0; i < len(call) && n < width; i++ {
		dst[n] = call[i]
		n++
	}
	for n < width {
		dst[n] = 0
		n++
	}
}
