package telemetry

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/types"
)

type ReadingStatus string

const (
	StatusOK            ReadingStatus = "ok"
	StatusParseError    ReadingStatus = "parse_error"
	StatusRequestFailed ReadingStatus = "request_failed"
	StatusReadFailed    ReadingStatus = "read_failed"
)

// Reading is the last known state of one display path. Value keeps the
// last good value even when Status reports a later failure.
type Reading struct {
	Value     any           `json:"value"`
	Status    ReadingStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (r Reading) MarshalJSON() ([]byte, error) {
	type alias Reading
	a := alias(r)
	a.Value = types.JSONValue(r.Value)
	return json.Marshal(a)
}

// Store holds the shared telemetry state, keyed by display path.
type Store struct {
	mu       sync.RWMutex
	readings map[string]Reading
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		readings: make(map[string]Reading),
		now:      time.Now,
	}
}

// Apply writes a decoded snapshot. Marked paths only update their status,
// the previous good value survives.
func (s *Store) Apply(snapshot types.TelemetrySnapshot) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for path, v := range snapshot {
		prev := s.readings[path]
		switch x := v.(type) {
		case Marker:
			prev.Status = markerStatus(x)
			prev.Error = string(x)
			prev.UpdatedAt = now
			s.readings[path] = prev
		default:
			s.readings[path] = Reading{Value: v, Status: StatusOK, UpdatedAt: now}
		}
	}
}

func markerStatus(m Marker) ReadingStatus {
	switch m {
	case ParseError:
		return StatusParseError
	case RequestFailed:
		return StatusRequestFailed
	}
	return StatusReadFailed
}

func (s *Store) Get(path string) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[path]
	return r, ok
}

// Values returns the last good values of paths; all known paths when
// paths is empty. Paths never read successfully are left out.
func (s *Store) Values(paths []string) types.TelemetrySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(types.TelemetrySnapshot)
	if len(paths) == 0 {
		for p, r := range s.readings {
			if r.Value != nil || r.Status == StatusOK {
				out[p] = r.Value
			}
		}
		return out
	}
	for _, p := range paths {
		if r, ok := s.readings[p]; ok && (r.Value != nil || r.Status == StatusOK) {
			out[p] = r.Value
		}
	}
	return out
}

// Readings returns a copy of every reading.
func (s *Store) Readings() map[string]Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Reading, len(s.readings))
	for k, v := range s.readings {
		out[k] = v
	}
	return out
}

func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.readings))
	for k := range s.readings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// Clear drops everything, e.g. after a disconnect or a family switch.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = make(map[string]Reading)
}
