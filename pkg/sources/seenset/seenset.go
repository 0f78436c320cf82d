// Package seenset implements the seen-set-with-TTL checkpoint pattern used
// by list-shaped sources: the adapter's opaque state is a JSON map of item
// id to first-seen time, pruned by age on every run.
package seenset

import (
	"encoding/json"
	"fmt"
	"time"
)

// Set is a collection of item ids with their first-seen timestamps.
type Set struct {
	Seen map[string]time.Time `json:"seen"`
}

// Parse decodes a checkpoint state into a Set. A nil or malformed state
// yields an empty set — a corrupt checkpoint degrades to a full re-emit,
// which downstream absorbs by id.
func Parse(state *string) *Set {
	s := &Set{Seen: make(map[string]time.Time)}
	if state == nil {
		return s
	}
	var decoded Set
	if err := json.Unmarshal([]byte(*state), &decoded); err != nil || decoded.Seen == nil {
		return s
	}
	return &decoded
}

// Has reports whether id has been seen.
func (s *Set) Has(id string) bool {
	_, ok := s.Seen[id]
	return ok
}

// Add records id as seen at the given time.
func (s *Set) Add(id string, at time.Time) {
	s.Seen[id] = at
}

// Prune drops every entry older than ttl relative to now.
func (s *Set) Prune(now time.Time, ttl time.Duration) {
	for id, seenAt := range s.Seen {
		if now.Sub(seenAt) > ttl {
			delete(s.Seen, id)
		}
	}
}

// Encode serializes the set back into checkpoint state.
func (s *Set) Encode() (*string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode seen-set: %w", err)
	}
	encoded := string(data)
	return &encoded, nil
}
