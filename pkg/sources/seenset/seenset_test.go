package seenset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("nil state yields an empty set", func(t *testing.T) {
		s := Parse(nil)
		assert.Empty(t, s.Seen)
	})

	t.Run("malformed state degrades to an empty set", func(t *testing.T) {
		bad := "not json"
		s := Parse(&bad)
		assert.Empty(t, s.Seen)
	})

	t.Run("round-trips through Encode", func(t *testing.T) {
		now := time.Date(2025, 12, 24, 20, 14, 43, 0, time.UTC)
		s := Parse(nil)
		s.Add("A", now)

		state, err := s.Encode()
		require.NoError(t, err)

		restored := Parse(state)
		assert.True(t, restored.Has("A"))
		assert.True(t, restored.Seen["A"].Equal(now))
	})
}

func TestPrune(t *testing.T) {
	// An entry just past the 24h TTL is pruned, a fresh one survives.
	now := time.Now().UTC()
	s := Parse(nil)
	s.Add("A", now.Add(-24*time.Hour-time.Second))
	s.Add("B", now)

	s.Prune(now, 24*time.Hour)

	assert.False(t, s.Has("A"))
	assert.True(t, s.Has("B"))
}
