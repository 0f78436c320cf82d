package parseutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "경남 밀양시 동쪽", CollapseWhitespace("  경남\t밀양시\n  동쪽  "))
	assert.Equal(t, "", CollapseWhitespace("   \n\t "))
	assert.Equal(t, "a b", CollapseWhitespace("a b"))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "규모 1.5 & 깊이 8km",
		StripTags("<p>규모&nbsp;1.5 &amp;\n<b>깊이</b> 8km</p>"))
}

func TestPercentDecode(t *testing.T) {
	assert.Equal(t, "경북 김천", PercentDecode("%EA%B2%BD%EB%B6%81%20%EA%B9%80%EC%B2%9C"))
	// Invalid encodings come back unchanged.
	assert.Equal(t, "%ZZ broken", PercentDecode("%ZZ broken"))
}

func TestParseKST(t *testing.T) {
	t.Run("converts +09:00 local time to UTC", func(t *testing.T) {
		got := ParseKST("2006/01/02 15:04:05", "2025/12/25 05:14:43")
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2025, 12, 24, 20, 14, 43, 0, time.UTC), *got)
	})

	t.Run("returns nil on malformed input", func(t *testing.T) {
		assert.Nil(t, ParseKST("2006/01/02 15:04:05", "yesterday-ish"))
		assert.Nil(t, ParseKST("2006/01/02 15:04:05", ""))
	})
}

func TestReadBits(t *testing.T) {
	// 0b1011_0001 0b1000_0000
	data := []byte{0xB1, 0x80}

	assert.Equal(t, uint64(1), ReadBits(data, 0, 1))
	assert.Equal(t, uint64(0), ReadBits(data, 1, 1))
	assert.Equal(t, uint64(0b1011), ReadBits(data, 0, 4))
	assert.Equal(t, uint64(0b0001_1), ReadBits(data, 4, 5))
	// Crossing the byte boundary.
	assert.Equal(t, uint64(0b1_1000_0000), ReadBits(data, 7, 9))
	// Reads past the end are zero-filled.
	assert.Equal(t, uint64(0), ReadBits(data, 16, 8))
}
