// Package parseutil holds the small text/time/bit helpers shared by the
// source adapters. Sources emit Korean local-time timestamps, entity-encoded
// HTML, percent-encoded binary frame text, and irregular whitespace; the
// helpers normalize all of it at the adapter boundary.
package parseutil

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// KST is the fixed +09:00 zone every upstream source emits timestamps in.
var KST = time.FixedZone("KST", 9*60*60)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims s and collapses every whitespace run to a single
// space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// StripTags removes HTML tags and decodes entities, leaving normalized text.
func StripTags(s string) string {
	return CollapseWhitespace(html.UnescapeString(tagRe.ReplaceAllString(s, " ")))
}

// PercentDecode decodes percent-encoded text extracted from binary frames.
// Returns the input unchanged when it is not valid percent-encoding.
func PercentDecode(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// ParseKST parses value as Korean local time using the given layout and
// returns the UTC instant. Malformed input yields nil, never an error —
// adapters emit a null occurred_at rather than fail a batch.
func ParseKST(layout, value string) *time.Time {
	t, err := time.ParseInLocation(layout, strings.TrimSpace(value), KST)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// ReadBits extracts width bits starting at bit index start from data,
// MSB-first within each byte, and returns them as an unsigned integer.
// Reads past the end of data are zero-filled.
func ReadBits(data []byte, start, width int) uint64 {
	var out uint64
	for i := 0; i < width; i++ {
		bit := start + i
		byteIdx := bit / 8
		out <<= 1
		if byteIdx >= len(data) {
			continue
		}
		shift := 7 - uint(bit%8)
		out |= uint64(data[byteIdx]>>shift) & 1
	}
	return out
}
