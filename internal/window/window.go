// Package window turns a flat turn sequence into overlapping, boundary-marked
// text spans for embedding and retrieval.
package window

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/convomem/convomem/internal/model"
)

// Sep joins turn texts inside a window. A rare glyph so the embedding and
// chat models can see turn boundaries.
const Sep = " ⟂ "

const (
	DefaultMinLen = 2
	DefaultMaxLen = 4
)

// Span is one window over the turn-text sequence. Start and End are
// inclusive indices into the extracted text slice.
type Span struct {
	Start int
	End   int
	Text  string
}

// Normalize collapses whitespace and newlines and strips the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExtractTurnTexts filters turns to user/assistant roles and returns their
// normalized, non-empty texts in order.
func ExtractTurnTexts(turns []model.Turn) []string {
	var out []string
	for _, t := range turns {
		if t.Role != model.RoleUser && t.Role != model.RoleAssistant {
			continue
		}
		if txt := Normalize(t.Content); txt != "" {
			out = append(out, txt)
		}
	}
	return out
}

// timeLayouts are the timestamp shapes accepted on ingested turns, tried in
// order. RFC3339 with or without sub-second precision, then the common
// space- or T-separated forms without a zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ExtractTurnTimes returns per-turn timestamps, same length and order as the
// input. A turn with a missing or unparsable timestamp yields nil rather
// than an error.
func ExtractTurnTimes(turns []model.Turn) []*time.Time {
	times := make([]*time.Time, len(turns))
	for i, t := range turns {
		times[i] = ParseTurnTime(t.CreatedAt)
	}
	return times
}

// ParseTurnTime parses a client-supplied timestamp string, returning nil
// when the value is empty or matches no accepted layout.
func ParseTurnTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// Build emits every window [i, i+L-1] for each start i and each length L in
// [minLen, maxLen] that fits. All overlapping windows are kept so the
// retriever has multiple granularities to match against.
//
//	texts = [A B C D], minLen=2, maxLen=3 =>
//	  (0,1) (0,2) (1,2) (1,3) (2,3)
//
// minLen > maxLen yields nil; callers validate bounds.
func Build(texts []string, minLen, maxLen int) []Span {
	n := len(texts)
	var out []Span
	for i := 0; i < n; i++ {
		for l := minLen; l <= maxLen; l++ {
			j := i + l // exclusive end
			if j > n {
				break
			}
			out = append(out, Span{
				Start: i,
				End:   j - 1,
				Text:  strings.Join(texts[i:j], Sep),
			})
		}
	}
	return out
}

// Tail emits only the windows ending at the last element, one per length.
// Live chat uses this so each new turn costs O(maxLen-minLen) inserts
// instead of a full rescan. Lengths that overrun the start clamp to index 0
// and may repeat a span; the store's idempotent insert absorbs those.
func Tail(texts []string, minLen, maxLen int) []Span {
	n := len(texts)
	if n == 0 {
		return nil
	}
	var out []Span
	for l := minLen; l <= maxLen; l++ {
		i := n - l
		if i < 0 {
			i = 0
		}
		if n-i < minLen {
			continue
		}
		out = append(out, Span{
			Start: i,
			End:   n - 1,
			Text:  strings.Join(texts[i:n], Sep),
		})
	}
	return out
}

// TimeBounds returns the min and max non-nil timestamps in
// times[start..end]. Both are nil when no turn in the span carries one.
func TimeBounds(times []*time.Time, start, end int) (first, last *time.Time) {
	for i := start; i <= end && i < len(times); i++ {
		t := times[i]
		if t == nil {
			continue
		}
		if first == nil || t.Before(*first) {
			first = t
		}
		if last == nil || t.After(*last) {
			last = t
		}
	}
	return first, last
}

// Fingerprint is the dedup hash for a window's text: SHA-256 over the
// whitespace-normalized form, hex encoded.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
