package window

import (
	"strings"
	"testing"
	"time"

	"github.com/convomem/convomem/internal/model"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('A' + i))
	}
	return out
}

func TestBuild_Empty(t *testing.T) {
	if got := Build(nil, 2, 4); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestBuild_InvertedBounds(t *testing.T) {
	if got := Build(texts(5), 4, 2); got != nil {
		t.Errorf("expected nil for minLen > maxLen, got %v", got)
	}
}

func TestBuild_Example(t *testing.T) {
	got := Build([]string{"A", "B", "C", "D"}, 2, 3)
	want := []Span{
		{0, 1, "A ⟂ B"},
		{0, 2, "A ⟂ B ⟂ C"},
		{1, 2, "B ⟂ C"},
		{1, 3, "B ⟂ C ⟂ D"},
		{2, 3, "C ⟂ D"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d windows, got %d: %v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("window %d: expected %v, got %v", i, w, got[i])
		}
	}
}

func TestBuild_Count(t *testing.T) {
	// Sum over L in [minLen,maxLen] of max(0, n-L+1).
	for _, tc := range []struct{ n, min, max int }{
		{0, 2, 4}, {1, 2, 4}, {4, 2, 3}, {10, 2, 4}, {3, 3, 5},
	} {
		want := 0
		for l := tc.min; l <= tc.max; l++ {
			if c := tc.n - l + 1; c > 0 {
				want += c
			}
		}
		got := Build(texts(tc.n), tc.min, tc.max)
		if len(got) != want {
			t.Errorf("n=%d min=%d max=%d: expected %d windows, got %d", tc.n, tc.min, tc.max, want, len(got))
		}
		for _, s := range got {
			l := s.End - s.Start + 1
			if l < tc.min || l > tc.max {
				t.Errorf("window (%d,%d) length %d out of [%d,%d]", s.Start, s.End, l, tc.min, tc.max)
			}
		}
	}
}

func TestTail(t *testing.T) {
	got := Tail([]string{"A", "B", "C", "D"}, 2, 3)
	want := []Span{
		{2, 3, "C ⟂ D"},
		{1, 3, "B ⟂ C ⟂ D"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d windows, got %d: %v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("window %d: expected %v, got %v", i, w, got[i])
		}
	}
}

func TestTail_AllEndAtLast(t *testing.T) {
	n := 9
	got := Tail(texts(n), 2, 4)
	if len(got) != 3 {
		t.Fatalf("expected maxLen-minLen+1=3 windows, got %d", len(got))
	}
	for _, s := range got {
		if s.End != n-1 {
			t.Errorf("window (%d,%d) does not end at %d", s.Start, s.End, n-1)
		}
	}
}

func TestTail_ShortInput(t *testing.T) {
	if got := Tail(nil, 2, 4); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := Tail([]string{"A"}, 2, 4); got != nil {
		t.Errorf("expected nil when n < minLen, got %v", got)
	}
	// n == minLen: longer lengths clamp to the start, so every emitted
	// span is the full conversation and the count stays maxLen-minLen+1.
	got := Tail([]string{"A", "B"}, 2, 4)
	if len(got) != 3 {
		t.Fatalf("expected 3 windows, got %d: %v", len(got), got)
	}
	for i, s := range got {
		if s != (Span{0, 1, "A ⟂ B"}) {
			t.Errorf("window %d: expected full span, got %v", i, s)
		}
	}
}

func TestExtractTurnTexts(t *testing.T) {
	turns := []model.Turn{
		{Role: "assistant", Content: "  Hi  there "},
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "Hey"},
		{Role: "user", Content: "   "},
	}
	got := ExtractTurnTexts(turns)
	if len(got) != 2 || got[0] != "Hi there" || got[1] != "Hey" {
		t.Fatalf("expected [Hi there, Hey], got %v", got)
	}

	windows := Build(got, 2, 2)
	if len(windows) != 1 || windows[0].Text != "Hi there ⟂ Hey" {
		t.Errorf("expected one window %q, got %v", "Hi there ⟂ Hey", windows)
	}
}

func TestExtractTurnTimes(t *testing.T) {
	ts := time.Date(2025, 9, 7, 10, 5, 0, 0, time.UTC)
	turns := []model.Turn{
		{Role: "user", Content: "a", CreatedAt: "2025-09-07T10:05:00Z"},
		{Role: "assistant", Content: "b"},
		{Role: "user", Content: "c", CreatedAt: "not-a-date"},
	}
	got := ExtractTurnTimes(turns)
	if len(got) != 3 {
		t.Fatalf("expected same length as input, got %d", len(got))
	}
	if got[0] == nil || !got[0].Equal(ts) {
		t.Errorf("expected %v, got %v", ts, got[0])
	}
	if got[1] != nil {
		t.Errorf("expected nil for missing timestamp, got %v", got[1])
	}
	if got[2] != nil {
		t.Errorf("expected nil for malformed timestamp, got %v", got[2])
	}
}

func TestParseTurnTime(t *testing.T) {
	cases := []struct {
		in   string
		want *time.Time
	}{
		{"2025-09-07T10:05:00Z", timePtr(time.Date(2025, 9, 7, 10, 5, 0, 0, time.UTC))},
		{"2025-09-07T10:05:00.123+02:00", timePtr(time.Date(2025, 9, 7, 10, 5, 0, 123e6, time.FixedZone("", 2*3600)))},
		{"2025-09-07 10:05:00", timePtr(time.Date(2025, 9, 7, 10, 5, 0, 0, time.UTC))},
		{"2025-09-07T10:05:00", timePtr(time.Date(2025, 9, 7, 10, 5, 0, 0, time.UTC))},
		{"2025-09-07", timePtr(time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC))},
		{"", nil},
		{"   ", nil},
		{"not-a-date", nil},
		{"07/09/2025", nil},
	}
	for _, c := range cases {
		got := ParseTurnTime(c.in)
		switch {
		case c.want == nil && got != nil:
			t.Errorf("ParseTurnTime(%q) = %v, want nil", c.in, got)
		case c.want != nil && (got == nil || !got.Equal(*c.want)):
			t.Errorf("ParseTurnTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestTimeBounds(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)
	times := []*time.Time{&t2, nil, &t1, &t3}

	first, last := TimeBounds(times, 0, 2)
	if first == nil || !first.Equal(t1) {
		t.Errorf("expected first %v, got %v", t1, first)
	}
	if last == nil || !last.Equal(t2) {
		t.Errorf("expected last %v, got %v", t2, last)
	}

	first, last = TimeBounds([]*time.Time{nil, nil}, 0, 1)
	if first != nil || last != nil {
		t.Errorf("expected (nil, nil) for all-nil span, got (%v, %v)", first, last)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("hello   world")
	b := Fingerprint("hello world")
	if a != b {
		t.Errorf("normalized texts should hash identically: %s vs %s", a, b)
	}
	if a == Fingerprint("hello there") {
		t.Error("different texts should not collide")
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Errorf("expected lowercase sha256 hex, got %q", a)
	}
}
