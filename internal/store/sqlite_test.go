package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/convomem/convomem/internal/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustEnsureUser(t *testing.T, s *SQLiteStore, user string) {
	t.Helper()
	if err := s.EnsureUser(context.Background(), user); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
}

func TestInsertWindow_Idempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")

	w := model.Window{
		UserID:         "u1",
		ConversationID: "c1",
		StartIndex:     0,
		EndIndex:       1,
		TurnCount:      2,
		Text:           "Hi there ⟂ Hey",
		Fingerprint:    "abc",
	}

	ins, err := s.InsertWindow(ctx, w)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !ins {
		t.Error("first insert should report inserted")
	}

	ins, err = s.InsertWindow(ctx, w)
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if ins {
		t.Error("duplicate insert should be a no-op")
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Windows != 1 {
		t.Errorf("expected exactly 1 window row, got %d", st.Windows)
	}
}

func TestNextTurnIndex(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")

	idx, err := s.NextTurnIndex(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("next index: %v", err)
	}
	if idx != 0 {
		t.Errorf("empty conversation should start at 0, got %d", idx)
	}

	for i := 0; i < 3; i++ {
		if err := s.AppendTurn(ctx, "u1", "c1", "user", "hello", i); err != nil {
			t.Fatalf("append turn %d: %v", i, err)
		}
	}

	idx, err = s.NextTurnIndex(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("next index: %v", err)
	}
	if idx != 3 {
		t.Errorf("expected next index 3, got %d", idx)
	}
}

func TestTurns_OrderedByIndex(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")

	// Insert out of order; reads must come back by turn index.
	s.AppendTurn(ctx, "u1", "c1", "assistant", "second", 1)
	s.AppendTurn(ctx, "u1", "c1", "user", "first", 0)

	turns, err := s.Turns(ctx, "u1", "c1", 0)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 || turns[0].Content != "first" || turns[1].Content != "second" {
		t.Errorf("expected [first second], got %v", turns)
	}
}

func TestRecentTurns_TakesTail(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")

	for i := 0; i < 10; i++ {
		s.AppendTurn(ctx, "u1", "c1", "user", "msg", i)
	}

	turns, err := s.RecentTurns(ctx, "u1", "c1", 3)
	if err != nil {
		t.Fatalf("recent turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, want := range []int{7, 8, 9} {
		if turns[i].TurnIndex != want {
			t.Errorf("turn %d has index %d, want %d", i, turns[i].TurnIndex, want)
		}
	}
}

func TestKeywordCandidates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")
	mustEnsureUser(t, s, "u2")

	windows := []model.Window{
		{UserID: "u1", ConversationID: "c1", StartIndex: 0, EndIndex: 1, TurnCount: 2,
			Text: "my dentist appointment is on Tuesday ⟂ okay noted", Fingerprint: "f1"},
		{UserID: "u1", ConversationID: "c1", StartIndex: 1, EndIndex: 2, TurnCount: 2,
			Text: "the weather is nice today ⟂ yes it is", Fingerprint: "f2"},
		{UserID: "u2", ConversationID: "c9", StartIndex: 0, EndIndex: 1, TurnCount: 2,
			Text: "dentist appointment reminder ⟂ sure", Fingerprint: "f3"},
	}
	for _, w := range windows {
		if _, err := s.InsertWindow(ctx, w); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	cands, err := s.KeywordCandidates(ctx, "u1", "dentist appointment", 10)
	if err != nil {
		t.Fatalf("keyword candidates: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate (user-scoped), got %d", len(cands))
	}
	if cands[0].KeywordRank <= 0 {
		t.Errorf("expected positive rank, got %f", cands[0].KeywordRank)
	}
	if cands[0].AgeDays != 0 {
		t.Errorf("keyword candidates carry zero age, got %f", cands[0].AgeDays)
	}

	// Quoted phrase that appears nowhere.
	cands, err = s.KeywordCandidates(ctx, "u1", `"purple elephant"`, 10)
	if err != nil {
		t.Fatalf("phrase query: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("expected no candidates, got %d", len(cands))
	}
}

func TestVectorCandidates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")

	for i, w := range []model.Window{
		{UserID: "u1", ConversationID: "c1", StartIndex: 0, EndIndex: 1, TurnCount: 2, Text: "a ⟂ b", Fingerprint: "f1"},
		{UserID: "u1", ConversationID: "c1", StartIndex: 1, EndIndex: 2, TurnCount: 2, Text: "b ⟂ c", Fingerprint: "f2"},
		{UserID: "u1", ConversationID: "c1", StartIndex: 2, EndIndex: 3, TurnCount: 2, Text: "c ⟂ d", Fingerprint: "f3"},
	} {
		w.ID = []string{"w1", "w2", "w3"}[i]
		if _, err := s.InsertWindow(ctx, w); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// w3 has no embedding and must be excluded from vector candidates.
	s.SetEmbedding(ctx, "w1", []float32{1, 0, 0})
	s.SetEmbedding(ctx, "w2", []float32{0, 1, 0})

	cands, err := s.VectorCandidates(ctx, "u1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("vector candidates: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 embedded candidates, got %d", len(cands))
	}
	if cands[0].WindowID != "w1" {
		t.Errorf("expected best match w1 first, got %s", cands[0].WindowID)
	}
	if cands[0].VectorSim < 0.999 {
		t.Errorf("identical vector should score ~1, got %f", cands[0].VectorSim)
	}
	if cands[0].AgeDays < 0 {
		t.Errorf("age must be floored at zero, got %f", cands[0].AgeDays)
	}
}

func TestPendingWindows_AndSetEmbedding(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")

	w := model.Window{ID: "w1", UserID: "u1", ConversationID: "c1",
		StartIndex: 0, EndIndex: 1, TurnCount: 2, Text: "a ⟂ b", Fingerprint: "f1"}
	if _, err := s.InsertWindow(ctx, w); err != nil {
		t.Fatalf("insert: %v", err)
	}

	pending, err := s.PendingWindows(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "w1" {
		t.Fatalf("expected [w1], got %v", pending)
	}

	if err := s.SetEmbedding(ctx, "w1", []float32{0.5, 0.25}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	pending, _ = s.PendingWindows(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("expected no pending after embedding, got %d", len(pending))
	}

	// Round-trip through the blob encoding.
	cands, err := s.VectorCandidates(ctx, "u1", []float32{0.5, 0.25}, 1)
	if err != nil {
		t.Fatalf("vector candidates: %v", err)
	}
	if len(cands) != 1 || cands[0].VectorSim < 0.999 {
		t.Errorf("stored vector should match itself, got %v", cands)
	}
}

func TestResetConversation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")

	s.AppendTurn(ctx, "u1", "c1", "user", "hello", 0)
	s.AppendTurn(ctx, "u1", "c2", "user", "other", 0)
	s.InsertWindow(ctx, model.Window{UserID: "u1", ConversationID: "c1",
		StartIndex: 0, EndIndex: 1, TurnCount: 2, Text: "x ⟂ y", Fingerprint: "f"})

	if err := s.ResetConversation(ctx, "u1", "c1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	turns, _ := s.Turns(ctx, "u1", "c1", 0)
	if len(turns) != 0 {
		t.Errorf("expected c1 turns gone, got %d", len(turns))
	}
	turns, _ = s.Turns(ctx, "u1", "c2", 0)
	if len(turns) != 1 {
		t.Errorf("expected c2 untouched, got %d turns", len(turns))
	}
	st, _ := s.Stats(ctx)
	if st.Windows != 0 {
		t.Errorf("expected c1 windows gone, got %d", st.Windows)
	}
}

func TestConversations(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustEnsureUser(t, s, "u1")

	s.AppendTurn(ctx, "u1", "c1", "user", "a", 0)
	time.Sleep(1100 * time.Millisecond) // RFC3339 second resolution
	s.AppendTurn(ctx, "u1", "c2", "user", "b", 0)
	s.AppendTurn(ctx, "u1", "c2", "assistant", "c", 1)

	convs, err := s.Conversations(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ConversationID != "c2" || convs[0].TurnCount != 2 {
		t.Errorf("expected c2 (2 turns) first, got %+v", convs[0])
	}
}

func TestVectorBlobRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 0, 3.14159}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: %f != %f", i, in[i], out[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for malformed blob")
	}
}
