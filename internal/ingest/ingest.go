// Package ingest turns conversation turns into persisted window rows with
// pending embeddings.
package ingest

import (
	"context"

	"github.com/convomem/convomem/internal/apperr"
	"github.com/convomem/convomem/internal/model"
	"github.com/convomem/convomem/internal/store"
	"github.com/convomem/convomem/internal/window"
)

// recentTurnLimit bounds how much history live-chat windowing rereads. The
// tail windows only need the newest maxLen turns, but reading a larger
// recent slice keeps the read cheap without an extra code path.
const recentTurnLimit = 200

// Ingestor windowizes turns and inserts the rows. Embeddings stay null; the
// backfill worker fills them in later.
type Ingestor struct {
	store  store.Store
	minLen int
	maxLen int
}

func New(s store.Store, minLen, maxLen int) *Ingestor {
	return &Ingestor{store: s, minLen: minLen, maxLen: maxLen}
}

// IngestTurns windowizes a batch of raw turns and inserts every overlapping
// window. Returns how many windows were written (duplicates are no-ops and
// still counted as processed, matching the insert-if-absent contract).
func (in *Ingestor) IngestTurns(ctx context.Context, userID, conversationID string, turns []model.Turn) (int, error) {
	if in.minLen > in.maxLen || in.minLen < 1 {
		return 0, apperr.Validation("window length bounds [%d,%d] are invalid", in.minLen, in.maxLen)
	}
	texts := window.ExtractTurnTexts(turns)
	if len(texts) == 0 {
		return 0, apperr.Validation("no user/assistant content to ingest")
	}
	times := window.ExtractTurnTimes(turns)

	if err := in.store.EnsureUser(ctx, userID); err != nil {
		return 0, apperr.Retrieval(err)
	}

	inserted := 0
	for _, sp := range window.Build(texts, in.minLen, in.maxLen) {
		first, last := window.TimeBounds(times, sp.Start, sp.End)
		_, err := in.store.InsertWindow(ctx, model.Window{
			UserID:         userID,
			ConversationID: conversationID,
			StartIndex:     sp.Start,
			EndIndex:       sp.End,
			TurnCount:      sp.End - sp.Start + 1,
			Text:           sp.Text,
			Fingerprint:    window.Fingerprint(sp.Text),
			FirstTurnAt:    first,
			LastTurnAt:     last,
		})
		if err != nil {
			return inserted, apperr.Retrieval(err)
		}
		inserted++
	}
	return inserted, nil
}

// AppendTurn appends one live-chat turn at the next free index and inserts
// only the windows ending at it. The turn-index read and write are not
// atomic across callers; strict ordering requires external serialization
// per conversation.
func (in *Ingestor) AppendTurn(ctx context.Context, userID, conversationID, role, content string) error {
	if err := in.store.EnsureUser(ctx, userID); err != nil {
		return apperr.Retrieval(err)
	}

	idx, err := in.store.NextTurnIndex(ctx, userID, conversationID)
	if err != nil {
		return apperr.Retrieval(err)
	}
	if err := in.store.AppendTurn(ctx, userID, conversationID, role, content, idx); err != nil {
		return apperr.Retrieval(err)
	}

	stored, err := in.store.RecentTurns(ctx, userID, conversationID, recentTurnLimit)
	if err != nil {
		return apperr.Retrieval(err)
	}
	turns := make([]model.Turn, len(stored))
	for i, t := range stored {
		turns[i] = model.Turn{Role: t.Role, Content: t.Content}
	}
	texts := window.ExtractTurnTexts(turns)

	for _, sp := range window.Tail(texts, in.minLen, in.maxLen) {
		_, err := in.store.InsertWindow(ctx, model.Window{
			UserID:         userID,
			ConversationID: conversationID,
			StartIndex:     sp.Start,
			EndIndex:       sp.End,
			TurnCount:      sp.End - sp.Start + 1,
			Text:           sp.Text,
			Fingerprint:    window.Fingerprint(sp.Text),
		})
		if err != nil {
			return apperr.Retrieval(err)
		}
	}
	return nil
}
