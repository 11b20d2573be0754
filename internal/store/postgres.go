package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/convomem/convomem/internal/model"
)

// PostgresSchema is the DDL the pgvector backend expects. The init command
// applies it via ApplySchema (requires the vector extension to be
// installable by the connecting role).
const PostgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS users (
    user_id    TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conv_turns (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    conversation_id TEXT NOT NULL,
    turn_index      INT  NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, conversation_id, turn_index)
);

CREATE TABLE IF NOT EXISTS conv_windows (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
    conversation_id TEXT NOT NULL,
    start_index     INT  NOT NULL,
    end_index       INT  NOT NULL,
    turn_count      INT  NOT NULL,
    text            TEXT NOT NULL,
    text_hash       TEXT NOT NULL,
    first_turn_at   TIMESTAMPTZ,
    last_turn_at    TIMESTAMPTZ,
    embedding       vector(1536),
    fts             tsvector GENERATED ALWAYS AS (to_tsvector('simple', text)) STORED,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, conversation_id, start_index, end_index)
);
CREATE INDEX IF NOT EXISTS idx_windows_fts ON conv_windows USING GIN (fts);

CREATE TABLE IF NOT EXISTS analytics_events (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    event_name TEXT NOT NULL,
    data       JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements Store on Postgres with pgvector. The pool manages
// liveness and reconnects; retrieval primitives push ordering into SQL the
// same way the SQLite backend does in-process.
type PostgresStore struct {
	pool    *pgxpool.Pool
	entropy *rand.Rand
}

// NewPostgresStore connects a pool to the given postgres:// DSN.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{
		pool:    pool,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// ApplySchema creates the extension, tables, and indexes. Every statement
// is IF NOT EXISTS, so reapplying is safe.
func (s *PostgresStore) ApplySchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *PostgresStore) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

func (s *PostgresStore) AppendTurn(ctx context.Context, userID, conversationID, role, content string, turnIndex int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conv_turns (id, user_id, conversation_id, turn_index, role, content)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.newID(), userID, conversationID, turnIndex, role, content)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) NextTurnIndex(ctx context.Context, userID, conversationID string) (int, error) {
	var next int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(turn_index), -1) + 1 FROM conv_turns
		 WHERE user_id = $1 AND conversation_id = $2`,
		userID, conversationID).Scan(&next)
	return next, err
}

func (s *PostgresStore) Turns(ctx context.Context, userID, conversationID string, limit int) ([]model.StoredTurn, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, turn_index, created_at FROM conv_turns
		 WHERE user_id = $1 AND conversation_id = $2
		 ORDER BY turn_index LIMIT $3`,
		userID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.StoredTurn
	for rows.Next() {
		var t model.StoredTurn
		if err := rows.Scan(&t.Role, &t.Content, &t.TurnIndex, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) RecentTurns(ctx context.Context, userID, conversationID string, lastN int) ([]model.StoredTurn, error) {
	if lastN <= 0 {
		lastN = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, turn_index, created_at FROM conv_turns
		 WHERE user_id = $1 AND conversation_id = $2
		 ORDER BY turn_index DESC LIMIT $3`,
		userID, conversationID, lastN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.StoredTurn
	for rows.Next() {
		var t model.StoredTurn
		if err := rows.Scan(&t.Role, &t.Content, &t.TurnIndex, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query order is newest-first; callers want ascending index order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *PostgresStore) Conversations(ctx context.Context, userID string, limit int) ([]model.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT conversation_id, COUNT(*), MAX(created_at) FROM conv_turns
		 WHERE user_id = $1
		 GROUP BY conversation_id
		 ORDER BY MAX(created_at) DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConversationSummary
	for rows.Next() {
		var c model.ConversationSummary
		if err := rows.Scan(&c.ConversationID, &c.TurnCount, &c.LastAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertWindow(ctx context.Context, w model.Window) (bool, error) {
	id := w.ID
	if id == "" {
		id = s.newID()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO conv_windows
		   (id, user_id, conversation_id, start_index, end_index, turn_count,
		    text, text_hash, first_turn_at, last_turn_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, conversation_id, start_index, end_index) DO NOTHING`,
		id, w.UserID, w.ConversationID, w.StartIndex, w.EndIndex, w.TurnCount,
		w.Text, w.Fingerprint, w.FirstTurnAt, w.LastTurnAt)
	if err != nil {
		return false, fmt.Errorf("insert window: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) VectorCandidates(ctx context.Context, userID string, qvec []float32, limit int) ([]model.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, text,
		        1 - (embedding <=> $1::vector) AS sim,
		        GREATEST(EXTRACT(EPOCH FROM (now() - COALESCE(last_turn_at, created_at)))/86400.0, 0) AS age_days
		 FROM conv_windows
		 WHERE user_id = $2 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector ASC
		 LIMIT $3`,
		vectorLiteral(qvec), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cands []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.WindowID, &c.ConversationID, &c.Text, &c.VectorSim, &c.AgeDays); err != nil {
			return nil, err
		}
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

func (s *PostgresStore) KeywordCandidates(ctx context.Context, userID, query string, limit int) ([]model.Candidate, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, text,
		        ts_rank(fts, websearch_to_tsquery('simple', $1)) AS rank
		 FROM conv_windows
		 WHERE user_id = $2 AND fts @@ websearch_to_tsquery('simple', $1)
		 ORDER BY rank DESC
		 LIMIT $3`,
		query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cands []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.WindowID, &c.ConversationID, &c.Text, &c.KeywordRank); err != nil {
			return nil, err
		}
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

func (s *PostgresStore) PendingWindows(ctx context.Context, limit int) ([]model.Window, error) {
	if limit <= 0 {
		limit = 128
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, text FROM conv_windows
		 WHERE embedding IS NULL
		 ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Window
	for rows.Next() {
		var w model.Window
		if err := rows.Scan(&w.ID, &w.Text); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, windowID string, vec []float32) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conv_windows SET embedding = $1::vector WHERE id = $2`,
		vectorLiteral(vec), windowID)
	return err
}

func (s *PostgresStore) ResetConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conv_turns WHERE user_id = $1 AND conversation_id = $2`,
		userID, conversationID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM conv_windows WHERE user_id = $1 AND conversation_id = $2`,
		userID, conversationID)
	return err
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM analytics_events WHERE user_id = $1`, userID)
	return err
}

func (s *PostgresStore) LogEvent(ctx context.Context, userID, event string, data map[string]interface{}) {
	var payload []byte
	if len(data) > 0 {
		payload, _ = json.Marshal(data)
	}
	s.pool.Exec(ctx,
		`INSERT INTO analytics_events (id, user_id, event_name, data) VALUES ($1, $2, $3, $4)`,
		s.newID(), userID, event, payload)
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&st.Users)
	s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conv_turns`).Scan(&st.Turns)
	s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conv_windows`).Scan(&st.Windows)
	s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conv_windows WHERE embedding IS NULL`).Scan(&st.PendingEmbeddings)

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, COUNT(DISTINCT conversation_id), COUNT(*)
		FROM conv_windows
		GROUP BY user_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var u UserStats
		rows.Scan(&u.UserID, &u.Conversations, &u.Windows)
		st.PerUser = append(st.PerUser, u)
	}
	return st, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral formats a vector as a pgvector literal: [0.1,0.2,...].
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%.6f", v)
	}
	b.WriteByte(']')
	return b.String()
}
