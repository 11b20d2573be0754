package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/convomem/convomem/internal/embedding"
	"github.com/convomem/convomem/internal/model"
)

// SQLiteStore implements Store using SQLite. Keyword search runs on an FTS5
// index over window text; vector candidates are scored by an in-process
// cosine scan over stored embeddings.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conv_turns (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		conversation_id TEXT NOT NULL,
		turn_index      INTEGER NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		UNIQUE(user_id, conversation_id, turn_index)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_user_conv ON conv_turns(user_id, conversation_id, turn_index);

	CREATE TABLE IF NOT EXISTS conv_windows (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		conversation_id TEXT NOT NULL,
		start_index     INTEGER NOT NULL,
		end_index       INTEGER NOT NULL,
		turn_count      INTEGER NOT NULL,
		text            TEXT NOT NULL,
		text_hash       TEXT NOT NULL,
		first_turn_at   TEXT,
		last_turn_at    TEXT,
		embedding       BLOB,
		created_at      TEXT NOT NULL,
		UNIQUE(user_id, conversation_id, start_index, end_index)
	);
	CREATE INDEX IF NOT EXISTS idx_windows_user ON conv_windows(user_id);
	CREATE INDEX IF NOT EXISTS idx_windows_pending ON conv_windows(created_at) WHERE embedding IS NULL;

	CREATE TABLE IF NOT EXISTS analytics_events (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		event_name TEXT NOT NULL,
		data       TEXT,
		created_at TEXT NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS windows_fts USING fts5(
		text,
		content=conv_windows,
		content_rowid=rowid
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers for automatic sync
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS windows_ai AFTER INSERT ON conv_windows BEGIN
		INSERT INTO windows_fts(rowid, text) VALUES (new.rowid, new.text);
	END`)
	s.db.Exec(`CREATE TRIGGER IF NOT EXISTS windows_ad AFTER DELETE ON conv_windows BEGIN
		INSERT INTO windows_fts(windows_fts, rowid, text) VALUES('delete', old.rowid, old.text);
	END`)

	return nil
}

func (s *SQLiteStore) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, created_at) VALUES (?, ?)`,
		userID, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, userID, conversationID, role, content string, turnIndex int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conv_turns (id, user_id, conversation_id, turn_index, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.newID(), userID, conversationID, turnIndex, role, content,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) NextTurnIndex(ctx context.Context, userID, conversationID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn_index), -1) + 1 FROM conv_turns
		 WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *SQLiteStore) Turns(ctx context.Context, userID, conversationID string, limit int) ([]model.StoredTurn, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, turn_index, created_at FROM conv_turns
		 WHERE user_id = ? AND conversation_id = ?
		 ORDER BY turn_index LIMIT ?`,
		userID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.StoredTurn
	for rows.Next() {
		var t model.StoredTurn
		var createdAt string
		if err := rows.Scan(&t.Role, &t.Content, &t.TurnIndex, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) RecentTurns(ctx context.Context, userID, conversationID string, lastN int) ([]model.StoredTurn, error) {
	if lastN <= 0 {
		lastN = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, turn_index, created_at FROM conv_turns
		 WHERE user_id = ? AND conversation_id = ?
		 ORDER BY turn_index DESC LIMIT ?`,
		userID, conversationID, lastN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []model.StoredTurn
	for rows.Next() {
		var t model.StoredTurn
		var createdAt string
		if err := rows.Scan(&t.Role, &t.Content, &t.TurnIndex, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
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

func (s *SQLiteStore) Conversations(ctx context.Context, userID string, limit int) ([]model.ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, COUNT(*), MAX(created_at) FROM conv_turns
		 WHERE user_id = ?
		 GROUP BY conversation_id
		 ORDER BY MAX(created_at) DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConversationSummary
	for rows.Next() {
		var c model.ConversationSummary
		var lastAt string
		if err := rows.Scan(&c.ConversationID, &c.TurnCount, &lastAt); err != nil {
			return nil, err
		}
		c.LastAt, _ = time.Parse(time.RFC3339, lastAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertWindow(ctx context.Context, w model.Window) (bool, error) {
	id := w.ID
	if id == "" {
		id = s.newID()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conv_windows
		   (id, user_id, conversation_id, start_index, end_index, turn_count,
		    text, text_hash, first_turn_at, last_turn_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, conversation_id, start_index, end_index) DO NOTHING`,
		id, w.UserID, w.ConversationID, w.StartIndex, w.EndIndex, w.TurnCount,
		w.Text, w.Fingerprint, fmtTimePtr(w.FirstTurnAt), fmtTimePtr(w.LastTurnAt),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("insert window: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) VectorCandidates(ctx context.Context, userID string, qvec []float32, limit int) ([]model.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, text, embedding, COALESCE(last_turn_at, created_at)
		 FROM conv_windows
		 WHERE user_id = ? AND embedding IS NOT NULL`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now().UTC()
	var cands []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var blob []byte
		var activity string
		if err := rows.Scan(&c.WindowID, &c.ConversationID, &c.Text, &blob, &activity); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", c.WindowID, err)
		}
		c.VectorSim = embedding.CosineSimilarity(qvec, vec)
		if t, err := time.Parse(time.RFC3339, activity); err == nil {
			c.AgeDays = math.Max(0, now.Sub(t).Hours()/24.0)
		}
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].VectorSim > cands[j].VectorSim })
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return cands, nil
}

func (s *SQLiteStore) KeywordCandidates(ctx context.Context, userID, query string, limit int) ([]model.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	match := CompileFTSQuery(query)
	if match == "" {
		return nil, nil
	}

	// bm25 is smaller-is-better; negate so ranks normalize like similarities.
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.id, w.conversation_id, w.text, -bm25(windows_fts) AS rank
		 FROM windows_fts
		 JOIN conv_windows w ON w.rowid = windows_fts.rowid
		 WHERE windows_fts MATCH ? AND w.user_id = ?
		 ORDER BY bm25(windows_fts) LIMIT ?`,
		match, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var cands []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.WindowID, &c.ConversationID, &c.Text, &c.KeywordRank); err != nil {
			return nil, err
		}
		if c.KeywordRank < 0 {
			c.KeywordRank = 0
		}
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

func (s *SQLiteStore) PendingWindows(ctx context.Context, limit int) ([]model.Window, error) {
	if limit <= 0 {
		limit = 128
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text FROM conv_windows
		 WHERE embedding IS NULL
		 ORDER BY created_at LIMIT ?`, limit)
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

func (s *SQLiteStore) SetEmbedding(ctx context.Context, windowID string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conv_windows SET embedding = ? WHERE id = ?`,
		encodeVector(vec), windowID)
	return err
}

func (s *SQLiteStore) ResetConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conv_turns WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conv_windows WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID)
	return err
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, userID string) error {
	// Cascade wipes conv_turns and conv_windows; analytics has no FK.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM analytics_events WHERE user_id = ?`, userID)
	return err
}

func (s *SQLiteStore) LogEvent(ctx context.Context, userID, event string, data map[string]interface{}) {
	var payload *string
	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			str := string(b)
			payload = &str
		}
	}
	s.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, user_id, event_name, data, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.newID(), userID, event, payload, time.Now().UTC().Format(time.RFC3339))
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	str := t.UTC().Format(time.RFC3339)
	return &str
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding blob (%d bytes)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
