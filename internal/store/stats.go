package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath            string      `json:"db_path,omitempty"`
	DBSizeBytes       int64       `json:"db_size_bytes,omitempty"`
	Users             int         `json:"users"`
	Turns             int         `json:"turns"`
	Windows           int         `json:"windows"`
	PendingEmbeddings int         `json:"pending_embeddings"`
	PerUser           []UserStats `json:"per_user,omitempty"`
}

// UserStats holds per-user counts.
type UserStats struct {
	UserID        string `json:"user_id"`
	Conversations int    `json:"conversations"`
	Windows       int    `json:"windows"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&st.Users)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conv_turns`).Scan(&st.Turns)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conv_windows`).Scan(&st.Windows)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conv_windows WHERE embedding IS NULL`).Scan(&st.PendingEmbeddings)

	rows, err := s.db.QueryContext(ctx, `
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
