package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"promobot/internal/model"
)

// SessionsRepo persists per-user conversation state as a JSON document so
// in-flight wizards survive process restarts.
type SessionsRepo struct {
	db *sqlx.DB
}

// NewSessionsRepo wires a sessions repository onto the shared pool.
func NewSessionsRepo(db *sqlx.DB) *SessionsRepo {
	return &SessionsRepo{db: db}
}

// Get loads the session for a chat id. The second return value reports
// whether a session row exists.
func (r *SessionsRepo) Get(ctx context.Context, chatID int64) (*model.Session, bool, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw,
		`SELECT data FROM sessions WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, fmt.Errorf("decode session: %w", err)
	}
	return &s, true, nil
}

// Save upserts the session document for a chat id.
func (r *SessionsRepo) Save(ctx context.Context, chatID int64, s *model.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (chat_id, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (chat_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		chatID, raw)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
