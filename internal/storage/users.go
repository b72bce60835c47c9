package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"promobot/internal/apperr"
	"promobot/internal/model"
)

// UsersRepo persists subscriber profiles.
type UsersRepo struct {
	db *sqlx.DB
}

// NewUsersRepo wires a users repository onto the shared connection pool.
func NewUsersRepo(db *sqlx.DB) *UsersRepo {
	return &UsersRepo{db: db}
}

// GetByChatID loads the user linked to the given Telegram chat id.
func (r *UsersRepo) GetByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u,
		`SELECT id, chat_id, city_id, category_ids, notifications_enabled, created_at
		   FROM users WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user", chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by chat id: %w", err)
	}
	return &u, nil
}

// Create registers a new subscriber on first contact. Notifications start
// enabled; city and categories are filled by the wizards.
func (r *UsersRepo) Create(ctx context.Context, chatID int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u,
		`INSERT INTO users (chat_id, category_ids, notifications_enabled)
		 VALUES ($1, '{}', TRUE)
		 ON CONFLICT (chat_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
		 RETURNING id, chat_id, city_id, category_ids, notifications_enabled, created_at`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// UpdateCity sets the user's city preference.
func (r *UsersRepo) UpdateCity(ctx context.Context, userID, cityID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET city_id = $2 WHERE id = $1`, userID, cityID)
	if err != nil {
		return fmt.Errorf("update city: %w", err)
	}
	return requireRow(res, "user", userID)
}

// UpdateCategories replaces the user's preferred category set.
func (r *UsersRepo) UpdateCategories(ctx context.Context, userID int64, categoryIDs []int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET category_ids = $2 WHERE id = $1`,
		userID, pq.Int64Array(categoryIDs))
	if err != nil {
		return fmt.Errorf("update categories: %w", err)
	}
	return requireRow(res, "user", userID)
}

// SetNotifications toggles the soft-disable flag; users are never deleted.
func (r *UsersRepo) SetNotifications(ctx context.Context, userID int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET notifications_enabled = $2 WHERE id = $1`, userID, enabled)
	if err != nil {
		return fmt.Errorf("set notifications: %w", err)
	}
	return requireRow(res, "user", userID)
}

// FindSubscribers returns users eligible for a notification: enabled, with
// a linked chat, in the target city, and sharing at least one category. A
// null city means the promotion is citywide and matches every city.
func (r *UsersRepo) FindSubscribers(ctx context.Context, cityID sql.NullInt64, categoryIDs []int64) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, chat_id, city_id, category_ids, notifications_enabled, created_at
		   FROM users
		  WHERE notifications_enabled
		    AND chat_id IS NOT NULL
		    AND ($1::bigint IS NULL OR city_id = $1)
		    AND category_ids && $2
		  ORDER BY id`,
		cityID, pq.Int64Array(categoryIDs))
	if err != nil {
		return nil, fmt.Errorf("find subscribers: %w", err)
	}
	return users, nil
}

func requireRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}
