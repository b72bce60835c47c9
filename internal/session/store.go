// Package session provides the persisted per-user conversation state store.
// Wizards survive restarts because every mutation is written through to the
// database; an in-memory map would silently drop them.
package session

import (
	"context"
	"sync"

	"log/slog"

	"promobot/core/logger"
	"promobot/internal/apperr"
	"promobot/internal/model"
)

// Repo is the persistence contract the store writes through to.
type Repo interface {
	Get(ctx context.Context, chatID int64) (*model.Session, bool, error)
	Save(ctx context.Context, chatID int64, s *model.Session) error
}

// Store serializes session access per user and surfaces persistence
// failures as StoreError, never as silent success.
type Store struct {
	repo Repo

	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore builds a session store over the given repository.
func NewStore(repo Repo) *Store {
	return &Store{repo: repo, locks: make(map[int64]*userLock)}
}

// Acquire takes the per-user lock and returns its release func. All
// handling for one update must run between Acquire and release so a user's
// session has a single writer at a time. Different users proceed in
// parallel.
func (s *Store) Acquire(chatID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &userLock{}
		s.locks[chatID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, chatID)
		}
		s.mu.Unlock()
	}
}

// Get loads the session for a chat id; found is false when none exists yet.
func (s *Store) Get(ctx context.Context, chatID int64) (*model.Session, bool, error) {
	sess, found, err := s.repo.Get(ctx, chatID)
	if err != nil {
		return nil, false, apperr.Store("session.get", err)
	}
	return sess, found, nil
}

// CreateDefault persists and returns a fresh default session. Callers must
// hold the user's lock so get-then-create stays race-free per user.
func (s *Store) CreateDefault(ctx context.Context, chatID int64) (*model.Session, error) {
	sess := model.DefaultSession()
	if err := s.repo.Save(ctx, chatID, sess); err != nil {
		return nil, apperr.Store("session.create", err)
	}
	logger.Debug(ctx, "session", "session.created",
		slog.Int64("chat_id", chatID),
	)
	return sess, nil
}

// Save persists the session. A failed save is logged and returned; the
// caller must treat the whole operation as not-succeeded.
func (s *Store) Save(ctx context.Context, chatID int64, sess *model.Session) error {
	if err := s.repo.Save(ctx, chatID, sess); err != nil {
		wrapped := apperr.Store("session.save", err)
		logger.Error(ctx, "session", "session.save_failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return wrapped
	}
	return nil
}
