// Package engine implements the conversation core: commands, wizards, and
// callback handling. Handlers are written against small repository
// interfaces and return views; the telebot binding lives in bind.go.
package engine

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"promobot/internal/apperr"
	"promobot/internal/model"
)

const (
	categoriesPerPage = 6
	promotionsPerPage = 3
)

// Users is the subscriber repository surface the engine needs.
type Users interface {
	GetByChatID(ctx context.Context, chatID int64) (*model.User, error)
	Create(ctx context.Context, chatID int64) (*model.User, error)
	UpdateCity(ctx context.Context, userID, cityID int64) error
	UpdateCategories(ctx context.Context, userID int64, categoryIDs []int64) error
	SetNotifications(ctx context.Context, userID int64, enabled bool) error
}

// Catalog reads the city and category reference data.
type Catalog interface {
	ListCities(ctx context.Context) ([]model.City, error)
	GetCity(ctx context.Context, id int64) (*model.City, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategories(ctx context.Context, ids []int64) ([]model.Category, error)
}

// Promotions serves the personalised promotions view.
type Promotions interface {
	FindApprovedFor(ctx context.Context, cityID int64, categoryIDs []int64, limit, offset int) ([]model.Promotion, error)
}

// Sessions is the per-user conversation state store.
type Sessions interface {
	Acquire(chatID int64) func()
	Get(ctx context.Context, chatID int64) (*model.Session, bool, error)
	CreateDefault(ctx context.Context, chatID int64) (*model.Session, error)
	Save(ctx context.Context, chatID int64, sess *model.Session) error
}

// Sweeper triggers a publication pass outside the timer, for the admin
// command.
type Sweeper interface {
	RunSweep(ctx context.Context)
}

// Replier is the outbound transport surface used by the binding.
type Replier interface {
	Reply(ctx context.Context, c tele.Context, what interface{}, opts ...interface{}) error
	Send(ctx context.Context, c tele.Context, what interface{}, opts ...interface{}) error
	Answer(ctx context.Context, c tele.Context, text string) error
}

// View is the engine's answer to one update: an optional callback toast and
// an optional message with keyboard.
type View struct {
	Text   string
	Markup *tele.ReplyMarkup
	// Answer is shown as a callback toast; empty means a silent ack.
	Answer string
}

// Engine wires the conversation handlers to their dependencies.
type Engine struct {
	users    Users
	catalog  Catalog
	promos   Promotions
	sessions Sessions
	sweeper  Sweeper
	tx       Replier
}

// New builds the engine. The sweeper may be nil; the admin publish command
// then reports it as unavailable.
func New(users Users, catalog Catalog, promos Promotions, sessions Sessions, sweeper Sweeper, tx Replier) *Engine {
	return &Engine{
		users:    users,
		catalog:  catalog,
		promos:   promos,
		sessions: sessions,
		sweeper:  sweeper,
		tx:       tx,
	}
}

// loadUser fetches the subscriber for a chat, registering them on first
// contact.
func (e *Engine) loadUser(ctx context.Context, chatID int64) (*model.User, error) {
	u, err := e.users.GetByChatID(ctx, chatID)
	if apperr.IsNotFound(err) {
		return e.users.Create(ctx, chatID)
	}
	return u, err
}

// loadSession fetches the conversation state for a chat, creating the
// default one on first contact. The caller must hold the chat's lock.
func (e *Engine) loadSession(ctx context.Context, chatID int64) (*model.Session, error) {
	sess, found, err := e.sessions.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !found {
		return e.sessions.CreateDefault(ctx, chatID)
	}
	return sess, nil
}
