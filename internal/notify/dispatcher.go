// Package notify fans a published promotion out to matching subscribers.
package notify

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"promobot/core/logger"
	"promobot/core/telegram/format"
	"promobot/internal/model"
)

// PromotionSource provides the promotion being dispatched.
type PromotionSource interface {
	GetByID(ctx context.Context, id int64) (*model.Promotion, error)
}

// SubscriberSource selects the eligible recipients.
type SubscriberSource interface {
	FindSubscribers(ctx context.Context, cityID sql.NullInt64, categoryIDs []int64) ([]model.User, error)
}

// Sender delivers one message to one chat.
type Sender interface {
	SendTo(ctx context.Context, chatID int64, what interface{}, opts ...interface{}) error
}

// Dispatcher sends notifications sequentially, pausing after each failed
// delivery so one throttled recipient does not cascade into flood errors
// for the rest.
type Dispatcher struct {
	promos  PromotionSource
	users   SubscriberSource
	sender  Sender
	backoff time.Duration
	sleep   func(time.Duration)
}

// NewDispatcher builds a dispatcher with the fixed 300ms failure backoff.
func NewDispatcher(promos PromotionSource, users SubscriberSource, sender Sender) *Dispatcher {
	return &Dispatcher{
		promos:  promos,
		users:   users,
		sender:  sender,
		backoff: 300 * time.Millisecond,
		sleep:   time.Sleep,
	}
}

// Dispatch refetches the promotion, validates it is still publishable, and
// delivers it to every matching subscriber exactly once. Each recipient gets
// a single attempt; a failure is logged and the fan-out moves on.
func (d *Dispatcher) Dispatch(ctx context.Context, promotionID int64) error {
	p, err := d.promos.GetByID(ctx, promotionID)
	if err != nil {
		return err
	}
	if p.Status != model.PromotionApproved || p.IsDeleted {
		logger.Info(ctx, "notify", "dispatch.skipped",
			slog.Int64("promotion_id", p.ID),
			slog.String("status", string(p.Status)),
		)
		return nil
	}

	subs, err := d.users.FindSubscribers(ctx, p.CityID, p.CategoryIDs)
	if err != nil {
		return err
	}

	what := renderContent(p)

	seen := make(map[int64]struct{}, len(subs))
	sent, failed := 0, 0
	for _, u := range subs {
		if !u.ChatID.Valid {
			continue
		}
		chatID := u.ChatID.Int64
		if _, dup := seen[chatID]; dup {
			continue
		}
		seen[chatID] = struct{}{}

		if err := d.sender.SendTo(ctx, chatID, what, tele.ModeMarkdownV2); err != nil {
			failed++
			logger.Warn(ctx, "notify", "dispatch.send_failed",
				slog.Int64("promotion_id", p.ID),
				slog.Int64("chat_id", chatID),
				slog.String("err", err.Error()),
			)
			d.sleep(d.backoff)
			continue
		}
		sent++
	}

	logger.Info(ctx, "notify", "dispatch.done",
		slog.Int64("promotion_id", p.ID),
		slog.Int("recipients", len(seen)),
		slog.Int("sent", sent),
		slog.Int("failed", failed),
	)
	return nil
}

// renderContent produces the outbound message: a photo with caption when the
// promotion carries an image, plain text otherwise.
func renderContent(p *model.Promotion) interface{} {
	text := RenderMessage(p)
	if p.ImageURL.Valid && p.ImageURL.String != "" {
		return &tele.Photo{File: tele.FromURL(p.ImageURL.String), Caption: text}
	}
	return text
}

// RenderMessage builds the MarkdownV2 notification body.
func RenderMessage(p *model.Promotion) string {
	var b strings.Builder
	b.WriteString(format.Bold(p.Title))
	b.WriteString("\n\n")
	b.WriteString(format.EscapeV2(p.Description))
	b.WriteString("\n\n")
	dates := p.StartDate.Format("02.01.2006") + " - " + p.EndDate.Format("02.01.2006")
	b.WriteString(format.EscapeV2("Valid: " + dates))
	if p.Link.Valid && p.Link.String != "" {
		b.WriteString("\n")
		b.WriteString(format.Link("More details", p.Link.String))
	}
	return b.String()
}
