// Package transport wraps outbound Telegram calls with classified error
// recovery. Handlers and the dispatcher never see raw telebot errors, only
// the TransportError taxonomy.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"promobot/core/logger"
	"promobot/core/telegram/netutil"
	"promobot/internal/apperr"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// API is the slice of the bot client the adapter needs.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Respond(cb *tele.Callback, resp ...*tele.CallbackResponse) error
}

// Adapter executes Telegram calls synchronously, retrying transient network
// failures and translating API rejections into TransportError values.
type Adapter struct {
	api     API
	retries int
	backoff time.Duration
	sleep   func(time.Duration)
}

// New builds an adapter with three network retries and linear backoff.
func New(api API) *Adapter {
	return &Adapter{
		api:     api,
		retries: 3,
		backoff: 500 * time.Millisecond,
		sleep:   time.Sleep,
	}
}

// Bind attaches the API client after construction. The bot client only
// exists once the runtime is up; Bind must run before updates are handled.
func (a *Adapter) Bind(api API) {
	a.api = api
}

// SendTo delivers a message to a chat by id. Used by the notification
// dispatcher where no update context exists.
func (a *Adapter) SendTo(ctx context.Context, chatID int64, what interface{}, opts ...interface{}) error {
	return a.attempt(ctx, "send", func() error {
		_, err := a.api.Send(tele.ChatID(chatID), what, opts...)
		return err
	})
}

// Send always delivers a fresh message to the chat behind c, even when the
// update is a callback. Used for responses that carry a reply keyboard,
// which cannot be attached by editing.
func (a *Adapter) Send(ctx context.Context, c tele.Context, what interface{}, opts ...interface{}) error {
	return a.attempt(ctx, "send", func() error {
		_, err := a.api.Send(c.Chat(), what, opts...)
		return err
	})
}

// Reply answers the update behind c. For callback taps it edits the message
// that carried the keyboard; when Telegram refuses the edit because the
// message is too old or already replaced, it falls back to a fresh send.
// An edit rejected as identical content counts as success.
func (a *Adapter) Reply(ctx context.Context, c tele.Context, what interface{}, opts ...interface{}) error {
	if c.Callback() == nil || c.Message() == nil {
		return a.attempt(ctx, "send", func() error {
			_, err := a.api.Send(c.Chat(), what, opts...)
			return err
		})
	}

	err := a.attempt(ctx, "edit", func() error {
		_, err := a.api.Edit(c.Message(), what, opts...)
		return err
	})
	switch {
	case err == nil:
		return nil
	case apperr.TransportKindOf(err) == apperr.KindSameContent:
		return nil
	case apperr.TransportKindOf(err) == apperr.KindNotEditable:
		logger.Debug(ctx, "transport", "edit.fallback_send",
			slog.Int64("chat_id", c.Chat().ID),
		)
		return a.attempt(ctx, "send", func() error {
			_, err := a.api.Send(c.Chat(), what, opts...)
			return err
		})
	default:
		return err
	}
}

// Answer acknowledges a callback query so the client stops its spinner.
func (a *Adapter) Answer(ctx context.Context, c tele.Context, text string) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	return a.attempt(ctx, "answer", func() error {
		return a.api.Respond(cb, &tele.CallbackResponse{Text: text})
	})
}

// attempt runs one API call, retrying only transient network failures.
// Every other failure is classified and returned on the first attempt.
func (a *Adapter) attempt(ctx context.Context, op string, call func() error) error {
	attempts := a.retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperr.Transport(apperr.KindNetwork, op, err)
		}

		err := call()
		if err == nil {
			if attempt > 1 {
				logger.Info(ctx, "transport", "send.retry.success",
					slog.String("action", op),
					slog.Int("attempts", attempt),
				)
			}
			return nil
		}
		lastErr = err

		kind := classify(err)
		if kind != apperr.KindNetwork || attempt == attempts {
			logFailure(ctx, op, kind, err, attempt)
			return apperr.Transport(kind, op, err)
		}

		delay := a.backoff * time.Duration(attempt)
		logger.Debug(ctx, "transport", "send.retry.backoff",
			slog.String("action", op),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
			slog.String("err", sanitizeErrorMessage(err)),
		)
		a.sleep(delay)
	}
	return apperr.Transport(apperr.KindNetwork, op, lastErr)
}

func classify(err error) apperr.TransportKind {
	switch {
	case errors.Is(err, tele.ErrSameMessageContent):
		return apperr.KindSameContent
	case errors.Is(err, tele.ErrCantEditMessage):
		return apperr.KindNotEditable
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrNotStartedByUser):
		return apperr.KindBlocked
	}

	if netutil.ShouldRetry(err) {
		return apperr.KindNetwork
	}
	switch status := httpStatusFromError(err); {
	case status == http.StatusTooManyRequests:
		return apperr.KindFlood
	case status >= 500:
		return apperr.KindNetwork
	}
	return apperr.KindUnknown
}

func logFailure(ctx context.Context, op string, kind apperr.TransportKind, err error, attempts int) {
	logger.Error(ctx, "transport", "send.fail",
		slog.String("action", op),
		slog.String("err_kind", string(kind)),
		slog.String("err", sanitizeErrorMessage(err)),
		slog.Int("attempts", attempts),
	)
}

// sanitizeErrorMessage prevents accidental leakage of the bot token in logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func httpStatusFromError(err error) int {
	if err == nil {
		return 0
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}

	msg := err.Error()
	lastOpen := strings.LastIndex(msg, "(")
	lastClose := strings.LastIndex(msg, ")")
	if lastOpen >= 0 && lastClose > lastOpen+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[lastOpen+1 : lastClose])); convErr == nil {
			return code
		}
	}
	return 0
}
