package engine

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	tg "promobot/core/telegram"
	"promobot/core/telegram/commands"
	tghelpers "promobot/core/telegram/helpers"
	"promobot/internal/apperr"
	"promobot/internal/callback"
	"promobot/internal/model"
)

type operation func(ctx context.Context, user *model.User, sess *model.Session) (View, error)

// Register wires every command and callback action into the registry.
func (e *Engine) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     e.command("start", e.start),
		Description: "Register and set up your profile",
	})
	reg.RegisterCommand("/setcity", commands.Command{
		Handler:     e.command("setcity", e.setCity),
		Description: "Choose your city",
	})
	reg.RegisterCommand("/viewcity", commands.Command{
		Handler:     e.command("viewcity", e.viewCity),
		Description: "Show your current city",
	})
	reg.RegisterCommand("/setcategories", commands.Command{
		Handler:     e.command("setcategories", e.setCategories),
		Description: "Pick promotion categories",
	})
	reg.RegisterCommand("/viewcategories", commands.Command{
		Handler:     e.command("viewcategories", e.viewCategories),
		Description: "Show your categories",
	})
	reg.RegisterCommand("/removecategories", commands.Command{
		Handler:     e.command("removecategories", e.removeCategories),
		Description: "Remove some categories",
	})
	reg.RegisterCommand("/promotions", commands.Command{
		Handler:     e.command("promotions", e.promotions),
		Description: "Browse promotions picked for you",
	})
	reg.RegisterCommand("/disable_notifications", commands.Command{
		Handler:     e.command("disable_notifications", e.disableNotifications),
		Description: "Stop receiving notifications",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     e.command("help", e.help),
		Description: "Show what I can do",
		Aliases:     []string{"commands"},
	})
	reg.RegisterCommand("/publish_due", commands.Command{
		Handler:     e.command("publish_due", e.publishDue),
		Description: "Run the publication sweep now",
		AdminOnly:   true,
		Hidden:      true,
	})

	cb := e.callbackHandler()
	for _, action := range []callback.Action{
		callback.SelectCity,
		callback.SelectCategory,
		callback.RemoveCategory,
		callback.FinishCategories,
		callback.FinishRemoveCategories,
		callback.Cancel,
		callback.PrevPage,
		callback.NextPage,
		callback.PrevPromotionPage,
		callback.NextPromotionPage,
	} {
		_ = reg.RegisterCallback(string(action), cb)
	}
	reg.SetCallbackNotFound(e.unknownCallback())
	reg.SetTextFallback(e.command("fallback", e.help))
}

// command adapts an operation into a telebot handler with the standard
// per-user envelope: acquire the session lock, load state, run, persist.
func (e *Engine) command(name string, op operation) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, name)
		chatID := c.Sender().ID

		release := e.sessions.Acquire(chatID)
		defer release()

		view, err := e.execute(ctx, chatID, op)
		if err != nil {
			e.respondFailure(ctx, c, err)
			return err
		}
		return e.render(ctx, c, view)
	}
}

// callbackHandler serves every registered callback action. The compact form
// is reassembled from telebot's unique/data framing and decoded inside the
// operation so validation lives in one place.
func (e *Engine) callbackHandler() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		chatID := c.Sender().ID
		data := callback.Join(cb.Unique, cb.Data)

		release := e.sessions.Acquire(chatID)
		defer release()

		view, err := e.execute(ctx, chatID, func(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
			return e.handleCallback(ctx, user, sess, data)
		})
		if err != nil {
			e.respondFailure(ctx, c, err)
			return err
		}

		_ = e.tx.Answer(ctx, c, view.Answer)
		return e.render(ctx, c, view)
	}
}

// unknownCallback answers taps whose key is outside the registry. It runs
// through the same uniform failure response as an in-vocabulary decode
// error.
func (e *Engine) unknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, "callback.unknown")
		err := apperr.Protocolf("unknown callback key")
		e.respondFailure(ctx, c, err)
		return err
	}
}

// execute loads user and session under the held lock, runs the operation,
// and persists the session on every exit path. A failed save overrides a
// successful operation result.
func (e *Engine) execute(ctx context.Context, chatID int64, op operation) (View, error) {
	user, err := e.loadUser(ctx, chatID)
	if err != nil {
		return View{}, err
	}
	sess, err := e.loadSession(ctx, chatID)
	if err != nil {
		return View{}, err
	}

	view, opErr := op(ctx, user, sess)
	if saveErr := e.sessions.Save(ctx, chatID, sess); saveErr != nil && opErr == nil {
		return View{}, saveErr
	}
	if opErr != nil {
		return View{}, opErr
	}
	return view, nil
}

func (e *Engine) render(ctx context.Context, c tele.Context, view View) error {
	if view.Text == "" {
		return nil
	}
	if view.Markup == nil {
		return e.tx.Reply(ctx, c, view.Text)
	}
	// A reply keyboard cannot be attached by editing; it needs a fresh
	// message.
	if view.Markup.InlineKeyboard == nil {
		return e.tx.Send(ctx, c, view.Text, view.Markup)
	}
	return e.tx.Reply(ctx, c, view.Text, view.Markup)
}

// respondFailure sends the uniform error response: a short explanation and
// the main menu, so the user is never left on a dead keyboard. The original
// error still propagates to the router for logging.
func (e *Engine) respondFailure(ctx context.Context, c tele.Context, err error) {
	text := userMessage(err)
	if c.Callback() != nil {
		_ = e.tx.Answer(ctx, c, text)
	}
	_ = e.tx.Send(ctx, c, text, mainMenu())
}

// userMessage maps the error taxonomy to what the user should read.
func userMessage(err error) string {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		return "That didn't work: " + ve.Msg + "."
	}
	switch {
	case apperr.IsProtocol(err):
		return "This button is no longer active. Use the menu below."
	case apperr.IsNotFound(err):
		return "That option is no longer available."
	default:
		return "Something went wrong. Please try again."
	}
}
