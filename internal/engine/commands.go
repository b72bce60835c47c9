package engine

import (
	"context"

	"promobot/core/telegram/keyboard"
	"promobot/internal/apperr"
	"promobot/internal/model"
)

const helpText = `What I can do:

/start - register and set up your profile
/setcity - choose your city
/viewcity - show your current city
/setcategories - pick promotion categories
/viewcategories - show your categories
/removecategories - remove some categories
/promotions - browse promotions picked for you
/disable_notifications - stop receiving notifications
/help - this message`

// start greets the user and, on first contact, walks straight into the city
// wizard so notifications can start matching. It also re-enables delivery
// for users who previously opted out.
func (e *Engine) start(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if !user.NotificationsEnabled {
		if err := e.users.SetNotifications(ctx, user.ID, true); err != nil {
			return View{}, err
		}
		user.NotificationsEnabled = true
	}
	if !user.HasCity() {
		view, err := e.beginCityWizard(ctx, sess)
		if err != nil {
			return View{}, err
		}
		view.Text = "Welcome! I will send you promotions for your city and interests.\n\n" + view.Text
		return view, nil
	}
	sess.Reset()
	return View{
		Text:   "Welcome back! Use /promotions to browse deals or /help to see everything I can do.",
		Markup: mainMenu(),
	}, nil
}

// beginCityWizard flips the session into city selection and renders the
// city keyboard.
func (e *Engine) beginCityWizard(ctx context.Context, sess *model.Session) (View, error) {
	cities, err := e.catalog.ListCities(ctx)
	if err != nil {
		return View{}, err
	}
	if len(cities) == 0 {
		return View{}, apperr.Validationf("no cities are available yet, try again later")
	}
	sess.StartCityWizard()
	return View{
		Text:   "Choose your city:",
		Markup: cityKeyboard(cities),
	}, nil
}

func (e *Engine) setCity(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	return e.beginCityWizard(ctx, sess)
}

func (e *Engine) viewCity(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if !user.HasCity() {
		return View{Text: "You have not chosen a city yet. Use /setcity to pick one."}, nil
	}
	city, err := e.catalog.GetCity(ctx, user.CityID.Int64)
	if err != nil {
		return View{}, err
	}
	return View{Text: "Your city: " + city.Name}, nil
}

// setCategories enters the category-add wizard on page one.
func (e *Engine) setCategories(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	cats, err := e.catalog.ListCategories(ctx)
	if err != nil {
		return View{}, err
	}
	if len(cats) == 0 {
		return View{}, apperr.Validationf("no categories are available yet, try again later")
	}
	sess.StartAddCategories()
	sess.Page = 1
	return e.renderAddPage(ctx, sess)
}

func (e *Engine) viewCategories(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if len(user.CategoryIDs) == 0 {
		return View{Text: "You have no categories yet. Use /setcategories to pick some."}, nil
	}
	cats, err := e.catalog.GetCategories(ctx, user.CategoryIDs)
	if err != nil {
		return View{}, err
	}
	return View{Text: "Your categories: " + categoryNames(cats)}, nil
}

// removeCategories enters the removal wizard over the user's current set.
func (e *Engine) removeCategories(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if len(user.CategoryIDs) == 0 {
		return View{Text: "You have no categories to remove."}, nil
	}
	sess.StartRemoveCategories()
	sess.Page = 1
	return e.renderRemovePage(ctx, user, sess)
}

// promotions shows page one of the personalised feed.
func (e *Engine) promotions(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	sess.PromotionPage = 1
	return e.promotionsPage(ctx, user, sess)
}

// promotionsPage renders the feed at sess.PromotionPage. One extra row is
// fetched to detect whether a next page exists.
func (e *Engine) promotionsPage(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if !user.HasCity() {
		return View{}, apperr.Validationf("choose a city first with /setcity")
	}
	if len(user.CategoryIDs) == 0 {
		return View{}, apperr.Validationf("pick categories first with /setcategories")
	}

	page := sess.PromotionPage
	if page < 1 {
		page = 1
		sess.PromotionPage = 1
	}
	offset := (page - 1) * promotionsPerPage
	promos, err := e.promos.FindApprovedFor(ctx, user.CityID.Int64, user.CategoryIDs, promotionsPerPage+1, offset)
	if err != nil {
		return View{}, err
	}
	if len(promos) == 0 {
		if page > 1 {
			// Stale pagination tap past the end; fall back to page one.
			sess.PromotionPage = 1
			return e.promotionsPage(ctx, user, sess)
		}
		return View{Text: "No promotions match your city and categories right now."}, nil
	}

	hasNext := len(promos) > promotionsPerPage
	if hasNext {
		promos = promos[:promotionsPerPage]
	}
	return View{
		Text:   promotionsText(promos, page),
		Markup: promotionsNav(page, hasNext),
	}, nil
}

// disableNotifications soft-disables delivery; the profile stays intact.
// The menu keyboard is taken down so the chat looks dormant.
func (e *Engine) disableNotifications(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if err := e.users.SetNotifications(ctx, user.ID, false); err != nil {
		return View{}, err
	}
	return View{
		Text:   "Notifications disabled. Send /start any time to come back.",
		Markup: keyboard.RemoveKeyboard(),
	}, nil
}

func (e *Engine) help(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	return View{Text: helpText, Markup: mainMenu()}, nil
}

// publishDue runs the publication sweep on demand. Registered admin-only.
func (e *Engine) publishDue(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if e.sweeper == nil {
		return View{Text: "Publication sweep is not available."}, nil
	}
	e.sweeper.RunSweep(ctx)
	return View{Text: "Publication sweep completed."}, nil
}
