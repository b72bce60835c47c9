package engine

import (
	"context"
	"fmt"

	"promobot/internal/apperr"
	"promobot/internal/callback"
	"promobot/internal/model"
)

// handleCallback decodes a tapped button and routes it through the closed
// action vocabulary. Every branch validates the session is actually in the
// state the button belongs to; stale taps fail as protocol errors without
// touching the session.
func (e *Engine) handleCallback(ctx context.Context, user *model.User, sess *model.Session, data string) (View, error) {
	p, err := callback.Decode(data)
	if err != nil {
		return View{}, err
	}

	switch p.Action {
	case callback.SelectCity:
		return e.onSelectCity(ctx, user, sess, p.ID)
	case callback.SelectCategory:
		return e.onSelectCategory(ctx, sess, p.ID)
	case callback.RemoveCategory:
		return e.onRemoveCategory(ctx, user, sess, p.ID)
	case callback.FinishCategories:
		return e.onFinishCategories(ctx, user, sess)
	case callback.FinishRemoveCategories:
		return e.onFinishRemoveCategories(ctx, user, sess)
	case callback.Cancel:
		return e.onCancel(sess)
	case callback.PrevPage, callback.NextPage:
		return e.onCategoryPage(ctx, user, sess, p.Page)
	case callback.PrevPromotionPage, callback.NextPromotionPage:
		return e.onPromotionPage(ctx, user, sess, p.Page)
	}
	return View{}, apperr.Protocolf("unroutable action %q", p.Action)
}

func (e *Engine) onSelectCity(ctx context.Context, user *model.User, sess *model.Session, cityID int64) (View, error) {
	if !sess.InFlow(model.FlowCity) {
		return View{}, apperr.Protocolf("no city selection in progress")
	}
	city, err := e.catalog.GetCity(ctx, cityID)
	if err != nil {
		return View{}, err
	}
	if err := e.users.UpdateCity(ctx, user.ID, city.ID); err != nil {
		return View{}, err
	}
	user.CityID.Int64, user.CityID.Valid = city.ID, true

	// First-time setup flows straight into category selection.
	if len(user.CategoryIDs) == 0 {
		sess.StartAddCategories()
		sess.Page = 1
		view, err := e.renderAddPage(ctx, sess)
		if err != nil {
			return View{}, err
		}
		view.Text = "City set to " + city.Name + ".\n\n" + view.Text
		view.Answer = "City saved"
		return view, nil
	}

	sess.ClearFlow()
	return View{
		Text:   "City set to " + city.Name + ".",
		Markup: mainMenu(),
		Answer: "City saved",
	}, nil
}

func (e *Engine) onSelectCategory(ctx context.Context, sess *model.Session, categoryID int64) (View, error) {
	if !sess.InFlow(model.FlowAddCategories) {
		return View{}, apperr.Protocolf("no category selection in progress")
	}
	if !sess.OnRenderedPage(categoryID) {
		return View{}, apperr.Protocolf("category %d is not on the current keyboard", categoryID)
	}
	cats, err := e.catalog.GetCategories(ctx, []int64{categoryID})
	if err != nil {
		return View{}, err
	}
	if len(cats) == 0 {
		return View{}, apperr.NotFound("category", categoryID)
	}

	if !sess.SelectCategory(categoryID) {
		// Re-tap of an already selected button is a silent no-op.
		return View{Answer: "Already selected"}, nil
	}
	view, err := e.renderAddPage(ctx, sess)
	if err != nil {
		return View{}, err
	}
	view.Answer = "Added " + cats[0].Name
	return view, nil
}

func (e *Engine) onRemoveCategory(ctx context.Context, user *model.User, sess *model.Session, categoryID int64) (View, error) {
	if !sess.InFlow(model.FlowRemoveCategories) {
		return View{}, apperr.Protocolf("no category removal in progress")
	}
	if !sess.OnRenderedPage(categoryID) {
		return View{}, apperr.Protocolf("category %d is not on the current keyboard", categoryID)
	}
	if !containsID(user.CategoryIDs, categoryID) {
		return View{}, apperr.Validationf("that category is not in your list")
	}

	if !sess.MarkForRemoval(categoryID) {
		return View{Answer: "Already marked"}, nil
	}
	view, err := e.renderRemovePage(ctx, user, sess)
	if err != nil {
		return View{}, err
	}
	view.Answer = "Marked for removal"
	return view, nil
}

func (e *Engine) onFinishCategories(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if !sess.InFlow(model.FlowAddCategories) {
		return View{}, apperr.Protocolf("no category selection in progress")
	}
	selected := sess.Flow.Selected
	if len(selected) == 0 {
		return View{}, apperr.Validationf("pick at least one category first")
	}
	if err := e.users.UpdateCategories(ctx, user.ID, selected); err != nil {
		return View{}, err
	}
	user.CategoryIDs = append([]int64(nil), selected...)
	sess.ClearFlow()
	sess.Page = 1
	return View{
		Text:   fmt.Sprintf("Saved %d categories. You will be notified about matching promotions.", len(selected)),
		Markup: mainMenu(),
		Answer: "Saved",
	}, nil
}

func (e *Engine) onFinishRemoveCategories(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	if !sess.InFlow(model.FlowRemoveCategories) {
		return View{}, apperr.Protocolf("no category removal in progress")
	}
	toRemove := sess.Flow.ToRemove
	if len(toRemove) == 0 {
		return View{}, apperr.Validationf("mark at least one category to remove")
	}

	remaining := make([]int64, 0, len(user.CategoryIDs))
	for _, id := range user.CategoryIDs {
		if !containsID(toRemove, id) {
			remaining = append(remaining, id)
		}
	}
	if err := e.users.UpdateCategories(ctx, user.ID, remaining); err != nil {
		return View{}, err
	}
	user.CategoryIDs = remaining
	sess.ClearFlow()
	sess.Page = 1
	return View{
		Text:   fmt.Sprintf("Removed %d categories, %d left.", len(toRemove), len(remaining)),
		Markup: mainMenu(),
		Answer: "Removed",
	}, nil
}

// onCancel aborts whatever is in progress from any state.
func (e *Engine) onCancel(sess *model.Session) (View, error) {
	sess.Reset()
	return View{
		Text:   "Cancelled.",
		Markup: mainMenu(),
		Answer: "Cancelled",
	}, nil
}

// onCategoryPage repaints the active category keyboard at another page.
// Pagination never changes the flow, only the page.
func (e *Engine) onCategoryPage(ctx context.Context, user *model.User, sess *model.Session, page int) (View, error) {
	switch {
	case sess.InFlow(model.FlowAddCategories):
		sess.Page = page
		return e.renderAddPage(ctx, sess)
	case sess.InFlow(model.FlowRemoveCategories):
		sess.Page = page
		return e.renderRemovePage(ctx, user, sess)
	}
	return View{}, apperr.Protocolf("no category keyboard is active")
}

func (e *Engine) onPromotionPage(ctx context.Context, user *model.User, sess *model.Session, page int) (View, error) {
	sess.PromotionPage = page
	return e.promotionsPage(ctx, user, sess)
}

// renderAddPage paints the add-wizard keyboard at sess.Page, clamping the
// page and refreshing the stale-tap snapshot.
func (e *Engine) renderAddPage(ctx context.Context, sess *model.Session) (View, error) {
	cats, err := e.catalog.ListCategories(ctx)
	if err != nil {
		return View{}, err
	}
	markup, pageIDs, page := categoryKeyboard(cats, sess.Page, sess.Flow.Selected,
		callback.SelectCategory, callback.NextPage, callback.FinishCategories)
	sess.Page = page
	sess.SnapshotPage(pageIDs)
	return View{
		Text:   "Pick the categories you are interested in, then press Done:",
		Markup: markup,
	}, nil
}

// renderRemovePage paints the remove-wizard keyboard over the user's
// current categories.
func (e *Engine) renderRemovePage(ctx context.Context, user *model.User, sess *model.Session) (View, error) {
	cats, err := e.catalog.GetCategories(ctx, user.CategoryIDs)
	if err != nil {
		return View{}, err
	}
	markup, pageIDs, page := categoryKeyboard(cats, sess.Page, sess.Flow.ToRemove,
		callback.RemoveCategory, callback.NextPage, callback.FinishRemoveCategories)
	sess.Page = page
	sess.SnapshotPage(pageIDs)
	return View{
		Text:   "Pick the categories to remove, then press Done:",
		Markup: markup,
	}, nil
}
