package engine

import (
	"context"
	"testing"

	"database/sql"

	"promobot/internal/apperr"
	"promobot/internal/callback"
	"promobot/internal/model"
)

type fakeUsers struct {
	byChat     map[int64]*model.User
	cities     map[int64]int64
	categories map[int64][]int64
	disabled   map[int64]bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byChat:     make(map[int64]*model.User),
		cities:     make(map[int64]int64),
		categories: make(map[int64][]int64),
		disabled:   make(map[int64]bool),
	}
}

func (f *fakeUsers) GetByChatID(ctx context.Context, chatID int64) (*model.User, error) {
	if u, ok := f.byChat[chatID]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user", chatID)
}

func (f *fakeUsers) Create(ctx context.Context, chatID int64) (*model.User, error) {
	u := &model.User{ID: chatID, ChatID: sql.NullInt64{Int64: chatID, Valid: true}, NotificationsEnabled: true}
	f.byChat[chatID] = u
	return u, nil
}

func (f *fakeUsers) UpdateCity(ctx context.Context, userID, cityID int64) error {
	f.cities[userID] = cityID
	return nil
}

func (f *fakeUsers) UpdateCategories(ctx context.Context, userID int64, categoryIDs []int64) error {
	f.categories[userID] = append([]int64(nil), categoryIDs...)
	return nil
}

func (f *fakeUsers) SetNotifications(ctx context.Context, userID int64, enabled bool) error {
	f.disabled[userID] = !enabled
	return nil
}

type fakeCatalog struct {
	cities []model.City
	cats   []model.Category
}

func (f *fakeCatalog) ListCities(ctx context.Context) ([]model.City, error) {
	return f.cities, nil
}

func (f *fakeCatalog) GetCity(ctx context.Context, id int64) (*model.City, error) {
	for _, c := range f.cities {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, apperr.NotFound("city", id)
}

func (f *fakeCatalog) ListCategories(ctx context.Context) ([]model.Category, error) {
	return f.cats, nil
}

func (f *fakeCatalog) GetCategories(ctx context.Context, ids []int64) ([]model.Category, error) {
	var out []model.Category
	for _, c := range f.cats {
		for _, id := range ids {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

type fakePromotions struct {
	promos []model.Promotion
}

func (f *fakePromotions) FindApprovedFor(ctx context.Context, cityID int64, categoryIDs []int64, limit, offset int) ([]model.Promotion, error) {
	if offset >= len(f.promos) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.promos) {
		end = len(f.promos)
	}
	return f.promos[offset:end], nil
}

func newTestEngine() (*Engine, *fakeUsers, *fakeCatalog) {
	users := newFakeUsers()
	catalog := &fakeCatalog{
		cities: []model.City{{ID: 1, Name: "Riga"}, {ID: 2, Name: "Tartu"}},
		cats: []model.Category{
			{ID: 3, Name: "Food"}, {ID: 5, Name: "Sport"},
			{ID: 7, Name: "Tech"}, {ID: 9, Name: "Travel"},
		},
	}
	e := New(users, catalog, &fakePromotions{}, nil, nil, nil)
	return e, users, catalog
}

func TestSelectCityOutOfContextIsRejected(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()

	_, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.SelectCity, 1))
	if !apperr.IsProtocol(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
	if sess.Flow.Kind != model.FlowNone {
		t.Fatalf("session flow changed to %q", sess.Flow.Kind)
	}
	if _, ok := users.cities[user.ID]; ok {
		t.Fatal("city was persisted despite rejection")
	}
}

func TestCityWizardChainsIntoCategoriesForNewUser(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()

	view, err := e.start(context.Background(), user, sess)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !sess.InFlow(model.FlowCity) {
		t.Fatalf("flow = %q, want city wizard", sess.Flow.Kind)
	}
	if view.Markup == nil || len(view.Markup.InlineKeyboard) == 0 {
		t.Fatal("city keyboard missing")
	}

	view, err = e.handleCallback(context.Background(), user, sess, callback.Encode(callback.SelectCity, 2))
	if err != nil {
		t.Fatalf("select city: %v", err)
	}
	if users.cities[user.ID] != 2 {
		t.Fatalf("persisted city = %d, want 2", users.cities[user.ID])
	}
	if !sess.InFlow(model.FlowAddCategories) {
		t.Fatalf("flow = %q, want add categories chain", sess.Flow.Kind)
	}
	if view.Markup == nil {
		t.Fatal("category keyboard missing")
	}
}

func TestSelectCategoryIsIdempotent(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()
	sess.StartAddCategories()
	sess.SnapshotPage([]int64{3, 5, 7, 9})

	if _, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.SelectCategory, 3)); err != nil {
		t.Fatalf("first tap: %v", err)
	}
	view, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.SelectCategory, 3))
	if err != nil {
		t.Fatalf("second tap: %v", err)
	}
	if len(sess.Flow.Selected) != 1 {
		t.Fatalf("selected = %v, want single entry", sess.Flow.Selected)
	}
	if view.Answer != "Already selected" {
		t.Fatalf("answer = %q, want idempotent toast", view.Answer)
	}
	if view.Text != "" {
		t.Fatalf("re-tap re-rendered: %q", view.Text)
	}
}

func TestSelectCategoryFromStaleKeyboardIsRejected(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()
	sess.StartAddCategories()
	sess.SnapshotPage([]int64{3, 5})

	_, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.SelectCategory, 9))
	if !apperr.IsProtocol(err) {
		t.Fatalf("err = %v, want protocol error for stale tap", err)
	}
	if len(sess.Flow.Selected) != 0 {
		t.Fatalf("selected = %v, want untouched", sess.Flow.Selected)
	}
}

func TestFinishCategoriesPersistsExactSelection(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	user.CategoryIDs = []int64{5}
	sess := model.DefaultSession()
	sess.StartAddCategories()
	sess.SnapshotPage([]int64{3, 5, 7, 9})

	for _, id := range []int64{3, 7} {
		if _, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.SelectCategory, id)); err != nil {
			t.Fatalf("select %d: %v", id, err)
		}
	}
	view, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.FinishCategories, 0))
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	got := users.categories[user.ID]
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("persisted categories = %v, want exactly [3 7]", got)
	}
	if sess.Flow.Kind != model.FlowNone {
		t.Fatalf("flow = %q, want cleared", sess.Flow.Kind)
	}
	if view.Markup == nil {
		t.Fatal("main menu missing after finish")
	}
}

func TestFinishWithEmptySelectionIsValidationError(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()
	sess.StartAddCategories()

	_, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.FinishCategories, 0))
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !sess.InFlow(model.FlowAddCategories) {
		t.Fatal("flow dropped on validation failure")
	}
}

func TestCancelResetsToDefaultFromAnyState(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()
	sess.StartAddCategories()
	sess.Page = 2
	sess.SelectCategory(3)

	view, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.Cancel, 0))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	want := model.DefaultSession()
	if sess.Flow.Kind != want.Flow.Kind || sess.Page != want.Page || sess.PromotionPage != want.PromotionPage {
		t.Fatalf("session = %+v, want default", sess)
	}
	if len(sess.Flow.Selected) != 0 {
		t.Fatalf("selected = %v, want empty", sess.Flow.Selected)
	}
	if view.Markup == nil {
		t.Fatal("main menu missing after cancel")
	}
}

func TestRemoveWizardSubtractsMarkedCategories(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	user.CategoryIDs = []int64{3, 5, 7}
	sess := model.DefaultSession()

	if _, err := e.removeCategories(context.Background(), user, sess); err != nil {
		t.Fatalf("removeCategories: %v", err)
	}
	if !sess.InFlow(model.FlowRemoveCategories) {
		t.Fatalf("flow = %q", sess.Flow.Kind)
	}
	if _, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.RemoveCategory, 5)); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.FinishRemoveCategories, 0)); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got := users.categories[user.ID]
	if len(got) != 2 || got[0] != 3 || got[1] != 7 {
		t.Fatalf("remaining = %v, want [3 7]", got)
	}
	if sess.Flow.Kind != model.FlowNone {
		t.Fatalf("flow = %q, want cleared", sess.Flow.Kind)
	}
}

func TestRemoveCategoryNotOwnedIsValidationError(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	user.CategoryIDs = []int64{3}
	sess := model.DefaultSession()
	sess.StartRemoveCategories()
	sess.SnapshotPage([]int64{3, 5})

	_, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.RemoveCategory, 5))
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestCategoryPaginationKeepsFlow(t *testing.T) {
	e, users, catalog := newTestEngine()
	for i := int64(11); i <= 20; i++ {
		catalog.cats = append(catalog.cats, model.Category{ID: i, Name: "Extra"})
	}
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()
	if _, err := e.setCategories(context.Background(), user, sess); err != nil {
		t.Fatalf("setCategories: %v", err)
	}
	firstPage := append([]int64(nil), sess.Flow.PageCategoryIDs...)

	if _, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.NextPage, 2)); err != nil {
		t.Fatalf("next page: %v", err)
	}
	if !sess.InFlow(model.FlowAddCategories) {
		t.Fatalf("flow = %q, want unchanged", sess.Flow.Kind)
	}
	if sess.Page != 2 {
		t.Fatalf("page = %d, want 2", sess.Page)
	}
	if len(sess.Flow.PageCategoryIDs) == 0 || sess.Flow.PageCategoryIDs[0] == firstPage[0] {
		t.Fatal("page snapshot not refreshed")
	}
}

func TestCategoryPaginationOutsideWizardIsRejected(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()

	_, err := e.handleCallback(context.Background(), user, sess, callback.Encode(callback.NextPage, 2))
	if !apperr.IsProtocol(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestUnknownActionIsProtocolError(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()

	_, err := e.handleCallback(context.Background(), user, sess, "boost_3")
	if !apperr.IsProtocol(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestStartReenablesNotifications(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	user.CityID = sql.NullInt64{Int64: 1, Valid: true}
	user.NotificationsEnabled = false
	users.disabled[user.ID] = true
	sess := model.DefaultSession()

	if _, err := e.start(context.Background(), user, sess); err != nil {
		t.Fatalf("start: %v", err)
	}
	if users.disabled[user.ID] {
		t.Fatal("notifications still disabled after /start")
	}
	if !user.NotificationsEnabled {
		t.Fatal("in-memory user not updated")
	}
}

func TestPromotionsRequireProfile(t *testing.T) {
	e, users, _ := newTestEngine()
	user, _ := users.Create(context.Background(), 10)
	sess := model.DefaultSession()

	_, err := e.promotions(context.Background(), user, sess)
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want validation error for missing city", err)
	}

	user.CityID = sql.NullInt64{Int64: 1, Valid: true}
	_, err = e.promotions(context.Background(), user, sess)
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want validation error for missing categories", err)
	}
}
