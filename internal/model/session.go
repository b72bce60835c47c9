package model

// FlowKind names the wizard a session is currently inside. Exactly one flow
// can be active at a time; representing it as a single tagged value makes
// the "two awaiting flags at once" state unrepresentable.
type FlowKind string

const (
	// FlowNone means no wizard is in progress.
	FlowNone FlowKind = "none"
	// FlowCity means the session awaits a city selection.
	FlowCity FlowKind = "city"
	// FlowAddCategories means the session awaits category selections.
	FlowAddCategories FlowKind = "add_categories"
	// FlowRemoveCategories means the session awaits removal selections.
	FlowRemoveCategories FlowKind = "remove_categories"
)

// Flow carries the active wizard and its accumulated input.
type Flow struct {
	Kind FlowKind `json:"kind"`
	// Selected accumulates category ids during the add wizard.
	Selected []int64 `json:"selected,omitempty"`
	// ToRemove accumulates category ids during the remove wizard.
	ToRemove []int64 `json:"to_remove,omitempty"`
	// PageCategoryIDs snapshots the category ids rendered on the last
	// keyboard so taps from stale keyboards can be rejected.
	PageCategoryIDs []int64 `json:"page_category_ids,omitempty"`
}

// Session is the per-user conversation state, persisted between updates.
type Session struct {
	Page          int  `json:"page"`
	PromotionPage int  `json:"promotion_page"`
	Flow          Flow `json:"flow"`
}

// DefaultSession returns the state a session resets to on cancel or
// natural wizard completion.
func DefaultSession() *Session {
	return &Session{Page: 1, PromotionPage: 1, Flow: Flow{Kind: FlowNone}}
}

// Reset restores the session to its default state in place.
func (s *Session) Reset() {
	*s = *DefaultSession()
}

// InFlow reports whether the given wizard is active.
func (s *Session) InFlow(kind FlowKind) bool {
	return s.Flow.Kind == kind
}

// StartCityWizard enters the city selection wizard, dropping any other flow.
func (s *Session) StartCityWizard() {
	s.Flow = Flow{Kind: FlowCity}
}

// StartAddCategories enters the category-add wizard with an empty selection.
func (s *Session) StartAddCategories() {
	s.Flow = Flow{Kind: FlowAddCategories}
}

// StartRemoveCategories enters the category-remove wizard.
func (s *Session) StartRemoveCategories() {
	s.Flow = Flow{Kind: FlowRemoveCategories}
}

// ClearFlow leaves whatever wizard is active, keeping pagination.
func (s *Session) ClearFlow() {
	s.Flow = Flow{Kind: FlowNone}
}

// SelectCategory appends id to the add-wizard selection. It reports false
// when the id was already selected, which callers treat as an idempotent
// no-op.
func (s *Session) SelectCategory(id int64) bool {
	if containsID(s.Flow.Selected, id) {
		return false
	}
	s.Flow.Selected = append(s.Flow.Selected, id)
	return true
}

// MarkForRemoval appends id to the remove-wizard selection, reporting false
// when already marked.
func (s *Session) MarkForRemoval(id int64) bool {
	if containsID(s.Flow.ToRemove, id) {
		return false
	}
	s.Flow.ToRemove = append(s.Flow.ToRemove, id)
	return true
}

// OnRenderedPage reports whether id was part of the last rendered category
// keyboard. An empty snapshot accepts everything (nothing rendered yet).
func (s *Session) OnRenderedPage(id int64) bool {
	if len(s.Flow.PageCategoryIDs) == 0 {
		return true
	}
	return containsID(s.Flow.PageCategoryIDs, id)
}

// SnapshotPage records the category ids currently shown to the user.
func (s *Session) SnapshotPage(ids []int64) {
	s.Flow.PageCategoryIDs = append([]int64(nil), ids...)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
