package notify

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"promobot/internal/model"
)

type fakePromos struct {
	promo *model.Promotion
}

func (f *fakePromos) GetByID(ctx context.Context, id int64) (*model.Promotion, error) {
	if f.promo == nil || f.promo.ID != id {
		return nil, errors.New("not found")
	}
	return f.promo, nil
}

type fakeUsers struct {
	subs []model.User
}

func (f *fakeUsers) FindSubscribers(ctx context.Context, cityID sql.NullInt64, categoryIDs []int64) ([]model.User, error) {
	return f.subs, nil
}

type fakeSender struct {
	failFor map[int64]error
	sentTo  []int64
}

func (f *fakeSender) SendTo(ctx context.Context, chatID int64, what interface{}, opts ...interface{}) error {
	if err, ok := f.failFor[chatID]; ok {
		return err
	}
	f.sentTo = append(f.sentTo, chatID)
	return nil
}

func chat(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: true}
}

func approvedPromo() *model.Promotion {
	return &model.Promotion{
		ID:          7,
		Title:       "Coffee -20%",
		Description: "Every espresso based drink.",
		StartDate:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
		Status:      model.PromotionApproved,
		CityID:      sql.NullInt64{Int64: 1, Valid: true},
		CategoryIDs: []int64{3},
	}
}

func newTestDispatcher(p *model.Promotion, subs []model.User, sender *fakeSender) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(&fakePromos{promo: p}, &fakeUsers{subs: subs}, sender)
	var slept []time.Duration
	d.sleep = func(dur time.Duration) { slept = append(slept, dur) }
	return d, &slept
}

func TestDispatchDeliversToEachRecipientOnce(t *testing.T) {
	subs := []model.User{
		{ID: 1, ChatID: chat(100)},
		{ID: 2, ChatID: chat(200)},
		{ID: 3, ChatID: chat(100)},
		{ID: 4},
	}
	sender := &fakeSender{}
	d, _ := newTestDispatcher(approvedPromo(), subs, sender)

	if err := d.Dispatch(context.Background(), 7); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if len(sender.sentTo) != 2 || sender.sentTo[0] != 100 || sender.sentTo[1] != 200 {
		t.Fatalf("sentTo = %v, want [100 200]", sender.sentTo)
	}
}

func TestDispatchFailureDoesNotBlockLaterRecipients(t *testing.T) {
	subs := []model.User{
		{ID: 1, ChatID: chat(100)},
		{ID: 2, ChatID: chat(200)},
		{ID: 3, ChatID: chat(300)},
	}
	sender := &fakeSender{failFor: map[int64]error{200: errors.New("blocked")}}
	d, slept := newTestDispatcher(approvedPromo(), subs, sender)

	if err := d.Dispatch(context.Background(), 7); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if len(sender.sentTo) != 2 || sender.sentTo[1] != 300 {
		t.Fatalf("sentTo = %v, want delivery to 100 and 300", sender.sentTo)
	}
	if len(*slept) != 1 || (*slept)[0] != 300*time.Millisecond {
		t.Fatalf("backoff sleeps = %v, want one 300ms pause", *slept)
	}
}

func TestDispatchSkipsWithdrawnPromotion(t *testing.T) {
	p := approvedPromo()
	p.Status = model.PromotionRejected
	sender := &fakeSender{}
	d, _ := newTestDispatcher(p, []model.User{{ID: 1, ChatID: chat(100)}}, sender)

	if err := d.Dispatch(context.Background(), 7); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if len(sender.sentTo) != 0 {
		t.Fatalf("sentTo = %v, want no deliveries", sender.sentTo)
	}
}

func TestDispatchSkipsDeletedPromotion(t *testing.T) {
	p := approvedPromo()
	p.IsDeleted = true
	sender := &fakeSender{}
	d, _ := newTestDispatcher(p, []model.User{{ID: 1, ChatID: chat(100)}}, sender)

	if err := d.Dispatch(context.Background(), 7); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if len(sender.sentTo) != 0 {
		t.Fatalf("sentTo = %v, want no deliveries", sender.sentTo)
	}
}

func TestRenderMessageEscapesMarkdown(t *testing.T) {
	p := approvedPromo()
	p.Title = "Coffee -20% (hot!)"
	p.Link = sql.NullString{String: "https://example.com/deal", Valid: true}

	msg := RenderMessage(p)
	if !strings.Contains(msg, `*Coffee \-20% \(hot\!\)*`) {
		t.Errorf("title not escaped: %q", msg)
	}
	if !strings.Contains(msg, "[More details](https://example.com/deal)") {
		t.Errorf("link missing: %q", msg)
	}
}
