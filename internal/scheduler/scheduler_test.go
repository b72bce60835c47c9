package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"promobot/internal/model"
)

type fakePromos struct {
	due           []model.Promotion
	findErr       error
	updateErrFor  map[int64]error
	updated       []int64
	seenFindTimes []time.Time
}

func (f *fakePromos) FindDue(ctx context.Context, now time.Time) ([]model.Promotion, error) {
	f.seenFindTimes = append(f.seenFindTimes, now)
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.due, nil
}

func (f *fakePromos) UpdateStatus(ctx context.Context, id int64, status model.PromotionStatus) error {
	if err, ok := f.updateErrFor[id]; ok {
		return err
	}
	if status != model.PromotionApproved {
		return errors.New("unexpected status " + string(status))
	}
	f.updated = append(f.updated, id)
	return nil
}

type fakeNotifier struct {
	errFor     map[int64]error
	dispatched []int64
}

func (f *fakeNotifier) Dispatch(ctx context.Context, promotionID int64) error {
	f.dispatched = append(f.dispatched, promotionID)
	if err, ok := f.errFor[promotionID]; ok {
		return err
	}
	return nil
}

func TestRunSweepPublishesAndDispatchesDuePromotions(t *testing.T) {
	promos := &fakePromos{due: []model.Promotion{{ID: 1}, {ID: 2}}}
	notifier := &fakeNotifier{}
	s := New(promos, notifier)
	s.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 30, 0, time.FixedZone("x", 3600)) }

	s.RunSweep(context.Background())

	if len(promos.updated) != 2 {
		t.Fatalf("updated = %v, want both promotions approved", promos.updated)
	}
	if len(notifier.dispatched) != 2 {
		t.Fatalf("dispatched = %v, want both promotions dispatched", notifier.dispatched)
	}
	if loc := promos.seenFindTimes[0].Location(); loc != time.UTC {
		t.Fatalf("FindDue time zone = %v, want UTC", loc)
	}
}

func TestRunSweepIsolatesPublishFailure(t *testing.T) {
	promos := &fakePromos{
		due:          []model.Promotion{{ID: 1}, {ID: 2}, {ID: 3}},
		updateErrFor: map[int64]error{2: errors.New("db down")},
	}
	notifier := &fakeNotifier{}
	s := New(promos, notifier)

	s.RunSweep(context.Background())

	if len(promos.updated) != 2 || promos.updated[0] != 1 || promos.updated[1] != 3 {
		t.Fatalf("updated = %v, want [1 3]", promos.updated)
	}
	// The failed promotion is never dispatched; the others still are.
	if len(notifier.dispatched) != 2 || notifier.dispatched[0] != 1 || notifier.dispatched[1] != 3 {
		t.Fatalf("dispatched = %v, want [1 3]", notifier.dispatched)
	}
}

func TestRunSweepIsolatesDispatchFailure(t *testing.T) {
	promos := &fakePromos{due: []model.Promotion{{ID: 1}, {ID: 2}}}
	notifier := &fakeNotifier{errFor: map[int64]error{1: errors.New("telegram down")}}
	s := New(promos, notifier)

	s.RunSweep(context.Background())

	// Publication already happened; a dispatch failure must not undo it or
	// stop the next promotion.
	if len(promos.updated) != 2 {
		t.Fatalf("updated = %v, want both", promos.updated)
	}
	if len(notifier.dispatched) != 2 {
		t.Fatalf("dispatched = %v, want both attempted", notifier.dispatched)
	}
}

func TestStopWaitsForLoopExit(t *testing.T) {
	promos := &fakePromos{}
	s := New(promos, &fakeNotifier{})
	s.interval = time.Millisecond

	s.Start()
	time.Sleep(5 * time.Millisecond)
	doneCh := make(chan struct{})
	go func() {
		s.Stop()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not return")
	}
}
