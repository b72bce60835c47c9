package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"promobot/internal/apperr"
	"promobot/internal/model"
)

type fakeRepo struct {
	mu      sync.Mutex
	data    map[int64]*model.Session
	saveErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{data: make(map[int64]*model.Session)}
}

func (f *fakeRepo) Get(ctx context.Context, chatID int64) (*model.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.data[chatID]
	if !ok {
		return nil, false, nil
	}
	cp := *s
	return &cp, true, nil
}

func (f *fakeRepo) Save(ctx context.Context, chatID int64, s *model.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.data[chatID] = &cp
	return nil
}

func TestCreateDefaultPersistsAndReturnsDefaults(t *testing.T) {
	store := NewStore(newFakeRepo())

	sess, err := store.CreateDefault(context.Background(), 7)
	if err != nil {
		t.Fatalf("CreateDefault() = %v", err)
	}
	if sess.Page != 1 || sess.PromotionPage != 1 || sess.Flow.Kind != model.FlowNone {
		t.Fatalf("default session = %+v", sess)
	}

	got, found, err := store.Get(context.Background(), 7)
	if err != nil || !found {
		t.Fatalf("Get() = %v, found=%v", err, found)
	}
	if got.Flow.Kind != model.FlowNone {
		t.Fatalf("persisted flow = %q", got.Flow.Kind)
	}
}

func TestSaveFailureSurfacesStoreError(t *testing.T) {
	repo := newFakeRepo()
	repo.saveErr = errors.New("connection reset")
	store := NewStore(repo)

	err := store.Save(context.Background(), 7, model.DefaultSession())
	if !apperr.IsStore(err) {
		t.Fatalf("err = %v, want store error", err)
	}
}

func TestAcquireSerializesSameUser(t *testing.T) {
	store := NewStore(newFakeRepo())

	release := store.Acquire(7)
	entered := make(chan struct{})
	go func() {
		r := store.Acquire(7)
		close(entered)
		r()
	}()

	select {
	case <-entered:
		t.Fatal("second Acquire proceeded while lock held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never proceeded after release")
	}
}

func TestAcquireAllowsDifferentUsersInParallel(t *testing.T) {
	store := NewStore(newFakeRepo())

	release := store.Acquire(7)
	defer release()

	done := make(chan struct{})
	go func() {
		r := store.Acquire(8)
		r()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("different user blocked by unrelated lock")
	}
}
