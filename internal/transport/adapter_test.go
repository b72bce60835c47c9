package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"promobot/internal/apperr"
)

type fakeAPI struct {
	sendErrs  []error
	sendCalls int
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.sendCalls++
	if f.sendCalls <= len(f.sendErrs) {
		return nil, f.sendErrs[f.sendCalls-1]
	}
	return &tele.Message{}, nil
}

func (f *fakeAPI) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	return &tele.Message{}, nil
}

func (f *fakeAPI) Respond(cb *tele.Callback, resp ...*tele.CallbackResponse) error {
	return nil
}

func newTestAdapter(api API) (*Adapter, *[]time.Duration) {
	a := New(api)
	var slept []time.Duration
	a.sleep = func(d time.Duration) { slept = append(slept, d) }
	return a, &slept
}

func TestSendToRetriesTransientNetworkFailure(t *testing.T) {
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	api := &fakeAPI{sendErrs: []error{dial, dial}}
	a, slept := newTestAdapter(api)

	if err := a.SendTo(context.Background(), 42, "hi"); err != nil {
		t.Fatalf("SendTo() = %v, want success after retries", err)
	}
	if api.sendCalls != 3 {
		t.Fatalf("send calls = %d, want 3", api.sendCalls)
	}
	if len(*slept) != 2 {
		t.Fatalf("backoff sleeps = %d, want 2", len(*slept))
	}
	if (*slept)[1] <= (*slept)[0] {
		t.Fatalf("backoff not increasing: %v", *slept)
	}
}

func TestSendToGivesUpAfterRetryBudget(t *testing.T) {
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	api := &fakeAPI{sendErrs: []error{dial, dial, dial, dial, dial}}
	a, _ := newTestAdapter(api)

	err := a.SendTo(context.Background(), 42, "hi")
	if kind := apperr.TransportKindOf(err); kind != apperr.KindNetwork {
		t.Fatalf("kind = %q, want %q", kind, apperr.KindNetwork)
	}
	if api.sendCalls != 4 {
		t.Fatalf("send calls = %d, want 4 (1 + 3 retries)", api.sendCalls)
	}
}

func TestSendToClassifiesWithoutRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want apperr.TransportKind
	}{
		{"blocked", tele.ErrBlockedByUser, apperr.KindBlocked},
		{"deactivated", tele.ErrUserIsDeactivated, apperr.KindBlocked},
		{"flood", tele.NewError(429, "Too Many Requests: retry after 14"), apperr.KindFlood},
		{"unknown", tele.NewError(400, "Bad Request: chat not found"), apperr.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{sendErrs: []error{tc.err}}
			a, slept := newTestAdapter(api)

			err := a.SendTo(context.Background(), 42, "hi")
			if kind := apperr.TransportKindOf(err); kind != tc.want {
				t.Fatalf("kind = %q, want %q", kind, tc.want)
			}
			if api.sendCalls != 1 {
				t.Fatalf("send calls = %d, want 1 (no retry)", api.sendCalls)
			}
			if len(*slept) != 0 {
				t.Fatalf("unexpected backoff sleeps: %v", *slept)
			}
		})
	}
}

func TestSanitizeErrorMessageRedactsToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot12345:AAH-secret_token/sendMessage": EOF`)
	got := sanitizeErrorMessage(err)
	if got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF` {
		t.Fatalf("sanitizeErrorMessage() = %q", got)
	}
}

func TestClassifyEditOutcomes(t *testing.T) {
	if kind := classify(tele.ErrSameMessageContent); kind != apperr.KindSameContent {
		t.Fatalf("same content kind = %q", kind)
	}
	if kind := classify(tele.ErrCantEditMessage); kind != apperr.KindNotEditable {
		t.Fatalf("not editable kind = %q", kind)
	}
}
