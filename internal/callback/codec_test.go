package callback

import (
	"testing"

	"promobot/internal/apperr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		action Action
		param  int64
	}{
		{SelectCity, 5},
		{SelectCategory, 12},
		{RemoveCategory, 3},
		{FinishCategories, 0},
		{FinishRemoveCategories, 0},
		{Cancel, 0},
		{PrevPage, 2},
		{NextPage, 7},
		{PrevPromotionPage, 1},
		{NextPromotionPage, 4},
	}
	for _, tc := range cases {
		encoded := Encode(tc.action, tc.param)
		p, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%q): %v", encoded, err)
		}
		if p.Action != tc.action {
			t.Errorf("Decode(%q).Action = %q, want %q", encoded, p.Action, tc.action)
		}
		switch tc.action {
		case SelectCity, SelectCategory, RemoveCategory:
			if p.ID != tc.param {
				t.Errorf("Decode(%q).ID = %d, want %d", encoded, p.ID, tc.param)
			}
			if p.Page != 0 {
				t.Errorf("Decode(%q).Page = %d, want 0", encoded, p.Page)
			}
		case PrevPage, NextPage, PrevPromotionPage, NextPromotionPage:
			if p.Page != int(tc.param) {
				t.Errorf("Decode(%q).Page = %d, want %d", encoded, p.Page, tc.param)
			}
			if p.ID != 0 {
				t.Errorf("Decode(%q).ID = %d, want 0", encoded, p.ID)
			}
		default:
			if p.ID != 0 || p.Page != 0 {
				t.Errorf("Decode(%q) carried a parameter: %+v", encoded, p)
			}
		}
	}
}

func TestDecodeRejectsUnknownAction(t *testing.T) {
	for _, s := range []string{"", "boost", "boost_3", "citty_1", "_5"} {
		if _, err := Decode(s); !apperr.IsProtocol(err) {
			t.Errorf("Decode(%q) = %v, want protocol error", s, err)
		}
	}
}

func TestDecodeRejectsBadParameters(t *testing.T) {
	cases := []string{
		"city",        // id action without parameter
		"city_abc",    // non-numeric
		"city_0",      // non-positive
		"city_-4",     // negative
		"catnext",     // page action without parameter
		"cancel_1",    // parameter on a bare action
		"catdone_9",   // parameter on a bare action
		"catnext_1.5", // fractional page
	}
	for _, s := range cases {
		if _, err := Decode(s); !apperr.IsProtocol(err) {
			t.Errorf("Decode(%q) = %v, want protocol error", s, err)
		}
	}
}

func TestSplitJoinSymmetry(t *testing.T) {
	for _, s := range []string{"city_9", "cancel", "promonext_3", "catdone"} {
		key, payload := Split(s)
		if got := Join(key, payload); got != s {
			t.Errorf("Join(Split(%q)) = %q", s, got)
		}
	}
}
