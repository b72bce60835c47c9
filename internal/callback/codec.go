// Package callback owns the compact wire form carried by inline-keyboard
// taps: "action" or "action_param". The vocabulary is closed; anything
// outside it decodes to a protocol error, never a crash.
package callback

import (
	"strconv"
	"strings"

	"promobot/internal/apperr"
)

// Action enumerates every callback the bot ever emits on a keyboard.
type Action string

const (
	// SelectCity picks a city during the city wizard (id parameter).
	SelectCity Action = "city"
	// SelectCategory toggles a category on during the add wizard (id parameter).
	SelectCategory Action = "cat"
	// RemoveCategory marks a category during the remove wizard (id parameter).
	RemoveCategory Action = "rmcat"
	// FinishCategories completes the add wizard (no parameter).
	FinishCategories Action = "catdone"
	// FinishRemoveCategories completes the remove wizard (no parameter).
	FinishRemoveCategories Action = "rmdone"
	// Cancel aborts any wizard from any state (no parameter).
	Cancel Action = "cancel"
	// PrevPage moves the category keyboard back (page parameter).
	PrevPage Action = "catprev"
	// NextPage moves the category keyboard forward (page parameter).
	NextPage Action = "catnext"
	// PrevPromotionPage moves the promotions view back (page parameter).
	PrevPromotionPage Action = "promoprev"
	// NextPromotionPage moves the promotions view forward (page parameter).
	NextPromotionPage Action = "promonext"
)

type paramKind int

const (
	paramNone paramKind = iota
	paramID
	paramPage
)

// Whether an action carries an id or a page is fixed per action, never
// inferred from context.
var vocabulary = map[Action]paramKind{
	SelectCity:             paramID,
	SelectCategory:         paramID,
	RemoveCategory:         paramID,
	FinishCategories:       paramNone,
	FinishRemoveCategories: paramNone,
	Cancel:                 paramNone,
	PrevPage:               paramPage,
	NextPage:               paramPage,
	PrevPromotionPage:      paramPage,
	NextPromotionPage:      paramPage,
}

// Payload is the decoded form of a callback string. Exactly one of ID and
// Page is set for parameterized actions.
type Payload struct {
	Action Action
	ID     int64
	Page   int
}

// Encode renders the compact wire form for an action and its parameter.
// The parameter is ignored for actions that take none.
func Encode(a Action, param int64) string {
	switch vocabulary[a] {
	case paramID, paramPage:
		return string(a) + "_" + strconv.FormatInt(param, 10)
	default:
		return string(a)
	}
}

// Decode parses the compact wire form, validating the action against the
// vocabulary and the parameter against its fixed kind.
func Decode(s string) (Payload, error) {
	action := Action(s)
	raw := ""
	if idx := strings.LastIndex(s, "_"); idx >= 0 {
		action = Action(s[:idx])
		raw = s[idx+1:]
	}

	kind, ok := vocabulary[action]
	if !ok {
		// The whole string may be a bare action containing no parameter.
		if k, bare := vocabulary[Action(s)]; bare {
			if k != paramNone {
				return Payload{}, apperr.Protocolf("action %q requires a parameter", s)
			}
			return Payload{Action: Action(s)}, nil
		}
		return Payload{}, apperr.Protocolf("unknown action %q", s)
	}

	p := Payload{Action: action}
	switch kind {
	case paramNone:
		if raw != "" {
			return Payload{}, apperr.Protocolf("action %q takes no parameter", action)
		}
		return p, nil
	default:
		if raw == "" {
			return Payload{}, apperr.Protocolf("action %q requires a parameter", action)
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Payload{}, apperr.Protocolf("action %q has non-numeric parameter %q", action, raw)
		}
		if n <= 0 {
			return Payload{}, apperr.Protocolf("action %q has non-positive parameter %d", action, n)
		}
		if kind == paramPage {
			p.Page = int(n)
		} else {
			p.ID = n
		}
		return p, nil
	}
}

// Known reports whether a is part of the vocabulary.
func Known(a Action) bool {
	_, ok := vocabulary[a]
	return ok
}

// Join rebuilds the compact form from telebot's unique/data split without
// interpreting it. Decode remains the single point of validation.
func Join(key, payload string) string {
	if payload == "" {
		return key
	}
	return key + "_" + payload
}

// Split separates the compact form into the unique key and data payload
// used when constructing telebot inline buttons.
func Split(s string) (string, string) {
	if idx := strings.LastIndex(s, "_"); idx >= 0 {
		if _, ok := vocabulary[Action(s[:idx])]; ok {
			return s[:idx], s[idx+1:]
		}
	}
	return s, ""
}
