package engine

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"promobot/core/telegram/keyboard"
	"promobot/internal/callback"
	"promobot/internal/model"
)

// btn builds an inline button whose callback data round-trips through the
// codec. The codec output is split into telebot's unique/data framing here
// and reassembled before decoding.
func btn(text string, a callback.Action, param int64) keyboard.InlineBtn {
	key, data := callback.Split(callback.Encode(a, param))
	return keyboard.InlineBtn{Text: text, Unique: key, Data: data}
}

func cancelRow() []keyboard.InlineBtn {
	return []keyboard.InlineBtn{btn("✖ Cancel", callback.Cancel, 0)}
}

// mainMenu is the persistent reply keyboard shown outside wizards.
func mainMenu() *tele.ReplyMarkup {
	return keyboard.ReplyButtons(
		[]string{"/promotions"},
		[]string{"/setcity", "/setcategories"},
		[]string{"/viewcity", "/viewcategories"},
		[]string{"/help"},
	)
}

func cityKeyboard(cities []model.City) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(cities)+1)
	for _, city := range cities {
		rows = append(rows, []keyboard.InlineBtn{btn(city.Name, callback.SelectCity, city.ID)})
	}
	rows = append(rows, cancelRow())
	return keyboard.InlineButtonsRows(rows...)
}

// pageBounds clamps page into [1, pages] for a list of n items.
func pageBounds(n, perPage, page int) (int, int, int, int) {
	pages := (n + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	lo := (page - 1) * perPage
	hi := lo + perPage
	if hi > n {
		hi = n
	}
	return page, pages, lo, hi
}

// categoryKeyboard renders one page of category buttons for a wizard. It
// returns the markup, the ids shown on the page (for the stale-tap
// snapshot), and the clamped page number.
func categoryKeyboard(cats []model.Category, page int, picked []int64, selectAction, pageAction callback.Action, doneAction callback.Action) (*tele.ReplyMarkup, []int64, int) {
	page, pages, lo, hi := pageBounds(len(cats), categoriesPerPage, page)

	pageIDs := make([]int64, 0, hi-lo)
	buttons := make([]keyboard.InlineBtn, 0, hi-lo)
	for _, cat := range cats[lo:hi] {
		label := cat.Name
		if containsID(picked, cat.ID) {
			label = "✅ " + label
		}
		buttons = append(buttons, btn(label, selectAction, cat.ID))
		pageIDs = append(pageIDs, cat.ID)
	}

	rows := chunkButtons(buttons, 2)
	if nav := navRow(page, pages, pageAction); nav != nil {
		rows = append(rows, nav)
	}
	rows = append(rows, []keyboard.InlineBtn{btn("✔ Done", doneAction, 0)})
	rows = append(rows, cancelRow())
	return keyboard.InlineButtonsRows(rows...), pageIDs, page
}

// navRow builds prev/next buttons. Both pagination directions share one
// action family; prev encodes page-1 and next encodes page+1.
func navRow(page, pages int, next callback.Action) []keyboard.InlineBtn {
	if pages <= 1 {
		return nil
	}
	prev := prevOf(next)
	var row []keyboard.InlineBtn
	if page > 1 {
		row = append(row, btn("« Back", prev, int64(page-1)))
	}
	if page < pages {
		row = append(row, btn("Next »", next, int64(page+1)))
	}
	return row
}

func prevOf(next callback.Action) callback.Action {
	switch next {
	case callback.NextPage:
		return callback.PrevPage
	case callback.NextPromotionPage:
		return callback.PrevPromotionPage
	}
	return next
}

func chunkButtons(buttons []keyboard.InlineBtn, n int) [][]keyboard.InlineBtn {
	var rows [][]keyboard.InlineBtn
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// promotionsText renders one page of the personalised promotions feed. The
// query fetches one row beyond the page, so total page count is unknown;
// only the presence of a next page is.
func promotionsText(promos []model.Promotion, page int) string {
	var b strings.Builder
	b.WriteString("Current promotions for you:\n")
	for _, p := range promos {
		fmt.Fprintf(&b, "\n• %s\n  %s\n  Until %s\n",
			p.Title, p.Description, p.EndDate.Format("02.01.2006"))
		if p.Link.Valid && p.Link.String != "" {
			fmt.Fprintf(&b, "  %s\n", p.Link.String)
		}
	}
	if page > 1 {
		fmt.Fprintf(&b, "\nPage %d", page)
	}
	return b.String()
}

func promotionsNav(page int, hasNext bool) *tele.ReplyMarkup {
	var row []keyboard.InlineBtn
	if page > 1 {
		row = append(row, btn("« Back", callback.PrevPromotionPage, int64(page-1)))
	}
	if hasNext {
		row = append(row, btn("Next »", callback.NextPromotionPage, int64(page+1)))
	}
	if len(row) == 0 {
		return nil
	}
	return keyboard.InlineButtonsRows(row)
}

func categoryNames(cats []model.Category) string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
