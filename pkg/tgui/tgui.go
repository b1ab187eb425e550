// Package tgui holds small Telegram UI helpers: inline keyboard building,
// raw callback data and HTML escaping for ParseMode="HTML".
package tgui

import (
	"html"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Inline builds inline keyboards row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends one row of buttons.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the accumulated reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data (no encoding).
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// URLBtn creates a URL button.
func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// Data joins callback data parts with "|".
func Data(parts ...string) string {
	return strings.Join(parts, "|")
}

// ReplyKB builds a persistent one-column reply keyboard.
func ReplyKB(labels ...string) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	rows := make([]tele.Row, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, rm.Row(rm.Text(l)))
	}
	rm.Reply(rows...)
	return rm
}

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) string { return html.EscapeString(s) }
