package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row of buttons. Empty rows are skipped.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Len reports the number of rows.
func (i *Inline) Len() int { return len(i.rows) }

// Markup returns the underlying reply markup, or nil when no row was added.
func (i *Inline) Markup() *tele.ReplyMarkup {
	if len(i.rows) == 0 {
		return nil
	}
	return i.rm
}

// Btn creates a callback button with raw callback_data (not encoded).
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}
