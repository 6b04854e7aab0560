// Package tgui holds small Telegram UI helpers: inline keyboards, callback
// data in the "group:action:payload" shape, HTML-safe text building and list
// pagination.
package tgui
