package app

import (
	_ "embed"
	"net/http"
)

//go:embed web/chat.html
var chatPageHTML []byte

func (a *App) handleChatPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(chatPageHTML)
}
