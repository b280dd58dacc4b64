package router

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/botdesk/internal/bot"
	"github.com/wolfman30/botdesk/internal/chat"
)

// requireBot answers 404 for {botID} values that do not name a configured bot.
func requireBot(bots chat.BotSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if bots == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := bots.Get(r.Context(), chi.URLParam(r, "botID"))
			switch {
			case errors.Is(err, bot.ErrBotNotFound):
				http.Error(w, "bot not found", http.StatusNotFound)
				return
			case err != nil:
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
