// Package tenancy carries the bot a request belongs to.
package tenancy

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type ctxKey string

const botKey ctxKey = "botdesk.bot_id"

// WithBotID stores the bot id in context.
func WithBotID(ctx context.Context, botID string) context.Context {
	return context.WithValue(ctx, botKey, botID)
}

// BotIDFromContext extracts the bot id if present.
func BotIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(botKey)
	if val == nil {
		return "", false
	}
	botID, ok := val.(string)
	return botID, ok && botID != ""
}

// BotFromURL copies the {botID} route parameter into the request context.
func BotFromURL(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if botID := strings.TrimSpace(chi.URLParam(r, "botID")); botID != "" {
			r = r.WithContext(WithBotID(r.Context(), botID))
		}
		next.ServeHTTP(w, r)
	})
}
