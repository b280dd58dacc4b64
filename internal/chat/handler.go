package chat

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/botdesk/internal/bot"
	"github.com/wolfman30/botdesk/internal/http/middleware"
	"github.com/wolfman30/botdesk/pkg/logging"
)

const maxBodyBytes = 32 << 10

// TurnHandler is the slice of the Orchestrator the HTTP layer needs.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error)
	Conversation(ctx context.Context, botID, conversationID string) (*State, error)
	MarkBookingCompleted(ctx context.Context, botID, conversationID string) error
}

// Handler serves the widget chat API.
type Handler struct {
	turns  TurnHandler
	logger *logging.Logger
}

func NewHandler(turns TurnHandler, logger *logging.Logger) *Handler {
	if turns == nil {
		panic("chat: turn handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{turns: turns, logger: logger}
}

// Routes are mounted under /v1/bots.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{botID}/chat", h.recoverer(h.Chat))
	r.Get("/{botID}/conversations/{conversationID}", h.recoverer(h.GetConversation))
	return r
}

// ChatRequest is the widget payload.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// Chat handles one visitor message.
// POST /v1/bots/{botID}/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.turns.HandleTurn(r.Context(), TurnRequest{
		BotID:          botID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		ClientIP:       middleware.ClientIP(r),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong), errors.Is(err, ErrMissingBotID):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "chat: "))
	case errors.Is(err, ErrRateLimited):
		if secs := int(math.Ceil(result.RetryAfter.Seconds())); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeError(w, http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, bot.ErrBotNotFound):
		writeError(w, http.StatusNotFound, "bot not found")
	default:
		h.logger.Error("chat turn failed", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// GetConversation returns the stored transcript.
// GET /v1/bots/{botID}/conversations/{conversationID}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	conversationID := chi.URLParam(r, "conversationID")

	st, err := h.turns.Conversation(r.Context(), botID, conversationID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation_id": st.ConversationID,
			"history":         st.History,
			"flags":           st.Flags,
			"updated_at":      st.UpdatedAt,
		})
	case errors.Is(err, bot.ErrBotNotFound):
		writeError(w, http.StatusNotFound, "bot not found")
	case errors.Is(err, ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	default:
		h.logger.Error("failed to load conversation", "bot_id", botID, "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ConfirmBooking is called by calendar integrations once a visitor booked.
// POST /admin/bots/{botID}/conversations/{conversationID}/booking-confirmed
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	conversationID := chi.URLParam(r, "conversationID")

	err := h.turns.MarkBookingCompleted(r.Context(), botID, conversationID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"booking_completed": true})
	case errors.Is(err, ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, ErrStateConflict):
		writeError(w, http.StatusConflict, "conversation is busy, retry")
	default:
		h.logger.Error("failed to mark booking completed", "bot_id", botID, "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// recoverer turns a panic inside a chat handler into the generic 500 body.
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic in chat handler", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
