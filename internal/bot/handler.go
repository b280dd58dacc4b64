package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/botdesk/pkg/logging"
)

// Reindexer rebuilds a bot's knowledge chunks.
type Reindexer interface {
	Reindex(ctx context.Context, b *Bot) (int, error)
}

// Handler provides admin endpoints for bot settings.
type Handler struct {
	repo      Repository
	reindexer Reindexer
	logger    *logging.Logger
}

// NewHandler creates the admin bot handler. reindexer may be nil, in which
// case the reindex route answers 503.
func NewHandler(repo Repository, reindexer Reindexer, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("bot: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, reindexer: reindexer, logger: logger}
}

// Routes returns a chi router with bot admin routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{botID}", h.GetBot)
	r.Put("/{botID}", h.UpdateBot)
	r.Post("/{botID}/reindex", h.ReindexBot)
	return r
}

// GetBot returns the stored settings.
// GET /admin/bots/{botID}
func (h *Handler) GetBot(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")
	b, err := h.repo.Get(r.Context(), botID)
	if errors.Is(err, ErrBotNotFound) {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load bot", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpdateBotRequest is the body for creating or replacing bot settings.
type UpdateBotRequest struct {
	AccountID    string        `json:"account_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	WebsiteText  string        `json:"website_text"`
	FileText     string        `json:"file_text"`
	Calendar     Calendar      `json:"calendar"`
	Timezone     string        `json:"timezone"`
	WorkingHours *WorkingHours `json:"working_hours,omitempty"`
	Contact      Contact       `json:"contact"`
	Display      Display       `json:"display"`
	Language     string        `json:"language"`
	Tone         string        `json:"tone"`
	WebhookURL   string        `json:"webhook_url"`
}

// UpdateBot upserts the settings for a bot.
// PUT /admin/bots/{botID}
func (h *Handler) UpdateBot(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "botID")

	var req UpdateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b := &Bot{
		ID:          botID,
		AccountID:   req.AccountID,
		Name:        req.Name,
		Description: req.Description,
		WebsiteText: req.WebsiteText,
		FileText:    req.FileText,
		Calendar:    req.Calendar,
		Timezone:    req.Timezone,
		Contact:     req.Contact,
		Display:     req.Display,
		Language:    ParseLanguage(req.Language),
		Tone:        req.Tone,
		WebhookURL:  req.WebhookURL,
		UpdatedAt:   time.Now().UTC(),
	}
	if req.WorkingHours != nil {
		b.WorkingHours = *req.WorkingHours
	}
	if err := b.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.Save(r.Context(), b); err != nil {
		h.logger.Error("failed to save bot", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save bot")
		return
	}

	h.logger.Info("bot settings updated", "bot_id", botID, "account_id", b.AccountID)
	writeJSON(w, http.StatusOK, b)
}

// ReindexBot rebuilds the knowledge chunks from the stored sources.
// POST /admin/bots/{botID}/reindex
func (h *Handler) ReindexBot(w http.ResponseWriter, r *http.Request) {
	if h.reindexer == nil {
		writeError(w, http.StatusServiceUnavailable, "reindexing unavailable")
		return
	}
	botID := chi.URLParam(r, "botID")
	b, err := h.repo.Get(r.Context(), botID)
	if errors.Is(err, ErrBotNotFound) {
		writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load bot", "bot_id", botID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	count, err := h.reindexer.Reindex(r.Context(), b)
	if err != nil {
		h.logger.Error("reindex failed", "bot_id", botID, "error", err)
		writeError(w, http.StatusBadGateway, "reindex failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bot_id": botID, "chunks": count})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
