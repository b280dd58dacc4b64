package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/botdesk/internal/bot"
	"github.com/wolfman30/botdesk/pkg/logging"
)

var tracer = otel.Tracer("botdesk.internal.events")

const (
	SignatureHeader = "X-Botdesk-Signature"
	EventHeader     = "X-Botdesk-Event"
	DeliveryHeader  = "X-Botdesk-Delivery"
	signaturePrefix = "sha256="
)

// BotSource resolves the webhook target of a bot.
type BotSource interface {
	Get(ctx context.Context, id string) (*bot.Bot, error)
}

// WebhookDeliverer posts outbox envelopes to the bot's webhook URL.
type WebhookDeliverer struct {
	bots   BotSource
	secret []byte
	client *http.Client
	logger *logging.Logger
}

func NewWebhookDeliverer(bots BotSource, secret string, client *http.Client, logger *logging.Logger) *WebhookDeliverer {
	if bots == nil {
		panic("events: bot source required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookDeliverer{bots: bots, secret: []byte(secret), client: client, logger: logger}
}

// Handle delivers one entry. Bots without a webhook (or that no longer exist)
// have nothing to receive, so the entry counts as delivered.
func (w *WebhookDeliverer) Handle(ctx context.Context, entry OutboxEntry) error {
	ctx, span := tracer.Start(ctx, "events.webhook.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("bot.id", entry.BotID),
		attribute.String("event.type", entry.Type),
	)

	b, err := w.bots.Get(ctx, entry.BotID)
	if errors.Is(err, bot.ErrBotNotFound) {
		w.logger.Warn("dropping outbox entry for unknown bot", "bot_id", entry.BotID, "event_id", entry.ID)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("events: load bot: %w", err)
	}
	target := strings.TrimSpace(b.WebhookURL)
	if target == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(entry.Payload))
	if err != nil {
		return fmt.Errorf("events: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, entry.Type)
	req.Header.Set(DeliveryHeader, entry.ID.String())
	if len(w.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(w.secret, entry.Payload))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("events: post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("events: webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is a valid signature of body.
func VerifySignature(secret, body []byte, header string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}
