package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/botdesk/internal/bot"
	"github.com/wolfman30/botdesk/internal/knowledge"
	"github.com/wolfman30/botdesk/internal/llm"
	"github.com/wolfman30/botdesk/internal/observability/metrics"
	"github.com/wolfman30/botdesk/internal/ratelimit"
	"github.com/wolfman30/botdesk/pkg/logging"
)

var tracer = otel.Tracer("botdesk.internal.chat")

var (
	ErrEmptyMessage   = errors.New("chat: message is empty")
	ErrMessageTooLong = errors.New("chat: message is too long")
	ErrMissingBotID   = errors.New("chat: bot id is required")
	ErrRateLimited    = errors.New("chat: too many requests")
)

var errEmptyCompletion = errors.New("chat: model returned an empty reply")

// LLMFailureReply is sent when the model call fails after knowledge was found.
const LLMFailureReply = "Sorry, I'm having trouble answering right now. Please try again in a moment."

const (
	MaxMessageRunes     = 2000
	defaultLLMTimeout   = 30 * time.Second
	defaultHistoryTurns = 20
	defaultMaxTokens    = 600
	defaultSlotLength   = 30 * time.Minute
	stateSaveAttempts   = 3
)

// Side effect types.
const (
	SideEffectLeadCaptured  = "lead.captured"
	SideEffectBookingIntent = "booking.intent"
)

// LeadPayload is the contact record sent with lead.captured.
type LeadPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message,omitempty"`
}

// BookingPayload is the proposed window sent with booking.intent.
type BookingPayload struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
	Raw      string    `json:"raw"`
	Name     string    `json:"name,omitempty"`
	Email    string    `json:"email,omitempty"`
}

// SideEffect is an event produced by a turn. ID is stable for the same
// conversation and event so downstream consumers can deduplicate.
type SideEffect struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Lead       *LeadPayload    `json:"lead,omitempty"`
	Booking    *BookingPayload `json:"booking,omitempty"`
}

// SideEffectSink receives side effects after the reply is decided.
type SideEffectSink interface {
	Publish(ctx context.Context, botID, conversationID string, effects []SideEffect) error
}

// BotSource loads bot settings.
type BotSource interface {
	Get(ctx context.Context, id string) (*bot.Bot, error)
}

// KnowledgeRetriever returns the best matching snippets for a query. It never
// fails; an empty result means nothing usable was found.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, botID, query string, topK int) []knowledge.Match
}

// TurnRequest is one visitor message.
type TurnRequest struct {
	BotID          string
	ConversationID string
	Message        string
	ClientIP       string
}

// TurnResult is the reply and everything learned from the turn.
type TurnResult struct {
	ConversationID string        `json:"conversation_id"`
	Reply          string        `json:"reply"`
	Intent         Intent        `json:"intent"`
	LowSignal      bool          `json:"low_signal"`
	Flags          Flags         `json:"flags"`
	SideEffects    []SideEffect  `json:"side_effects"`
	RetryAfter     time.Duration `json:"-"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

func WithSideEffectSink(s SideEffectSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

func WithMetrics(m *metrics.ChatMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

func WithLLMTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.llmTimeout = d
		}
	}
}

func WithMaxTokens(n int32) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithHistoryTurns caps how many earlier turns are sent to the model.
func WithHistoryTurns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyTurns = n
		}
	}
}

func WithSlotLength(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.slotLength = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs chat turns. It holds no per-conversation state; all of it
// lives in the StateStore.
type Orchestrator struct {
	bots      BotSource
	states    StateStore
	llm       llm.Client
	retriever KnowledgeRetriever
	guard     *LowSignalGuard
	limiter   ratelimit.Limiter
	sink      SideEffectSink
	metrics   *metrics.ChatMetrics
	logger    *logging.Logger

	topK         int
	llmTimeout   time.Duration
	maxTokens    int32
	model        string
	historyTurns int
	slotLength   time.Duration
	now          func() time.Time
}

// NewOrchestrator wires a turn runner. client and retriever may be nil: a nil
// client answers every turn from the fallback templates and a nil retriever
// skips knowledge lookups.
func NewOrchestrator(bots BotSource, states StateStore, client llm.Client, retriever KnowledgeRetriever, logger *logging.Logger, opts ...Option) *Orchestrator {
	if bots == nil {
		panic("chat: bot source cannot be nil")
	}
	if states == nil {
		panic("chat: state store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		bots:         bots,
		states:       states,
		llm:          client,
		retriever:    retriever,
		guard:        NewLowSignalGuard(LooksLikeCaptureAnswer),
		logger:       logger,
		topK:         knowledge.DefaultTopK,
		llmTimeout:   defaultLLMTimeout,
		maxTokens:    defaultMaxTokens,
		historyTurns: defaultHistoryTurns,
		slotLength:   defaultSlotLength,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleTurn answers one visitor message.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	started := o.now()
	ctx, span := tracer.Start(ctx, "chat.handle_turn")
	defer span.End()
	span.SetAttributes(attribute.String("botdesk.bot_id", req.BotID))

	message := strings.TrimSpace(req.Message)
	switch {
	case strings.TrimSpace(req.BotID) == "":
		return TurnResult{}, ErrMissingBotID
	case message == "":
		return TurnResult{}, ErrEmptyMessage
	case utf8.RuneCountInString(message) > MaxMessageRunes:
		return TurnResult{}, ErrMessageTooLong
	}

	if o.limiter != nil {
		decision, err := o.limiter.Check(ctx, req.BotID+":"+req.ClientIP)
		switch {
		case err != nil:
			o.logger.Warn("rate limit check failed, allowing turn", "bot_id", req.BotID, "error", err)
		case !decision.Allowed:
			o.metrics.ObserveTurn("", "rate_limited", o.now().Sub(started).Seconds())
			return TurnResult{RetryAfter: decision.RetryAfter(o.now())}, ErrRateLimited
		}
	}

	b, err := o.bots.Get(ctx, req.BotID)
	if err != nil {
		if errors.Is(err, bot.ErrBotNotFound) {
			return TurnResult{}, err
		}
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("chat: load bot: %w", err)
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	st, err := o.states.Load(ctx, b.ID, conversationID)
	if err != nil {
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("chat: load conversation: %w", err)
	}

	now := o.now()
	lastAssistant := st.LastAssistant()
	detection := ClassifyIntent(message, lastAssistant)
	flags := Flags{
		AfterHours:           b.IsAfterHours(now),
		CalendarAlreadyShown: st.Flags.CalendarAlreadyShown,
		BookingCompleted:     st.Flags.BookingCompleted,
	}
	result := TurnResult{ConversationID: conversationID, Intent: detection.Intent}

	var reply, outcome string
	scan := ScanForInjection(message)
	if scan.Blocked {
		o.logger.Warn("message blocked by injection scan",
			"bot_id", b.ID, "conversation_id", conversationID, "score", scan.Score, "signals", scan.Signals)
		reply, outcome = BlockedReply, "blocked"
	} else {
		low, reason := o.guard.Check(scan.Clean, lastAssistant)
		result.LowSignal = low
		var snippets []string
		if low {
			o.metrics.ObserveLowSignal(reason)
		} else if o.retriever != nil {
			snippets = knowledge.Texts(o.retriever.Retrieve(ctx, b.ID, scan.Clean, o.topK))
		}
		reply, outcome = o.answer(ctx, b, st, detection.Intent, flags, scan.Clean, snippets, now)
	}

	var effects []SideEffect
	if !scan.Blocked {
		effects = o.collectSideEffects(b, st, detection.Intent, message, lastAssistant, now)
	}

	st.Append(Turn{Role: llm.RoleUser, Content: message, Intent: detection.Intent, At: now})
	st.Append(Turn{Role: llm.RoleAssistant, Content: reply, At: now})
	if surfacesCalendar(b, detection.Intent, reply, outcome) {
		st.Flags.CalendarAlreadyShown = true
	}
	st.UpdatedAt = now
	o.saveState(ctx, st)

	o.publish(ctx, b.ID, conversationID, effects)

	result.Reply = reply
	result.Flags = Flags{
		AfterHours:           flags.AfterHours,
		CalendarAlreadyShown: st.Flags.CalendarAlreadyShown,
		BookingCompleted:     st.Flags.BookingCompleted,
	}
	result.SideEffects = effects
	if result.SideEffects == nil {
		result.SideEffects = []SideEffect{}
	}

	o.logger.Info("chat turn handled",
		"bot_id", b.ID,
		"conversation_id", conversationID,
		"intent", detection.Intent,
		"intent_rule", detection.Rule,
		"low_signal", result.LowSignal,
		"outcome", outcome,
		"side_effects", len(effects),
	)
	o.metrics.ObserveTurn(string(detection.Intent), outcome, o.now().Sub(started).Seconds())
	return result, nil
}

// answer produces the reply text and an outcome label for metrics.
func (o *Orchestrator) answer(ctx context.Context, b *bot.Bot, st *State, intent Intent, flags Flags, message string, snippets []string, now time.Time) (string, string) {
	if o.llm == nil {
		return FallbackReply(string(intent), b.BusinessInfo()), "fallback"
	}

	prompt := BuildSystemPrompt(PromptInput{
		Intent:       intent,
		BusinessName: b.DisplayName(),
		Fragments:    fragmentsFor(b, flags),
		Flags:        flags,
		Language:     bot.ParseLanguage(string(b.Language)),
		Facts:        businessFacts(b, b.HoursContext(now)),
		Knowledge:    snippets,
	})

	recent := st.Recent(o.historyTurns)
	messages := make([]llm.Message, 0, len(recent)+1)
	for _, turn := range recent {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	callCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()
	resp, err := o.llm.Complete(callCtx, llm.Request{
		Model:       o.model,
		System:      []string{prompt},
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: 0.3,
	})
	if err == nil {
		if text := strings.TrimSpace(resp.Text); text != "" {
			return text, "answered"
		}
		err = errEmptyCompletion
	}

	o.logger.Error("llm completion failed", "bot_id", b.ID, "conversation_id", st.ConversationID, "error", err)
	if len(snippets) == 0 {
		return FallbackReply(string(intent), b.BusinessInfo()), "fallback"
	}
	return LLMFailureReply, "llm_error"
}

// collectSideEffects updates the capture on st and returns the events the
// turn produced.
func (o *Orchestrator) collectSideEffects(b *bot.Bot, st *State, intent Intent, message, lastAssistant string, now time.Time) []SideEffect {
	var effects []SideEffect

	prev := st.Capture
	curr := ExtractCapture(message, lastAssistant, prev)
	st.Capture = curr
	if !st.CaptureFired && CaptureCompleted(prev, curr) {
		st.CaptureFired = true
		effects = append(effects, SideEffect{
			ID:         effectID(b.ID, st.ConversationID, SideEffectLeadCaptured, ""),
			Type:       SideEffectLeadCaptured,
			OccurredAt: now,
			Lead: &LeadPayload{
				Name:    curr.Name,
				Email:   curr.Email,
				Phone:   curr.Phone,
				Message: firstVisitorMessage(st, message),
			},
		})
	}

	if intent == IntentBooking {
		loc := b.Location()
		if slot, ok := ParseSlot(message, now, loc, o.slotLength); ok {
			effects = append(effects, SideEffect{
				ID:         effectID(b.ID, st.ConversationID, SideEffectBookingIntent, slot.Start.UTC().Format(time.RFC3339)),
				Type:       SideEffectBookingIntent,
				OccurredAt: now,
				Booking: &BookingPayload{
					Start:    slot.Start,
					End:      slot.End,
					Timezone: loc.String(),
					Raw:      slot.Raw,
					Name:     curr.Name,
					Email:    curr.Email,
				},
			})
		}
	}
	return effects
}

// firstVisitorMessage is the opening question of the conversation, which
// usually says what the lead wants.
func firstVisitorMessage(st *State, current string) string {
	for _, turn := range st.History {
		if turn.Role == llm.RoleUser {
			return turn.Content
		}
	}
	return current
}

func effectID(botID, conversationID, kind, discriminator string) string {
	name := strings.Join([]string{botID, conversationID, kind, discriminator}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func (o *Orchestrator) saveState(ctx context.Context, st *State) {
	err := o.states.Save(ctx, st)
	switch {
	case err == nil:
	case errors.Is(err, ErrStateConflict):
		// Two turns raced on the same conversation; the other writer's state wins.
		o.metrics.ObserveStateConflict()
		o.logger.Warn("conversation state changed concurrently, turn not persisted",
			"bot_id", st.BotID, "conversation_id", st.ConversationID, "version", st.Version)
	default:
		o.logger.Error("failed to persist conversation state",
			"bot_id", st.BotID, "conversation_id", st.ConversationID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, botID, conversationID string, effects []SideEffect) {
	if len(effects) == 0 || o.sink == nil {
		return
	}
	err := o.sink.Publish(ctx, botID, conversationID, effects)
	if err != nil {
		o.logger.Error("failed to publish side effects",
			"bot_id", botID, "conversation_id", conversationID, "count", len(effects), "error", err)
	}
	for _, e := range effects {
		o.metrics.ObserveSideEffect(e.Type, err == nil)
	}
}

// Conversation returns the stored state of a conversation.
func (o *Orchestrator) Conversation(ctx context.Context, botID, conversationID string) (*State, error) {
	if _, err := o.bots.Get(ctx, botID); err != nil {
		return nil, err
	}
	st, err := o.states.Load(ctx, botID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	if st.Version == 0 {
		return nil, ErrConversationNotFound
	}
	return st, nil
}

// MarkBookingCompleted records that the scheduling tool confirmed a booking.
// Later prompts stop warning against booking claims.
func (o *Orchestrator) MarkBookingCompleted(ctx context.Context, botID, conversationID string) error {
	for attempt := 0; attempt < stateSaveAttempts; attempt++ {
		st, err := o.states.Load(ctx, botID, conversationID)
		if err != nil {
			return fmt.Errorf("chat: load conversation: %w", err)
		}
		if st.Version == 0 {
			return ErrConversationNotFound
		}
		st.Flags.BookingCompleted = true
		st.Flags.CalendarAlreadyShown = true
		st.UpdatedAt = o.now()
		err = o.states.Save(ctx, st)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStateConflict) {
			return err
		}
	}
	return ErrStateConflict
}
