// Package knowledge chunks, embeds, stores and retrieves bot knowledge.
package knowledge

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wolfman30/botdesk/internal/bot"
)

const (
	MaxTokensPerChunk = 800
	MinTokensPerChunk = 200
	OverlapTokens     = 200
)

// Chunk is an immutable token-bounded slice of a bot's knowledge.
type Chunk struct {
	ID         string    `json:"id"`
	BotID      string    `json:"bot_id"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Index      int       `json:"index"`
	Embedding  []float32 `json:"-"`
}

type ChunkerConfig struct {
	MaxTokens     int
	MinTokens     int
	OverlapTokens int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxTokens:     MaxTokensPerChunk,
		MinTokens:     MinTokensPerChunk,
		OverlapTokens: OverlapTokens,
	}
}

// Chunker splits text into overlapping chunks on sentence boundaries.
//
// Sentences longer than MaxTokens are dropped, never split. A finalized chunk
// below MinTokens is discarded, including the trailing one. Both losses are
// accepted in exchange for uniform chunk quality.
type Chunker struct {
	cfg   ChunkerConfig
	newID func() string
}

type ChunkerOption func(*Chunker)

// WithIDFunc replaces the chunk id generator.
func WithIDFunc(fn func() string) ChunkerOption {
	return func(c *Chunker) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func NewChunker(cfg ChunkerConfig, opts ...ChunkerOption) *Chunker {
	def := DefaultChunkerConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MinTokens < 0 || cfg.MinTokens > cfg.MaxTokens {
		cfg.MinTokens = min(def.MinTokens, cfg.MaxTokens)
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.MaxTokens {
		cfg.OverlapTokens = min(def.OverlapTokens, cfg.MaxTokens/2)
	}
	c := &Chunker{cfg: cfg, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chunker) Config() ChunkerConfig { return c.cfg }

type sentence struct {
	text   string
	runes  int
	words  int
	tokens int
}

// window is a run of sentences joined by single spaces. It tracks the rune
// and word counts of the joined text so its size always equals CountTokens of
// that text.
type window struct {
	sentences []sentence
	runes     int
	words     int
}

func measure(runes, words int) int {
	if runes == 0 {
		return 0
	}
	if c := (runes + 3) / 4; c > words {
		return c
	}
	return words
}

func (w *window) tokens() int { return measure(w.runes, w.words) }

// tokensWith is the size of the window once s is added.
func (w *window) tokensWith(s sentence) int {
	runes := w.runes + s.runes
	if len(w.sentences) > 0 {
		runes++
	}
	return measure(runes, w.words+s.words)
}

func (w *window) push(s sentence) {
	if len(w.sentences) > 0 {
		w.runes++
	}
	w.runes += s.runes
	w.words += s.words
	w.sentences = append(w.sentences, s)
}

func (w *window) shift() {
	s := w.sentences[0]
	w.sentences = w.sentences[1:]
	w.runes -= s.runes
	w.words -= s.words
	if len(w.sentences) > 0 {
		w.runes--
	}
}

func (w *window) text() string {
	parts := make([]string, len(w.sentences))
	for i, s := range w.sentences {
		parts[i] = s.text
	}
	return strings.Join(parts, " ")
}

// Split chunks text for botID. It never fails; content that cannot be
// placed in a valid chunk is dropped.
func (c *Chunker) Split(botID, text string) []Chunk {
	var chunks []Chunk
	current := &window{}

	finalize := func() {
		if len(current.sentences) == 0 {
			return
		}
		body := current.text()
		count := CountTokens(body)
		if count < c.cfg.MinTokens {
			return
		}
		chunks = append(chunks, Chunk{
			ID:         c.newID(),
			BotID:      botID,
			Text:       body,
			TokenCount: count,
			Index:      len(chunks),
		})
	}

	for _, s := range splitSentences(text) {
		if s.tokens > c.cfg.MaxTokens {
			continue
		}
		if len(current.sentences) > 0 && current.tokensWith(s) > c.cfg.MaxTokens {
			finalize()
			current = c.overlapTail(current)
			// The seed yields to the incoming sentence when both cannot fit.
			for len(current.sentences) > 0 && current.tokensWith(s) > c.cfg.MaxTokens {
				current.shift()
			}
		}
		current.push(s)
	}
	finalize()
	return chunks
}

// overlapTail walks backward from the end, keeping sentences while the joined
// tail stays within the overlap budget.
func (c *Chunker) overlapTail(w *window) *window {
	var tail window
	start := len(w.sentences)
	for i := len(w.sentences) - 1; i >= 0; i-- {
		if tail.tokensWith(w.sentences[i]) > c.cfg.OverlapTokens {
			break
		}
		tail.push(w.sentences[i])
		start = i
	}
	seed := &window{}
	for _, s := range w.sentences[start:] {
		seed.push(s)
	}
	return seed
}

// splitSentences breaks on '.', '?' or '!' followed by whitespace.
func splitSentences(text string) []sentence {
	runes := []rune(text)
	var out []sentence
	start := 0
	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, sentence{
				text:   s,
				runes:  utf8.RuneCountInString(s),
				words:  len(strings.Fields(s)),
				tokens: CountTokens(s),
			})
		}
	}
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '?', '!':
			if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				emit(i + 1)
				start = i + 1
			}
		}
	}
	emit(len(runes))
	return out
}

// CombineSources joins a bot's description, scraped website text and
// uploaded file text into the blob that gets chunked.
func CombineSources(b *bot.Bot) string {
	if b == nil {
		return ""
	}
	var parts []string
	for _, src := range []string{b.Description, b.WebsiteText, b.FileText} {
		if s := strings.TrimSpace(src); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
