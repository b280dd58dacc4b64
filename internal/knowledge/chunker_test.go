package knowledge

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/botdesk/internal/bot"
)

// tag is a distinct two-letter word for sentence i. Two-letter words keep the
// joined text word-dominated, so a chunk's token count is its word count.
func tag(i int) string {
	return string([]rune{rune('a' + i/26), rune('a' + i%26)})
}

// makeSentence builds a sentence of exactly n tokens.
func makeSentence(word string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = word
	}
	return strings.Join(words, " ") + "."
}

func makeDoc(sizes ...int) string {
	parts := make([]string, len(sizes))
	for i, n := range sizes {
		parts[i] = makeSentence(tag(i), n)
	}
	return strings.Join(parts, " ")
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("chunk-%d", n)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Open at 9.30 today. Closed Sunday!  Why?\nBecause rest. trailing bit")
	texts := make([]string, len(got))
	for i, s := range got {
		texts[i] = s.text
	}
	assert.Equal(t, []string{"Open at 9.30 today.", "Closed Sunday!", "Why?", "Because rest.", "trailing bit"}, texts)
}

func TestSplit_OverlapBetweenChunks(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig(), WithIDFunc(sequentialIDs()))
	chunks := c.Split("bot-1", makeDoc(100, 100, 100, 100, 100, 100, 100, 100, 100, 100))

	require.Len(t, chunks, 2)
	assert.Equal(t, 800, chunks[0].TokenCount)
	assert.Equal(t, 400, chunks[1].TokenCount)
	assert.Equal(t, "chunk-1", chunks[0].ID)
	assert.Equal(t, "bot-1", chunks[1].BotID)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)

	overlap := makeSentence(tag(6), 100) + " " + makeSentence(tag(7), 100)
	assert.True(t, strings.HasSuffix(chunks[0].Text, overlap))
	assert.True(t, strings.HasPrefix(chunks[1].Text, overlap))
}

func TestSplit_TokenBoundsHold(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig())
	sizes := []int{90, 250, 40, 310, 120, 700, 60, 200, 15, 399, 401, 80, 130, 55, 600, 20}
	for _, ch := range c.Split("bot-1", makeDoc(sizes...)) {
		assert.GreaterOrEqual(t, ch.TokenCount, MinTokensPerChunk, "chunk %d", ch.Index)
		assert.LessOrEqual(t, ch.TokenCount, MaxTokensPerChunk, "chunk %d", ch.Index)
	}
}

func TestSplit_TokenCountMatchesText(t *testing.T) {
	inputs := map[string]string{
		"short words":   strings.Repeat("Abcd. ", 2000),
		"long words":    strings.Repeat("Microdermabrasion appointments available. ", 300),
		"prose":         strings.Repeat("We offer facials, peels and laser treatments every weekday. Call us today! ", 120),
		"mixed lengths": makeDoc(90, 250, 40, 310, 120, 700, 60, 200, 15, 399, 401, 80, 130, 55, 600, 20),
		"french":        strings.Repeat("Nous sommes ouverts du lundi au vendredi. Fermé le dimanche! ", 150),
	}
	c := NewChunker(DefaultChunkerConfig())
	for name, text := range inputs {
		t.Run(name, func(t *testing.T) {
			chunks := c.Split("bot-1", text)
			require.NotEmpty(t, chunks)
			for _, ch := range chunks {
				assert.Equal(t, CountTokens(ch.Text), ch.TokenCount, "chunk %d", ch.Index)
				assert.GreaterOrEqual(t, ch.TokenCount, MinTokensPerChunk, "chunk %d", ch.Index)
				assert.LessOrEqual(t, ch.TokenCount, MaxTokensPerChunk, "chunk %d", ch.Index)
			}
		})
	}
}

func TestSplit_MinimumAppliesToJoinedText(t *testing.T) {
	// 100 two-token sentences, but only 150 tokens once joined.
	text := strings.Repeat("Abcd. ", 100)
	assert.Equal(t, 150, CountTokens(text))
	assert.Empty(t, NewChunker(DefaultChunkerConfig()).Split("bot-1", text))
}

func TestSplit_DropsOversizedSentence(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig())
	chunks := c.Split("bot-1", makeDoc(300, 900, 250))

	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Text, tag(1)+".")
	assert.Equal(t, 550, chunks[0].TokenCount)
}

func TestSplit_DropsSubMinimumChunks(t *testing.T) {
	c := NewChunker(DefaultChunkerConfig())

	t.Run("trailing remainder", func(t *testing.T) {
		chunks := c.Split("bot-1", makeDoc(700, 150))
		require.Len(t, chunks, 1)
		assert.Equal(t, 700, chunks[0].TokenCount)
		assert.NotContains(t, chunks[0].Text, tag(1)+".")
	})

	t.Run("finalized head", func(t *testing.T) {
		chunks := c.Split("bot-1", makeDoc(150, 700))
		require.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].Index)
		assert.Equal(t, 700, chunks[0].TokenCount, "overlap seed must yield to keep the chunk under the maximum")
	})

	t.Run("short input", func(t *testing.T) {
		assert.Empty(t, c.Split("bot-1", "Hello there. We are open."))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, c.Split("bot-1", ""))
	})
}

func TestSplit_Deterministic(t *testing.T) {
	doc := makeDoc(120, 340, 220, 90, 410, 75, 300, 260, 180)
	a := NewChunker(DefaultChunkerConfig()).Split("bot-1", doc)
	b := NewChunker(DefaultChunkerConfig()).Split("bot-1", doc)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Text, b[i].Text)
		assert.Equal(t, a[i].TokenCount, b[i].TokenCount)
		assert.Equal(t, a[i].Index, b[i].Index)
	}
}

func TestNewChunker_SanitizesConfig(t *testing.T) {
	c := NewChunker(ChunkerConfig{MaxTokens: 100, MinTokens: 500, OverlapTokens: 100})
	cfg := c.Config()
	assert.Equal(t, 100, cfg.MaxTokens)
	assert.LessOrEqual(t, cfg.MinTokens, cfg.MaxTokens)
	assert.Less(t, cfg.OverlapTokens, cfg.MaxTokens)
}

func TestCombineSources(t *testing.T) {
	b := &bot.Bot{Description: "We cut hair.", WebsiteText: "  ", FileText: "Prices vary."}
	assert.Equal(t, "We cut hair.\n\nPrices vary.", CombineSources(b))
	assert.Equal(t, "", CombineSources(nil))
}
