package chat

import (
	"regexp"
	"strings"
)

// Low-signal reasons reported by the guard.
const (
	ReasonCaptureAnswer   = "capture_answer"
	ReasonAcknowledgement = "acknowledgement"
	ReasonGenericKeyword  = "generic_keyword"
	ReasonShortNudge      = "short_nudge"
)

var (
	acknowledgementRE = regexp.MustCompile(`(?i)^(ok|okay|k|kk|okk|thanks|thank you|thank you so much|thx|ty|cool|great|nice|perfect|awesome|got it|sounds good|alright|all right|sure|yes|yep|yeah|no|nope|hi|hello|hey|bye|goodbye|lol|hmm+|merci|oui|non|bonjour|salut|d'accord|👍|🙏|🙂)$`)

	genericKeywords = map[string]bool{
		"price": true, "prices": true, "pricing": true, "cost": true, "costs": true,
		"hours": true, "schedule": true, "address": true, "location": true,
		"services": true, "service": true, "info": true, "information": true,
		"contact": true, "phone": true, "email": true, "help": true, "menu": true,
		"booking": true, "appointment": true, "details": true, "more": true,
		"question": true, "questions": true, "prix": true, "horaires": true,
	}

	terminalPunctRE = regexp.MustCompile(`[.?!。？！]\s*$`)
	trailingNoiseRE = regexp.MustCompile(`[\s!.?,;:~]+$`)
)

// guardRule is one named low-signal predicate.
type guardRule struct {
	reason string
	match  func(message, lastAssistant string) bool
}

// LowSignalGuard decides whether a message is worth a retrieval round trip.
// Capture answers ("john@example.com") and pleasantries carry no question.
type LowSignalGuard struct {
	rules []guardRule
}

// NewLowSignalGuard builds the guard. captureAnswer recognizes replies to a
// contact-details prompt; nil disables that rule.
func NewLowSignalGuard(captureAnswer func(message, lastAssistant string) bool) *LowSignalGuard {
	rules := make([]guardRule, 0, 4)
	if captureAnswer != nil {
		rules = append(rules, guardRule{reason: ReasonCaptureAnswer, match: captureAnswer})
	}
	rules = append(rules,
		guardRule{reason: ReasonAcknowledgement, match: isAcknowledgement},
		guardRule{reason: ReasonGenericKeyword, match: isGenericKeyword},
		guardRule{reason: ReasonShortNudge, match: isShortNudge},
	)
	return &LowSignalGuard{rules: rules}
}

// Check returns true and the rule name when the message should skip retrieval.
func (g *LowSignalGuard) Check(message, lastAssistant string) (bool, string) {
	text := strings.TrimSpace(message)
	if text == "" {
		return true, ReasonShortNudge
	}
	for _, rule := range g.rules {
		if rule.match(text, lastAssistant) {
			return true, rule.reason
		}
	}
	return false, ""
}

// IsLowSignal is Check without the reason.
func (g *LowSignalGuard) IsLowSignal(message, lastAssistant string) bool {
	low, _ := g.Check(message, lastAssistant)
	return low
}

func normalizeShort(message string) string {
	return strings.ToLower(trailingNoiseRE.ReplaceAllString(strings.TrimSpace(message), ""))
}

func isAcknowledgement(message, _ string) bool {
	return acknowledgementRE.MatchString(normalizeShort(message))
}

// isGenericKeyword matches messages made only of topic words ("price?",
// "hours and address") with nothing specific attached.
func isGenericKeyword(message, _ string) bool {
	words := strings.Fields(normalizeShort(message))
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	seen := false
	for _, w := range words {
		w = strings.Trim(w, ",;:")
		switch {
		case genericKeywords[w]:
			seen = true
		case w == "and" || w == "&" || w == "your" || w == "the" || w == "et":
		default:
			return false
		}
	}
	return seen
}

func isShortNudge(message, _ string) bool {
	if terminalPunctRE.MatchString(message) {
		return false
	}
	return len(strings.Fields(message)) <= 2
}
