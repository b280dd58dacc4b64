package chat

import (
	"regexp"
	"strings"
)

// InjectionScan is the verdict on one visitor message.
type InjectionScan struct {
	Blocked bool
	Score   float64
	Signals []string
	// Clean is the message with known markers stripped. It equals the input
	// when nothing suspicious was found.
	Clean string
}

type injectionPattern struct {
	re     *regexp.Regexp
	signal string
	weight float64
}

const (
	injectionBlockScore = 0.7
	injectionWarnScore  = 0.3
)

// BlockedReply answers messages that try to take over the assistant.
const BlockedReply = "I'm here to help with questions about our business and booking a visit. How can I help you today?"

var injectionPatterns = []injectionPattern{
	{regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?)`), "override:ignore_instructions", 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`), "override:role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)new\s+role\s*:|new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "override:new_role", 0.9},
	{regexp.MustCompile(`(?i)(override|bypass)\s+(your\s+)?(system|instructions?|rules?|safety|filters?|guidelines?|restrictions?)`), "override:bypass", 0.8},
	{regexp.MustCompile(`(?i)(pretend|imagine|assume)\s+(that\s+)?(you\s+)?(are|have|don'?t\s+have)\s+(no\s+)?(rules?|restrictions?|limits?|filters?)`), "override:pretend_no_rules", 0.9},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|god\s*mode`), "override:jailbreak", 0.9},

	{regexp.MustCompile(`(?i)(reveal|show|print|repeat|tell\s+me|what\s+(is|are))\s+(your\s+)?(system\s+prompt|instructions|initial\s+prompt|hidden\s+prompt|system\s+message)`), "exfiltration:system_prompt", 0.8},
	{regexp.MustCompile(`(?i)(list|show|give|tell)\s+(me\s+)?(all\s+)?(the\s+)?other\s+(visitors?|customers?|clients?|users?)(?:'s|')?\s+(data|info|names?|emails?|messages?|conversations?)`), "exfiltration:other_visitors", 0.7},
	{regexp.MustCompile(`(?i)\b(api|secret|aws|database|db|admin)\s*(key|token|secret|password|credential)s?\b`), "exfiltration:credentials", 0.8},

	{regexp.MustCompile(`(?i)base64\s*(encode|decode|:)|\\x[0-9a-fA-F]{2}`), "obfuscation:encoding", 0.5},
	{regexp.MustCompile(`!\[.*\]\(https?://`), "obfuscation:markdown_image", 0.4},
	{regexp.MustCompile(`(?i)<\s*(script|img|iframe|object|embed|style|svg|form)\b`), "obfuscation:html", 0.6},

	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|assistant\|>`), "frame:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|assistant|user)\s*:`), "frame:role_markers", 0.7},
	{regexp.MustCompile(`(?i)the\s+real\s+(instructions?|task|prompt)\s+(is|starts?|begins?)`), "frame:real_instructions", 0.8},
}

var stripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|assistant\|>`),
	regexp.MustCompile(`(?i)###\s*(system|instruction|assistant|user)\s*:`),
	regexp.MustCompile(`(?i)<\s*(script|img|iframe|object|embed|style|svg|form)\b[^>]*>`),
	regexp.MustCompile(`!\[.*?\]\(https?://[^)]+\)`),
}

// ScanForInjection scores a message against known takeover patterns. The
// strongest signal sets the score and each extra signal adds 0.1.
func ScanForInjection(message string) InjectionScan {
	if strings.TrimSpace(message) == "" {
		return InjectionScan{Clean: message}
	}

	var signals []string
	top := 0.0
	for _, p := range injectionPatterns {
		if p.re.MatchString(message) {
			signals = append(signals, p.signal)
			if p.weight > top {
				top = p.weight
			}
		}
	}

	score := top
	if len(signals) > 1 {
		score = min(top+float64(len(signals)-1)*0.1, 1.0)
	}

	scan := InjectionScan{Score: score, Signals: signals, Clean: message}
	switch {
	case score >= injectionBlockScore:
		scan.Blocked = true
	case score >= injectionWarnScore:
		scan.Clean = stripMarkers(message)
	}
	return scan
}

func stripMarkers(message string) string {
	cleaned := message
	for _, re := range stripPatterns {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}
