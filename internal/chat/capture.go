package chat

import (
	"regexp"
	"strings"
	"unicode"
)

// Capture holds the contact details a visitor has shared so far.
type Capture struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Complete reports whether both name and email are present.
func (c Capture) Complete() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Email) != ""
}

// CaptureCompleted is true only on the turn where the capture goes from
// incomplete to complete. Phone never affects the result.
func CaptureCompleted(prev, curr Capture) bool {
	return !prev.Complete() && curr.Complete()
}

var (
	emailRE = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)

	// Explicit introductions accept any casing.
	explicitNameRE = regexp.MustCompile(`(?i)\b(?:my name is|my name's|name is|name:|call me|je m'appelle|mon nom est)\s+([\p{L}'\-]+(?:\s+[\p{L}'\-]+){0,2})`)
	// Casual introductions need a capitalized name so "I'm interested" is ignored.
	casualNameRE = regexp.MustCompile(`(?:\b[Ii]'?m|\b[Ii] am|\b[Tt]his is|\b[Ii]t's)\s+(\p{Lu}[\p{L}'\-]*(?:\s+\p{Lu}[\p{L}'\-]*){0,2})`)

	askNameRE    = regexp.MustCompile(`(?i)\b(your name|your full name|who am i (speaking|chatting) with|name for the|votre nom)\b`)
	askContactRE = regexp.MustCompile(`(?i)\b(your name|email|e-mail|phone|number|reach you|contact you|courriel|téléphone)\b`)
	bareNameRE   = regexp.MustCompile(`^[\p{L}'\-]+(?:\s+[\p{L}'\-]+){0,2}$`)
)

var notNames = map[string]bool{
	"interested": true, "looking": true, "here": true, "good": true, "fine": true,
	"sure": true, "yes": true, "no": true, "ok": true, "okay": true, "not": true,
	"just": true, "trying": true, "wondering": true, "curious": true, "new": true,
	"available": true, "free": true, "busy": true, "thanks": true, "hello": true, "hi": true,
}

// ExtractCapture merges whatever contact details the message carries into
// prev. Fields already captured are kept unless the message provides a new
// value; nothing is ever cleared.
func ExtractCapture(message, lastAssistant string, prev Capture) Capture {
	next := prev
	if email := emailRE.FindString(message); email != "" {
		next.Email = strings.ToLower(email)
	}
	if phone := extractPhone(message); phone != "" {
		next.Phone = phone
	}
	if name := extractName(message, lastAssistant); name != "" {
		next.Name = name
	}
	return next
}

// LooksLikeCaptureAnswer reports whether the message is a reply to a contact
// details prompt rather than a question.
func LooksLikeCaptureAnswer(message, lastAssistant string) bool {
	text := strings.TrimSpace(message)
	if text == "" || strings.HasSuffix(text, "?") {
		return false
	}
	if emailRE.MatchString(text) || extractPhone(text) != "" {
		return len(strings.Fields(text)) <= 6
	}
	if lastAssistant != "" && askContactRE.MatchString(lastAssistant) {
		return bareNameRE.MatchString(strings.Trim(text, " .!,"))
	}
	return false
}

func extractPhone(message string) string {
	for _, candidate := range phoneRE.FindAllString(message, -1) {
		var b strings.Builder
		if strings.HasPrefix(candidate, "+") {
			b.WriteByte('+')
		}
		for _, r := range candidate {
			if unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		digits := strings.TrimPrefix(b.String(), "+")
		if len(digits) >= 10 && len(digits) <= 15 {
			return b.String()
		}
	}
	return ""
}

func extractName(message, lastAssistant string) string {
	text := strings.TrimSpace(message)
	if m := explicitNameRE.FindStringSubmatch(text); m != nil {
		if name := cleanName(m[1]); name != "" {
			return name
		}
	}
	if m := casualNameRE.FindStringSubmatch(text); m != nil {
		if name := cleanName(m[1]); name != "" {
			return name
		}
	}
	if lastAssistant != "" && askNameRE.MatchString(lastAssistant) {
		bare := strings.Trim(emailRE.ReplaceAllString(text, ""), " .!,")
		if bareNameRE.MatchString(bare) {
			return cleanName(bare)
		}
	}
	return ""
}

func cleanName(raw string) string {
	words := strings.Fields(strings.Trim(raw, " .!,'-"))
	kept := words[:0]
	for _, w := range words {
		lw := strings.ToLower(w)
		if notNames[lw] || lw == "and" || lw == "my" {
			break
		}
		kept = append(kept, titleWord(w))
	}
	return strings.Join(kept, " ")
}

func titleWord(w string) string {
	runes := []rune(w)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
