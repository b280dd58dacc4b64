package bot

import (
	"errors"
	"strings"
	"time"
)

// ErrBotNotFound is returned when no bot exists for an id.
var ErrBotNotFound = errors.New("bot: not found")

// Language pins the reply language of a bot.
type Language string

const (
	LanguageAuto    Language = "auto"
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
)

// ParseLanguage normalizes a stored preference; anything unknown is auto.
func ParseLanguage(s string) Language {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguageEnglish:
		return LanguageEnglish
	case LanguageFrench:
		return LanguageFrench
	default:
		return LanguageAuto
	}
}

// Contact is the public contact block shown in fallback replies.
type Contact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Calendar describes where visitors book.
type Calendar struct {
	Provider   string `json:"provider,omitempty"` // "google", "calendly", "iframe", ""
	BookingURL string `json:"booking_url,omitempty"`
}

// Display carries widget presentation settings. The core only reads Greeting.
type Display struct {
	Color    string `json:"color,omitempty"`
	LogoURL  string `json:"logo_url,omitempty"`
	Greeting string `json:"greeting,omitempty"`
}

// Bot is a tenant-configured assistant.
type Bot struct {
	ID           string       `json:"id"`
	AccountID    string       `json:"account_id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	WebsiteText  string       `json:"website_text,omitempty"`
	FileText     string       `json:"file_text,omitempty"`
	Calendar     Calendar     `json:"calendar"`
	Timezone     string       `json:"timezone,omitempty"`
	WorkingHours WorkingHours `json:"working_hours"`
	Contact      Contact      `json:"contact"`
	Display      Display      `json:"display"`
	Language     Language     `json:"language,omitempty"`
	Tone         string       `json:"tone,omitempty"`
	WebhookURL   string       `json:"webhook_url,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Validate checks the fields a bot cannot be saved without.
func (b *Bot) Validate() error {
	if b == nil {
		return errors.New("bot: nil bot")
	}
	if strings.TrimSpace(b.ID) == "" {
		return errors.New("bot: id is required")
	}
	if strings.TrimSpace(b.AccountID) == "" {
		return errors.New("bot: account id is required")
	}
	if _, err := time.LoadLocation(b.Timezone); b.Timezone != "" && err != nil {
		return errors.New("bot: unknown timezone " + b.Timezone)
	}
	return b.WorkingHours.Validate()
}

// BusinessInfo returns the loosely-typed contact record used by fallback
// templates. Empty fields are left out.
func (b *Bot) BusinessInfo() map[string]any {
	info := map[string]any{}
	if b == nil {
		return info
	}
	if v := strings.TrimSpace(b.Contact.Email); v != "" {
		info["email"] = v
	}
	if v := strings.TrimSpace(b.Contact.Phone); v != "" {
		info["phone"] = v
	}
	if v := strings.TrimSpace(b.Contact.Address); v != "" {
		info["address"] = v
	}
	return info
}

// HasBookingLink reports whether visitors can be sent to a scheduling UI.
func (b *Bot) HasBookingLink() bool {
	return b != nil && strings.TrimSpace(b.Calendar.BookingURL) != ""
}

// DisplayName falls back to a neutral label when the bot has no name.
func (b *Bot) DisplayName() string {
	if b == nil || strings.TrimSpace(b.Name) == "" {
		return "our business"
	}
	return strings.TrimSpace(b.Name)
}
