package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/botdesk/internal/bot"
)

func TestBuildSystemPromptCalendarShown(t *testing.T) {
	prompt := BuildSystemPrompt(PromptInput{
		Intent:       IntentBooking,
		BusinessName: "Glow Studio",
		Flags:        Flags{CalendarAlreadyShown: true},
	})

	assert.Contains(t, prompt, noReannounceRule)
	assert.Contains(t, prompt, bookingClaimsRule)
	assert.NotContains(t, prompt, bookingDoneRule)
	assert.Contains(t, prompt, "Glow Studio")
}

func TestBuildSystemPromptBookingCompleted(t *testing.T) {
	prompt := BuildSystemPrompt(PromptInput{
		Intent: IntentFAQ,
		Flags:  Flags{CalendarAlreadyShown: true, BookingCompleted: true},
		Fragments: Fragments{
			SuppressBookingAfterDone: "Do not offer another booking unless asked.",
		},
	})

	assert.Contains(t, prompt, bookingDoneRule)
	assert.NotContains(t, prompt, noReannounceRule)
	assert.NotContains(t, prompt, bookingClaimsRule)
	assert.Contains(t, prompt, "Do not offer another booking unless asked.")
}

func TestBuildSystemPromptInjectsFragmentsUnchanged(t *testing.T) {
	suppress := "  Do not offer another booking unless asked.\n"
	prompt := BuildSystemPrompt(PromptInput{
		Fragments: Fragments{
			Tone:                     "Warm.  Brief.",
			SuppressBookingAfterDone: suppress,
		},
	})
	assert.Contains(t, prompt, "TONE:\nWarm.  Brief.")
	assert.Contains(t, prompt, suppress, "present fragments are not gated on flags")
}

func TestFragmentsForGatesSuppressionOnCompletedBooking(t *testing.T) {
	b := &bot.Bot{Tone: " Playful ", Calendar: bot.Calendar{Provider: "iframe", BookingURL: "https://cal.test/glow"}}

	open := fragmentsFor(b, Flags{})
	assert.Empty(t, open.SuppressBookingAfterDone)
	assert.Equal(t, iframeFragment, open.Iframe)
	assert.Equal(t, "Playful", open.Tone)

	done := fragmentsFor(b, Flags{BookingCompleted: true})
	assert.Equal(t, suppressBookingFragment, done.SuppressBookingAfterDone)
}

func TestBuildSystemPromptAfterHours(t *testing.T) {
	faq := BuildSystemPrompt(PromptInput{Intent: IntentFAQ, Flags: Flags{AfterHours: true}})
	assert.Contains(t, faq, afterHoursAllowed)

	booking := BuildSystemPrompt(PromptInput{Intent: IntentBooking, Flags: Flags{AfterHours: true}})
	assert.NotContains(t, booking, afterHoursAllowed)
	assert.Contains(t, booking, afterHoursForbidden)

	open := BuildSystemPrompt(PromptInput{Intent: IntentFAQ})
	assert.NotContains(t, open, afterHoursAllowed)
}

func TestBuildSystemPromptAlwaysForbidsUIMechanics(t *testing.T) {
	for _, intent := range []Intent{IntentBooking, IntentFAQ, IntentUnknown} {
		assert.Contains(t, BuildSystemPrompt(PromptInput{Intent: intent}), noMechanicsRule)
	}
}

func TestBuildSystemPromptLanguage(t *testing.T) {
	en := BuildSystemPrompt(PromptInput{Language: bot.LanguageEnglish})
	assert.Contains(t, en, "Always reply in English")

	fr := BuildSystemPrompt(PromptInput{Language: bot.LanguageFrench})
	assert.Contains(t, fr, "Always reply in French")

	auto := BuildSystemPrompt(PromptInput{Language: bot.LanguageAuto})
	assert.Contains(t, auto, "language of the visitor's latest message")
}

func TestBuildSystemPromptKnowledge(t *testing.T) {
	prompt := BuildSystemPrompt(PromptInput{
		Knowledge: []string{"We open at 9am.", "  ", "Parking is free."},
	})
	assert.Contains(t, prompt, "BUSINESS KNOWLEDGE:\n1. We open at 9am.\n2. Parking is free.")
	assert.Contains(t, prompt, Deflection)

	empty := BuildSystemPrompt(PromptInput{})
	assert.Contains(t, empty, "No business knowledge matched this message.")
}

func TestBuildSystemPromptFragmentsVerbatim(t *testing.T) {
	prompt := BuildSystemPrompt(PromptInput{
		Fragments: Fragments{
			Tone:               "Friendly and upbeat.",
			Iframe:             "The booking calendar is on this page.",
			BookingFallback:    "Offer to take their name and email.",
			Contact:            "Email: hi@glow.test",
			NoLinkUntilConfirm: "Share https://cal.test only after they confirm.",
		},
	})
	for _, fragment := range []string{
		"TONE:\nFriendly and upbeat.",
		"The booking calendar is on this page.",
		"Offer to take their name and email.",
		"CONTACT DETAILS:\nEmail: hi@glow.test",
		"Share https://cal.test only after they confirm.",
	} {
		assert.Contains(t, prompt, fragment)
	}
}

func TestBuildSystemPromptDeterministic(t *testing.T) {
	in := PromptInput{
		Intent:       IntentPricing,
		BusinessName: "Glow",
		Facts:        "Status: OPEN",
		Knowledge:    []string{"Facials from $80."},
		Flags:        Flags{AfterHours: true},
	}
	first := BuildSystemPrompt(in)
	require.Equal(t, first, BuildSystemPrompt(in))

	// Sections keep their order.
	assert.Less(t, strings.Index(first, "LANGUAGE:"), strings.Index(first, "SECURITY RULES"))
	assert.Less(t, strings.Index(first, "BOOKING RULES:"), strings.Index(first, "BUSINESS KNOWLEDGE:"))
}
