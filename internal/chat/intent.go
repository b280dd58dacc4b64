// Package chat runs one visitor turn of the widget conversation: it classifies
// the message, decides whether retrieval is worth doing, assembles the system
// prompt and turns the model answer into a reply plus side effects.
package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Intent is the coarse label attached to every visitor message.
type Intent string

const (
	IntentBooking   Intent = "booking"
	IntentPricing   Intent = "pricing"
	IntentEmergency Intent = "emergency"
	IntentHours     Intent = "hours"
	IntentLocation  Intent = "location"
	IntentOffer     Intent = "offer"
	IntentFAQ       Intent = "faq"
	IntentUnknown   Intent = "unknown"
)

// intentRule maps a predicate to a label. Rules are evaluated in order and the
// first match wins, so booking sits ahead of everything else.
type intentRule struct {
	name  string
	label Intent
	match func(utterance string) bool
}

var (
	bookingVocabRE = regexp.MustCompile(`(?i)\b(book|booking|booked|schedule|scheduling|reschedule|appointment|appointments|appt|reserve|reservation|rendez-vous|rdv|réserver)\b`)
	// "I'd like a consultation" asks for a slot even without booking vocabulary.
	bookingRequestRE = regexp.MustCompile(`(?i)\b(i'?d like|i would like|i want|can i (get|have|come in for)|sign me up for)\b.*\b(consultation|consult|session|visit|call|meeting)\b`)

	weekdayRE     = regexp.MustCompile(`(?i)\b(mon|tues|wednes|thurs|fri|satur|sun)day\b|\b(lundi|mardi|mercredi|jeudi|vendredi|samedi|dimanche)\b`)
	relativeDayRE = regexp.MustCompile(`(?i)\b(tomorrow|tmrw|tonight|day after tomorrow|next week|this weekend|next weekend|demain|après-demain|la semaine prochaine)\b`)
	clockTimeRE   = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(am|pm|a\.m\.|p\.m\.)|\b\d{1,2}:\d{2}\b|\b\d{1,2}h(\d{2})?\b`)

	emergencyRE = regexp.MustCompile(`(?i)\b(emergency|urgent|urgently|asap|immediately|pain|painful|hurts?|hurting|bleeding|injur(y|ed|ies)|swelling|swollen|allergic reaction|infection|infected|accident|urgence|douleur)\b`)
	pricingRE   = regexp.MustCompile(`(?i)\b(price|prices|pricing|cost|costs|fee|fees|quote|rates?|charge|charges|expensive|cheap|afford|budget|prix|tarif|tarifs|combien)\b|how much`)
	hoursRE     = regexp.MustCompile(`(?i)\b(open|opens|opening|close|closes|closing|closed|hours|today|horaires?|ouvert)\b|\bferm[ée]`)
	locationRE  = regexp.MustCompile(`(?i)\b(address|located|location|directions?|parking|map|adresse|où êtes)\b|where are you|where is|how do i get`)
	offerRE     = regexp.MustCompile(`(?i)\b(deal|deals|discount|discounts|promo|promos|promotion|promotions|coupon|coupons|specials?|offer|offers|sale)\b`)

	affirmationRE  = regexp.MustCompile(`(?i)^\s*(yes|yeah|yea|yep|yup|sure|ok|okay|proceed|please do|sounds good|let'?s do it|go ahead|absolutely|definitely|of course|why not|oui|d'accord|bien sûr)(\s+please)?\s*[!.]*\s*$`)
	bookingOfferRE = regexp.MustCompile(`(?i)\b(book|schedule|appointment|consultation|reserve|set you up|calendar|time slot|availability)\b`)
	schedulingRE   = regexp.MustCompile(`(?i)\b(schedule|scheduling|calendar|availability|available|time slot|slot|what time|which time|when would|book|appointment)\b`)
	looseTimeRE    = regexp.MustCompile(`(?i)\b(\d{1,2}(:\d{2})?|morning|afternoon|evening|noon|midday|lunch ?time|anytime|any time|after work|matin|après-midi|soir)\b`)
)

var intentRules = []intentRule{
	{name: "booking_vocabulary", label: IntentBooking, match: bookingVocabRE.MatchString},
	{name: "booking_request", label: IntentBooking, match: bookingRequestRE.MatchString},
	{name: "booking_datetime", label: IntentBooking, match: hasDateTimePhrase},
	{name: "emergency", label: IntentEmergency, match: emergencyRE.MatchString},
	{name: "pricing", label: IntentPricing, match: pricingRE.MatchString},
	{name: "hours", label: IntentHours, match: hoursRE.MatchString},
	{name: "location", label: IntentLocation, match: locationRE.MatchString},
	{name: "offer", label: IntentOffer, match: offerRE.MatchString},
}

func hasDateTimePhrase(s string) bool {
	return weekdayRE.MatchString(s) || relativeDayRE.MatchString(s) || clockTimeRE.MatchString(s)
}

// Detection is the outcome of classifying one message. Rule names the table
// entry or override that produced the label.
type Detection struct {
	Intent Intent
	Rule   string
}

// DetectIntent labels a visitor message. previousAssistant is the last
// assistant turn, or empty on the first message.
func DetectIntent(utterance, previousAssistant string) Intent {
	return ClassifyIntent(utterance, previousAssistant).Intent
}

// ClassifyIntent is DetectIntent with the name of the rule that fired.
func ClassifyIntent(utterance, previousAssistant string) Detection {
	text := strings.TrimSpace(utterance)
	for _, rule := range intentRules {
		if rule.match(text) {
			return Detection{Intent: rule.label, Rule: rule.name}
		}
	}

	if previousAssistant != "" {
		// A bare "yes" only means booking when the assistant just offered one.
		if affirmationRE.MatchString(text) && isBookingOffer(previousAssistant) {
			return Detection{Intent: IntentBooking, Rule: "affirmed_booking_offer"}
		}
		if looseTimeRE.MatchString(text) && schedulingRE.MatchString(previousAssistant) {
			return Detection{Intent: IntentBooking, Rule: "time_after_scheduling"}
		}
	}

	if utf8.RuneCountInString(text) > 2 {
		return Detection{Intent: IntentFAQ, Rule: "default"}
	}
	return Detection{Intent: IntentUnknown, Rule: "default"}
}

func isBookingOffer(assistant string) bool {
	if !strings.Contains(assistant, "?") {
		return false
	}
	return bookingOfferRE.MatchString(lastQuestion(assistant))
}

// lastQuestion returns the final sentence ending in '?'.
func lastQuestion(text string) string {
	end := strings.LastIndex(text, "?")
	if end < 0 {
		return ""
	}
	start := strings.LastIndexAny(text[:end], ".!?\n")
	return strings.TrimSpace(text[start+1 : end+1])
}
