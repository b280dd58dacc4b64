package chat

import (
	"fmt"
	"strings"

	"github.com/wolfman30/botdesk/internal/bot"
)

const (
	iframeFragment          = "Visitors book through the scheduling calendar on this page. When they want to book, invite them to pick a time there."
	bookingFallbackFragment = "There is no online booking. When the visitor wants to book, ask for their name and email so our team can contact them to schedule."
	suppressBookingFragment = "The visitor already has an appointment. Do not push another booking unless they ask for one."
)

// fragmentsFor derives the tenant policy snippets from bot settings and the
// conversation flags.
func fragmentsFor(b *bot.Bot, flags Flags) Fragments {
	f := Fragments{Tone: strings.TrimSpace(b.Tone)}
	if flags.BookingCompleted {
		f.SuppressBookingAfterDone = suppressBookingFragment
	}

	switch {
	case embedsCalendar(b):
		f.Iframe = iframeFragment
	case b.HasBookingLink():
		f.NoLinkUntilConfirm = fmt.Sprintf("Share the booking link %s only after the visitor confirms they want to book.", strings.TrimSpace(b.Calendar.BookingURL))
	default:
		f.BookingFallback = bookingFallbackFragment
	}

	var contact []string
	if b.Contact.Email != "" {
		contact = append(contact, "Email: "+b.Contact.Email)
	}
	if b.Contact.Phone != "" {
		contact = append(contact, "Phone: "+b.Contact.Phone)
	}
	if b.Contact.Address != "" {
		contact = append(contact, "Address: "+b.Contact.Address)
	}
	f.Contact = strings.Join(contact, "\n")
	return f
}

// businessFacts is the description plus opening hours, placed ahead of the
// retrieved snippets.
func businessFacts(b *bot.Bot, hours string) string {
	parts := []string{}
	if d := strings.TrimSpace(b.Description); d != "" {
		parts = append(parts, d)
	}
	if b.WorkingHours.Configured() {
		parts = append(parts, strings.TrimSpace(hours))
	}
	return strings.Join(parts, "\n")
}

func embedsCalendar(b *bot.Bot) bool {
	return b.HasBookingLink() && strings.EqualFold(strings.TrimSpace(b.Calendar.Provider), "iframe")
}

// surfacesCalendar reports whether the turn put the scheduling tool in front
// of the visitor. A linked calendar counts once the reply carries its URL. An
// embedded calendar is already on the page, so any answered booking turn
// points the visitor at it.
func surfacesCalendar(b *bot.Bot, intent Intent, reply, outcome string) bool {
	if !b.HasBookingLink() {
		return false
	}
	if embedsCalendar(b) {
		return intent == IntentBooking && outcome == "answered"
	}
	return strings.Contains(reply, strings.TrimSpace(b.Calendar.BookingURL))
}
