package bot

import (
	"fmt"
	"strings"
	"time"
)

// DayHours is an opening window in 24-hour "15:04" format.
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// WorkingHours holds one optional window per weekday. A nil day is closed.
type WorkingHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

func (w *WorkingHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return w.Sunday
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return nil
	}
}

// Configured returns true if at least one day has hours.
func (w *WorkingHours) Configured() bool {
	return w.Sunday != nil || w.Monday != nil || w.Tuesday != nil ||
		w.Wednesday != nil || w.Thursday != nil || w.Friday != nil || w.Saturday != nil
}

// Validate rejects windows that do not parse or close before they open.
func (w *WorkingHours) Validate() error {
	for d := time.Sunday; d <= time.Saturday; d++ {
		h := w.ForDay(d)
		if h == nil {
			continue
		}
		opens, closes, err := h.minutes()
		if err != nil {
			return fmt.Errorf("bot: %s hours: %w", strings.ToLower(d.String()), err)
		}
		if closes <= opens {
			return fmt.Errorf("bot: %s hours close before open", strings.ToLower(d.String()))
		}
	}
	return nil
}

// Summary renders the week as "Mon 09:00-17:00, Tue closed, ...". Empty when
// no hours are configured.
func (w *WorkingHours) Summary() string {
	if !w.Configured() {
		return ""
	}
	parts := make([]string, 0, 7)
	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday} {
		h := w.ForDay(d)
		if h == nil {
			parts = append(parts, d.String()[:3]+" closed")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s-%s", d.String()[:3], h.Open, h.Close))
	}
	return strings.Join(parts, ", ")
}

func (h *DayHours) minutes() (int, int, error) {
	opens, err := time.Parse("15:04", h.Open)
	if err != nil {
		return 0, 0, err
	}
	closes, err := time.Parse("15:04", h.Close)
	if err != nil {
		return 0, 0, err
	}
	return opens.Hour()*60 + opens.Minute(), closes.Hour()*60 + closes.Minute(), nil
}

// Location parses an IANA zone name, defaulting to UTC.
func Location(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Location returns the bot's configured zone.
func (b *Bot) Location() *time.Location {
	return Location(b.Timezone)
}

// IsOpenAt checks working hours in the bot's timezone. A bot with no hours
// configured at all is treated as always open.
func (b *Bot) IsOpenAt(t time.Time) bool {
	local := t.In(b.Location())
	hours := b.WorkingHours.ForDay(local.Weekday())
	if hours == nil {
		return !b.WorkingHours.Configured()
	}
	opens, closes, err := hours.minutes()
	if err != nil {
		return false
	}
	current := local.Hour()*60 + local.Minute()
	return current >= opens && current < closes
}

// IsAfterHours is the AFTER_HOURS context flag.
func (b *Bot) IsAfterHours(t time.Time) bool {
	return !b.IsOpenAt(t)
}

// NextOpenTime returns when the bot's business next opens, or t itself when
// already open. The zero time is returned if nothing opens within a week.
func (b *Bot) NextOpenTime(t time.Time) time.Time {
	loc := b.Location()
	local := t.In(loc)
	if b.IsOpenAt(t) {
		return local
	}
	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		hours := b.WorkingHours.ForDay(day.Weekday())
		if hours == nil {
			continue
		}
		opens, _, err := hours.minutes()
		if err != nil {
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), opens/60, opens%60, 0, 0, loc)
		if at.After(local) {
			return at
		}
	}
	return time.Time{}
}

// HoursContext describes the current open/closed status for the model.
func (b *Bot) HoursContext(t time.Time) string {
	local := t.In(b.Location())
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current local time: %s (%s)\n", local.Format("Monday, January 2, 2006 3:04 PM"), b.Location().String())
	if summary := b.WorkingHours.Summary(); summary != "" {
		fmt.Fprintf(&sb, "Working hours: %s\n", summary)
	}
	if b.IsOpenAt(t) {
		sb.WriteString("Status: OPEN\n")
		return sb.String()
	}
	sb.WriteString("Status: CLOSED\n")
	if next := b.NextOpenTime(t); !next.IsZero() {
		fmt.Fprintf(&sb, "Next open: %s\n", next.Format("Monday at 3:04 PM"))
	}
	return sb.String()
}
