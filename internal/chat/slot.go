package chat

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Slot is a proposed booking window in the bot's timezone.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Raw   string    `json:"raw"`
}

var (
	slotClockRE    = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)`)
	slotClock24RE  = regexp.MustCompile(`\b([01]?\d|2[0-3])(?::|h)([0-5]\d)\b`)
	slotNoonRE     = regexp.MustCompile(`(?i)\b(noon|midday|midi)\b`)
	slotWeekdayRE  = regexp.MustCompile(`(?i)\b(mon|tues|wednes|thurs|fri|satur|sun)day\b`)
	slotMonthDayRE = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tues": time.Tuesday, "wednes": time.Wednesday,
	"thurs": time.Thursday, "fri": time.Friday, "satur": time.Saturday,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseSlot finds a concrete time in a booking message. A clock time is
// required. Without a day the slot lands today when the time is still ahead,
// otherwise tomorrow. Weekday names resolve to the next such day after today.
func ParseSlot(message string, now time.Time, loc *time.Location, length time.Duration) (Slot, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if length <= 0 {
		length = 30 * time.Minute
	}
	now = now.In(loc)

	hour, minute, ok := parseClock(message)
	if !ok {
		return Slot{}, false
	}

	day, explicit := parseDay(message, now)
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	if !explicit && !start.After(now) {
		start = start.AddDate(0, 0, 1)
	}
	if !start.After(now) {
		return Slot{}, false
	}
	return Slot{Start: start, End: start.Add(length), Raw: strings.TrimSpace(message)}, true
}

func parseClock(message string) (int, int, bool) {
	if m := slotClockRE.FindStringSubmatch(message); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, false
		}
		pm := strings.HasPrefix(strings.ToLower(m[3]), "p")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
		return hour, minute, true
	}
	if m := slotClock24RE.FindStringSubmatch(message); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return hour, minute, true
	}
	if slotNoonRE.MatchString(message) {
		return 12, 0, true
	}
	return 0, 0, false
}

// parseDay returns the calendar day named in the message and whether one was
// named at all.
func parseDay(message string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "day after tomorrow") || strings.Contains(lower, "après-demain"):
		return now.AddDate(0, 0, 2), true
	case strings.Contains(lower, "tomorrow") || strings.Contains(lower, "tmrw") || strings.Contains(lower, "demain"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(lower, "today") || strings.Contains(lower, "tonight") || strings.Contains(lower, "aujourd'hui"):
		return now, true
	}
	if m := slotMonthDayRE.FindStringSubmatch(message); m != nil {
		mon := months[strings.ToLower(m[1])[:3]]
		day, _ := strconv.Atoi(m[2])
		if day >= 1 && day <= 31 {
			d := time.Date(now.Year(), mon, day, 0, 0, 0, 0, now.Location())
			if d.Month() == mon {
				if d.Before(startOfDay(now)) {
					d = d.AddDate(1, 0, 0)
				}
				return d, true
			}
		}
	}
	if m := slotWeekdayRE.FindStringSubmatch(message); m != nil {
		want := weekdays[strings.ToLower(m[1])]
		offset := (int(want) - int(now.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return now.AddDate(0, 0, offset), true
	}
	return now, false
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
