package progression

import (
	"fmt"
	"time"

	"habit-quest/internal/model"
)

const (
	// EventRolloverHour is the local hour on Monday at which clan events roll over.
	EventRolloverHour = 4

	secondsPerWeek = 7 * 24 * 60 * 60

	dateLayout = "2006-01-02"
)

// WeekStart returns the start of the clan event period containing now: the most
// recent Monday at 04:00 in now's location. The period is [start, start+7d).
func WeekStart(now time.Time) time.Time {
	sinceMonday := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day()-sinceMonday, EventRolloverHour, 0, 0, 0, now.Location())
	if now.Before(start) {
		start = start.AddDate(0, 0, -7)
	}
	return start
}

// WeekEnd is the exclusive end of the period starting at weekStart.
func WeekEnd(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 7)
}

// rotation is indexed by floor(weekStart / one week) mod 4.
var rotation = [...]model.EventType{
	model.EventVolume,
	model.EventMissions,
	model.EventCalories,
	model.EventXP,
}

// EventTypeFor picks the event type for a period. It is a pure function of the
// period start, so no rotation index is stored.
func EventTypeFor(weekStart time.Time) model.EventType {
	weeks := floorDiv(weekStart.Unix(), secondsPerWeek)
	idx := weeks % int64(len(rotation))
	if idx < 0 {
		idx += int64(len(rotation))
	}
	return rotation[idx]
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// PeriodID is the ISO week identifier used by the event-progress track.
func PeriodID(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// DateKey formats t as the daily log key.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDateKey parses a YYYY-MM-DD key in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, key, loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ExpiringFrequencies lists the frequencies whose period ends on the run day:
// daily always, weekly on Mondays, monthly on the 1st, yearly on January 1st.
func ExpiringFrequencies(today time.Time) []model.Frequency {
	out := []model.Frequency{model.FrequencyDaily}
	if today.Weekday() == time.Monday {
		out = append(out, model.FrequencyWeekly)
	}
	if today.Day() == 1 {
		out = append(out, model.FrequencyMonthly)
		if today.Month() == time.January {
			out = append(out, model.FrequencyYearly)
		}
	}
	return out
}
