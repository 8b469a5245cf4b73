package services

import "time"

const dayLayout = "2006-01-02"

// DayKey formats t as the calendar-day key for the given location.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dayLayout)
}

// AddDays shifts a day key by n calendar days.
func AddDays(day string, n int) string {
	return parseDay(day).AddDate(0, 0, n).Format(dayLayout)
}

// PrevDay returns the day key immediately before day.
func PrevDay(day string) string {
	return AddDays(day, -1)
}

// DaysBetween returns how many calendar days separate a from b (b - a).
func DaysBetween(a, b string) int {
	return int(parseDay(b).Sub(parseDay(a)).Hours() / 24)
}

// DayBounds returns the half-open [start, end) wall-clock window of a day key
// in the given location.
func DayBounds(day string, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(dayLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return start, start.AddDate(0, 0, 1)
}

// ValidDay reports whether s is a well-formed day key.
func ValidDay(s string) bool {
	_, err := time.Parse(dayLayout, s)
	return err == nil
}

// Day keys parse in UTC for arithmetic; the location only matters when a key
// is derived from or converted back to wall-clock time.
func parseDay(day string) time.Time {
	t, _ := time.Parse(dayLayout, day)
	return t
}
