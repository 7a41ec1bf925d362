package crawler

import (
	"time"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

// Window is an inclusive time range
type Window struct {
	From time.Time
	To   time.Time
}

// ResolveWindow turns an optional year and month into a time range. With both
// set it is that calendar month in UTC, first day 00:00:00 to last day
// 23:59:59. Otherwise it is the defaultMonths months ending at now.
func ResolveWindow(year, month *int, now time.Time, defaultMonths int) (Window, error) {
	if year != nil && month != nil {
		if *month < 1 || *month > 12 {
			return Window{}, errors.ValidationErrorf("month must be between 1 and 12, got %d", *month)
		}
		if *year < 1 {
			return Window{}, errors.ValidationErrorf("year must be positive, got %d", *year)
		}
		from := time.Date(*year, time.Month(*month), 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 1, 0).Add(-time.Second)
		return Window{From: from, To: to}, nil
	}

	if defaultMonths <= 0 {
		defaultMonths = 12
	}
	return Window{From: now.AddDate(0, -defaultMonths, 0), To: now}, nil
}

// CurrentMonth is the calendar month containing now
func CurrentMonth(now time.Time) Window {
	now = now.UTC()
	year, month := now.Year(), int(now.Month())
	w, _ := ResolveWindow(&year, &month, now, 0)
	return w
}

// LastDays is the range [now − days, now]
func LastDays(now time.Time, days int) Window {
	return Window{From: now.AddDate(0, 0, -days), To: now}
}
