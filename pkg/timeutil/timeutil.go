// Package timeutil provides timezone utilities for the admissions campaign calendar.
// Campaign dates, scheduled runs and e-mails are expressed in Europe/Paris time.
// Handles date formatting, quiet hours for notifications, and timezone-aware time operations.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// DefaultZoneName is the campaign timezone.
const DefaultZoneName = "Europe/Paris"

var (
	mu   sync.RWMutex
	zone = loadZone(DefaultZoneName)
)

// loadZone falls back to a fixed CET offset when the tz database is missing
// from the image.
func loadZone(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CET", 1*60*60)
	}
	return loc
}

// SetZone changes the campaign timezone. An unknown name is an error and
// leaves the current zone in place.
func SetZone(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("timeutil: load zone %q: %w", name, err)
	}
	mu.Lock()
	zone = loc
	mu.Unlock()
	return nil
}

// Zone returns the campaign timezone.
func Zone() *time.Location {
	mu.RLock()
	defer mu.RUnlock()
	return zone
}

// Now returns the current time in the campaign timezone.
func Now() time.Time {
	return time.Now().In(Zone())
}

// ToLocal converts a time to the campaign timezone.
func ToLocal(t time.Time) time.Time {
	return t.In(Zone())
}

// DateTime creates a time in the campaign timezone.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, Zone())
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	local := ToLocal(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Zone())
}

// IsSameDay checks if two times fall on the same local day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := ToLocal(t1), ToLocal(t2)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// Common date/time formats.
const (
	// FormatDate is the ISO date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatFrenchDate is the French date format (DD/MM/YYYY).
	FormatFrenchDate = "02/01/2006"
	// FormatFrenchDateTime is the French datetime format.
	FormatFrenchDateTime = "02/01/2006 à 15h04"
)

// FormatLocal formats a time in the campaign timezone with the given layout.
func FormatLocal(t time.Time, layout string) string {
	return ToLocal(t).Format(layout)
}

// FormatFrench formats a time as a French date and time for e-mails.
func FormatFrench(t time.Time) string {
	return FormatLocal(t, FormatFrenchDateTime)
}

// FormatRelative returns a short human-readable distance from now, in French.
func FormatRelative(t time.Time) string {
	return formatRelative(Now().Sub(ToLocal(t)))
}

func formatRelative(d time.Duration) string {
	future := d < 0
	if future {
		d = -d
	}

	var s string
	switch {
	case d < time.Minute:
		return "à l'instant"
	case d < time.Hour:
		s = fmt.Sprintf("%d min", int(d.Minutes()))
	case d < 24*time.Hour:
		s = fmt.Sprintf("%d h", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			if future {
				return "demain"
			}
			return "hier"
		}
		s = fmt.Sprintf("%d jours", days)
	}

	if future {
		return "dans " + s
	}
	return "il y a " + s
}

// Quiet hours for student notifications.
const (
	NotifyFromHour  = 8
	NotifyUntilHour = 21
)

// IsSafeNotificationTime checks if it's appropriate to e-mail students (8:00-21:00 local).
func IsSafeNotificationTime(t time.Time) bool {
	hour := ToLocal(t).Hour()
	return hour >= NotifyFromHour && hour < NotifyUntilHour
}

// NextSafeNotificationTime returns t itself inside the window, otherwise the
// next opening of the window.
func NextSafeNotificationTime(t time.Time) time.Time {
	local := ToLocal(t)
	hour := local.Hour()

	switch {
	case hour < NotifyFromHour:
		return DateTime(local.Year(), int(local.Month()), local.Day(), NotifyFromHour, 0, 0)
	case hour >= NotifyUntilHour:
		next := local.AddDate(0, 0, 1)
		return DateTime(next.Year(), int(next.Month()), next.Day(), NotifyFromHour, 0, 0)
	}
	return local
}
