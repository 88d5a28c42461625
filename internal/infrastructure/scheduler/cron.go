package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed five-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Examples:
//   - "0 2 * * *"     every night at 02:00 (default matching run)
//   - "30 6 * * 1-5"  weekdays at 06:30
//   - "*/15 * * * *"  every 15 minutes
//   - "@daily"        same as "0 0 * * *"
//
// When both day fields are restricted a time matches if either one does,
// the way classic cron behaves.
type CronSchedule struct {
	raw      string
	minutes  fieldSet
	hours    fieldSet
	days     fieldSet
	months   fieldSet
	weekdays fieldSet

	daysRestricted     bool
	weekdaysRestricted bool
}

// fieldSet is a bitmask of allowed values; every field fits in 64 bits.
type fieldSet uint64

func (f fieldSet) has(v int) bool { return f&(1<<uint(v)) != 0 }

type fieldBounds struct {
	name     string
	min, max int
}

var (
	minuteBounds  = fieldBounds{"minute", 0, 59}
	hourBounds    = fieldBounds{"hour", 0, 23}
	dayBounds     = fieldBounds{"day-of-month", 1, 31}
	monthBounds   = fieldBounds{"month", 1, 12}
	weekdayBounds = fieldBounds{"day-of-week", 0, 7}
)

var cronDescriptors = map[string]string{
	"@yearly":  "0 0 1 1 *",
	"@monthly": "0 0 1 * *",
	"@weekly":  "0 0 * * 0",
	"@daily":   "0 0 * * *",
	"@nightly": "0 2 * * *",
	"@hourly":  "0 * * * *",
}

// ParseCron parses a cron expression or one of the @descriptors.
func ParseCron(expr string) (*CronSchedule, error) {
	raw := strings.TrimSpace(expr)
	spec := raw
	if d, ok := cronDescriptors[strings.ToLower(raw)]; ok {
		spec = d
	}

	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron %q: expected 5 fields, got %d", raw, len(fields))
	}

	cs := &CronSchedule{raw: raw}
	parsers := []struct {
		dst    *fieldSet
		bounds fieldBounds
	}{
		{&cs.minutes, minuteBounds},
		{&cs.hours, hourBounds},
		{&cs.days, dayBounds},
		{&cs.months, monthBounds},
		{&cs.weekdays, weekdayBounds},
	}
	for i, p := range parsers {
		set, err := parseCronField(fields[i], p.bounds)
		if err != nil {
			return nil, fmt.Errorf("cron %q: %w", raw, err)
		}
		*p.dst = set
	}

	// 7 is an alias for Sunday
	if cs.weekdays.has(7) {
		cs.weekdays |= 1
	}
	cs.daysRestricted = fields[2] != "*"
	cs.weekdaysRestricted = fields[4] != "*"
	return cs, nil
}

// MustParseCron is ParseCron for expressions known at compile time.
func MustParseCron(expr string) *CronSchedule {
	cs, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return cs
}

// parseCronField handles "*", "n", "n-m", steps ("*/s", "n-m/s", "n/s") and
// comma-separated lists of those.
func parseCronField(field string, b fieldBounds) (fieldSet, error) {
	var set fieldSet
	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return 0, fmt.Errorf("%s: empty list element", b.name)
		}

		rangePart, step := part, 1
		if i := strings.IndexByte(part, '/'); i >= 0 {
			s, err := strconv.Atoi(part[i+1:])
			if err != nil || s <= 0 {
				return 0, fmt.Errorf("%s: invalid step in %q", b.name, part)
			}
			rangePart, step = part[:i], s
		}

		lo, hi := b.min, b.max
		switch {
		case rangePart == "*":
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			var err error
			if lo, err = parseCronValue(bounds[0], b); err != nil {
				return 0, err
			}
			if hi, err = parseCronValue(bounds[1], b); err != nil {
				return 0, err
			}
			if lo > hi {
				return 0, fmt.Errorf("%s: range %q is reversed", b.name, rangePart)
			}
		default:
			v, err := parseCronValue(rangePart, b)
			if err != nil {
				return 0, err
			}
			lo = v
			// "n/s" means from n to the end of the range
			if step == 1 {
				hi = v
			}
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

func parseCronValue(s string, b fieldBounds) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", b.name, s)
	}
	if v < b.min || v > b.max {
		return 0, fmt.Errorf("%s: %d out of range [%d-%d]", b.name, v, b.min, b.max)
	}
	return v, nil
}

// String returns the original expression.
func (cs *CronSchedule) String() string {
	return cs.raw
}

// Next returns the first matching minute strictly after t, in t's location.
// It returns the zero time when nothing matches within five years
// (for example "0 0 31 2 *").
func (cs *CronSchedule) Next(t time.Time) time.Time {
	loc := t.Location()
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !cs.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !cs.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !cs.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !cs.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (cs *CronSchedule) dayMatches(t time.Time) bool {
	dom := cs.days.has(t.Day())
	dow := cs.weekdays.has(int(t.Weekday()))
	if cs.daysRestricted && cs.weekdaysRestricted {
		return dom || dow
	}
	return dom && dow
}
