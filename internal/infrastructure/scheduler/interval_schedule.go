package scheduler

import (
	"fmt"
	"time"
)

// MinInterval is the shortest interval accepted; the loop ticks once a second.
const MinInterval = time.Second

// IntervalSchedule runs a job every Interval, counted from the previous tick.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) (*IntervalSchedule, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("interval %s is shorter than %s", interval, MinInterval)
	}
	return &IntervalSchedule{Interval: interval}, nil
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
