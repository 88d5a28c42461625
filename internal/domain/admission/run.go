package admission

import (
	"time"

	"github.com/google/uuid"
)

// Run - запись о прогоне сопоставления.
type Run struct {
	ID         string    `json:"id"`
	State      RunState  `json:"state"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Rounds     int       `json:"rounds"`

	Processed     int `json:"processed"`
	Offered       int `json:"offered"`
	Waitlisted    int `json:"waitlisted"`
	Rejected      int `json:"rejected"`
	AutoWithdrawn int `json:"auto_withdrawn"`

	// Reason - человекочитаемая причина для пустых и неудачных прогонов.
	Reason string `json:"reason,omitempty"`
}

// Источники запуска прогона.
const (
	TriggerAdmin     = "admin"
	TriggerScheduled = "scheduled"
	TriggerCLI       = "cli"
)

// NewRun создаёт запись о начатом прогоне.
func NewRun(trigger string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		State:     RunStateRunning,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
}

// Complete фиксирует итог прогона.
func (r *Run) Complete(o *Outcome) {
	r.State = o.State
	r.Rounds = o.Rounds
	r.Processed = o.Processed
	r.Offered = o.Offered
	r.Waitlisted = o.Waitlisted
	r.Rejected = o.Rejected
	r.AutoWithdrawn = o.AutoWithdrawn
	r.Reason = o.Reason
	r.FinishedAt = time.Now().UTC()
}

// Fail фиксирует неудачный прогон: ничего не обработано.
func (r *Run) Fail(reason string) {
	r.State = RunStateFailed
	r.Rounds = 0
	r.Processed = 0
	r.Offered = 0
	r.Waitlisted = 0
	r.Rejected = 0
	r.AutoWithdrawn = 0
	r.Reason = reason
	r.FinishedAt = time.Now().UTC()
}

// Duration возвращает длительность прогона.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
