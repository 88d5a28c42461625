package command

import (
	"io"
	"log/slog"
	"sync"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

const (
	studentX = "0b6f7c3e-1d2a-4f5b-8c9d-0e1f2a3b4c5d"
	studentY = "1c7a8d4f-2e3b-4a6c-9d0e-1f2a3b4c5d6e"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

func mathProgram(id string, total, reserved int) admission.Program {
	return admission.Program{
		ID: shared.ProgramID(id),
		Criteria: admission.Criteria{
			Subjects:       []admission.Subject{admission.SubjectMathematics},
			Weights:        map[admission.Subject]int{admission.SubjectMathematics: 1},
			MinimumAverage: 10,
			Tier:           admission.TierNormal,
		},
		TotalSeats:        total,
		ReservedNeedSeats: reserved,
	}
}

func pendingApp(id, studentID, programID string, wishRank int, math float64) admission.Application {
	return admission.Application{
		ID:        id,
		StudentID: shared.StudentID(studentID),
		ProgramID: shared.ProgramID(programID),
		WishRank:  wishRank,
		Grades:    admission.Grades{admission.SubjectMathematics: math},
		Status:    admission.StatusPending,
	}
}

func floatPtr(v float64) *float64 { return &v }
