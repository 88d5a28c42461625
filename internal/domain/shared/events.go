package shared

import "time"

// EventType - имя события; оно же канал Redis Pub/Sub.
type EventType string

const (
	EventProfileUpdated EventType = "student.profile_updated"

	EventApplicationSubmitted     EventType = "application.submitted"
	EventApplicationOffered       EventType = "application.offered"
	EventApplicationAutoWithdrawn EventType = "application.auto_withdrawn"

	EventMatchingRunCompleted EventType = "matching.run_completed"
	EventMatchingRunFailed    EventType = "matching.run_failed"

	EventCatalogSynced EventType = "catalog.synced"
)

// Event - доменное событие. Payload - единственное, что переживает
// передачу между процессами, поэтому обработчики читают данные только
// из него.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	Payload() map[string]any
}

// EventHandler обрабатывает одно событие. Ошибка логируется шиной и не
// останавливает остальных подписчиков.
type EventHandler func(event Event) error

type EventPublisher interface {
	Publish(event Event) error
}

type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
}

// header - общие поля всех событий.
type header struct {
	Type      EventType `json:"type"`
	Aggregate string    `json:"aggregate_id"`
	At        time.Time `json:"occurred_at"`
}

func newHeader(t EventType, aggregateID string) header {
	return header{Type: t, Aggregate: aggregateID, At: time.Now()}
}

func (h header) EventType() EventType  { return h.Type }
func (h header) OccurredAt() time.Time { return h.At }
func (h header) AggregateID() string   { return h.Aggregate }

// ══════════════════════════════════════════════════════════════════════════════
// СТУДЕНТ
// ══════════════════════════════════════════════════════════════════════════════

// ProfileUpdatedEvent - студент изменил оценки или признак стипендиата.
type ProfileUpdatedEvent struct {
	header
	StudentID     string `json:"student_id"`
	SubjectsCount int    `json:"subjects_count"`
	NeedBased     bool   `json:"need_based"`
}

func NewProfileUpdatedEvent(studentID string, subjectsCount int, needBased bool) ProfileUpdatedEvent {
	return ProfileUpdatedEvent{
		header:        newHeader(EventProfileUpdated, studentID),
		StudentID:     studentID,
		SubjectsCount: subjectsCount,
		NeedBased:     needBased,
	}
}

func (e ProfileUpdatedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":     e.StudentID,
		"subjects_count": e.SubjectsCount,
		"need_based":     e.NeedBased,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ЗАЯВКИ
// ══════════════════════════════════════════════════════════════════════════════

type ApplicationSubmittedEvent struct {
	header
	StudentID string `json:"student_id"`
	ProgramID string `json:"program_id"`
	WishRank  int    `json:"wish_rank"`
}

func NewApplicationSubmittedEvent(applicationID, studentID, programID string, wishRank int) ApplicationSubmittedEvent {
	return ApplicationSubmittedEvent{
		header:    newHeader(EventApplicationSubmitted, applicationID),
		StudentID: studentID,
		ProgramID: programID,
		WishRank:  wishRank,
	}
}

func (e ApplicationSubmittedEvent) Payload() map[string]any {
	return map[string]any{"student_id": e.StudentID, "program_id": e.ProgramID, "wish_rank": e.WishRank}
}

// ApplicationOfferedEvent публикуется один раз на каждое новое предложение,
// пережившее прогон.
type ApplicationOfferedEvent struct {
	header
	StudentID string `json:"student_id"`
	ProgramID string `json:"program_id"`
	RunID     string `json:"run_id"`
	Score     int    `json:"score"`
	Position  int    `json:"position"`
}

func NewApplicationOfferedEvent(applicationID, studentID, programID, runID string, score, position int) ApplicationOfferedEvent {
	return ApplicationOfferedEvent{
		header:    newHeader(EventApplicationOffered, applicationID),
		StudentID: studentID,
		ProgramID: programID,
		RunID:     runID,
		Score:     score,
		Position:  position,
	}
}

func (e ApplicationOfferedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id": e.StudentID,
		"program_id": e.ProgramID,
		"run_id":     e.RunID,
		"score":      e.Score,
		"position":   e.Position,
	}
}

// ApplicationAutoWithdrawnEvent: студент потерял предложение, потому что
// получил более желанное (KeptID).
type ApplicationAutoWithdrawnEvent struct {
	header
	StudentID string `json:"student_id"`
	ProgramID string `json:"program_id"`
	KeptID    string `json:"kept_application_id"`
	RunID     string `json:"run_id"`
	Round     int    `json:"round"`
}

func NewApplicationAutoWithdrawnEvent(applicationID, studentID, programID, keptID, runID string, round int) ApplicationAutoWithdrawnEvent {
	return ApplicationAutoWithdrawnEvent{
		header:    newHeader(EventApplicationAutoWithdrawn, applicationID),
		StudentID: studentID,
		ProgramID: programID,
		KeptID:    keptID,
		RunID:     runID,
		Round:     round,
	}
}

func (e ApplicationAutoWithdrawnEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":          e.StudentID,
		"program_id":          e.ProgramID,
		"kept_application_id": e.KeptID,
		"run_id":              e.RunID,
		"round":               e.Round,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// РАСПРЕДЕЛЕНИЕ
// ══════════════════════════════════════════════════════════════════════════════

// MatchingRunCompletedEvent публикуется после фиксации результатов прогона.
// Счётчики заполняет вызывающий.
type MatchingRunCompletedEvent struct {
	header
	State         string        `json:"state"`
	Rounds        int           `json:"rounds"`
	Processed     int           `json:"processed"`
	Offered       int           `json:"offered"`
	Pending       int           `json:"pending"`
	Rejected      int           `json:"rejected"`
	AutoWithdrawn int           `json:"auto_withdrawn"`
	Duration      time.Duration `json:"duration"`
}

func NewMatchingRunCompletedEvent(runID, state string, rounds, processed int) MatchingRunCompletedEvent {
	return MatchingRunCompletedEvent{
		header:    newHeader(EventMatchingRunCompleted, runID),
		State:     state,
		Rounds:    rounds,
		Processed: processed,
	}
}

func (e MatchingRunCompletedEvent) Payload() map[string]any {
	return map[string]any{
		"state":          e.State,
		"rounds":         e.Rounds,
		"processed":      e.Processed,
		"offered":        e.Offered,
		"pending":        e.Pending,
		"rejected":       e.Rejected,
		"auto_withdrawn": e.AutoWithdrawn,
		"duration":       e.Duration.String(),
	}
}

type MatchingRunFailedEvent struct {
	header
	Reason string `json:"reason"`
}

func NewMatchingRunFailedEvent(runID, reason string) MatchingRunFailedEvent {
	return MatchingRunFailedEvent{header: newHeader(EventMatchingRunFailed, runID), Reason: reason}
}

func (e MatchingRunFailedEvent) Payload() map[string]any {
	return map[string]any{"reason": e.Reason}
}

// ══════════════════════════════════════════════════════════════════════════════
// КАТАЛОГ
// ══════════════════════════════════════════════════════════════════════════════

type CatalogSyncedEvent struct {
	header
	Fetched   int `json:"fetched"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

func NewCatalogSyncedEvent(fetched, updated, unchanged int) CatalogSyncedEvent {
	return CatalogSyncedEvent{
		header:    newHeader(EventCatalogSynced, "catalog"),
		Fetched:   fetched,
		Updated:   updated,
		Unchanged: unchanged,
	}
}

func (e CatalogSyncedEvent) Payload() map[string]any {
	return map[string]any{"fetched": e.Fetched, "updated": e.Updated, "unchanged": e.Unchanged}
}
