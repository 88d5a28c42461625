// Package command contains write operations (CQRS - Commands).
// Commands change the state of the admissions hub: matching runs,
// applications, wish order and applicant profiles.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN MATCHING COMMAND
// Снимает снимок активных заявок и требований программ, выполняет
// многораундовое сопоставление и атомарно сохраняет итог.
// Параллельные прогоны исключены распределённой блокировкой.
// ══════════════════════════════════════════════════════════════════════════════

// RunMatchingCommand - запуск прогона.
type RunMatchingCommand struct {
	// Trigger - источник запуска: admin, scheduled или cli.
	Trigger string
}

// RunMatchingResult - итог прогона.
type RunMatchingResult struct {
	Run     *admission.Run
	Outcome *admission.Outcome

	// Changed - число заявок, у которых прогон изменил статус, балл или
	// позицию. Записываются все обработанные заявки, включая неизменённые.
	Changed int
}

// RunMatchingHandler обрабатывает RunMatchingCommand.
type RunMatchingHandler struct {
	applications admission.ApplicationRepository
	programs     admission.ProgramRepository
	runs         admission.RunRepository
	lock         admission.RunLock
	publisher    shared.EventPublisher
	matcher      *admission.Matcher
	logger       *slog.Logger
}

// NewRunMatchingHandler создаёт обработчик.
func NewRunMatchingHandler(
	applications admission.ApplicationRepository,
	programs admission.ProgramRepository,
	runs admission.RunRepository,
	lock admission.RunLock,
	publisher shared.EventPublisher,
	matcher *admission.Matcher,
	logger *slog.Logger,
) *RunMatchingHandler {
	if matcher == nil {
		matcher = admission.NewMatcher(admission.DefaultMatcherConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunMatchingHandler{
		applications: applications,
		programs:     programs,
		runs:         runs,
		lock:         lock,
		publisher:    publisher,
		matcher:      matcher,
		logger:       logger.With("component", "run_matching"),
	}
}

// Handle выполняет прогон.
func (h *RunMatchingHandler) Handle(ctx context.Context, cmd RunMatchingCommand) (*RunMatchingResult, error) {
	trigger := cmd.Trigger
	if trigger == "" {
		trigger = admission.TriggerAdmin
	}
	run := admission.NewRun(trigger)
	log := h.logger.With("run_id", run.ID, "trigger", trigger)

	acquired, err := h.lock.Acquire(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("run_matching: %w", err)
	}
	if !acquired {
		return nil, shared.ErrRunInProgress
	}
	defer func() {
		// Блокировку нужно снять даже при отменённом контексте запроса
		if err := h.lock.Release(context.WithoutCancel(ctx), run.ID); err != nil {
			log.Warn("failed to release run lock", "error", err)
		}
	}()

	snapshot, err := h.snapshot(ctx)
	if err != nil {
		h.fail(ctx, run, err, log)
		return &RunMatchingResult{Run: run}, fmt.Errorf("run_matching: snapshot: %w", err)
	}
	log.Info("matching run started",
		"applications", len(snapshot.Applications),
		"programs", len(snapshot.Programs),
		"max_rounds", h.matcher.MaxRounds(),
	)

	outcome, err := h.matcher.Run(snapshot)
	if err != nil {
		h.fail(ctx, run, err, log)
		return &RunMatchingResult{Run: run}, fmt.Errorf("run_matching: %w", err)
	}
	run.Complete(outcome)

	if outcome.NothingToProcess {
		if err := h.runs.Save(ctx, run); err != nil {
			return nil, fmt.Errorf("run_matching: save run: %w", err)
		}
		log.Info("matching run had nothing to process", "skipped_programs", len(outcome.SkippedPrograms))
		h.publish(h.completedEvent(run), log)
		return &RunMatchingResult{Run: run, Outcome: outcome}, nil
	}

	written, changed, offered, err := h.collectChanges(snapshot.Applications, outcome, run.ID)
	if err != nil {
		h.fail(ctx, run, err, log)
		return &RunMatchingResult{Run: run}, fmt.Errorf("run_matching: %w", err)
	}

	if err := h.applications.SaveRunResults(ctx, run, written); err != nil {
		h.fail(ctx, run, err, log)
		return &RunMatchingResult{Run: run}, fmt.Errorf("run_matching: save results: %w", err)
	}

	log.Info("matching run committed",
		"state", run.State.String(),
		"rounds", run.Rounds,
		"processed", run.Processed,
		"offered", run.Offered,
		"pending", run.Waitlisted,
		"rejected", run.Rejected,
		"auto_withdrawn", run.AutoWithdrawn,
		"duration", run.Duration().String(),
	)

	for _, app := range offered {
		h.publish(shared.NewApplicationOfferedEvent(
			app.ID, app.StudentID.String(), app.ProgramID.String(), run.ID, app.Score, app.Position,
		), log)
	}
	for _, w := range outcome.Withdrawals {
		h.publish(shared.NewApplicationAutoWithdrawnEvent(
			w.ApplicationID, w.StudentID.String(), w.ProgramID.String(), w.KeptApplicationID, run.ID, w.Round,
		), log)
	}
	h.publish(h.completedEvent(run), log)

	return &RunMatchingResult{Run: run, Outcome: outcome, Changed: changed}, nil
}

// snapshot читает активные заявки и программы, на которые они поданы.
func (h *RunMatchingHandler) snapshot(ctx context.Context) (admission.Snapshot, error) {
	apps, err := h.applications.ListActive(ctx)
	if err != nil {
		return admission.Snapshot{}, fmt.Errorf("list active applications: %w", err)
	}
	if len(apps) == 0 {
		return admission.Snapshot{}, nil
	}

	seen := make(map[shared.ProgramID]struct{})
	ids := make([]shared.ProgramID, 0)
	for _, app := range apps {
		if _, ok := seen[app.ProgramID]; ok {
			continue
		}
		seen[app.ProgramID] = struct{}{}
		ids = append(ids, app.ProgramID)
	}

	programs, err := h.programs.ListByIDs(ctx, ids)
	if err != nil {
		return admission.Snapshot{}, fmt.Errorf("list programs: %w", err)
	}
	for i := range programs {
		if !programs[i].IsManuallyConfigured() {
			programs[i].RefreshCriteria()
		}
	}
	return admission.Snapshot{Applications: apps, Programs: programs}, nil
}

// collectChanges применяет итог к исходным заявкам. Возвращает все заявки с
// результатом, число реально изменённых и новые предложения (статус стал
// offered в этом прогоне).
func (h *RunMatchingHandler) collectChanges(
	before []admission.Application,
	outcome *admission.Outcome,
	runID string,
) (written []admission.Application, changed int, offered []admission.Application, err error) {
	for i := range before {
		app := before[i]
		res, ok := outcome.Results[app.ID]
		if !ok {
			continue
		}
		prev := app
		if err := app.ApplyResult(res, runID); err != nil {
			return nil, 0, nil, err
		}
		written = append(written, app)
		if app.Status != prev.Status || app.Score != prev.Score ||
			app.WeightedAverage != prev.WeightedAverage || app.Position != prev.Position {
			changed++
		}
		if app.Status == admission.StatusOffered && prev.Status != admission.StatusOffered {
			offered = append(offered, app)
		}
	}
	return written, changed, offered, nil
}

// fail записывает неудачный прогон. Ошибка записи только логируется:
// исходная ошибка важнее.
func (h *RunMatchingHandler) fail(ctx context.Context, run *admission.Run, cause error, log *slog.Logger) {
	run.Fail(cause.Error())
	log.Error("matching run failed", "error", cause)

	if err := h.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to record failed run", "error", err)
	}
	h.publish(shared.NewMatchingRunFailedEvent(run.ID, run.Reason), log)
}

func (h *RunMatchingHandler) completedEvent(run *admission.Run) shared.Event {
	e := shared.NewMatchingRunCompletedEvent(run.ID, run.State.String(), run.Rounds, run.Processed)
	e.Offered = run.Offered
	e.Pending = run.Waitlisted
	e.Rejected = run.Rejected
	e.AutoWithdrawn = run.AutoWithdrawn
	e.Duration = run.Duration().Round(time.Millisecond)
	return e
}

func (h *RunMatchingHandler) publish(event shared.Event, log *slog.Logger) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(event); err != nil {
		log.Warn("failed to publish event", "event_type", string(event.EventType()), "error", err)
	}
}
