package admission

import (
	"fmt"
	"sort"

	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MULTI-ROUND MATCHING
//
// Каждый раунд заново ранжирует и распределяет места во всех программах
// по активным заявкам (pending, waitlisted, offered). Затем у каждого студента
// с несколькими предложениями остаётся лучшее по рангу желания, остальные
// снимаются и освобождают места к следующему раунду.
//
// Раунд без единого изменения статуса - стабилизация. Лимит раундов
// абсолютный: при его достижении текущие статусы считаются итоговыми.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMaxRounds - лимит раундов по умолчанию.
const DefaultMaxRounds = 5

// ReasonNothingToProcess - причина пустого прогона.
const ReasonNothingToProcess = "no pending application to process"

// Причины пропуска программы.
const (
	SkipReasonUnknownProgram = "program not found"
	SkipReasonNoSubjects     = "no important subjects"
)

// RunState - состояние прогона.
type RunState string

const (
	RunStateIdle              RunState = "idle"
	RunStateRunning           RunState = "running"
	RunStateStabilized        RunState = "stabilized"
	RunStateRoundLimitReached RunState = "round_limit_reached"
	RunStateFailed            RunState = "failed"
)

// String возвращает строковое представление состояния.
func (s RunState) String() string {
	return string(s)
}

// MatchResult - итог одного раунда для одной заявки.
// Результат текущего раунда заменяет результат предыдущего.
type MatchResult struct {
	ApplicationID    string  `json:"application_id"`
	Round            int     `json:"round"`
	Score            int     `json:"score"`
	Admissible       bool    `json:"admissible"`
	Reason           string  `json:"reason,omitempty"`
	WeightedAverage  float64 `json:"weighted_average"`
	RankBonus        int     `json:"rank_bonus"`
	NeedBonus        int     `json:"need_bonus"`
	Status           Status  `json:"status"`
	Position         int     `json:"position,omitempty"`
	ViaReservedQuota bool    `json:"via_reserved_quota,omitempty"`
}

// Withdrawal - автоматическое снятие предложения.
type Withdrawal struct {
	ApplicationID     string           `json:"application_id"`
	StudentID         shared.StudentID `json:"student_id"`
	ProgramID         shared.ProgramID `json:"program_id"`
	KeptApplicationID string           `json:"kept_application_id"`
	Round             int              `json:"round"`
}

// SkippedProgram - программа, заявки которой не обрабатывались.
type SkippedProgram struct {
	ProgramID    shared.ProgramID `json:"program_id"`
	Reason       string           `json:"reason"`
	Applications int              `json:"applications"`
}

// Snapshot - неизменяемый входной снимок прогона.
type Snapshot struct {
	Applications []Application `json:"applications" yaml:"applications"`
	Programs     []Program     `json:"programs" yaml:"programs"`
}

// Outcome - итог прогона.
type Outcome struct {
	State  RunState `json:"state"`
	Rounds int      `json:"rounds"`

	// Results - последний результат по каждой обработанной заявке.
	Results map[string]MatchResult `json:"results"`

	// Applications - все заявки снимка с итоговыми статусами, в порядке снимка.
	Applications []Application `json:"applications"`

	Processed     int `json:"processed"`
	Offered       int `json:"offered"`
	Waitlisted    int `json:"waitlisted"`
	Rejected      int `json:"rejected"`
	AutoWithdrawn int `json:"auto_withdrawn"`

	// ChangesPerRound - число изменений статуса в каждом раунде.
	ChangesPerRound []int            `json:"changes_per_round"`
	Withdrawals     []Withdrawal     `json:"withdrawals,omitempty"`
	SkippedPrograms []SkippedProgram `json:"skipped_programs,omitempty"`

	NothingToProcess bool   `json:"nothing_to_process"`
	Reason           string `json:"reason,omitempty"`
}

// Pending возвращает число заявок в листе ожидания под внешним именем "pending".
func (o *Outcome) Pending() int {
	return o.Waitlisted
}

// IsStable сообщает, сошёлся ли прогон.
func (o *Outcome) IsStable() bool {
	return o.State == RunStateStabilized
}

// MatcherConfig - настройки оркестратора.
type MatcherConfig struct {
	MaxRounds int
}

// DefaultMatcherConfig возвращает настройки по умолчанию.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{MaxRounds: DefaultMaxRounds}
}

// Matcher - многораундовый оркестратор. Не хранит состояния между прогонами
// и не выполняет ввод-вывод; сериализация прогонов - забота вызывающего.
type Matcher struct {
	maxRounds int
}

// NewMatcher создаёт оркестратор.
func NewMatcher(cfg MatcherConfig) *Matcher {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	return &Matcher{maxRounds: cfg.MaxRounds}
}

// MaxRounds возвращает лимит раундов.
func (m *Matcher) MaxRounds() int {
	return m.maxRounds
}

// roundState - состояние после раунда, заменяется целиком.
type roundState struct {
	statuses map[string]Status
	results  map[string]MatchResult
}

// Run выполняет прогон над снимком. Ошибка возвращается только при
// некорректной конфигурации программ; в этом случае ничего не обработано.
func (m *Matcher) Run(snapshot Snapshot) (*Outcome, error) {
	programs := make(map[shared.ProgramID]*Program, len(snapshot.Programs))
	for i := range snapshot.Programs {
		p := &snapshot.Programs[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := programs[p.ID]; dup {
			return nil, shared.NewDomainError("admission", "Run", shared.ErrInvalidInput,
				fmt.Sprintf("program %s appears twice in snapshot", p.ID))
		}
		programs[p.ID] = p
	}

	apps := snapshot.Applications
	order := make(map[string]int, len(apps))
	byProgram := make(map[shared.ProgramID][]int)
	skipped := make(map[shared.ProgramID]*SkippedProgram)
	for i, app := range apps {
		if _, dup := order[app.ID]; dup {
			return nil, shared.NewDomainError("admission", "Run", shared.ErrInvalidInput,
				fmt.Sprintf("application %s appears twice in snapshot", app.ID))
		}
		order[app.ID] = i
		if !app.Status.IsActive() {
			continue
		}
		p, ok := programs[app.ProgramID]
		switch {
		case !ok:
			markSkipped(skipped, app.ProgramID, SkipReasonUnknownProgram)
		case !p.Criteria.HasSubjects():
			markSkipped(skipped, app.ProgramID, SkipReasonNoSubjects)
		default:
			byProgram[app.ProgramID] = append(byProgram[app.ProgramID], i)
		}
	}

	outcome := &Outcome{
		State:           RunStateIdle,
		Results:         make(map[string]MatchResult),
		SkippedPrograms: sortedSkipped(skipped),
	}

	if len(byProgram) == 0 {
		outcome.NothingToProcess = true
		outcome.Reason = ReasonNothingToProcess
		outcome.Applications = cloneApplications(apps)
		return outcome, nil
	}

	programIDs := make([]shared.ProgramID, 0, len(byProgram))
	for id := range byProgram {
		programIDs = append(programIDs, id)
	}
	sort.Slice(programIDs, func(i, j int) bool { return programIDs[i] < programIDs[j] })

	current := roundState{
		statuses: make(map[string]Status, len(apps)),
		results:  make(map[string]MatchResult),
	}
	for _, app := range apps {
		current.statuses[app.ID] = app.Status
	}

	outcome.State = RunStateRunning
	for round := 1; round <= m.maxRounds; round++ {
		next, withdrawals := m.runRound(round, apps, programIDs, byProgram, programs, current)
		changes := countChanges(current.statuses, next.statuses)

		current = next
		outcome.Rounds = round
		outcome.ChangesPerRound = append(outcome.ChangesPerRound, changes)
		outcome.Withdrawals = append(outcome.Withdrawals, withdrawals...)

		if changes == 0 {
			outcome.State = RunStateStabilized
			break
		}
	}
	if outcome.State == RunStateRunning {
		outcome.State = RunStateRoundLimitReached
	}

	outcome.Results = current.results
	outcome.Applications = cloneApplications(apps)
	for i := range outcome.Applications {
		a := &outcome.Applications[i]
		res, ok := current.results[a.ID]
		if !ok {
			continue
		}
		a.Status = res.Status
		a.Score = res.Score
		a.WeightedAverage = res.WeightedAverage
		a.Position = res.Position
	}
	outcome.tally()
	return outcome, nil
}

// runRound выполняет один раунд и возвращает новое состояние целиком.
func (m *Matcher) runRound(
	round int,
	apps []Application,
	programIDs []shared.ProgramID,
	byProgram map[shared.ProgramID][]int,
	programs map[shared.ProgramID]*Program,
	prev roundState,
) (roundState, []Withdrawal) {
	next := roundState{
		statuses: make(map[string]Status, len(prev.statuses)),
		results:  make(map[string]MatchResult, len(prev.results)),
	}
	for id, s := range prev.statuses {
		next.statuses[id] = s
	}
	for id, r := range prev.results {
		next.results[id] = r
	}

	for _, pid := range programIDs {
		program := programs[pid]

		active := make([]Application, 0, len(byProgram[pid]))
		for _, idx := range byProgram[pid] {
			app := apps[idx]
			if prev.statuses[app.ID].IsActive() {
				active = append(active, app)
			}
		}
		if len(active) == 0 {
			continue
		}

		ranked, excluded := RankCandidates(program.Criteria, active)
		for i, alloc := range AllocateSeats(ranked, program.TotalSeats, program.ReservedNeedSeats) {
			r := ranked[i].Result
			next.statuses[alloc.ApplicationID] = alloc.Status
			next.results[alloc.ApplicationID] = MatchResult{
				ApplicationID:    alloc.ApplicationID,
				Round:            round,
				Score:            r.Score,
				Admissible:       r.Admissible,
				WeightedAverage:  r.WeightedAverage,
				RankBonus:        r.RankBonus,
				NeedBonus:        r.NeedBonus,
				Status:           alloc.Status,
				Position:         alloc.Position,
				ViaReservedQuota: alloc.ViaReservedQuota,
			}
		}
		for _, c := range excluded {
			id := c.ApplicationID()
			next.statuses[id] = StatusRejected
			next.results[id] = MatchResult{
				ApplicationID:   id,
				Round:           round,
				Score:           0,
				Admissible:      false,
				Reason:          c.Result.Reason,
				WeightedAverage: c.Result.WeightedAverage,
				Status:          StatusRejected,
			}
		}
	}

	withdrawals := resolveMultipleOffers(round, apps, next)
	return next, withdrawals
}

// resolveMultipleOffers оставляет каждому студенту одно предложение с лучшим
// рангом желания. При равных рангах побеждает более ранняя заявка снимка.
func resolveMultipleOffers(round int, apps []Application, state roundState) []Withdrawal {
	offers := make(map[shared.StudentID][]int)
	var students []shared.StudentID
	for i, app := range apps {
		if state.statuses[app.ID] != StatusOffered {
			continue
		}
		if _, seen := offers[app.StudentID]; !seen {
			students = append(students, app.StudentID)
		}
		offers[app.StudentID] = append(offers[app.StudentID], i)
	}

	var withdrawals []Withdrawal
	for _, sid := range students {
		held := offers[sid]
		if len(held) < 2 {
			continue
		}
		best := held[0]
		for _, idx := range held[1:] {
			if apps[idx].EffectiveWishRank() < apps[best].EffectiveWishRank() {
				best = idx
			}
		}
		for _, idx := range held {
			if idx == best {
				continue
			}
			app := apps[idx]
			state.statuses[app.ID] = StatusWithdrawn
			res, ok := state.results[app.ID]
			if !ok {
				// предложение из программы, пропущенной в этом прогоне
				res = MatchResult{
					ApplicationID:   app.ID,
					Round:           round,
					Score:           app.Score,
					Admissible:      true,
					WeightedAverage: app.WeightedAverage,
					Position:        app.Position,
				}
			}
			res.Status = StatusWithdrawn
			state.results[app.ID] = res
			withdrawals = append(withdrawals, Withdrawal{
				ApplicationID:     app.ID,
				StudentID:         sid,
				ProgramID:         app.ProgramID,
				KeptApplicationID: apps[best].ID,
				Round:             round,
			})
		}
	}
	return withdrawals
}

func countChanges(prev, next map[string]Status) int {
	changes := 0
	for id, s := range next {
		if prev[id] != s {
			changes++
		}
	}
	return changes
}

func (o *Outcome) tally() {
	o.Processed = len(o.Results)
	for _, r := range o.Results {
		switch r.Status {
		case StatusOffered:
			o.Offered++
		case StatusWaitlisted:
			o.Waitlisted++
		case StatusRejected:
			o.Rejected++
		case StatusWithdrawn:
			o.AutoWithdrawn++
		}
	}
}

func markSkipped(skipped map[shared.ProgramID]*SkippedProgram, id shared.ProgramID, reason string) {
	sp, ok := skipped[id]
	if !ok {
		sp = &SkippedProgram{ProgramID: id, Reason: reason}
		skipped[id] = sp
	}
	sp.Applications++
}

func sortedSkipped(skipped map[shared.ProgramID]*SkippedProgram) []SkippedProgram {
	if len(skipped) == 0 {
		return nil
	}
	out := make([]SkippedProgram, 0, len(skipped))
	for _, sp := range skipped {
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProgramID < out[j].ProgramID })
	return out
}

func cloneApplications(apps []Application) []Application {
	out := make([]Application, len(apps))
	for i, a := range apps {
		a.Grades = a.Grades.Clone()
		out[i] = a
	}
	return out
}
