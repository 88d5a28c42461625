// Package memory implements the admissions repositories in process memory.
// The offline operator CLI runs matching against it, and application and
// interface tests use it in place of PostgreSQL and Redis.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/shared"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store keeps profiles, programs, applications and runs in maps guarded by
// a single lock. Values are copied on the way in and out, so callers never
// share memory with the store.
type Store struct {
	mu sync.RWMutex

	profiles     map[shared.StudentID]*student.Profile
	programs     map[shared.ProgramID]*admission.Program
	applications map[string]*admission.Application
	runs         []*admission.Run
	criteria     map[string]admission.Criteria

	// lockOwner is the run holding the matching lock, empty when free
	lockOwner string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		profiles:     make(map[shared.StudentID]*student.Profile),
		programs:     make(map[shared.ProgramID]*admission.Program),
		applications: make(map[string]*admission.Application),
		criteria:     make(map[string]admission.Criteria),
	}
}

// Compile-time checks.
var (
	_ admission.ApplicationRepository = (*ApplicationRepository)(nil)
	_ admission.ProgramRepository     = (*ProgramRepository)(nil)
	_ admission.RunRepository         = (*RunRepository)(nil)
	_ admission.RunLock               = (*RunLock)(nil)
	_ admission.CriteriaCache         = (*CriteriaCache)(nil)
	_ student.Repository              = (*StudentRepository)(nil)
)

// Applications returns the application repository view of the store.
func (s *Store) Applications() *ApplicationRepository { return &ApplicationRepository{s} }

// Programs returns the program repository view of the store.
func (s *Store) Programs() *ProgramRepository { return &ProgramRepository{s} }

// Runs returns the run journal view of the store.
func (s *Store) Runs() *RunRepository { return &RunRepository{s} }

// Students returns the profile repository view of the store.
func (s *Store) Students() *StudentRepository { return &StudentRepository{s} }

// Lock returns the matching run lock backed by the store.
func (s *Store) Lock() *RunLock { return &RunLock{s} }

// Criteria returns the criteria cache backed by the store.
func (s *Store) Criteria() *CriteriaCache { return &CriteriaCache{s} }

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT LOADING
// ══════════════════════════════════════════════════════════════════════════════

// LoadSnapshot seeds the store with a matching snapshot. Grades and the
// need-based flag carried by each application become the student's profile.
func (s *Store) LoadSnapshot(snapshot admission.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range snapshot.Programs {
		p := snapshot.Programs[i]
		if _, dup := s.programs[p.ID]; dup {
			return fmt.Errorf("program %s appears twice", p.ID)
		}
		s.programs[p.ID] = &p
	}

	for i := range snapshot.Applications {
		app := snapshot.Applications[i]
		if app.Status == "" {
			app.Status = admission.StatusPending
		}
		if _, dup := s.applications[app.ID]; dup {
			return fmt.Errorf("application %s appears twice", app.ID)
		}
		if _, ok := s.profiles[app.StudentID]; !ok {
			s.profiles[app.StudentID] = &student.Profile{
				ID:        app.StudentID,
				Grades:    app.Grades.Clone(),
				NeedBased: app.NeedBased,
			}
		}
		if app.SubmittedAt.IsZero() {
			// keep snapshot order stable for ListActive
			app.SubmittedAt = time.Unix(int64(i), 0).UTC()
		}
		app.Grades = nil
		s.applications[app.ID] = &app
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationRepository implements admission.ApplicationRepository.
type ApplicationRepository struct{ s *Store }

// Create stores a new application.
func (r *ApplicationRepository) Create(_ context.Context, app *admission.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.applications {
		if existing.StudentID == app.StudentID && existing.ProgramID == app.ProgramID {
			return shared.ErrAlreadyApplied
		}
	}
	c := *app
	c.Grades = nil
	r.s.applications[app.ID] = &c
	return nil
}

// GetByID returns an application with the student's current grades.
func (r *ApplicationRepository) GetByID(_ context.Context, id string) (*admission.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	app, ok := r.s.applications[id]
	if !ok {
		return nil, shared.ErrApplicationNotFound
	}
	c := r.s.withProfile(*app)
	return &c, nil
}

// ListByStudent returns the student's applications by ascending wish rank.
func (r *ApplicationRepository) ListByStudent(_ context.Context, studentID shared.StudentID) ([]*admission.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*admission.Application
	for _, app := range r.s.applications {
		if app.StudentID == studentID {
			c := r.s.withProfile(*app)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WishRank != out[j].WishRank {
			return out[i].WishRank < out[j].WishRank
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

// ListActive returns active applications in submission order.
func (r *ApplicationRepository) ListActive(_ context.Context) ([]admission.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]admission.Application, 0, len(r.s.applications))
	for _, app := range r.s.applications {
		if app.Status.IsActive() {
			out = append(out, r.s.withProfile(*app))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateWishRanks applies new ranks, all or nothing.
func (r *ApplicationRepository) UpdateWishRanks(_ context.Context, studentID shared.StudentID, ranks map[string]int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id := range ranks {
		app, ok := r.s.applications[id]
		if !ok || app.StudentID != studentID {
			return shared.ErrApplicationNotFound
		}
		if app.IsLocked() {
			return shared.ErrApplicationLocked
		}
	}
	now := time.Now().UTC()
	for id, rank := range ranks {
		app := r.s.applications[id]
		app.WishRank = rank
		app.UpdatedAt = now
	}
	return nil
}

// SaveRunResults records the run and its results, all or nothing.
func (r *ApplicationRepository) SaveRunResults(_ context.Context, run *admission.Run, results []admission.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, res := range results {
		if _, ok := r.s.applications[res.ID]; !ok {
			return shared.WrapError("admission", "SaveRunResults", shared.ErrNotFound,
				fmt.Sprintf("application %s", res.ID), shared.ErrApplicationNotFound)
		}
	}
	r.s.saveRun(run)
	for _, res := range results {
		app := r.s.applications[res.ID]
		app.Status = res.Status
		app.Score = res.Score
		app.WeightedAverage = res.WeightedAverage
		app.Position = res.Position
		app.LastRunID = run.ID
		app.UpdatedAt = res.UpdatedAt
	}
	return nil
}

// withProfile copies grades and the need-based flag from the profile.
// Caller holds the lock.
func (s *Store) withProfile(app admission.Application) admission.Application {
	if p, ok := s.profiles[app.StudentID]; ok {
		app.Grades = p.Grades.Clone()
		app.NeedBased = p.NeedBased
	} else {
		app.Grades = admission.Grades{}
	}
	return app
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAMS
// ══════════════════════════════════════════════════════════════════════════════

// ProgramRepository implements admission.ProgramRepository.
type ProgramRepository struct{ s *Store }

// GetByID returns a program.
func (r *ProgramRepository) GetByID(_ context.Context, id shared.ProgramID) (*admission.Program, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.programs[id]
	if !ok {
		return nil, shared.ErrProgramNotFound
	}
	c := *p
	return &c, nil
}

// ListByIDs returns the known programs among ids, sorted by ID.
func (r *ProgramRepository) ListByIDs(_ context.Context, ids []shared.ProgramID) ([]admission.Program, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]admission.Program, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.programs[id]; ok {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAll returns every program sorted by ID.
func (r *ProgramRepository) ListAll(_ context.Context) ([]admission.Program, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]admission.Program, 0, len(r.s.programs))
	for _, p := range r.s.programs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert stores a program.
func (r *ProgramRepository) Upsert(_ context.Context, p *admission.Program) error {
	if err := p.ValidateCapacity(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *p
	r.s.programs[p.ID] = &c
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RUNS
// ══════════════════════════════════════════════════════════════════════════════

// RunRepository implements admission.RunRepository.
type RunRepository struct{ s *Store }

// Save records a run.
func (r *RunRepository) Save(_ context.Context, run *admission.Run) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.saveRun(run)
	return nil
}

// GetLatest returns the most recently started run.
func (r *RunRepository) GetLatest(_ context.Context) (*admission.Run, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if len(r.s.runs) == 0 {
		return nil, shared.ErrRunNotFound
	}
	latest := r.s.runs[0]
	for _, run := range r.s.runs[1:] {
		if !run.StartedAt.Before(latest.StartedAt) {
			latest = run
		}
	}
	c := *latest
	return &c, nil
}

// saveRun inserts or replaces a run by ID. Caller holds the lock.
func (s *Store) saveRun(run *admission.Run) {
	c := *run
	for i, existing := range s.runs {
		if existing.ID == run.ID {
			s.runs[i] = &c
			return
		}
	}
	s.runs = append(s.runs, &c)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository.
type StudentRepository struct{ s *Store }

// GetByID returns a profile.
func (r *StudentRepository) GetByID(_ context.Context, id shared.StudentID) (*student.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	c := *p
	c.Grades = p.Grades.Clone()
	return &c, nil
}

// GetByIDs returns the known profiles among ids, in request order.
func (r *StudentRepository) GetByIDs(_ context.Context, ids []shared.StudentID) ([]*student.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*student.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.profiles[id]; ok {
			c := *p
			c.Grades = p.Grades.Clone()
			out = append(out, &c)
		}
	}
	return out, nil
}

// Save creates or replaces a profile.
func (r *StudentRepository) Save(_ context.Context, p *student.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *p
	c.Grades = p.Grades.Clone()
	r.s.profiles[p.ID] = &c
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCK & CRITERIA CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RunLock implements admission.RunLock within one process.
type RunLock struct{ s *Store }

// Acquire takes the lock if it is free.
func (l *RunLock) Acquire(_ context.Context, runID string) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if l.s.lockOwner != "" {
		return false, nil
	}
	l.s.lockOwner = runID
	return true, nil
}

// Release frees the lock if runID owns it.
func (l *RunLock) Release(_ context.Context, runID string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if l.s.lockOwner == runID {
		l.s.lockOwner = ""
	}
	return nil
}

// CriteriaCache implements admission.CriteriaCache.
type CriteriaCache struct{ s *Store }

// GetCriteria returns cached criteria, (nil, nil) on a miss.
func (c *CriteriaCache) GetCriteria(_ context.Context, fingerprint string) (*admission.Criteria, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	cr, ok := c.s.criteria[fingerprint]
	if !ok {
		return nil, nil
	}
	return &cr, nil
}

// SetCriteria stores criteria under the fingerprint.
func (c *CriteriaCache) SetCriteria(_ context.Context, fingerprint string, criteria admission.Criteria) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.criteria[fingerprint] = criteria
	return nil
}
