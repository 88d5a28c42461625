package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/admissions-hub/admissions-hub/config"
	"github.com/admissions-hub/admissions-hub/internal/application/command"
	"github.com/admissions-hub/admissions-hub/internal/application/query"
	"github.com/admissions-hub/admissions-hub/internal/domain/admission"
	"github.com/admissions-hub/admissions-hub/internal/domain/student"
	"github.com/admissions-hub/admissions-hub/internal/interface/http/handlers"
	"github.com/admissions-hub/admissions-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSearchPrograms handles GET /api/v1/programs
func (s *Server) handleSearchPrograms(w http.ResponseWriter, r *http.Request) {
	page, err := getQueryParamInt(r, "page", 1)
	if err != nil {
		s.writeDomainError(w, r, "search_programs", err)
		return
	}
	pageSize, err := getQueryParamInt(r, "page_size", 0)
	if err != nil {
		s.writeDomainError(w, r, "search_programs", err)
		return
	}

	params := r.URL.Query()
	result, err := s.deps.SearchCatalog.Handle(r.Context(), query.SearchCatalogQuery{
		Term:     params.Get("q"),
		Zone:     params.Get("zone"),
		Contract: params.Get("contract"),
		Sort:     params.Get("sort"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		s.writeDomainError(w, r, "search_programs", err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		TotalCount: result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		HasMore:    result.Page*result.PageSize < result.Total,
	})
}

// handleComparePrograms handles GET /api/v1/programs/compare?ids=a,b,c
func (s *Server) handleComparePrograms(w http.ResponseWriter, r *http.Request) {
	if !s.featureEnabled(r, config.FeatureCatalogCompare) {
		writeJSONError(w, http.StatusNotFound, "feature_disabled", "program comparison is disabled")
		return
	}

	var ids []string
	for _, raw := range r.URL.Query()["ids"] {
		ids = append(ids, strings.Split(raw, ",")...)
	}

	comparisons, err := s.deps.ComparePrograms.Handle(r.Context(), ids)
	if err != nil {
		s.writeDomainError(w, r, "compare_programs", err)
		return
	}
	writeJSON(w, http.StatusOK, comparisons)
}

// handleGetProgram handles GET /api/v1/programs/{id}
func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	comparisons, err := s.deps.ComparePrograms.Handle(r.Context(), []string{mux.Vars(r)["id"]})
	if err != nil {
		s.writeDomainError(w, r, "get_program", err)
		return
	}
	writeJSON(w, http.StatusOK, comparisons[0])
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleEstimate handles GET /api/v1/programs/{id}/estimate
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	principal := mustPrincipal(r)
	rank, err := getQueryParamInt(r, "wish_rank", 1)
	if err != nil {
		s.writeDomainError(w, r, "estimate", err)
		return
	}

	estimate, err := s.deps.EstimateScore.Handle(r.Context(), query.EstimateScoreQuery{
		StudentID: principal.StudentID,
		ProgramID: mux.Vars(r)["id"],
		WishRank:  rank,
	})
	if err != nil {
		s.writeDomainError(w, r, "estimate", err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

// handleListApplications handles GET /api/v1/applications
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.deps.ListApplications.Handle(r.Context(), mustPrincipal(r).StudentID)
	if err != nil {
		s.writeDomainError(w, r, "list_applications", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, apps, &ResponseMeta{TotalCount: len(apps)})
}

type submitApplicationRequest struct {
	ProgramID string `json:"program_id"`
	WishRank  int    `json:"wish_rank"`
}

// handleSubmitApplication handles POST /api/v1/applications
func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req submitApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, "submit_application", err)
		return
	}

	principal := mustPrincipal(r)
	app, err := s.deps.SubmitApplication.Handle(r.Context(), command.SubmitApplicationCommand{
		StudentID: principal.StudentID,
		ProgramID: req.ProgramID,
		WishRank:  req.WishRank,
	})
	if err != nil {
		s.writeDomainError(w, r, "submit_application", err)
		return
	}

	logger.FromContext(r.Context()).Info("application submitted",
		logger.StudentID(principal.StudentID),
		logger.ProgramID(req.ProgramID),
		logger.ApplicationID(app.ID),
	)
	writeJSON(w, http.StatusCreated, query.NewApplicationDTO(app, ""))
}

type reorderWishesRequest struct {
	ApplicationIDs []string `json:"application_ids"`
}

// handleReorderWishes handles PUT /api/v1/applications/order
func (s *Server) handleReorderWishes(w http.ResponseWriter, r *http.Request) {
	var req reorderWishesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, "reorder_wishes", err)
		return
	}

	ordered, err := s.deps.ReorderWishes.Handle(r.Context(), command.ReorderWishesCommand{
		StudentID:      mustPrincipal(r).StudentID,
		ApplicationIDs: req.ApplicationIDs,
	})
	if err != nil {
		s.writeDomainError(w, r, "reorder_wishes", err)
		return
	}

	out := make([]query.ApplicationDTO, len(ordered))
	for i, app := range ordered {
		out[i] = query.NewApplicationDTO(app, "")
	}
	writeJSON(w, http.StatusOK, out)
}

type updateProfileRequest struct {
	Email      *string             `json:"email"`
	FirstName  *string             `json:"first_name"`
	LastName   *string             `json:"last_name"`
	City       *string             `json:"city"`
	PostalCode *string             `json:"postal_code"`
	Grades     map[string]*float64 `json:"grades"`
	NeedBased  *bool               `json:"need_based"`
}

type profileResponse struct {
	ID         string             `json:"id"`
	Email      string             `json:"email,omitempty"`
	FirstName  string             `json:"first_name,omitempty"`
	LastName   string             `json:"last_name,omitempty"`
	City       string             `json:"city,omitempty"`
	PostalCode string             `json:"postal_code,omitempty"`
	Grades     map[string]float64 `json:"grades"`
	NeedBased  bool               `json:"need_based"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func newProfileResponse(p *student.Profile) profileResponse {
	grades := make(map[string]float64, len(p.Grades))
	for subject, value := range p.Grades {
		grades[string(subject)] = value
	}
	return profileResponse{
		ID:         p.ID.String(),
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		City:       p.City,
		PostalCode: p.PostalCode,
		Grades:     grades,
		NeedBased:  p.NeedBased,
		UpdatedAt:  p.UpdatedAt,
	}
}

// handleUpdateProfile handles PUT /api/v1/profile
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, "update_profile", err)
		return
	}

	profile, err := s.deps.UpdateProfile.Handle(r.Context(), command.UpdateProfileCommand{
		StudentID:  mustPrincipal(r).StudentID,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		City:       req.City,
		PostalCode: req.PostalCode,
		Grades:     req.Grades,
		NeedBased:  req.NeedBased,
	})
	if err != nil {
		s.writeDomainError(w, r, "update_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(profile))
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type runMatchingResponse struct {
	Run     *query.RunDTO `json:"run"`
	Changed int           `json:"changed"`
}

// handleRunMatching handles POST /api/v1/admin/matching-runs
func (s *Server) handleRunMatching(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.RunMatching.Handle(r.Context(), command.RunMatchingCommand{
		Trigger: admission.TriggerAdmin,
	})
	if err != nil {
		s.writeDomainError(w, r, "run_matching", err)
		return
	}

	logger.FromContext(r.Context()).Info("matching run finished",
		logger.RunID(result.Run.ID),
		logger.String("state", string(result.Run.State)),
		logger.Int("changed", result.Changed),
	)
	writeJSON(w, http.StatusOK, runMatchingResponse{
		Run:     query.NewRunDTO(result.Run),
		Changed: result.Changed,
	})
}

// handleLatestRun handles GET /api/v1/admin/matching-runs/latest
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.LatestRun.Handle(r.Context())
	if err != nil {
		s.writeDomainError(w, r, "latest_run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// mustPrincipal returns the authenticated caller. Routes using it sit behind
// the auth middleware, so a missing principal is a wiring bug.
func mustPrincipal(r *http.Request) *handlers.Principal {
	p, ok := handlers.PrincipalFromContext(r.Context())
	if !ok {
		panic("http: principal missing from authenticated route")
	}
	return p
}

func (s *Server) featureEnabled(r *http.Request, name string) bool {
	if s.deps.Features == nil {
		return true
	}
	fc := &config.FeatureContext{}
	if p, ok := handlers.PrincipalFromContext(r.Context()); ok {
		fc.StudentID = p.StudentID
		fc.IsAdmin = p.Admin
	}
	return s.deps.Features.IsEnabled(name, fc)
}
