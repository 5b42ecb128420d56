package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Devdesai111/RevUp-sub000/internal/alignment"
	"github.com/Devdesai111/RevUp-sub000/internal/jobs"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

const (
	defaultMetricLimit = 30
	maxMetricLimit     = 365
)

type recalcRequest struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type executionRequest struct {
	Tasks           []alignment.Task `json:"tasks"`
	HabitDone       bool             `json:"habit_done"`
	DeepWorkMinutes int              `json:"deep_work_minutes"`
	MissedDay       bool             `json:"missed_day"`
}

type reflectionRequest struct {
	Quality *float64 `json:"quality"`
}

type enqueuedResponse struct {
	JobID string `json:"job_id"`
	User  string `json:"user_id"`
	Date  string `json:"date"`
}

func (s *Server) triggerRecalc(w http.ResponseWriter, r *http.Request) {
	p, _ := GetPrincipal(r.Context())

	var req recalcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = p.UserID
	}
	if !p.CanAccess(req.UserID) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	reason := jobs.TriggerReason(req.Reason)
	if reason == jobs.ReasonAdminCalibrate && !p.Admin {
		writeError(w, http.StatusForbidden, "admin_calibrate requires an admin token")
		return
	}

	date, err := alignment.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := jobs.NewJob(req.UserID, date, reason)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !isSync(r) {
		s.enqueue(w, r, job)
		return
	}

	ctx := logging.ContextWithUserID(r.Context(), job.UserID)
	m, err := s.engine.RecalcJob(ctx, job)
	if err != nil {
		s.log.Error("inline recalc failed", "job", job.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, "recalculation failed")
		return
	}
	if m == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) putExecution(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	var req executionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec := &store.ExecutionRecord{
		UserID:          userID,
		Date:            date,
		Tasks:           req.Tasks,
		HabitDone:       req.HabitDone,
		DeepWorkMinutes: req.DeepWorkMinutes,
		MissedDay:       req.MissedDay,
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpsertExecution(r.Context(), rec); err != nil {
		s.log.Error("failed to store execution", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store execution")
		return
	}

	job, err := jobs.NewJob(userID, date, jobs.ReasonTaskComplete)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueue(w, r, job)
}

func (s *Server) putReflection(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	var req reflectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quality == nil {
		writeError(w, http.StatusBadRequest, "quality is required")
		return
	}
	if q := *req.Quality; q < 0 || q > 100 {
		writeError(w, http.StatusBadRequest, "quality must be between 0 and 100")
		return
	}

	if err := s.store.SaveReflection(r.Context(), userID, date, *req.Quality); err != nil {
		s.log.Error("failed to store reflection", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store reflection")
		return
	}

	job, err := jobs.NewJob(userID, date, jobs.ReasonReflectionDone)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueue(w, r, job)
}

func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := defaultMetricLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxMetricLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxMetricLimit))
			return
		}
		limit = n
	}

	// RecentMetrics is exclusive, so the default bound is tomorrow.
	before := alignment.Day(time.Now().UTC()).AddDate(0, 0, 1)
	if v := r.URL.Query().Get("before"); v != "" {
		d, err := alignment.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		before = d
	}

	metrics, err := s.store.RecentMetrics(r.Context(), userID, before, limit)
	if err != nil {
		s.log.Error("failed to list metrics", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list metrics")
		return
	}
	if metrics == nil {
		metrics = []*store.Metric{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) getMetric(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	date, ok := dateParam(w, r)
	if !ok {
		return
	}

	m, err := s.store.GetMetric(r.Context(), userID, date)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "metric not found")
		return
	}
	if err != nil {
		s.log.Error("failed to get metric", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get metric")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type statsResponse struct {
	Outcomes    map[string]int64 `json:"outcomes,omitempty"`
	Pool        *jobs.PoolStats  `json:"pool,omitempty"`
	Subscribers int              `json:"subscribers"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	p, _ := GetPrincipal(r.Context())
	if !p.Admin {
		writeError(w, http.StatusForbidden, "admin only")
		return
	}

	var resp statsResponse
	if s.outcomes != nil {
		snap, err := s.outcomes.Snapshot(r.Context(), s.names...)
		if err != nil {
			s.log.Error("failed to read outcome counters", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read stats")
			return
		}
		resp.Outcomes = snap
	}
	if s.pool != nil {
		ps := s.pool.Stats()
		resp.Pool = &ps
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Subscribers()
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamNotifications upgrades to a websocket carrying the caller's events.
// Admins may watch another user, or everyone with user_id=*.
func (s *Server) streamNotifications(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotFound, "notification stream disabled")
		return
	}
	p, _ := GetPrincipal(r.Context())

	userID := p.UserID
	if want := r.URL.Query().Get("user_id"); want != "" {
		if !p.Admin && want != p.UserID {
			writeError(w, http.StatusForbidden, "access denied")
			return
		}
		userID = want
		if want == "*" {
			userID = ""
		}
	}
	s.hub.Serve(w, r, userID)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, job jobs.Job) {
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		s.log.Error("failed to enqueue recalc", "job", job.Key(), "error", err)
		writeError(w, status, "failed to enqueue recalculation")
		return
	}
	writeJSON(w, http.StatusAccepted, enqueuedResponse{
		JobID: job.ID,
		User:  job.UserID,
		Date:  alignment.DayKey(job.Date),
	})
}

func dateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := alignment.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return date, true
}

func isSync(r *http.Request) bool {
	v := r.URL.Query().Get("sync")
	return v == "1" || v == "true"
}
