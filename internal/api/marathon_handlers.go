package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// Defaults applied when a create request omits optional marathon fields.
const (
	defaultTotalDistanceKm = 21.1
	defaultRefreshSec      = 60
	minRefreshSec          = 5
)

type marathonRequest struct {
	Name            *string  `json:"name"`
	URLTemplate     *string  `json:"url_template"`
	Usedata         *string  `json:"usedata"`
	TotalDistanceKm *float64 `json:"total_distance_km"`
	RefreshSec      *int     `json:"refresh_sec"`
	Enabled         *bool    `json:"enabled"`
	CertURLTemplate *string  `json:"cert_url_template"`
}

func (r marathonRequest) empty() bool {
	return r.Name == nil && r.URLTemplate == nil && r.Usedata == nil &&
		r.TotalDistanceKm == nil && r.RefreshSec == nil && r.Enabled == nil &&
		r.CertURLTemplate == nil
}

// ListMarathons handles GET /api/marathons, returning {"marathons": [...]}.
func (s *Server) listMarathons(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	ms, err := s.store.ListMarathons(ctx)
	if err != nil {
		s.logger.Error("list marathons failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list marathons")
		return
	}
	if ms == nil {
		ms = []tracker.Marathon{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"marathons": ms})
}

func (s *Server) getMarathon(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "marathon_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	m, err := s.store.GetMarathon(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "marathon not found")
			return
		}
		s.logger.Error("get marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load marathon")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marathon": m})
}

// CreateMarathon handles POST /api/marathons. Missing optional fields fall
// back to a half-course distance, a 60s refresh, and enabled.
func (s *Server) createMarathon(w http.ResponseWriter, r *http.Request) {
	var req marathonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	m := tracker.Marathon{
		Name:            strings.TrimSpace(valueOrDefault(req.Name, "")),
		URLTemplate:     strings.TrimSpace(valueOrDefault(req.URLTemplate, "")),
		Usedata:         strings.TrimSpace(valueOrDefault(req.Usedata, "")),
		TotalDistanceKm: valueOrDefault(req.TotalDistanceKm, defaultTotalDistanceKm),
		RefreshSec:      valueOrDefault(req.RefreshSec, defaultRefreshSec),
		Enabled:         valueOrDefault(req.Enabled, true),
		CertURLTemplate: strings.TrimSpace(valueOrDefault(req.CertURLTemplate, "")),
		UpdatedAt:       s.clock.Now(),
	}
	if err := validateMarathon(m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	created, err := s.store.CreateMarathon(ctx, m)
	if err != nil {
		s.logger.Error("create marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create marathon")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"marathon": created})
}

// UpdateMarathon handles PUT /api/marathons/{id}, applying only the fields
// present in the request body.
func (s *Server) updateMarathon(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "marathon_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req marathonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	m, err := s.store.GetMarathon(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "marathon not found")
			return
		}
		s.logger.Error("get marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load marathon")
		return
	}

	if req.Name != nil {
		m.Name = strings.TrimSpace(*req.Name)
	}
	if req.URLTemplate != nil {
		m.URLTemplate = strings.TrimSpace(*req.URLTemplate)
	}
	if req.Usedata != nil {
		m.Usedata = strings.TrimSpace(*req.Usedata)
	}
	if req.TotalDistanceKm != nil {
		m.TotalDistanceKm = *req.TotalDistanceKm
	}
	if req.RefreshSec != nil {
		m.RefreshSec = *req.RefreshSec
	}
	if req.Enabled != nil {
		m.Enabled = *req.Enabled
	}
	if req.CertURLTemplate != nil {
		m.CertURLTemplate = strings.TrimSpace(*req.CertURLTemplate)
	}
	if err := validateMarathon(m); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateMarathon(ctx, m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "marathon not found")
			return
		}
		s.logger.Error("update marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update marathon")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marathon": m})
}

func (s *Server) deleteMarathon(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "marathon_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.store.DeleteMarathon(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "marathon not found")
			return
		}
		s.logger.Error("delete marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete marathon")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "deleted"})
}

// ToggleMarathon handles POST /api/marathons/{id}/toggle, flipping whether the
// scheduler polls the marathon.
func (s *Server) toggleMarathon(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "marathon_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	m, err := s.store.GetMarathon(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "marathon not found")
			return
		}
		s.logger.Error("get marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load marathon")
		return
	}

	m.Enabled = !m.Enabled
	m.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateMarathon(ctx, m); err != nil {
		s.logger.Error("toggle marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to toggle marathon")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": m.Enabled})
}

// MarathonStats handles GET /api/marathons/{id}/stats with participant and
// split counts for the dashboard.
func (s *Server) marathonStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "marathon_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	m, err := s.store.GetMarathon(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "marathon not found")
			return
		}
		s.logger.Error("get marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load marathon")
		return
	}
	ps, err := s.store.ListParticipants(ctx, id)
	if err != nil {
		s.logger.Error("list participants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}

	active := 0
	totalSplits := 0
	for i := 0; i < len(ps); i++ {
		if ps[i].Active {
			active++
		}
		splits, err := s.store.ListSplits(ctx, ps[i].ID)
		if err != nil {
			s.logger.Error("list splits failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to count splits")
			return
		}
		totalSplits += len(splits)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_participants":  len(ps),
		"active_participants": active,
		"total_splits":        totalSplits,
		"last_updated":        m.UpdatedAt,
	})
}

func validateMarathon(m tracker.Marathon) error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	if !strings.Contains(m.URLTemplate, "{nameorbibno}") {
		return errors.New("url_template must contain {nameorbibno}")
	}
	if m.RefreshSec < minRefreshSec {
		return errors.New("refresh_sec must be at least 5")
	}
	return nil
}
