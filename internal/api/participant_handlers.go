package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/parse"
	"github.com/jaekyeom/splitfeed/internal/predict"
	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// maxDebugSplits caps the sample returned by the live-fetch debug endpoint.
const maxDebugSplits = 3

type participantRequest struct {
	MarathonID int64  `json:"marathon_id"`
	Bib        string `json:"nameorbibno"`
	Alias      string `json:"alias"`
}

// ListParticipants handles GET /api/participants?marathon_id=. Without the
// query parameter it returns every registered participant.
func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	marathonID := int64(0)
	if raw := r.URL.Query().Get("marathon_id"); raw != "" {
		val, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid marathon_id")
			return
		}
		marathonID = val
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	ps, err := s.store.ListParticipants(ctx, marathonID)
	if err != nil {
		s.logger.Error("list participants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	if ps == nil {
		ps = []tracker.Participant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": ps})
}

// CreateParticipant handles POST /api/participants. Numeric bibs for spct
// hosts are zero-padded to the provider's fixed width before storing.
func (s *Server) createParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	bib := strings.TrimSpace(req.Bib)
	if bib == "" {
		writeError(w, http.StatusBadRequest, "nameorbibno is required")
		return
	}
	if req.MarathonID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid marathon_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	m, err := s.store.GetMarathon(ctx, req.MarathonID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "marathon not found")
			return
		}
		s.logger.Error("get marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load marathon")
		return
	}
	bib = tracker.NormalizeBib(m.URLTemplate, bib)

	existing, err := s.store.ListParticipants(ctx, m.ID)
	if err != nil {
		s.logger.Error("list participants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	for i := 0; i < len(existing); i++ {
		if existing[i].Bib == bib {
			writeError(w, http.StatusBadRequest, "participant already registered")
			return
		}
	}

	created, err := s.store.CreateParticipant(ctx, tracker.Participant{
		MarathonID: m.ID,
		Alias:      strings.TrimSpace(req.Alias),
		Bib:        bib,
		Active:     true,
	})
	if err != nil {
		s.logger.Error("create participant failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create participant")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"participant": created})
}

func (s *Server) deleteParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "participant_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.store.DeleteParticipant(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "participant not found")
			return
		}
		s.logger.Error("delete participant failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete participant")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "deleted"})
}

// ImportParticipants handles POST /api/participants/import with a multipart
// form carrying a marathon_id field and a CSV file of bib,alias rows. Bibs
// already registered for the marathon are skipped rather than rejected.
func (s *Server) importParticipants(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "csv file is required")
		return
	}
	defer file.Close() //nolint:errcheck // read-only upload handle

	marathonID, err := strconv.ParseInt(r.FormValue("marathon_id"), 10, 64)
	if err != nil || marathonID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid marathon_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	m, err := s.store.GetMarathon(ctx, marathonID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "marathon not found")
			return
		}
		s.logger.Error("get marathon failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load marathon")
		return
	}

	rows, err := readParticipantCSV(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.store.ListParticipants(ctx, marathonID)
	if err != nil {
		s.logger.Error("list participants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	seen := make(map[string]bool, len(existing))
	for i := 0; i < len(existing); i++ {
		seen[existing[i].Bib] = true
	}

	var add []tracker.Participant
	skipped := 0
	for i := 0; i < len(rows); i++ {
		bib := tracker.NormalizeBib(m.URLTemplate, rows[i].bib)
		if seen[bib] {
			skipped++
			continue
		}
		seen[bib] = true
		add = append(add, tracker.Participant{
			MarathonID: marathonID,
			Alias:      rows[i].alias,
			Bib:        bib,
			Active:     true,
		})
	}
	if len(add) == 0 {
		writeError(w, http.StatusBadRequest, "no new participants in file")
		return
	}

	added, err := s.store.CreateParticipants(ctx, add)
	if err != nil {
		s.logger.Error("import participants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to import participants")
		return
	}
	s.logger.Info("participants imported",
		zap.Int64("marathon_id", marathonID),
		zap.Int("added", added),
		zap.Int("skipped", skipped),
	)
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "skipped": skipped})
}

// ParticipantData handles GET /api/participants/{id}/data: the participant,
// its recorded splits, the finish prediction, and the provider URL the
// crawler polls for it.
func (s *Server) participantData(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "participant_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	p, m, status, errMsg := s.loadParticipantWithMarathon(ctx, id)
	if errMsg != "" {
		writeError(w, status, errMsg)
		return
	}

	splits, err := s.store.ListSplits(ctx, id)
	if err != nil {
		s.logger.Error("list splits failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list splits")
		return
	}
	if splits == nil {
		splits = []tracker.Split{}
	}

	totalKm := m.TotalDistanceKm
	if p.RaceTotalKm != nil && *p.RaceTotalKm > 0 {
		totalKm = *p.RaceTotalKm
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"participant": p,
		"splits":      splits,
		"prediction":  predict.Calculate(splits, totalKm),
		"url":         tracker.BuildURL(m.URLTemplate, p.Bib, m.Usedata),
	})
}

// DebugParticipant handles GET /api/participants/{id}/debug: it fetches the
// participant's live result page and reports what the crawl pipeline would
// extract, which is the quickest way to verify a new URL template.
func (s *Server) debugParticipant(w http.ResponseWriter, r *http.Request) {
	if s.fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, "fetcher unavailable")
		return
	}
	id, err := parseID(r, "participant_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), debugTimeout)
	defer cancel()

	p, m, status, errMsg := s.loadParticipantWithMarathon(ctx, id)
	if errMsg != "" {
		writeError(w, status, errMsg)
		return
	}

	pageURL := tracker.BuildURL(m.URLTemplate, p.Bib, m.Usedata)
	content, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fetch failed: "+err.Error())
		return
	}

	count := 0
	sample := []tracker.Split{}
	if res, ok := parse.Normalize(content, tracker.Host(pageURL), pageURL, m.Usedata, p.Bib); ok {
		count = len(res.Splits)
		sample = res.Splits
		if len(sample) > maxDebugSplits {
			sample = sample[:maxDebugSplits]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tested_url":    pageURL,
		"split_count":   count,
		"sample_splits": sample,
	})
}

// loadParticipantWithMarathon resolves a participant and its marathon. A
// missing row on either side reads as "participant not found" because the
// two are only ever written together.
func (s *Server) loadParticipantWithMarathon(
	ctx context.Context,
	id int64,
) (tracker.Participant, tracker.Marathon, int, string) {
	p, err := s.store.GetParticipant(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tracker.Participant{}, tracker.Marathon{}, http.StatusNotFound, "participant not found"
		}
		s.logger.Error("get participant failed", zap.Error(err))
		return tracker.Participant{}, tracker.Marathon{}, http.StatusInternalServerError, "failed to load participant"
	}
	m, err := s.store.GetMarathon(ctx, p.MarathonID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tracker.Participant{}, tracker.Marathon{}, http.StatusNotFound, "participant not found"
		}
		s.logger.Error("get marathon failed", zap.Error(err))
		return tracker.Participant{}, tracker.Marathon{}, http.StatusInternalServerError, "failed to load marathon"
	}
	return p, m, http.StatusOK, ""
}

type importRow struct {
	bib   string
	alias string
}

// readParticipantCSV parses bib,alias rows. A header row naming the columns
// is honored in any order; without one the first column is the bib and the
// second the alias.
func readParticipantCSV(f io.Reader) ([]importRow, error) {
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	recs, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	bibCol, aliasCol := 0, 1
	start := 0
	if len(recs) > 0 && isHeaderRow(recs[0]) {
		bibCol, aliasCol = headerColumns(recs[0])
		start = 1
	}

	var rows []importRow
	for i := start; i < len(recs); i++ {
		rec := recs[i]
		if bibCol >= len(rec) {
			continue
		}
		bib := strings.TrimSpace(rec[bibCol])
		if bib == "" {
			continue
		}
		alias := ""
		if aliasCol < len(rec) {
			alias = strings.TrimSpace(rec[aliasCol])
		}
		rows = append(rows, importRow{bib: bib, alias: alias})
	}
	if len(rows) == 0 {
		return nil, errors.New("no participant rows in file")
	}
	return rows, nil
}

func isHeaderRow(rec []string) bool {
	for _, cell := range rec {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "bib", "nameorbibno", "alias", "name":
			return true
		}
	}
	return false
}

func headerColumns(rec []string) (int, int) {
	bibCol, aliasCol := 0, 1
	for i, cell := range rec {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "bib", "nameorbibno":
			bibCol = i
		case "alias", "name":
			aliasCol = i
		}
	}
	return bibCol, aliasCol
}
