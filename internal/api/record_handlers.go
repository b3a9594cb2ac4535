package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/records"
)

// ListRecords handles GET /api/records?q=&m=, the leaderboard of every active
// participant filtered by runner name and marathon name substrings.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	filter := records.Filter{
		Query:    r.URL.Query().Get("q"),
		Marathon: r.URL.Query().Get("m"),
	}
	items, err := s.records.List(ctx, filter)
	if err != nil {
		s.logger.Error("list records failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if items == nil {
		items = []records.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
