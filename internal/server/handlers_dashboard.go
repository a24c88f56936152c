package server

import (
	"net/http"

	"github.com/jonathan/interview-pilot/internal/dashboard"
)

// handleDashboard loads the stats and history halves independently and
// returns whatever arrived. Partial failures degrade to a warning; the
// response never blocks starting a new interview.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view := dashboard.Load(r.Context(), s.gw, s.logger)
	s.jsonResponse(w, http.StatusOK, view)
}
