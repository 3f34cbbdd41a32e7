package httpapi

import "net/http"

func (s *Server) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dashboard.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err, defaultErrors)
		return
	}
	respond(w, http.StatusOK, "Dashboard summary retrieved successfully", summary)
}
