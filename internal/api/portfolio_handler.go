package api

import (
	"net/http"
)

// handlePortfolio handles GET /api/portfolio/{account}
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(r.PathValue("account"))
	if err != nil {
		writeErr(w, err)
		return
	}

	summary, err := s.portfolio.Positions(r.Context(), account)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
