package api

import (
	"net/http"
	"strconv"

	"github.com/okian/bastion/internal/adapters/repository"
)

// handleLeaderboard handles GET /leaderboard?limit=N.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errBadLimit))
		return
	}
	if n > s.maxLimit {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errLimitExceeded))
		return
	}
	entries, err := s.deps.Leaderboard(r.Context(), n)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	if entries == nil {
		entries = []repository.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
