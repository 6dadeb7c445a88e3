package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const defaultHistoryLimit = 20

// handleRating answers with the default rating for unseen players.
func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rating"
	rating, err := s.deps.PlayerRating(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, WrapKind(op, ErrBadRequest, errBadLimit))
			return
		}
		limit = min(n, s.maxLimit)
	}
	changes, err := s.deps.RatingHistory(r.Context(), chi.URLParam(r, "playerID"), limit)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, changes)
}
