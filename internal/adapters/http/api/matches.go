package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/okian/bastion/internal/domain/model"
)

// matchRequest is the body of POST /matches.
type matchRequest struct {
	MatchID    string   `json:"match_id"`
	Difficulty string   `json:"difficulty"`
	TeamSize   int      `json:"team_size"`
	TeamA      []string `json:"team_a"`
	TeamB      []string `json:"team_b"`
}

func (m matchRequest) toModel() model.Match {
	return model.Match{
		ID:         strings.TrimSpace(m.MatchID),
		Difficulty: model.Difficulty(m.Difficulty),
		TeamSize:   m.TeamSize,
		TeamA:      m.TeamA,
		TeamB:      m.TeamB,
	}
}

// matchResponse is the read shape of a match.
type matchResponse struct {
	MatchID    string   `json:"match_id"`
	Difficulty string   `json:"difficulty"`
	TeamSize   int      `json:"team_size"`
	TeamA      []string `json:"team_a"`
	TeamB      []string `json:"team_b"`
	Status     string   `json:"status"`
	Invalid    bool     `json:"invalid"`
	Phase      string   `json:"phase,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func newMatchResponse(m model.Match, phase string) matchResponse {
	return matchResponse{
		MatchID:    m.ID,
		Difficulty: string(m.Difficulty),
		TeamSize:   m.TeamSize,
		TeamA:      m.TeamA,
		TeamB:      m.TeamB,
		Status:     m.Status.String(),
		Invalid:    m.Invalid,
		Phase:      phase,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// tickRequest is the body of POST /matches/{id}/ticks.
type tickRequest struct {
	Results []model.HealthResult `json:"results"`
}

func (t tickRequest) validate() error {
	for _, r := range t.Results {
		if strings.TrimSpace(r.ServiceID) == "" {
			return errMissingServiceID
		}
		if r.Status != model.StatusUp && r.Status != model.StatusDown {
			return errBadStatus
		}
	}
	return nil
}

// flagRequest is the body of POST /matches/{id}/flags.
type flagRequest struct {
	TeamID    string `json:"team_id"`
	ServiceID string `json:"service_id"`
	Tick      int    `json:"tick"`
}

func (f flagRequest) validate() error {
	if f.TeamID != model.TeamA && f.TeamID != model.TeamB {
		return errBadTeam
	}
	if f.Tick < 0 {
		return errBadTick
	}
	return nil
}

func (s *Server) handleAcceptMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.accept_match"
	var req matchRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.deps.AcceptMatch(r.Context(), req.toModel())
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	phase, _ := s.deps.Phase(m.ID)
	writeJSON(w, http.StatusCreated, newMatchResponse(m, phase))
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_match"
	v, err := s.deps.GetMatch(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, newMatchResponse(v.Match, v.Phase))
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_scores"
	board, err := s.deps.Scores(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_tick"
	var req tickRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	matchID := chi.URLParam(r, "matchID")
	applied, err := s.deps.RecordTick(r.Context(), matchID, req.Results)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: ackStatus(applied), MatchID: matchID})
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_flag"
	var req flagRequest
	if err := decode(w, r, op, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	matchID := chi.URLParam(r, "matchID")
	applied, err := s.deps.CaptureFlag(r.Context(), matchID, req.TeamID, req.ServiceID, req.Tick)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: ackStatus(applied), MatchID: matchID})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	const op = "api.end_match"
	matchID := chi.URLParam(r, "matchID")
	if err := s.deps.EndMatch(r.Context(), matchID); err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "ended", MatchID: matchID})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.invalidate_match"
	matchID := chi.URLParam(r, "matchID")
	if err := s.deps.InvalidateMatch(r.Context(), matchID); err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "invalidated", MatchID: matchID})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	const op = "api.settle_match"
	matchID := chi.URLParam(r, "matchID")
	if err := s.deps.SettleMatch(r.Context(), matchID); err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "settling", MatchID: matchID})
}
