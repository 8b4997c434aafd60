package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	cubeathon "github.com/NikhilRaikwar/Cubeathon"
	"github.com/NikhilRaikwar/Cubeathon/api"
	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errBadRequest = errors.New("bad request")

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", s.handleStartSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /v1/sessions/{id}/stages", s.handleSubmitStage)
	mux.HandleFunc("POST /v1/sessions/{id}/scores", s.handleSubmitScore)
	mux.HandleFunc("POST /v1/sessions/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /v1/ws", s.events.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status, code := statusFromErr(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, api.ErrorBody{Error: code, Message: err.Error()})
}

func statusFromErr(err error) (int, string) {
	switch {
	case errors.Is(err, cubegame.ErrSessionNotFound):
		return http.StatusNotFound, api.CodeSessionNotFound
	case errors.Is(err, cubegame.ErrDuplicateSession):
		return http.StatusConflict, api.CodeDuplicateSession
	case errors.Is(err, cubegame.ErrSessionDecided):
		return http.StatusConflict, api.CodeSessionDecided
	case errors.Is(err, cubegame.ErrStageNotUnlocked):
		return http.StatusConflict, api.CodeStageNotUnlocked
	case errors.Is(err, cubegame.ErrNotParticipant):
		return http.StatusForbidden, api.CodeNotParticipant
	case errors.Is(err, cubegame.ErrInvalidProof):
		return http.StatusUnprocessableEntity, api.CodeInvalidProof
	case errors.Is(err, cubegame.ErrInvalidStage):
		return http.StatusBadRequest, api.CodeInvalidStage
	case errors.Is(err, cubegame.ErrInvalidParticipants):
		return http.StatusBadRequest, api.CodeInvalidParticipants
	case errors.Is(err, cubegame.ErrWrongMode):
		return http.StatusBadRequest, api.CodeWrongMode
	case errors.Is(err, cubegame.ErrInvalidMode):
		return http.StatusBadRequest, api.CodeInvalidMode
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, api.CodeUnauthorized
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, api.CodeBadRequest
	}
	return http.StatusInternalServerError, api.CodeInternal
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func sessionIDFromPath(r *http.Request) (uint32, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: session id %q", errBadRequest, raw)
	}
	return uint32(id), nil
}

func parseUID(s string) (zkidentity.ShortID, error) {
	var uid zkidentity.ShortID
	if err := uid.FromString(s); err != nil {
		return uid, fmt.Errorf("%w: player id %q", errBadRequest, s)
	}
	return uid, nil
}

func parseHexField(name, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hex", errBadRequest, name)
	}
	return b, nil
}

// parseCommitment decodes the journal hash. An absent commitment is only
// meaningful alongside an empty proof; it parses to the zero hash and the
// registry's proof policy decides from there.
func parseCommitment(s string) (chainhash.Hash, error) {
	if s == "" {
		return chainhash.Hash{}, nil
	}
	h, err := cubeathon.DecodeHash(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: commitment: %v", errBadRequest, err)
	}
	return h, nil
}

func submissionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, cubegame.ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, cubegame.ErrSessionNotFound),
		errors.Is(err, cubegame.ErrSessionDecided),
		errors.Is(err, cubegame.ErrNotParticipant),
		errors.Is(err, cubegame.ErrInvalidStage),
		errors.Is(err, cubegame.ErrStageNotUnlocked),
		errors.Is(err, cubegame.ErrWrongMode):
		return "refused"
	}
	return "error"
}

// --- session handlers ---

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req api.StartSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	mode, err := cubegame.ParseMode(req.Mode)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	playerA, err := parseUID(req.PlayerA)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	playerB, err := parseUID(req.PlayerB)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	params := cubegame.StartParams{
		SessionID: req.SessionID,
		Mode:      mode,
		PlayerA:   playerA,
		PlayerB:   playerB,
		PointsA:   req.PointsA,
		PointsB:   req.PointsB,
	}
	if !s.authDisabled {
		params.PubKeyA, params.PubKeyB, err = s.verifyStartConsent(params, req)
		if err != nil {
			s.writeErr(w, err)
			return
		}
	}

	snap, err := s.registry.StartSession(r.Context(), params)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	sessionsStarted.Inc()
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	snap, err := s.registry.GetSession(id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps := s.registry.Sessions()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	writeJSON(w, http.StatusOK, api.SessionsResponse{Sessions: snaps})
}

// --- submission handlers ---

func (s *Server) handleSubmitStage(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var req api.SubmitStageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	player, err := parseUID(req.Player)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	commitment, err := parseCommitment(req.Commitment)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	if !s.authDisabled {
		digest := cubeathon.StageDigest(id, player, req.Stage, req.TimeMs, commitment)
		if err := s.verifyParticipantConsent(id, player, digest, req.Sig); err != nil {
			s.writeErr(w, err)
			return
		}
	}

	res, err := s.registry.SubmitStage(r.Context(), cubegame.SubmitStageParams{
		SessionID:  id,
		Player:     player,
		Stage:      req.Stage,
		TimeMs:     req.TimeMs,
		Commitment: commitment,
		Proof:      req.Proof,
	})
	submissions.WithLabelValues("stage", submissionResult(err)).Inc()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if res.Decided {
		sessionsDecided.WithLabelValues(string(res.Session.Mode)).Inc()
	}
	writeJSON(w, http.StatusOK, api.SubmitStageResponse{
		Session: res.Session,
		Decided: res.Decided,
		Winner:  res.Winner,
	})
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var req api.SubmitScoreRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, err)
		return
	}
	player, err := parseUID(req.Player)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	commitment, err := parseCommitment(req.Commitment)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	if !s.authDisabled {
		digest := cubeathon.ScoreDigest(id, player, req.TimeMs, commitment)
		if err := s.verifyParticipantConsent(id, player, digest, req.Sig); err != nil {
			s.writeErr(w, err)
			return
		}
	}

	res, err := s.registry.SubmitScore(r.Context(), cubegame.SubmitScoreParams{
		SessionID:  id,
		Player:     player,
		TimeMs:     req.TimeMs,
		Commitment: commitment,
		Proof:      req.Proof,
	})
	submissions.WithLabelValues("score", submissionResult(err)).Inc()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SubmitScoreResponse{
		Session:  res.Session,
		Improved: res.Improved,
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var req api.FinalizeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeErr(w, err)
		return
	}

	if !s.authDisabled {
		player, err := parseUID(req.Player)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		digest := cubeathon.FinalizeDigest(id, player)
		if err := s.verifyParticipantConsent(id, player, digest, req.Sig); err != nil {
			s.writeErr(w, err)
			return
		}
	}

	res, err := s.registry.Finalize(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	sessionsDecided.WithLabelValues(string(res.Session.Mode)).Inc()
	writeJSON(w, http.StatusOK, api.FinalizeResponse{
		Session: res.Session,
		Winner:  res.Winner,
	})
}

// --- board and health handlers ---

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	mode, err := cubegame.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	entries, err := s.registry.Leaderboard(mode)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if entries == nil {
		entries = []cubegame.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, api.LeaderboardResponse{Mode: mode, Entries: entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
