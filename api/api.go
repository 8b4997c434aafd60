// Package api defines the JSON wire types of the coordinator's HTTP
// surface. The server handlers and the client both marshal through these,
// so a field rename cannot drift between the two sides.
package api

import (
	"github.com/NikhilRaikwar/Cubeathon/cubegame"
)

// Error codes carried in ErrorBody.Error. Codes are stable API; messages
// are free-form detail for humans.
const (
	CodeSessionNotFound     = "session_not_found"
	CodeDuplicateSession    = "duplicate_session"
	CodeSessionDecided      = "session_decided"
	CodeStageNotUnlocked    = "stage_not_unlocked"
	CodeNotParticipant      = "not_participant"
	CodeInvalidProof        = "invalid_proof"
	CodeInvalidStage        = "invalid_stage"
	CodeInvalidParticipants = "invalid_participants"
	CodeWrongMode           = "wrong_mode"
	CodeInvalidMode         = "invalid_mode"
	CodeUnauthorized        = "unauthorized"
	CodeBadRequest          = "bad_request"
	CodeInternal            = "internal"
)

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StartSessionRequest opens a session between two players. The pubkey and
// sig fields carry both players' consent over the session shape; they are
// ignored when the server runs with signature checks disabled.
type StartSessionRequest struct {
	SessionID uint32 `json:"session_id"`
	Mode      string `json:"mode"`
	PlayerA   string `json:"player_a"`
	PlayerB   string `json:"player_b"`
	PointsA   int64  `json:"points_a"`
	PointsB   int64  `json:"points_b"`
	PubKeyA   string `json:"pubkey_a,omitempty"`
	PubKeyB   string `json:"pubkey_b,omitempty"`
	SigA      string `json:"sig_a,omitempty"`
	SigB      string `json:"sig_b,omitempty"`
}

// SessionsResponse lists every registered session, decided or not.
type SessionsResponse struct {
	Sessions []cubegame.SessionSnapshot `json:"sessions"`
}

// SubmitStageRequest reports one cleared sprint stage. Commitment is the
// hex journal hash the proof attests to; Sig is the submitter's consent
// over the exact submission.
type SubmitStageRequest struct {
	Player     string `json:"player"`
	Stage      uint32 `json:"stage"`
	TimeMs     uint64 `json:"time_ms"`
	Commitment string `json:"commitment,omitempty"`
	Proof      []byte `json:"proof,omitempty"`
	Sig        string `json:"sig,omitempty"`
}

type SubmitStageResponse struct {
	Session cubegame.SessionSnapshot `json:"session"`
	Decided bool                     `json:"decided"`
	Winner  string                   `json:"winner,omitempty"`
}

// SubmitScoreRequest reports one endurance run.
type SubmitScoreRequest struct {
	Player     string `json:"player"`
	TimeMs     uint64 `json:"time_ms"`
	Commitment string `json:"commitment,omitempty"`
	Proof      []byte `json:"proof,omitempty"`
	Sig        string `json:"sig,omitempty"`
}

type SubmitScoreResponse struct {
	Session  cubegame.SessionSnapshot `json:"session"`
	Improved bool                     `json:"improved"`
}

// FinalizeRequest settles an endurance session. Player and Sig identify the
// participant consenting to the settle; both are optional when the server
// runs with signature checks disabled.
type FinalizeRequest struct {
	Player string `json:"player,omitempty"`
	Sig    string `json:"sig,omitempty"`
}

type FinalizeResponse struct {
	Session cubegame.SessionSnapshot `json:"session"`
	Winner  string                   `json:"winner"`
}

type LeaderboardResponse struct {
	Mode    cubegame.Mode               `json:"mode"`
	Entries []cubegame.LeaderboardEntry `json:"entries"`
}
