package cubegame

import (
	"sync"

	"github.com/companyzero/bisonrelay/zkidentity"
)

// Mode selects the winner policy a session runs under. It is fixed at start.
type Mode string

const (
	// ModeSprint races both players through a fixed ladder of stages; the
	// first player to clear them all wins immediately.
	ModeSprint Mode = "sprint"
	// ModeEndurance accumulates a monotonic best metric per player and only
	// decides a winner on an explicit finalize.
	ModeEndurance Mode = "endurance"
)

// ParseMode validates a wire-format mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSprint:
		return ModeSprint, nil
	case ModeEndurance:
		return ModeEndurance, nil
	}
	return "", ErrInvalidMode
}

// PlayerProgress is one player's proof-gated record inside a session.
//
// Sprint sessions use StageTimes/StagesCleared/BestTotalMs; BestTotalMs is
// only meaningful once StagesCleared equals the session's stage count.
// Endurance sessions use BestRunMs, which never decreases.
type PlayerProgress struct {
	StageTimes    []uint64 `json:"stage_times,omitempty"`
	StagesCleared uint32   `json:"stages_cleared"`
	BestTotalMs   uint64   `json:"best_total_ms,omitempty"`
	BestRunMs     uint64   `json:"best_run_ms,omitempty"`
}

// Finished reports whether all stages of a sprint ladder are cleared.
func (p PlayerProgress) Finished(stageCount uint32) bool {
	return p.StagesCleared >= stageCount
}

// Clone deep-copies the progress so a submission can be applied and rolled
// back without touching the live session.
func (p PlayerProgress) Clone() PlayerProgress {
	out := p
	out.StageTimes = append([]uint64(nil), p.StageTimes...)
	return out
}

// Session is a two-player competitive session. The embedded mutex serializes
// every mutating operation on it; cross-session operations never block each
// other.
type Session struct {
	sync.RWMutex

	ID      uint32
	Mode    Mode
	PlayerA zkidentity.ShortID
	PlayerB zkidentity.ShortID

	// Stake weights reported to the hub. Signed: a negative weight is a
	// handicap carried in from a previous match.
	PointsA int64
	PointsB int64

	ProgressA PlayerProgress
	ProgressB PlayerProgress

	// Winner is nil until the session is decided, then permanently set.
	Winner    *zkidentity.ShortID
	StartedAt int64

	// Compressed pubkeys the consent layer verified at start. Opaque here.
	PubKeyA []byte
	PubKeyB []byte
}

// SessionSnapshot is the lock-free copy of a session used for the API,
// events, and persistence. Player ids are hex uids.
type SessionSnapshot struct {
	ID        uint32         `json:"session_id"`
	Mode      Mode           `json:"mode"`
	PlayerA   string         `json:"player_a"`
	PlayerB   string         `json:"player_b"`
	PointsA   int64          `json:"points_a"`
	PointsB   int64          `json:"points_b"`
	ProgressA PlayerProgress `json:"progress_a"`
	ProgressB PlayerProgress `json:"progress_b"`
	Winner    string         `json:"winner,omitempty"`
	StartedAt int64          `json:"started_at"`
	PubKeyA   []byte         `json:"pubkey_a,omitempty"`
	PubKeyB   []byte         `json:"pubkey_b,omitempty"`
}

// Snapshot marshals the session under its read lock.
func (s *Session) Snapshot() SessionSnapshot {
	s.RLock()
	defer s.RUnlock()
	return s.snapshotLocked()
}

// snapshotLocked builds a snapshot; the caller holds at least the read lock.
func (s *Session) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{
		ID:        s.ID,
		Mode:      s.Mode,
		PlayerA:   s.PlayerA.String(),
		PlayerB:   s.PlayerB.String(),
		PointsA:   s.PointsA,
		PointsB:   s.PointsB,
		ProgressA: s.ProgressA.Clone(),
		ProgressB: s.ProgressB.Clone(),
		StartedAt: s.StartedAt,
		PubKeyA:   append([]byte(nil), s.PubKeyA...),
		PubKeyB:   append([]byte(nil), s.PubKeyB...),
	}
	if s.Winner != nil {
		snap.Winner = s.Winner.String()
	}
	return snap
}

// decidedLocked reports terminal state; the caller holds the lock.
func (s *Session) decidedLocked() bool {
	return s.Winner != nil
}

// progressOfLocked returns the live progress of a participant plus whether it
// is player A. The caller holds the lock.
func (s *Session) progressOfLocked(player zkidentity.ShortID) (prog *PlayerProgress, isA bool, err error) {
	switch player {
	case s.PlayerA:
		return &s.ProgressA, true, nil
	case s.PlayerB:
		return &s.ProgressB, false, nil
	}
	return nil, false, ErrNotParticipant
}

// sessionFromSnapshot rebuilds a live session from stored state.
func sessionFromSnapshot(snap SessionSnapshot) (*Session, error) {
	if _, err := ParseMode(string(snap.Mode)); err != nil {
		return nil, err
	}
	var a, b zkidentity.ShortID
	if err := a.FromString(snap.PlayerA); err != nil {
		return nil, err
	}
	if err := b.FromString(snap.PlayerB); err != nil {
		return nil, err
	}
	s := &Session{
		ID:        snap.ID,
		Mode:      snap.Mode,
		PlayerA:   a,
		PlayerB:   b,
		PointsA:   snap.PointsA,
		PointsB:   snap.PointsB,
		ProgressA: snap.ProgressA.Clone(),
		ProgressB: snap.ProgressB.Clone(),
		StartedAt: snap.StartedAt,
		PubKeyA:   append([]byte(nil), snap.PubKeyA...),
		PubKeyB:   append([]byte(nil), snap.PubKeyB...),
	}
	if snap.Winner != "" {
		var w zkidentity.ShortID
		if err := w.FromString(snap.Winner); err != nil {
			return nil, err
		}
		s.Winner = &w
	}
	return s, nil
}
