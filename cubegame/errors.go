package cubegame

import "errors"

// Operation errors. The HTTP layer maps each of these to a status code, so
// registry methods must return them unwrapped or wrapped with %w only.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrDuplicateSession    = errors.New("session id already exists")
	ErrInvalidParticipants = errors.New("participants must be distinct")
	ErrNotParticipant      = errors.New("player is not in this session")
	ErrSessionDecided      = errors.New("session already decided")
	ErrInvalidStage        = errors.New("stage out of range")
	ErrStageNotUnlocked    = errors.New("stage not unlocked")
	ErrInvalidProof        = errors.New("proof rejected")
	ErrWrongMode           = errors.New("operation does not apply to this session mode")
	ErrInvalidMode         = errors.New("unknown session mode")
)
