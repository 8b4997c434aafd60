package cubegame

import (
	"context"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// ProofGate admits or rejects a submission's zero-knowledge proof. A
// rejection must wrap ErrInvalidProof; any other error is treated as a gate
// outage and aborts the operation without consuming the submission.
type ProofGate interface {
	Verify(ctx context.Context, proof []byte, journalHash chainhash.Hash) error
}

// HubNotifier reports session lifecycle to the external game hub. Both calls
// run before the local state transition commits: an error leaves the
// registry, the store, and the leaderboard untouched.
type HubNotifier interface {
	NotifyStart(ctx context.Context, snap SessionSnapshot) error
	NotifyEnd(ctx context.Context, sessionID uint32, playerAWon bool) error
}

// Store persists sessions and leaderboards. SaveDecision must write the
// terminal session state and the merged board in a single durable unit.
type Store interface {
	SaveSession(ctx context.Context, snap SessionSnapshot) error
	SaveDecision(ctx context.Context, snap SessionSnapshot, mode Mode, board []LeaderboardEntry) error
}
