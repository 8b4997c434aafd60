package serverdb

import (
	"context"
	"errors"

	"github.com/NikhilRaikwar/Cubeathon/cubegame"
)

var (
	ErrSessionNotFound     = errors.New("session not stored")
	ErrMainBucketNotFound  = errors.New("main bucket not found")
	ErrBoardBucketNotFound = errors.New("board bucket not found")
)

// ServerDB persists sessions and the per-mode leaderboards across restarts.
//
// SaveSession and SaveDecision satisfy cubegame.Store; SaveDecision must
// write the terminal session and its merged board in one transaction so a
// crash can never separate a winner from its board entry. The fetch methods
// feed the registry's Restore at boot.
type ServerDB interface {
	SaveSession(ctx context.Context, snap cubegame.SessionSnapshot) error
	FetchSession(ctx context.Context, id uint32) (cubegame.SessionSnapshot, error)
	FetchSessions(ctx context.Context) ([]cubegame.SessionSnapshot, error)

	SaveDecision(ctx context.Context, snap cubegame.SessionSnapshot, mode cubegame.Mode, board []cubegame.LeaderboardEntry) error
	FetchLeaderboard(ctx context.Context, mode cubegame.Mode) ([]cubegame.LeaderboardEntry, error)

	Close() error
}
