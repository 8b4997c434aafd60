package cubegame

import "sync"

// DefaultBoardSize bounds each leaderboard unless configured otherwise.
const DefaultBoardSize = 50

// LeaderboardEntry is one decided session's row. TimeMs carries the winning
// metric: total stage time for sprint, best run for endurance.
type LeaderboardEntry struct {
	Player    string `json:"player"`
	TimeMs    uint64 `json:"time_ms"`
	SessionID uint32 `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
}

// Leaderboard is a bounded, always-sorted board for one mode. Sprint boards
// rank ascending (lower total wins), endurance boards descending.
type Leaderboard struct {
	sync.RWMutex
	mode    Mode
	max     int
	entries []LeaderboardEntry
}

func NewLeaderboard(mode Mode, max int) *Leaderboard {
	if max <= 0 {
		max = DefaultBoardSize
	}
	return &Leaderboard{mode: mode, max: max}
}

func (l *Leaderboard) Mode() Mode { return l.mode }

// Entries returns an ordered copy of the board.
func (l *Leaderboard) Entries() []LeaderboardEntry {
	l.RLock()
	defer l.RUnlock()
	return append([]LeaderboardEntry(nil), l.entries...)
}

// ranksBefore reports whether e sorts ahead of cur. New entries go ahead of
// equal metrics so a fresh result displaces an old tie.
func (l *Leaderboard) ranksBefore(e, cur LeaderboardEntry) bool {
	if l.mode == ModeEndurance {
		return e.TimeMs >= cur.TimeMs
	}
	return e.TimeMs <= cur.TimeMs
}

// mergedWith returns a fresh sorted slice with e inserted and the tail
// truncated at the bound. It never mutates the receiver; the caller commits
// the result with setEntriesLocked once its durable write succeeded. The
// caller holds the write lock across both calls, which makes the merge the
// single atomic cross-session unit.
func (l *Leaderboard) mergedWith(e LeaderboardEntry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(l.entries)+1)
	inserted := false
	for _, cur := range l.entries {
		if !inserted && l.ranksBefore(e, cur) {
			out = append(out, e)
			inserted = true
		}
		out = append(out, cur)
	}
	if !inserted {
		out = append(out, e)
	}
	if len(out) > l.max {
		out = out[:l.max]
	}
	return out
}

// setEntriesLocked replaces the board contents; the caller holds the write
// lock. Also used on restore.
func (l *Leaderboard) setEntriesLocked(entries []LeaderboardEntry) {
	l.entries = entries
}
