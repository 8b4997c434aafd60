package cubegame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/slog"
)

// DefaultStageCount is the sprint ladder length unless configured otherwise.
const DefaultStageCount = 3

// Registry owns every live session and both leaderboards. All mutating
// operations are all-or-nothing: precondition failures, gate rejections, hub
// errors, and store errors leave no trace. Operations on distinct sessions
// run concurrently; operations on one session serialize on its lock.
type Registry struct {
	log slog.Logger

	stageCount      uint32
	allowEmptyProof bool

	gate  ProofGate
	hub   HubNotifier
	store Store
	now   func() time.Time

	mu       sync.RWMutex
	sessions map[uint32]*Session

	boards   map[Mode]*Leaderboard
	policies map[Mode]WinnerPolicy

	subsMu sync.RWMutex
	subs   map[chan Event]struct{}
}

type RegistryConfig struct {
	// StageCount is the sprint ladder length; 0 means DefaultStageCount.
	StageCount uint32
	// BoardSize bounds each leaderboard; 0 means DefaultBoardSize.
	BoardSize int
	// AllowEmptyProof admits empty proofs without calling the gate. Off by
	// default; only meant for development setups without a verifier.
	AllowEmptyProof bool

	Gate  ProofGate
	Hub   HubNotifier
	Store Store
	Log   slog.Logger
	Now   func() time.Time
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.StageCount == 0 {
		cfg.StageCount = DefaultStageCount
	}
	if cfg.BoardSize <= 0 {
		cfg.BoardSize = DefaultBoardSize
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		log:             cfg.Log,
		stageCount:      cfg.StageCount,
		allowEmptyProof: cfg.AllowEmptyProof,
		gate:            cfg.Gate,
		hub:             cfg.Hub,
		store:           cfg.Store,
		now:             cfg.Now,
		sessions:        make(map[uint32]*Session),
		boards: map[Mode]*Leaderboard{
			ModeSprint:    NewLeaderboard(ModeSprint, cfg.BoardSize),
			ModeEndurance: NewLeaderboard(ModeEndurance, cfg.BoardSize),
		},
		policies: map[Mode]WinnerPolicy{
			ModeSprint:    SprintPolicy{StageCount: cfg.StageCount},
			ModeEndurance: EndurancePolicy{},
		},
		subs: make(map[chan Event]struct{}),
	}
}

// StageCount reports the configured sprint ladder length.
func (r *Registry) StageCount() uint32 { return r.stageCount }

// Restore loads persisted sessions and boards at boot, before any operation
// runs.
func (r *Registry) Restore(snaps []SessionSnapshot, boards map[Mode][]LeaderboardEntry) error {
	r.mu.Lock()
	for _, snap := range snaps {
		sess, err := sessionFromSnapshot(snap)
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("restore session %d: %w", snap.ID, err)
		}
		r.sessions[sess.ID] = sess
	}
	restored := len(r.sessions)
	r.mu.Unlock()

	for mode, entries := range boards {
		b := r.boards[mode]
		if b == nil {
			return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
		}
		b.Lock()
		b.setEntriesLocked(append([]LeaderboardEntry(nil), entries...))
		b.Unlock()
	}
	r.log.Infof("restored %d sessions from store", restored)
	return nil
}

func (r *Registry) lookup(id uint32) *Session {
	r.mu.RLock()
	sess := r.sessions[id]
	r.mu.RUnlock()
	return sess
}

func (r *Registry) evict(id uint32) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// lockLive locks the session for writing and verifies it is still
// registered. A session whose start failed after reserving its id
// unregisters itself while holding the lock, so the recheck closes that
// window.
func (r *Registry) lockLive(id uint32) (*Session, error) {
	sess := r.lookup(id)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	sess.Lock()
	if r.lookup(id) != sess {
		sess.Unlock()
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// StartParams carries everything a new session needs. The consent layer has
// already verified both players' signatures and pubkey/uid bindings.
type StartParams struct {
	SessionID uint32
	Mode      Mode
	PlayerA   zkidentity.ShortID
	PlayerB   zkidentity.ShortID
	PointsA   int64
	PointsB   int64
	PubKeyA   []byte
	PubKeyB   []byte
}

// StartSession registers a session, reports it to the hub, and persists it.
// The id reservation is undone if the hub or the store refuses.
func (r *Registry) StartSession(ctx context.Context, p StartParams) (SessionSnapshot, error) {
	if _, ok := r.policies[p.Mode]; !ok {
		return SessionSnapshot{}, ErrInvalidMode
	}
	if p.PlayerA == p.PlayerB {
		return SessionSnapshot{}, ErrInvalidParticipants
	}

	sess := &Session{
		ID:        p.SessionID,
		Mode:      p.Mode,
		PlayerA:   p.PlayerA,
		PlayerB:   p.PlayerB,
		PointsA:   p.PointsA,
		PointsB:   p.PointsB,
		StartedAt: r.now().Unix(),
		PubKeyA:   append([]byte(nil), p.PubKeyA...),
		PubKeyB:   append([]byte(nil), p.PubKeyB...),
	}

	// Reserve the id under the session's own lock so concurrent operations
	// on it wait for the start to either commit or back out.
	sess.Lock()
	defer sess.Unlock()
	r.mu.Lock()
	if _, ok := r.sessions[p.SessionID]; ok {
		r.mu.Unlock()
		return SessionSnapshot{}, ErrDuplicateSession
	}
	r.sessions[p.SessionID] = sess
	r.mu.Unlock()

	snap := sess.snapshotLocked()
	if r.hub != nil {
		if err := r.hub.NotifyStart(ctx, snap); err != nil {
			r.evict(p.SessionID)
			return SessionSnapshot{}, fmt.Errorf("hub start notification: %w", err)
		}
	}
	if r.store != nil {
		if err := r.store.SaveSession(ctx, snap); err != nil {
			r.evict(p.SessionID)
			return SessionSnapshot{}, fmt.Errorf("persist session %d: %w", p.SessionID, err)
		}
	}

	r.publish(Event{Type: EventSessionStarted, SessionID: p.SessionID, Mode: p.Mode, At: sess.StartedAt})
	r.log.Infof("session %d started (%s): %s vs %s", p.SessionID, p.Mode, p.PlayerA, p.PlayerB)
	return snap, nil
}

// GetSession returns a snapshot of one session.
func (r *Registry) GetSession(id uint32) (SessionSnapshot, error) {
	sess := r.lookup(id)
	if sess == nil {
		return SessionSnapshot{}, ErrSessionNotFound
	}
	snap := sess.Snapshot()
	// A failed start evicts its reservation while holding the write lock;
	// taking the snapshot above waited for that, so recheck membership.
	if r.lookup(id) != sess {
		return SessionSnapshot{}, ErrSessionNotFound
	}
	return snap, nil
}

// Sessions returns snapshots of every registered session.
func (r *Registry) Sessions() []SessionSnapshot {
	r.mu.RLock()
	live := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		live = append(live, sess)
	}
	r.mu.RUnlock()

	out := make([]SessionSnapshot, 0, len(live))
	for _, sess := range live {
		out = append(out, sess.Snapshot())
	}
	return out
}

// admitProof applies the empty-proof policy, then consults the gate. Gate
// outages surface as plain errors, never as ErrInvalidProof.
func (r *Registry) admitProof(ctx context.Context, proof []byte, journal chainhash.Hash) error {
	if len(proof) == 0 {
		if r.allowEmptyProof {
			r.log.Warnf("admitting empty proof for journal %x (dev bypass)", journal[:4])
			return nil
		}
		return fmt.Errorf("%w: empty proof", ErrInvalidProof)
	}
	if r.gate == nil {
		return fmt.Errorf("no proof gate configured")
	}
	if err := r.gate.Verify(ctx, proof, journal); err != nil {
		if errors.Is(err, ErrInvalidProof) {
			return err
		}
		return fmt.Errorf("proof gate unavailable: %w", err)
	}
	return nil
}

// commitDecision runs the irreversible tail of a winner decision: hub first,
// then the store (session + merged board in one durable unit), then the
// in-memory commit. The board lock is held across the merge and the durable
// write, making the merge-insert the single cross-session atomic unit. The
// caller holds the session lock and has set snap.Winner.
func (r *Registry) commitDecision(ctx context.Context, sess *Session, snap SessionSnapshot, winner zkidentity.ShortID, metric uint64, now time.Time) error {
	if r.hub != nil {
		if err := r.hub.NotifyEnd(ctx, sess.ID, winner == sess.PlayerA); err != nil {
			return fmt.Errorf("hub end notification for session %d: %w", sess.ID, err)
		}
	}

	entry := LeaderboardEntry{
		Player:    winner.String(),
		TimeMs:    metric,
		SessionID: sess.ID,
		Timestamp: now.Unix(),
	}
	board := r.boards[sess.Mode]
	board.Lock()
	merged := board.mergedWith(entry)
	if r.store != nil {
		if err := r.store.SaveDecision(ctx, snap, sess.Mode, merged); err != nil {
			board.Unlock()
			return fmt.Errorf("persist decision for session %d: %w", sess.ID, err)
		}
	}
	board.setEntriesLocked(merged)
	board.Unlock()

	w := winner
	sess.Winner = &w
	return nil
}

type SubmitStageParams struct {
	SessionID  uint32
	Player     zkidentity.ShortID
	Stage      uint32
	TimeMs     uint64
	Commitment chainhash.Hash
	Proof      []byte
}

type StageResult struct {
	Session SessionSnapshot
	Decided bool
	Winner  string
}

// SubmitStage records a proof-gated sprint stage clear. Stages unlock
// strictly in order; clearing the last stage triggers the sprint policy and
// may decide the session in the same call.
func (r *Registry) SubmitStage(ctx context.Context, p SubmitStageParams) (StageResult, error) {
	sess, err := r.lockLive(p.SessionID)
	if err != nil {
		return StageResult{}, err
	}
	defer sess.Unlock()

	if sess.Mode != ModeSprint {
		return StageResult{}, fmt.Errorf("%w: stage submissions are sprint only", ErrWrongMode)
	}
	if p.Stage < 1 || p.Stage > r.stageCount {
		return StageResult{}, fmt.Errorf("%w: stage %d not in [1,%d]", ErrInvalidStage, p.Stage, r.stageCount)
	}
	if sess.decidedLocked() {
		return StageResult{}, ErrSessionDecided
	}
	prog, isA, err := sess.progressOfLocked(p.Player)
	if err != nil {
		return StageResult{}, err
	}
	if p.Stage != prog.StagesCleared+1 {
		return StageResult{}, fmt.Errorf("%w: %d cleared, next is stage %d", ErrStageNotUnlocked, prog.StagesCleared, prog.StagesCleared+1)
	}
	if err := r.admitProof(ctx, p.Proof, p.Commitment); err != nil {
		return StageResult{}, err
	}

	// Apply to a clone; the live progress only changes after every
	// downstream effect succeeded.
	next := prog.Clone()
	next.StageTimes = append(next.StageTimes, p.TimeMs)
	next.StagesCleared++
	if next.Finished(r.stageCount) {
		var total uint64
		for _, t := range next.StageTimes {
			total += t
		}
		next.BestTotalMs = total
	}

	a, b := sess.ProgressA.Clone(), sess.ProgressB.Clone()
	if isA {
		a = next
	} else {
		b = next
	}
	verdict := r.policies[ModeSprint].AfterSubmit(a, b, isA)

	snap := sess.snapshotLocked()
	snap.ProgressA, snap.ProgressB = a.Clone(), b.Clone()
	now := r.now()

	if verdict == WinnerNone {
		if r.store != nil {
			if err := r.store.SaveSession(ctx, snap); err != nil {
				return StageResult{}, fmt.Errorf("persist session %d: %w", sess.ID, err)
			}
		}
		*prog = next
		r.publish(Event{Type: EventStageCleared, SessionID: sess.ID, Mode: ModeSprint,
			Player: p.Player.String(), Stage: p.Stage, TimeMs: p.TimeMs, At: now.Unix()})
		r.log.Debugf("session %d: %s cleared stage %d in %dms", sess.ID, p.Player, p.Stage, p.TimeMs)
		return StageResult{Session: snap}, nil
	}

	winner, metric := sess.PlayerA, a.BestTotalMs
	if verdict == WinnerB {
		winner, metric = sess.PlayerB, b.BestTotalMs
	}
	snap.Winner = winner.String()
	if err := r.commitDecision(ctx, sess, snap, winner, metric, now); err != nil {
		return StageResult{}, err
	}
	*prog = next

	r.publish(Event{Type: EventStageCleared, SessionID: sess.ID, Mode: ModeSprint,
		Player: p.Player.String(), Stage: p.Stage, TimeMs: p.TimeMs, At: now.Unix()})
	r.publish(Event{Type: EventSessionDecided, SessionID: sess.ID, Mode: ModeSprint,
		Winner: winner.String(), TimeMs: metric, At: now.Unix()})
	r.publish(Event{Type: EventLeaderboardUpdated, SessionID: sess.ID, Mode: ModeSprint, At: now.Unix()})
	r.log.Infof("session %d decided: winner %s with total %dms", sess.ID, winner, metric)
	return StageResult{Session: snap, Decided: true, Winner: winner.String()}, nil
}

type SubmitScoreParams struct {
	SessionID  uint32
	Player     zkidentity.ShortID
	TimeMs     uint64
	Commitment chainhash.Hash
	Proof      []byte
}

type ScoreResult struct {
	Session  SessionSnapshot
	Improved bool
}

// SubmitScore records a proof-gated endurance run. The stored best is a
// monotonic max; a non-improving run changes nothing but still publishes an
// event so spectators see the attempt.
func (r *Registry) SubmitScore(ctx context.Context, p SubmitScoreParams) (ScoreResult, error) {
	sess, err := r.lockLive(p.SessionID)
	if err != nil {
		return ScoreResult{}, err
	}
	defer sess.Unlock()

	if sess.Mode != ModeEndurance {
		return ScoreResult{}, fmt.Errorf("%w: score submissions are endurance only", ErrWrongMode)
	}
	if sess.decidedLocked() {
		return ScoreResult{}, ErrSessionDecided
	}
	prog, isA, err := sess.progressOfLocked(p.Player)
	if err != nil {
		return ScoreResult{}, err
	}
	if err := r.admitProof(ctx, p.Proof, p.Commitment); err != nil {
		return ScoreResult{}, err
	}

	improved := p.TimeMs > prog.BestRunMs
	next := prog.Clone()
	if improved {
		next.BestRunMs = p.TimeMs
	}

	snap := sess.snapshotLocked()
	if isA {
		snap.ProgressA = next.Clone()
	} else {
		snap.ProgressB = next.Clone()
	}
	now := r.now()

	if improved {
		if r.store != nil {
			if err := r.store.SaveSession(ctx, snap); err != nil {
				return ScoreResult{}, fmt.Errorf("persist session %d: %w", sess.ID, err)
			}
		}
		*prog = next
	}

	r.publish(Event{Type: EventScoreSubmitted, SessionID: sess.ID, Mode: ModeEndurance,
		Player: p.Player.String(), TimeMs: p.TimeMs, Improved: improved, At: now.Unix()})
	r.log.Debugf("session %d: %s ran %dms (improved=%t)", sess.ID, p.Player, p.TimeMs, improved)
	return ScoreResult{Session: snap, Improved: improved}, nil
}

type FinalizeResult struct {
	Session SessionSnapshot
	Winner  string
}

// Finalize settles an endurance session: the higher best run wins, player A
// takes ties. Like any decision it reaches the hub and the store before the
// in-memory state flips to terminal.
func (r *Registry) Finalize(ctx context.Context, sessionID uint32) (FinalizeResult, error) {
	sess, err := r.lockLive(sessionID)
	if err != nil {
		return FinalizeResult{}, err
	}
	defer sess.Unlock()

	if sess.Mode != ModeEndurance {
		return FinalizeResult{}, fmt.Errorf("%w: only endurance sessions finalize explicitly", ErrWrongMode)
	}
	if sess.decidedLocked() {
		return FinalizeResult{}, ErrSessionDecided
	}

	verdict := r.policies[ModeEndurance].AtFinalize(sess.ProgressA, sess.ProgressB)
	winner, metric := sess.PlayerA, sess.ProgressA.BestRunMs
	if verdict == WinnerB {
		winner, metric = sess.PlayerB, sess.ProgressB.BestRunMs
	}

	snap := sess.snapshotLocked()
	snap.Winner = winner.String()
	now := r.now()
	if err := r.commitDecision(ctx, sess, snap, winner, metric, now); err != nil {
		return FinalizeResult{}, err
	}

	r.publish(Event{Type: EventSessionDecided, SessionID: sess.ID, Mode: ModeEndurance,
		Winner: winner.String(), TimeMs: metric, At: now.Unix()})
	r.publish(Event{Type: EventLeaderboardUpdated, SessionID: sess.ID, Mode: ModeEndurance, At: now.Unix()})
	r.log.Infof("session %d finalized: winner %s with best run %dms", sess.ID, winner, metric)
	return FinalizeResult{Session: snap, Winner: winner.String()}, nil
}

// Leaderboard returns the ordered board for a mode.
func (r *Registry) Leaderboard(mode Mode) ([]LeaderboardEntry, error) {
	board, ok := r.boards[mode]
	if !ok {
		return nil, ErrInvalidMode
	}
	return board.Entries(), nil
}
