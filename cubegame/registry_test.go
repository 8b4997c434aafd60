package cubegame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
)

type fakeGate struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (g *fakeGate) Verify(ctx context.Context, proof []byte, journal chainhash.Hash) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail != nil {
		return g.fail
	}
	if string(proof) == "bad" {
		return fmt.Errorf("%w: seal does not match journal", ErrInvalidProof)
	}
	return nil
}

func (g *fakeGate) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type hubEnd struct {
	sessionID uint32
	aWon      bool
}

type fakeHub struct {
	mu        sync.Mutex
	starts    []uint32
	ends      []hubEnd
	failStart error
	failEnd   error
}

func (h *fakeHub) NotifyStart(ctx context.Context, snap SessionSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failStart != nil {
		return h.failStart
	}
	h.starts = append(h.starts, snap.ID)
	return nil
}

func (h *fakeHub) NotifyEnd(ctx context.Context, sessionID uint32, playerAWon bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failEnd != nil {
		return h.failEnd
	}
	h.ends = append(h.ends, hubEnd{sessionID, playerAWon})
	return nil
}

type fakeStore struct {
	mu           sync.Mutex
	sessions     map[uint32]SessionSnapshot
	boards       map[Mode][]LeaderboardEntry
	saves        int
	decisions    int
	failSave     error
	failDecision error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[uint32]SessionSnapshot),
		boards:   make(map[Mode][]LeaderboardEntry),
	}
}

func (s *fakeStore) SaveSession(ctx context.Context, snap SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.saves++
	s.sessions[snap.ID] = snap
	return nil
}

func (s *fakeStore) SaveDecision(ctx context.Context, snap SessionSnapshot, mode Mode, board []LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDecision != nil {
		return s.failDecision
	}
	s.decisions++
	s.sessions[snap.ID] = snap
	s.boards[mode] = append([]LeaderboardEntry(nil), board...)
	return nil
}

func (s *fakeStore) saved(id uint32) SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

type testEnv struct {
	r     *Registry
	gate  *fakeGate
	hub   *fakeHub
	store *fakeStore
}

func newTestEnv(t *testing.T, mut ...func(*RegistryConfig)) *testEnv {
	t.Helper()
	env := &testEnv{gate: &fakeGate{}, hub: &fakeHub{}, store: newFakeStore()}
	var tick int64
	cfg := RegistryConfig{
		Gate:  env.gate,
		Hub:   env.hub,
		Store: env.store,
		Now: func() time.Time {
			tick++
			return time.Unix(1700000000+tick, 0)
		},
	}
	for _, m := range mut {
		m(&cfg)
	}
	env.r = NewRegistry(cfg)
	return env
}

// start registers a session between testPlayer(1) and testPlayer(2).
func (e *testEnv) start(t *testing.T, id uint32, mode Mode) SessionSnapshot {
	t.Helper()
	snap, err := e.r.StartSession(context.Background(), StartParams{
		SessionID: id,
		Mode:      mode,
		PlayerA:   testPlayer(1),
		PlayerB:   testPlayer(2),
		PointsA:   100,
		PointsB:   100,
	})
	assert.NoError(t, err)
	return snap
}

func (e *testEnv) clearStage(t *testing.T, id uint32, p zkidentity.ShortID, stage uint32, timeMs uint64) StageResult {
	t.Helper()
	res, err := e.r.SubmitStage(context.Background(), SubmitStageParams{
		SessionID:  id,
		Player:     p,
		Stage:      stage,
		TimeMs:     timeMs,
		Commitment: chainhash.Hash{1},
		Proof:      []byte("ok"),
	})
	assert.NoError(t, err)
	return res
}

func (e *testEnv) score(t *testing.T, id uint32, p zkidentity.ShortID, timeMs uint64) ScoreResult {
	t.Helper()
	res, err := e.r.SubmitScore(context.Background(), SubmitScoreParams{
		SessionID:  id,
		Player:     p,
		TimeMs:     timeMs,
		Commitment: chainhash.Hash{2},
		Proof:      []byte("ok"),
	})
	assert.NoError(t, err)
	return res
}

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSprintFirstToFinishWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := testPlayer(1), testPlayer(2)
	env.start(t, 1, ModeSprint)

	env.clearStage(t, 1, alice, 1, 1000)
	env.clearStage(t, 1, bob, 1, 800)
	env.clearStage(t, 1, alice, 2, 1200)
	res := env.clearStage(t, 1, alice, 3, 900)

	assert.True(t, res.Decided)
	assert.Equal(t, alice.String(), res.Winner)
	assert.Equal(t, alice.String(), res.Session.Winner)
	assert.Equal(t, uint64(3100), res.Session.ProgressA.BestTotalMs)
	assert.Equal(t, uint32(3), res.Session.ProgressA.StagesCleared)

	env.hub.mu.Lock()
	ends := append([]hubEnd(nil), env.hub.ends...)
	env.hub.mu.Unlock()
	assert.Equal(t, []hubEnd{{1, true}}, ends)

	board, err := env.r.Leaderboard(ModeSprint)
	assert.NoError(t, err)
	if assert.Len(t, board, 1) {
		assert.Equal(t, alice.String(), board[0].Player)
		assert.Equal(t, uint64(3100), board[0].TimeMs)
		assert.Equal(t, uint32(1), board[0].SessionID)
	}

	// Terminal state: the loser's ladder is frozen.
	_, err = env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: bob, Stage: 2, TimeMs: 700, Proof: []byte("ok"),
	})
	assert.ErrorIs(t, err, ErrSessionDecided)

	assert.Equal(t, 1, env.store.decisions)
	saved := env.store.saved(1)
	assert.Equal(t, alice.String(), saved.Winner)
	assert.Equal(t, uint64(3100), saved.ProgressA.BestTotalMs)
}

func TestStageOrderEnforced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testPlayer(1)
	env.start(t, 1, ModeSprint)

	submit := func(stage uint32) error {
		_, err := env.r.SubmitStage(ctx, SubmitStageParams{
			SessionID: 1, Player: alice, Stage: stage, TimeMs: 500, Proof: []byte("ok"),
		})
		return err
	}

	assert.ErrorIs(t, submit(2), ErrStageNotUnlocked)
	assert.ErrorIs(t, submit(0), ErrInvalidStage)
	assert.ErrorIs(t, submit(4), ErrInvalidStage)

	env.clearStage(t, 1, alice, 1, 500)
	assert.ErrorIs(t, submit(1), ErrStageNotUnlocked) // no re-clears
	assert.ErrorIs(t, submit(3), ErrStageNotUnlocked)
	assert.NoError(t, submit(2))
}

func TestWrongModeOperations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testPlayer(1)
	env.start(t, 1, ModeSprint)
	env.start(t, 2, ModeEndurance)

	_, err := env.r.SubmitScore(ctx, SubmitScoreParams{SessionID: 1, Player: alice, TimeMs: 100, Proof: []byte("ok")})
	assert.ErrorIs(t, err, ErrWrongMode)

	_, err = env.r.Finalize(ctx, 1)
	assert.ErrorIs(t, err, ErrWrongMode)

	_, err = env.r.SubmitStage(ctx, SubmitStageParams{SessionID: 2, Player: alice, Stage: 1, TimeMs: 100, Proof: []byte("ok")})
	assert.ErrorIs(t, err, ErrWrongMode)

	// Mode is checked before the stage range.
	_, err = env.r.SubmitStage(ctx, SubmitStageParams{SessionID: 2, Player: alice, Stage: 0, TimeMs: 100, Proof: []byte("ok")})
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestPreconditionPrecedence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, carol := testPlayer(1), testPlayer(3)

	// Unknown session outranks everything else.
	_, err := env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 99, Player: carol, Stage: 0, Proof: []byte("bad"),
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	env.start(t, 1, ModeSprint)

	// Stage range outranks participant and proof checks.
	_, err = env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: carol, Stage: 0, Proof: []byte("bad"),
	})
	assert.ErrorIs(t, err, ErrInvalidStage)

	// Participant outranks unlock and proof checks.
	_, err = env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: carol, Stage: 2, Proof: []byte("bad"),
	})
	assert.ErrorIs(t, err, ErrNotParticipant)

	// Unlock outranks the proof check: the gate never runs.
	before := env.gate.callCount()
	_, err = env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: alice, Stage: 3, Proof: []byte("bad"),
	})
	assert.ErrorIs(t, err, ErrStageNotUnlocked)
	assert.Equal(t, before, env.gate.callCount())

	// Decide the session, then: decided outranks participant.
	env.clearStage(t, 1, alice, 1, 100)
	env.clearStage(t, 1, alice, 2, 100)
	env.clearStage(t, 1, alice, 3, 100)
	_, err = env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: carol, Stage: 1, Proof: []byte("bad"),
	})
	assert.ErrorIs(t, err, ErrSessionDecided)
}

func TestEnduranceFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := testPlayer(1), testPlayer(2)
	env.start(t, 5, ModeEndurance)

	res := env.score(t, 5, alice, 700)
	assert.True(t, res.Improved)
	assert.Equal(t, uint64(700), res.Session.ProgressA.BestRunMs)

	res = env.score(t, 5, bob, 650)
	assert.True(t, res.Improved)

	// A lower run does not regress the stored best.
	res = env.score(t, 5, bob, 600)
	assert.False(t, res.Improved)
	assert.Equal(t, uint64(650), res.Session.ProgressB.BestRunMs)

	// Start plus the two improving runs; the flat run saved nothing.
	assert.Equal(t, 3, env.store.saves)

	fin, err := env.r.Finalize(ctx, 5)
	assert.NoError(t, err)
	assert.Equal(t, alice.String(), fin.Winner)
	assert.Equal(t, alice.String(), fin.Session.Winner)

	env.hub.mu.Lock()
	ends := append([]hubEnd(nil), env.hub.ends...)
	env.hub.mu.Unlock()
	assert.Equal(t, []hubEnd{{5, true}}, ends)

	board, err := env.r.Leaderboard(ModeEndurance)
	assert.NoError(t, err)
	if assert.Len(t, board, 1) {
		assert.Equal(t, alice.String(), board[0].Player)
		assert.Equal(t, uint64(700), board[0].TimeMs)
	}

	_, err = env.r.SubmitScore(ctx, SubmitScoreParams{SessionID: 5, Player: bob, TimeMs: 9000, Proof: []byte("ok")})
	assert.ErrorIs(t, err, ErrSessionDecided)
	_, err = env.r.Finalize(ctx, 5)
	assert.ErrorIs(t, err, ErrSessionDecided)
}

func TestEnduranceTieGoesToPlayerA(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := testPlayer(1), testPlayer(2)

	env.start(t, 1, ModeEndurance)
	env.score(t, 1, alice, 500)
	env.score(t, 1, bob, 500)
	fin, err := env.r.Finalize(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, alice.String(), fin.Winner)

	// No submissions at all still decides, in favor of player A.
	env.start(t, 2, ModeEndurance)
	fin, err = env.r.Finalize(context.Background(), 2)
	assert.NoError(t, err)
	assert.Equal(t, alice.String(), fin.Winner)
	assert.Equal(t, uint64(0), fin.Session.ProgressA.BestRunMs)
}

func TestEmptyProofRejectedByDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testPlayer(1)
	env.start(t, 1, ModeSprint)

	_, err := env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: alice, Stage: 1, TimeMs: 100,
	})
	assert.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, 0, env.gate.callCount())
}

func TestEmptyProofBypass(t *testing.T) {
	env := newTestEnv(t, func(cfg *RegistryConfig) { cfg.AllowEmptyProof = true })
	ctx := context.Background()
	alice := testPlayer(1)
	env.start(t, 1, ModeSprint)

	// Empty proofs skip the gate entirely.
	res, err := env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: alice, Stage: 1, TimeMs: 100,
	})
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), res.Session.ProgressA.StagesCleared)
	assert.Equal(t, 0, env.gate.callCount())

	// Non-empty proofs still go through the gate, bypass or not.
	_, err = env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: alice, Stage: 2, TimeMs: 100, Proof: []byte("bad"),
	})
	assert.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, 1, env.gate.callCount())
}

func TestProofRejectionLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testPlayer(1)
	env.start(t, 1, ModeSprint)

	_, err := env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: alice, Stage: 1, TimeMs: 100, Proof: []byte("bad"),
	})
	assert.ErrorIs(t, err, ErrInvalidProof)

	snap, err := env.r.GetSession(1)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0), snap.ProgressA.StagesCleared)
	assert.Equal(t, 1, env.store.saves) // just the start
}

func TestGateOutageIsNotARejection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testPlayer(1)
	env.start(t, 1, ModeSprint)

	env.gate.fail = errors.New("verifier unreachable")
	_, err := env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: alice, Stage: 1, TimeMs: 100, Proof: []byte("ok"),
	})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidProof))

	// The submission was not consumed: the same stage clears once the gate
	// is back.
	env.gate.mu.Lock()
	env.gate.fail = nil
	env.gate.mu.Unlock()
	env.clearStage(t, 1, alice, 1, 100)
}

func TestHubStartFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.hub.failStart = errors.New("hub down")

	_, err := env.r.StartSession(ctx, StartParams{
		SessionID: 1, Mode: ModeSprint, PlayerA: testPlayer(1), PlayerB: testPlayer(2),
	})
	assert.Error(t, err)

	_, err = env.r.GetSession(1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, env.store.saves)

	// The id is free again once the hub recovers.
	env.hub.mu.Lock()
	env.hub.failStart = nil
	env.hub.mu.Unlock()
	env.start(t, 1, ModeSprint)
}

func TestStoreStartFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.failSave = errors.New("disk full")

	_, err := env.r.StartSession(ctx, StartParams{
		SessionID: 1, Mode: ModeSprint, PlayerA: testPlayer(1), PlayerB: testPlayer(2),
	})
	assert.Error(t, err)
	_, err = env.r.GetSession(1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDecisionHubFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testPlayer(1)
	env.start(t, 1, ModeSprint)
	env.clearStage(t, 1, alice, 1, 1000)
	env.clearStage(t, 1, alice, 2, 1200)

	env.hub.failEnd = errors.New("hub down")
	_, err := env.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: alice, Stage: 3, TimeMs: 900, Proof: []byte("ok"),
	})
	assert.Error(t, err)

	// The winning clear did not apply: no winner, stage 3 still open,
	// nothing on the board, nothing durable.
	snap, err := env.r.GetSession(1)
	assert.NoError(t, err)
	assert.Empty(t, snap.Winner)
	assert.Equal(t, uint32(2), snap.ProgressA.StagesCleared)
	board, _ := env.r.Leaderboard(ModeSprint)
	assert.Empty(t, board)
	assert.Equal(t, 0, env.store.decisions)

	// Retrying the same submission decides once the hub is back.
	env.hub.mu.Lock()
	env.hub.failEnd = nil
	env.hub.mu.Unlock()
	res := env.clearStage(t, 1, alice, 3, 900)
	assert.True(t, res.Decided)
	assert.Equal(t, uint64(3100), res.Session.ProgressA.BestTotalMs)
}

func TestDecisionStoreFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := testPlayer(1), testPlayer(2)
	env.start(t, 1, ModeEndurance)
	env.score(t, 1, alice, 700)
	env.score(t, 1, bob, 650)

	env.store.mu.Lock()
	env.store.failDecision = errors.New("disk full")
	env.store.mu.Unlock()
	_, err := env.r.Finalize(ctx, 1)
	assert.Error(t, err)

	snap, err := env.r.GetSession(1)
	assert.NoError(t, err)
	assert.Empty(t, snap.Winner)
	board, _ := env.r.Leaderboard(ModeEndurance)
	assert.Empty(t, board)

	env.store.mu.Lock()
	env.store.failDecision = nil
	env.store.mu.Unlock()
	fin, err := env.r.Finalize(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, alice.String(), fin.Winner)
	board, _ = env.r.Leaderboard(ModeEndurance)
	assert.Len(t, board, 1)
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.start(t, 1, ModeSprint)
	_, err := env.r.StartSession(ctx, StartParams{
		SessionID: 1, Mode: ModeEndurance, PlayerA: testPlayer(1), PlayerB: testPlayer(2),
	})
	assert.ErrorIs(t, err, ErrDuplicateSession)

	_, err = env.r.StartSession(ctx, StartParams{
		SessionID: 2, Mode: ModeSprint, PlayerA: testPlayer(1), PlayerB: testPlayer(1),
	})
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = env.r.StartSession(ctx, StartParams{
		SessionID: 2, Mode: Mode("chess"), PlayerA: testPlayer(1), PlayerB: testPlayer(2),
	})
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = env.r.Leaderboard(Mode("chess"))
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestSessionsListing(t *testing.T) {
	env := newTestEnv(t)
	env.start(t, 1, ModeSprint)
	env.start(t, 2, ModeEndurance)

	snaps := env.r.Sessions()
	assert.Len(t, snaps, 2)
	modes := make(map[uint32]Mode)
	for _, snap := range snaps {
		modes[snap.ID] = snap.Mode
	}
	assert.Equal(t, map[uint32]Mode{1: ModeSprint, 2: ModeEndurance}, modes)

	_, err := env.r.GetSession(99)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEventsPublished(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := testPlayer(1), testPlayer(2)
	ch, unsub := env.r.Subscribe()
	defer unsub()

	env.start(t, 1, ModeSprint)
	env.clearStage(t, 1, alice, 1, 1000)
	evs := drainEvents(ch)
	if assert.Len(t, evs, 2) {
		assert.Equal(t, EventSessionStarted, evs[0].Type)
		assert.Equal(t, EventStageCleared, evs[1].Type)
		assert.Equal(t, alice.String(), evs[1].Player)
		assert.Equal(t, uint32(1), evs[1].Stage)
		assert.Equal(t, uint64(1000), evs[1].TimeMs)
	}

	env.clearStage(t, 1, alice, 2, 1200)
	env.clearStage(t, 1, alice, 3, 900)
	evs = drainEvents(ch)
	if assert.Len(t, evs, 4) {
		assert.Equal(t, EventStageCleared, evs[0].Type)
		assert.Equal(t, EventStageCleared, evs[1].Type)
		assert.Equal(t, EventSessionDecided, evs[2].Type)
		assert.Equal(t, alice.String(), evs[2].Winner)
		assert.Equal(t, uint64(3100), evs[2].TimeMs)
		assert.Equal(t, EventLeaderboardUpdated, evs[3].Type)
	}

	// A flat endurance run is still reported, flagged as not improving.
	env.start(t, 2, ModeEndurance)
	env.score(t, 2, bob, 600)
	env.score(t, 2, bob, 500)
	evs = drainEvents(ch)
	if assert.Len(t, evs, 3) {
		assert.Equal(t, EventScoreSubmitted, evs[1].Type)
		assert.True(t, evs[1].Improved)
		assert.Equal(t, EventScoreSubmitted, evs[2].Type)
		assert.False(t, evs[2].Improved)
		assert.Equal(t, uint64(500), evs[2].TimeMs)
	}

	// Nothing arrives after unsubscribing.
	unsub()
	env.score(t, 2, bob, 800)
	assert.Empty(t, drainEvents(ch))
}

func TestRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := testPlayer(1), testPlayer(2)

	// Decided sprint, in-flight sprint, in-flight endurance.
	env.start(t, 1, ModeSprint)
	env.clearStage(t, 1, alice, 1, 1000)
	env.clearStage(t, 1, alice, 2, 1200)
	env.clearStage(t, 1, alice, 3, 900)
	env.start(t, 2, ModeSprint)
	env.clearStage(t, 2, bob, 1, 640)
	env.start(t, 3, ModeEndurance)
	env.score(t, 3, alice, 700)

	env.store.mu.Lock()
	snaps := make([]SessionSnapshot, 0, len(env.store.sessions))
	for _, snap := range env.store.sessions {
		snaps = append(snaps, snap)
	}
	boards := make(map[Mode][]LeaderboardEntry, len(env.store.boards))
	for mode, entries := range env.store.boards {
		boards[mode] = append([]LeaderboardEntry(nil), entries...)
	}
	env.store.mu.Unlock()

	fresh := newTestEnv(t)
	assert.NoError(t, fresh.r.Restore(snaps, boards))

	// The decided session stays terminal.
	snap, err := fresh.r.GetSession(1)
	assert.NoError(t, err)
	assert.Equal(t, alice.String(), snap.Winner)
	_, err = fresh.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 1, Player: bob, Stage: 1, TimeMs: 100, Proof: []byte("ok"),
	})
	assert.ErrorIs(t, err, ErrSessionDecided)

	// Unlock state survives: bob resumes at stage 2.
	_, err = fresh.r.SubmitStage(ctx, SubmitStageParams{
		SessionID: 2, Player: bob, Stage: 1, TimeMs: 100, Proof: []byte("ok"),
	})
	assert.ErrorIs(t, err, ErrStageNotUnlocked)
	fresh.clearStage(t, 2, bob, 2, 700)

	// The endurance best survives.
	res := fresh.score(t, 3, alice, 600)
	assert.False(t, res.Improved)

	board, err := fresh.r.Leaderboard(ModeSprint)
	assert.NoError(t, err)
	if assert.Len(t, board, 1) {
		assert.Equal(t, uint64(3100), board[0].TimeMs)
	}

	// Corrupt input is refused.
	bad := snaps[0]
	bad.ID = 99
	bad.Mode = "chess"
	assert.Error(t, newTestEnv(t).r.Restore([]SessionSnapshot{bad}, nil))
	assert.Error(t, newTestEnv(t).r.Restore(nil, map[Mode][]LeaderboardEntry{"chess": nil}))
}
