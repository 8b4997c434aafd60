package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	cubeathon "github.com/NikhilRaikwar/Cubeathon"
	"github.com/NikhilRaikwar/Cubeathon/client"
	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/dcrd/chaincfg/chainhash"
)

// sessionShape holds the flags shared by consent and start: the full shape
// of the session both players sign. An omitted player defaults to the local
// signer, so each side only has to name its opponent.
type sessionShape struct {
	sessionID uint
	mode      string
	playerA   string
	playerB   string
	pointsA   int64
	pointsB   int64
}

func (sh *sessionShape) register(fs *flag.FlagSet) {
	fs.UintVar(&sh.sessionID, "session", 0, "session id (externally allocated)")
	fs.StringVar(&sh.mode, "mode", "sprint", "session mode (sprint or endurance)")
	fs.StringVar(&sh.playerA, "playera", "", "player A uid (default: this client)")
	fs.StringVar(&sh.playerB, "playerb", "", "player B uid (default: this client)")
	fs.Int64Var(&sh.pointsA, "pointsa", 0, "player A stake weight")
	fs.Int64Var(&sh.pointsB, "pointsb", 0, "player B stake weight")
}

func (sh *sessionShape) resolve(self zkidentity.ShortID) (mode cubegame.Mode, a, b zkidentity.ShortID, err error) {
	mode, err = cubegame.ParseMode(sh.mode)
	if err != nil {
		return "", a, b, fmt.Errorf("mode %q: %w", sh.mode, err)
	}
	if sh.playerA == "" && sh.playerB == "" {
		return "", a, b, fmt.Errorf("name the opponent with -playera or -playerb")
	}
	a, b = self, self
	if sh.playerA != "" {
		if err := a.FromString(sh.playerA); err != nil {
			return "", a, b, fmt.Errorf("playera: %w", err)
		}
	}
	if sh.playerB != "" {
		if err := b.FromString(sh.playerB); err != nil {
			return "", a, b, fmt.Errorf("playerb: %w", err)
		}
	}
	return mode, a, b, nil
}

func cmdConsent(c *client.Client, args []string) error {
	fs := flag.NewFlagSet("consent", flag.ContinueOnError)
	var sh sessionShape
	sh.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, a, b, err := sh.resolve(c.Signer().UID())
	if err != nil {
		return err
	}

	pub, sig, err := c.Signer().ConsentToStart(uint32(sh.sessionID), string(mode), a, b, sh.pointsA, sh.pointsB)
	if err != nil {
		return err
	}
	fmt.Printf("consenting to session %d (%s): %s vs %s, stakes %d/%d\n",
		sh.sessionID, mode, a, b, sh.pointsA, sh.pointsB)
	fmt.Printf("pubkey:    %s\n", pub)
	fmt.Printf("signature: %s\n", sig)
	fmt.Println("hand both values to the player posting the start request")
	return nil
}

func cmdStart(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	var sh sessionShape
	var oppPub, oppSig string
	sh.register(fs)
	fs.StringVar(&oppPub, "opponentpub", "", "opponent's consent pubkey (from their consent run)")
	fs.StringVar(&oppSig, "opponentsig", "", "opponent's consent signature")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, a, b, err := sh.resolve(c.Signer().UID())
	if err != nil {
		return err
	}

	snap, err := c.StartSession(ctx, client.StartArgs{
		SessionID:      uint32(sh.sessionID),
		Mode:           mode,
		PlayerA:        a,
		PlayerB:        b,
		PointsA:        sh.pointsA,
		PointsB:        sh.pointsB,
		OpponentPubKey: oppPub,
		OpponentSig:    oppSig,
	})
	if err != nil {
		return err
	}
	printSession(snap)
	return nil
}

// submissionFlags carry the proof material every gated submission needs. The
// commitment is either pasted whole or recomputed from the prover's nonce and
// the submission shape.
type submissionFlags struct {
	commitment string
	nonce      string
	proof      string
	proofFile  string
}

func (sf *submissionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&sf.commitment, "commitment", "", "journal hash the proof attests to (64 hex chars)")
	fs.StringVar(&sf.nonce, "nonce", "", "journal nonce (16 hex chars); derives the commitment from the submission itself")
	fs.StringVar(&sf.proof, "proof", "", "proof bytes as hex")
	fs.StringVar(&sf.proofFile, "prooffile", "", "file holding the raw proof bytes")
}

// resolve assembles the (commitment, proof) pair for one submission.
// Endurance submissions pass stage 0, matching the journal layout.
func (sf *submissionFlags) resolve(sessionID uint32, player zkidentity.ShortID, stage uint32, timeMs uint64) (chainhash.Hash, []byte, error) {
	var commitment chainhash.Hash
	switch {
	case sf.commitment != "" && sf.nonce != "":
		return commitment, nil, fmt.Errorf("-commitment and -nonce are mutually exclusive")
	case sf.commitment != "":
		var err error
		commitment, err = cubeathon.DecodeHash(sf.commitment)
		if err != nil {
			return commitment, nil, fmt.Errorf("commitment: %w", err)
		}
	case sf.nonce != "":
		nonce, err := parseNonce(sf.nonce)
		if err != nil {
			return commitment, nil, err
		}
		commitment = cubeathon.JournalHash(sessionID, player, stage, timeMs, nonce)
	}
	if sf.proof != "" && sf.proofFile != "" {
		return commitment, nil, fmt.Errorf("-proof and -prooffile are mutually exclusive")
	}
	var proof []byte
	switch {
	case sf.proof != "":
		var err error
		proof, err = hex.DecodeString(sf.proof)
		if err != nil {
			return commitment, nil, fmt.Errorf("proof is not hex: %w", err)
		}
	case sf.proofFile != "":
		var err error
		proof, err = os.ReadFile(sf.proofFile)
		if err != nil {
			return commitment, nil, err
		}
	}
	if len(proof) > 0 && sf.commitment == "" && sf.nonce == "" {
		return commitment, nil, fmt.Errorf("a proof needs the journal commitment it attests to (-commitment or -nonce)")
	}
	return commitment, proof, nil
}

func parseNonce(s string) ([cubeathon.NonceSize]byte, error) {
	var nonce [cubeathon.NonceSize]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return nonce, fmt.Errorf("nonce is not hex: %w", err)
	}
	if len(b) != cubeathon.NonceSize {
		return nonce, fmt.Errorf("nonce must be %d bytes, got %d", cubeathon.NonceSize, len(b))
	}
	copy(nonce[:], b)
	return nonce, nil
}

// cmdCommit prints the journal hash a prover run must commit to, drawing a
// fresh nonce unless one is given. The nonce goes into the prover's input;
// the same nonce (or the printed commitment) then accompanies the submission.
func cmdCommit(c *client.Client, args []string) error {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	var sessionID, stage uint
	var timeMs uint64
	var nonceHex string
	fs.UintVar(&sessionID, "session", 0, "session id")
	fs.UintVar(&stage, "stage", 0, "stage just cleared (omit or 0 for endurance runs)")
	fs.Uint64Var(&timeMs, "time", 0, "claimed time in milliseconds")
	fs.StringVar(&nonceHex, "nonce", "", "journal nonce (16 hex chars, default random)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var nonce [cubeathon.NonceSize]byte
	var err error
	if nonceHex != "" {
		nonce, err = parseNonce(nonceHex)
	} else {
		nonce, err = cubeathon.NewNonce()
	}
	if err != nil {
		return err
	}

	h := cubeathon.JournalHash(uint32(sessionID), c.Signer().UID(), uint32(stage), timeMs, nonce)
	fmt.Printf("player:     %s\n", c.Signer().UID())
	fmt.Printf("nonce:      %s\n", hex.EncodeToString(nonce[:]))
	fmt.Printf("commitment: %s\n", cubeathon.EncodeHash(h))
	return nil
}

func cmdStage(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("stage", flag.ContinueOnError)
	var sessionID, stage uint
	var timeMs uint64
	var sf submissionFlags
	fs.UintVar(&sessionID, "session", 0, "session id")
	fs.UintVar(&stage, "stage", 0, "stage just cleared (1..N)")
	fs.Uint64Var(&timeMs, "time", 0, "stage clear time in milliseconds")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	commitment, proof, err := sf.resolve(uint32(sessionID), c.Signer().UID(), uint32(stage), timeMs)
	if err != nil {
		return err
	}

	res, err := c.SubmitStage(ctx, client.StageArgs{
		SessionID:  uint32(sessionID),
		Stage:      uint32(stage),
		TimeMs:     timeMs,
		Commitment: commitment,
		Proof:      proof,
	})
	if err != nil {
		return err
	}
	if res.Decided {
		fmt.Printf("session decided: winner %s\n", res.Winner)
	}
	printSession(res.Session)
	return nil
}

func cmdScore(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	var sessionID uint
	var timeMs uint64
	var sf submissionFlags
	fs.UintVar(&sessionID, "session", 0, "session id")
	fs.Uint64Var(&timeMs, "time", 0, "run survival time in milliseconds")
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	commitment, proof, err := sf.resolve(uint32(sessionID), c.Signer().UID(), 0, timeMs)
	if err != nil {
		return err
	}

	res, err := c.SubmitScore(ctx, client.ScoreArgs{
		SessionID:  uint32(sessionID),
		TimeMs:     timeMs,
		Commitment: commitment,
		Proof:      proof,
	})
	if err != nil {
		return err
	}
	if res.Improved {
		fmt.Println("new personal best")
	} else {
		fmt.Println("run recorded, best unchanged")
	}
	printSession(res.Session)
	return nil
}

func cmdFinalize(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("finalize", flag.ContinueOnError)
	var sessionID uint
	fs.UintVar(&sessionID, "session", 0, "session id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := c.Finalize(ctx, uint32(sessionID))
	if err != nil {
		return err
	}
	fmt.Printf("session decided: winner %s\n", res.Winner)
	printSession(res.Session)
	return nil
}

func cmdSession(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	var sessionID uint
	fs.UintVar(&sessionID, "session", 0, "session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	snap, err := c.Session(ctx, uint32(sessionID))
	if err != nil {
		return err
	}
	printSession(snap)
	return nil
}

func cmdSessions(ctx context.Context, c *client.Client) error {
	snaps, err := c.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, snap := range snaps {
		printSession(snap)
		fmt.Println()
	}
	return nil
}

func cmdBoard(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	var modeStr string
	fs.StringVar(&modeStr, "mode", "sprint", "leaderboard mode (sprint or endurance)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, err := cubegame.ParseMode(modeStr)
	if err != nil {
		return fmt.Errorf("mode %q: %w", modeStr, err)
	}
	entries, err := c.Leaderboard(ctx, mode)
	if err != nil {
		return err
	}
	fmt.Print(renderBoard(mode, entries, 0))
	return nil
}

func printSession(snap cubegame.SessionSnapshot) {
	started := time.Unix(snap.StartedAt, 0).Format("2006-01-02 15:04:05")
	fmt.Printf("session %d [%s] started %s\n", snap.ID, snap.Mode, started)
	printPlayer("A", snap.PlayerA, snap.PointsA, snap.Mode, snap.ProgressA)
	printPlayer("B", snap.PlayerB, snap.PointsB, snap.Mode, snap.ProgressB)
	if snap.Winner != "" {
		fmt.Printf("  winner: %s\n", snap.Winner)
	}
}

func printPlayer(side, uid string, points int64, mode cubegame.Mode, prog cubegame.PlayerProgress) {
	fmt.Printf("  %s %s points=%d", side, uid, points)
	if mode == cubegame.ModeSprint {
		fmt.Printf(" cleared=%d", prog.StagesCleared)
		if len(prog.StageTimes) > 0 {
			parts := make([]string, len(prog.StageTimes))
			for i, t := range prog.StageTimes {
				parts[i] = fmt.Sprintf("%dms", t)
			}
			fmt.Printf(" times=%s", strings.Join(parts, ","))
		}
		if prog.BestTotalMs > 0 {
			fmt.Printf(" total=%dms", prog.BestTotalMs)
		}
	} else {
		fmt.Printf(" best=%dms", prog.BestRunMs)
	}
	fmt.Println()
}

// renderBoard formats a leaderboard; limit 0 renders every entry. Shared
// with the watch view.
func renderBoard(mode cubegame.Mode, entries []cubegame.LeaderboardEntry, limit int) string {
	var b strings.Builder
	direction := "lower total wins"
	if mode == cubegame.ModeEndurance {
		direction = "higher run wins"
	}
	fmt.Fprintf(&b, "%s leaderboard (%s)\n", mode, direction)
	if len(entries) == 0 {
		b.WriteString("  no entries yet\n")
		return b.String()
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i, e := range entries {
		when := time.Unix(e.Timestamp, 0).Format("2006-01-02 15:04")
		fmt.Fprintf(&b, "  %2d. %8dms  %s  session %d  %s\n",
			i+1, e.TimeMs, shortUID(e.Player), e.SessionID, when)
	}
	return b.String()
}

// shortUID abbreviates a 64-char uid for display.
func shortUID(uid string) string {
	if len(uid) <= 12 {
		return uid
	}
	return uid[:12] + "…"
}
