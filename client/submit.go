package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	cubeathon "github.com/NikhilRaikwar/Cubeathon"
	"github.com/NikhilRaikwar/Cubeathon/api"
	"github.com/decred/dcrd/chaincfg/chainhash"
)

// StageArgs is one sprint stage clear. Commitment is the journal hash the
// proof attests to; both stay zero/empty when the coordinator admits
// unproven submissions.
type StageArgs struct {
	SessionID  uint32
	Stage      uint32
	TimeMs     uint64
	Commitment chainhash.Hash
	Proof      []byte
}

// SubmitStage reports a cleared stage as the signer's player. The consent
// signature covers the exact submission, so a relayed request cannot alter
// the stage or the time.
func (c *Client) SubmitStage(ctx context.Context, args StageArgs) (api.SubmitStageResponse, error) {
	var res api.SubmitStageResponse
	if c.signer == nil {
		return res, fmt.Errorf("stage submission requires a signer")
	}
	player := c.signer.UID()

	req := api.SubmitStageRequest{
		Player: player.String(),
		Stage:  args.Stage,
		TimeMs: args.TimeMs,
		Proof:  args.Proof,
	}
	if args.Commitment != (chainhash.Hash{}) {
		req.Commitment = cubeathon.EncodeHash(args.Commitment)
	}
	digest := cubeathon.StageDigest(args.SessionID, player, args.Stage, args.TimeMs, args.Commitment)
	sig, err := c.signer.Sign(digest)
	if err != nil {
		return res, err
	}
	req.Sig = hex.EncodeToString(sig)

	path := fmt.Sprintf("/v1/sessions/%d/stages", args.SessionID)
	if err := c.do(ctx, http.MethodPost, path, req, &res); err != nil {
		return api.SubmitStageResponse{}, fmt.Errorf("error submitting stage %d: %w", args.Stage, err)
	}
	return res, nil
}

// ScoreArgs is one endurance run.
type ScoreArgs struct {
	SessionID  uint32
	TimeMs     uint64
	Commitment chainhash.Hash
	Proof      []byte
}

// SubmitScore reports an endurance run as the signer's player.
func (c *Client) SubmitScore(ctx context.Context, args ScoreArgs) (api.SubmitScoreResponse, error) {
	var res api.SubmitScoreResponse
	if c.signer == nil {
		return res, fmt.Errorf("score submission requires a signer")
	}
	player := c.signer.UID()

	req := api.SubmitScoreRequest{
		Player: player.String(),
		TimeMs: args.TimeMs,
		Proof:  args.Proof,
	}
	if args.Commitment != (chainhash.Hash{}) {
		req.Commitment = cubeathon.EncodeHash(args.Commitment)
	}
	digest := cubeathon.ScoreDigest(args.SessionID, player, args.TimeMs, args.Commitment)
	sig, err := c.signer.Sign(digest)
	if err != nil {
		return res, err
	}
	req.Sig = hex.EncodeToString(sig)

	path := fmt.Sprintf("/v1/sessions/%d/scores", args.SessionID)
	if err := c.do(ctx, http.MethodPost, path, req, &res); err != nil {
		return api.SubmitScoreResponse{}, fmt.Errorf("error submitting score: %w", err)
	}
	return res, nil
}

// Finalize settles an endurance session. Either participant may call it;
// the signer consents as itself when present.
func (c *Client) Finalize(ctx context.Context, sessionID uint32) (api.FinalizeResponse, error) {
	var req api.FinalizeRequest
	if c.signer != nil {
		player := c.signer.UID()
		sig, err := c.signer.Sign(cubeathon.FinalizeDigest(sessionID, player))
		if err != nil {
			return api.FinalizeResponse{}, err
		}
		req.Player = player.String()
		req.Sig = hex.EncodeToString(sig)
	}

	var res api.FinalizeResponse
	path := fmt.Sprintf("/v1/sessions/%d/finalize", sessionID)
	if err := c.do(ctx, http.MethodPost, path, req, &res); err != nil {
		return api.FinalizeResponse{}, fmt.Errorf("error finalizing session %d: %w", sessionID, err)
	}
	return res, nil
}
