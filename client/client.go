package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cubeathon "github.com/NikhilRaikwar/Cubeathon"
	"github.com/NikhilRaikwar/Cubeathon/api"
	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/slog"
)

// ErrUnauthorized is returned when the coordinator refuses a consent
// signature.
var ErrUnauthorized = errors.New("unauthorized")

// Client talks to a coordinator over its HTTP surface. All methods are safe
// for concurrent use.
type Client struct {
	url    string
	hc     *http.Client
	signer *Signer
	log    slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("coordinator URL is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		url:    strings.TrimRight(cfg.URL, "/"),
		hc:     hc,
		signer: cfg.Signer,
		log:    cfg.Log,
	}, nil
}

// Signer returns the identity this client submits as, or nil for a
// read-only client.
func (c *Client) Signer() *Signer { return c.signer }

// APIError is a non-2xx response from the coordinator. Unwrap maps the wire
// code back to the matching sentinel, so errors.Is works across the HTTP
// boundary.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case api.CodeSessionNotFound:
		return cubegame.ErrSessionNotFound
	case api.CodeDuplicateSession:
		return cubegame.ErrDuplicateSession
	case api.CodeSessionDecided:
		return cubegame.ErrSessionDecided
	case api.CodeStageNotUnlocked:
		return cubegame.ErrStageNotUnlocked
	case api.CodeNotParticipant:
		return cubegame.ErrNotParticipant
	case api.CodeInvalidProof:
		return cubegame.ErrInvalidProof
	case api.CodeInvalidStage:
		return cubegame.ErrInvalidStage
	case api.CodeInvalidParticipants:
		return cubegame.ErrInvalidParticipants
	case api.CodeWrongMode:
		return cubegame.ErrWrongMode
	case api.CodeInvalidMode:
		return cubegame.ErrInvalidMode
	case api.CodeUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("error reaching coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb api.ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil {
			apiErr.Code = api.CodeInternal
			apiErr.Message = fmt.Sprintf("coordinator returned status %d", resp.StatusCode)
			return apiErr
		}
		apiErr.Code = eb.Error
		apiErr.Message = eb.Message
		return apiErr
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// StartArgs describes the session to open. When the client has a signer for
// one of the participants, its consent is attached automatically; the
// opponent's pubkey and signature are produced on their machine and shipped
// out of band.
type StartArgs struct {
	SessionID uint32
	Mode      cubegame.Mode
	PlayerA   zkidentity.ShortID
	PlayerB   zkidentity.ShortID
	PointsA   int64
	PointsB   int64

	OpponentPubKey string
	OpponentSig    string
}

func (c *Client) StartSession(ctx context.Context, args StartArgs) (cubegame.SessionSnapshot, error) {
	req := api.StartSessionRequest{
		SessionID: args.SessionID,
		Mode:      string(args.Mode),
		PlayerA:   args.PlayerA.String(),
		PlayerB:   args.PlayerB.String(),
		PointsA:   args.PointsA,
		PointsB:   args.PointsB,
	}
	if c.signer != nil {
		digest := cubeathon.StartDigest(args.SessionID, string(args.Mode),
			args.PlayerA, args.PlayerB, args.PointsA, args.PointsB)
		sig, err := c.signer.Sign(digest)
		if err != nil {
			return cubegame.SessionSnapshot{}, err
		}
		switch c.signer.UID() {
		case args.PlayerA:
			req.PubKeyA, req.SigA = c.signer.PubKeyHex(), hex.EncodeToString(sig)
			req.PubKeyB, req.SigB = args.OpponentPubKey, args.OpponentSig
		case args.PlayerB:
			req.PubKeyB, req.SigB = c.signer.PubKeyHex(), hex.EncodeToString(sig)
			req.PubKeyA, req.SigA = args.OpponentPubKey, args.OpponentSig
		default:
			return cubegame.SessionSnapshot{}, fmt.Errorf("signer %s is not a participant of the session", c.signer.UID())
		}
	}

	var snap cubegame.SessionSnapshot
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", req, &snap); err != nil {
		return cubegame.SessionSnapshot{}, fmt.Errorf("error starting session: %w", err)
	}
	return snap, nil
}

func (c *Client) Session(ctx context.Context, id uint32) (cubegame.SessionSnapshot, error) {
	var snap cubegame.SessionSnapshot
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/sessions/%d", id), nil, &snap); err != nil {
		return cubegame.SessionSnapshot{}, fmt.Errorf("error fetching session %d: %w", id, err)
	}
	return snap, nil
}

func (c *Client) Sessions(ctx context.Context) ([]cubegame.SessionSnapshot, error) {
	var res api.SessionsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &res); err != nil {
		return nil, fmt.Errorf("error listing sessions: %w", err)
	}
	return res.Sessions, nil
}

func (c *Client) Leaderboard(ctx context.Context, mode cubegame.Mode) ([]cubegame.LeaderboardEntry, error) {
	var res api.LeaderboardResponse
	if err := c.do(ctx, http.MethodGet, "/v1/leaderboard?mode="+string(mode), nil, &res); err != nil {
		return nil, fmt.Errorf("error fetching %s leaderboard: %w", mode, err)
	}
	return res.Entries, nil
}
