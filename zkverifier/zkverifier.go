package zkverifier

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/cenkalti/backoff/v4"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/slog"
)

// Client checks zero-knowledge receipts against an external verifier
// service. It implements cubegame.ProofGate: definitive rejections wrap
// cubegame.ErrInvalidProof and are never retried, while verifier outages are
// retried with exponential backoff and surface as plain errors.
type Client struct {
	url        string
	imageID    chainhash.Hash
	maxRetries uint64
	interval   time.Duration
	httpc      *http.Client
	log        slog.Logger
}

var _ cubegame.ProofGate = (*Client)(nil)

type Config struct {
	// URL is the verifier's verify endpoint.
	URL string
	// ImageID pins the guest program every receipt must attest to.
	ImageID chainhash.Hash
	// Timeout bounds one verification request. Defaults to 10s.
	Timeout time.Duration
	// MaxRetries bounds retries after transient verifier failures.
	// Defaults to 3.
	MaxRetries uint64
	// RetryInterval is the initial backoff interval. Defaults to 250ms.
	RetryInterval time.Duration

	Log slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("verifier URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 250 * time.Millisecond
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	return &Client{
		url:        cfg.URL,
		imageID:    cfg.ImageID,
		maxRetries: cfg.MaxRetries,
		interval:   cfg.RetryInterval,
		httpc:      &http.Client{Timeout: cfg.Timeout},
		log:        cfg.Log,
	}, nil
}

type verifyRequest struct {
	Proof       []byte `json:"proof"`
	ImageID     string `json:"image_id"`
	JournalHash string `json:"journal_hash"`
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Verify posts the receipt and the expected journal hash to the verifier.
func (c *Client) Verify(ctx context.Context, proof []byte, journalHash chainhash.Hash) error {
	body, err := json.Marshal(verifyRequest{
		Proof:       proof,
		ImageID:     hex.EncodeToString(c.imageID[:]),
		JournalHash: hex.EncodeToString(journalHash[:]),
	})
	if err != nil {
		return err
	}

	op := func() error {
		return c.verifyOnce(ctx, body)
	}
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.interval),
		backoff.WithMaxInterval(5*time.Second),
	)
	notify := func(err error, wait time.Duration) {
		c.log.Warnf("proof verification attempt failed, retrying in %s: %v", wait, err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx), notify)
}

func (c *Client) verifyOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("verifier request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("verifier returned status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("verifier returned status %d", resp.StatusCode))
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return fmt.Errorf("decode verifier response: %w", err)
	}
	if !vr.Valid {
		reason := vr.Reason
		if reason == "" {
			reason = "verifier declined the receipt"
		}
		return backoff.Permanent(fmt.Errorf("%w: %s", cubegame.ErrInvalidProof, reason))
	}
	return nil
}
