package gamehub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/cenkalti/backoff/v4"
	"github.com/decred/slog"
)

// Client reports session starts and outcomes to an external hub service
// over HTTP. It implements cubegame.HubNotifier; the registry calls it
// before committing a start or a decision, so a hub refusal aborts the
// operation cleanly. Transient hub failures are retried with exponential
// backoff; an explicit refusal is surfaced at once.
type Client struct {
	startURL   string
	endURL     string
	maxRetries uint64
	interval   time.Duration
	httpc      *http.Client
	log        slog.Logger
}

var _ cubegame.HubNotifier = (*Client)(nil)

type Config struct {
	// URL is the hub base URL; /start and /end are appended.
	URL string
	// Timeout bounds one notification request. Defaults to 10s.
	Timeout time.Duration
	// MaxRetries bounds retries after transient hub failures. Defaults to 3.
	MaxRetries uint64
	// RetryInterval is the initial backoff interval. Defaults to 250ms.
	RetryInterval time.Duration

	Log slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("hub URL is required")
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
	base := strings.TrimRight(cfg.URL, "/")
	return &Client{
		startURL:   base + "/start",
		endURL:     base + "/end",
		maxRetries: cfg.MaxRetries,
		interval:   cfg.RetryInterval,
		httpc:      &http.Client{Timeout: cfg.Timeout},
		log:        cfg.Log,
	}, nil
}

type startNotice struct {
	SessionID uint32        `json:"session_id"`
	Mode      cubegame.Mode `json:"mode"`
	PlayerA   string        `json:"player_a"`
	PlayerB   string        `json:"player_b"`
	PointsA   int64         `json:"points_a"`
	PointsB   int64         `json:"points_b"`
	StartedAt int64         `json:"started_at"`
}

type endNotice struct {
	SessionID  uint32 `json:"session_id"`
	PlayerAWon bool   `json:"player_a_won"`
}

func (c *Client) NotifyStart(ctx context.Context, snap cubegame.SessionSnapshot) error {
	c.log.Debugf("notifying hub of session %d start", snap.ID)
	return c.post(ctx, c.startURL, startNotice{
		SessionID: snap.ID,
		Mode:      snap.Mode,
		PlayerA:   snap.PlayerA,
		PlayerB:   snap.PlayerB,
		PointsA:   snap.PointsA,
		PointsB:   snap.PointsB,
		StartedAt: snap.StartedAt,
	})
}

func (c *Client) NotifyEnd(ctx context.Context, sessionID uint32, playerAWon bool) error {
	c.log.Debugf("notifying hub of session %d end (player_a_won=%t)", sessionID, playerAWon)
	return c.post(ctx, c.endURL, endNotice{SessionID: sessionID, PlayerAWon: playerAWon})
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	op := func() error {
		return c.postOnce(ctx, url, body)
	}
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.interval),
		backoff.WithMaxInterval(5*time.Second),
	)
	notify := func(err error, wait time.Duration) {
		c.log.Warnf("hub notification failed, retrying in %s: %v", wait, err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx), notify)
}

func (c *Client) postOnce(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("hub request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("hub returned status %d", resp.StatusCode)
	}
	return backoff.Permanent(fmt.Errorf("hub returned status %d", resp.StatusCode))
}

// Noop is the notifier used when no hub is configured. Every notification
// succeeds immediately.
type Noop struct{}

var _ cubegame.HubNotifier = Noop{}

func (Noop) NotifyStart(ctx context.Context, snap cubegame.SessionSnapshot) error {
	return nil
}

func (Noop) NotifyEnd(ctx context.Context, sessionID uint32, playerAWon bool) error {
	return nil
}
