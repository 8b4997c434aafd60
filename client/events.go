package client

import (
	"context"
	"strings"
	"time"

	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// Watch streams the coordinator's spectator feed. The returned channel
// closes when ctx ends. A dropped connection is redialed with exponential
// backoff; events published while disconnected are not replayed.
func (c *Client) Watch(ctx context.Context) <-chan cubegame.Event {
	ch := make(chan cubegame.Event, 64)
	go c.watchLoop(ctx, ch)
	return ch
}

func (c *Client) watchLoop(ctx context.Context, ch chan<- cubegame.Event) {
	defer close(ch)
	wsURL := "ws" + strings.TrimPrefix(c.url, "http") + "/v1/ws"

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
		backoff.WithMaxInterval(15*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
	for {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if resp != nil {
				resp.Body.Close()
			}
			wait := bo.NextBackOff()
			c.log.Debugf("event feed dial failed (retrying in %s): %v", wait, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		c.forwardEvents(ctx, conn, ch)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Infof("event feed disconnected; redialing")
	}
}

// forwardEvents pumps one connection into the channel until it breaks.
func (c *Client) forwardEvents(ctx context.Context, conn *websocket.Conn, ch chan<- cubegame.Event) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev cubegame.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				c.log.Debugf("event feed read: %v", err)
			}
			return
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}
