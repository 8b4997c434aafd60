package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/decred/slog"
	"github.com/gorilla/websocket"
	"github.com/vctt94/bisonbotkit/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is public spectator data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteWait = 10 * time.Second

// eventHub fans registry events out to websocket spectators. Each connection
// holds its own registry subscription; slow connections lose events rather
// than slowing the registry down.
type eventHub struct {
	log      slog.Logger
	registry *cubegame.Registry

	mu     sync.Mutex
	closed bool
	conns  map[*websocket.Conn]context.CancelFunc
}

func newEventHub(log slog.Logger, registry *cubegame.Registry) *eventHub {
	return &eventHub{
		log:      log,
		registry: registry,
		conns:    make(map[*websocket.Conn]context.CancelFunc),
	}
}

func (h *eventHub) track(conn *websocket.Conn, cancel context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = cancel
	return true
}

func (h *eventHub) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// stop disconnects every spectator. Safe to call more than once.
func (h *eventHub) stop() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make(map[*websocket.Conn]context.CancelFunc, len(h.conns))
	for conn, cancel := range h.conns {
		conns[conn] = cancel
	}
	h.mu.Unlock()

	for conn, cancel := range conns {
		cancel()
		conn.Close()
	}
}

func (h *eventHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if !h.track(conn, cancel) {
		conn.Close()
		return
	}

	tag, err := utils.GenerateRandomString(8)
	if err != nil {
		tag = "spectator"
	}
	h.log.Debugf("spectator %s connected from %s", tag, r.RemoteAddr)
	wsClients.Inc()

	events, unsub := h.registry.Subscribe()
	defer func() {
		unsub()
		h.untrack(conn)
		conn.Close()
		wsClients.Dec()
		h.log.Debugf("spectator %s disconnected", tag)
	}()

	// Inbound data is ignored; the read loop only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
