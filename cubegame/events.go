package cubegame

// EventType names the events a registry publishes. These mirror what the
// coordinator reports outward: the websocket feed forwards them verbatim.
type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventStageCleared       EventType = "stage_cleared"
	EventScoreSubmitted     EventType = "score_submitted"
	EventSessionDecided     EventType = "session_decided"
	EventLeaderboardUpdated EventType = "leaderboard_updated"
)

// Event is one occurrence on a session. Fields beyond Type/SessionID/At are
// filled per event type. A score_submitted event is published even when the
// stored best did not improve, so spectators see every proof-gated attempt.
type Event struct {
	Type      EventType `json:"type"`
	SessionID uint32    `json:"session_id,omitempty"`
	Mode      Mode      `json:"mode,omitempty"`
	Player    string    `json:"player,omitempty"`
	Stage     uint32    `json:"stage,omitempty"`
	TimeMs    uint64    `json:"time_ms,omitempty"`
	Improved  bool      `json:"improved,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	At        int64     `json:"at"`
}

// Subscribe adds an event listener and returns the channel plus unsubscribe.
// No replay is performed; the first event delivered is the next one
// published. Slow listeners lose events rather than blocking operations.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	r.subsMu.Lock()
	r.subs[ch] = struct{}{}
	n := len(r.subs)
	r.subsMu.Unlock()
	r.log.Debugf("event subscriber added (subs=%d)", n)

	unsub := func() {
		r.subsMu.Lock()
		delete(r.subs, ch)
		remaining := len(r.subs)
		r.subsMu.Unlock()
		r.log.Debugf("event subscriber removed (subs=%d)", remaining)
		// Do not close(ch): publish may still hold a reference; receivers
		// stop via their own context.
	}
	return ch, unsub
}

// publish snapshots subscribers, then best-effort sends without blocking.
func (r *Registry) publish(ev Event) {
	r.subsMu.RLock()
	chs := make([]chan Event, 0, len(r.subs))
	for ch := range r.subs {
		chs = append(chs, ch)
	}
	r.subsMu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- ev:
		default:
			// Drop if receiver is slow.
		}
	}
}
