package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/NikhilRaikwar/Cubeathon/client"
	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/decred/slog"
)

// maxFeedLines caps the retained event history in the watch view.
const maxFeedLines = 64

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	decidedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// boardMsg carries a freshly fetched leaderboard into the update loop.
type boardMsg struct {
	mode    cubegame.Mode
	entries []cubegame.LeaderboardEntry
}

type appstate struct {
	sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	c      *client.Client
	log    slog.Logger

	msgCh    chan tea.Msg
	viewport viewport.Model
	events   <-chan cubegame.Event

	feed         []string
	boards       map[cubegame.Mode][]cubegame.LeaderboardEntry
	notification string
}

func (m *appstate) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		// Start a goroutine to forward feed events into the update loop.
		go func() {
			for ev := range m.events {
				m.msgCh <- ev
			}
		}()
		return nil
	}
}

// refreshBoards fetches both leaderboards off the update loop and delivers
// them as boardMsg values.
func (m *appstate) refreshBoards() tea.Cmd {
	return func() tea.Msg {
		for _, mode := range []cubegame.Mode{cubegame.ModeSprint, cubegame.ModeEndurance} {
			go func(mode cubegame.Mode) {
				entries, err := m.c.Leaderboard(m.ctx, mode)
				if err != nil {
					if m.ctx.Err() == nil {
						m.log.Errorf("Failed to fetch %s leaderboard: %v", mode, err)
						m.msgCh <- fmt.Sprintf("Error: %s leaderboard: %v", mode, err)
					}
					return
				}
				m.msgCh <- boardMsg{mode: mode, entries: entries}
			}(mode)
		}
		return nil
	}
}

func (m *appstate) Init() tea.Cmd {
	m.msgCh = make(chan tea.Msg)
	m.viewport = viewport.New(0, 0)
	m.boards = make(map[cubegame.Mode][]cubegame.LeaderboardEntry)

	return tea.Batch(
		m.listenForEvents(),
		m.refreshBoards(),
		m.waitForMsg(),
		tea.EnterAltScreen,
	)
}

func (m *appstate) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Lock()
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height
		m.Unlock()
		return m, nil
	case cubegame.Event:
		m.Lock()
		m.feed = append(m.feed, formatEvent(msg))
		if len(m.feed) > maxFeedLines {
			m.feed = m.feed[len(m.feed)-maxFeedLines:]
		}
		m.Unlock()
		if msg.Type == cubegame.EventLeaderboardUpdated {
			return m, tea.Batch(m.refreshBoards(), m.waitForMsg())
		}
		return m, m.waitForMsg()
	case boardMsg:
		m.Lock()
		m.boards[msg.mode] = msg.entries
		m.Unlock()
		return m, m.waitForMsg()
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
			return m, tea.Quit
		}
		switch msg.String() {
		case "q":
			m.cancel()
			return m, tea.Quit
		case "r":
			m.notification = "refreshing leaderboards"
			return m, m.refreshBoards()
		}
		return m, nil
	case string:
		if strings.HasPrefix(msg, "Error:") {
			m.notification = msg
		}
		return m, m.waitForMsg()
	}
	return m, m.waitForMsg()
}

func (m *appstate) waitForMsg() tea.Cmd {
	return func() tea.Msg {
		return <-m.msgCh
	}
}

func (m *appstate) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("========== Cubeathon Watch =========="))
	b.WriteString("\n\n")

	if m.notification != "" {
		b.WriteString(fmt.Sprintf("🔔 %s\n\n", m.notification))
	}
	b.WriteString(fmt.Sprintf("👤 Player ID: %s\n", m.c.Signer().UID()))
	b.WriteString(fmt.Sprintf("Coordinator: %s\n\n", *flagURL))
	b.WriteString("[R] - Refresh leaderboards  [Q] or [Ctrl+C] - Exit\n\n")

	m.Lock()
	b.WriteString("===== Events (newest first) =====\n")
	if len(m.feed) == 0 {
		b.WriteString("Waiting for events...\n")
	} else {
		for i := len(m.feed) - 1; i >= 0; i-- {
			b.WriteString(m.feed[i])
			b.WriteString("\n")
		}
	}
	b.WriteString("\n===== Leaderboards =====\n")
	for _, mode := range []cubegame.Mode{cubegame.ModeSprint, cubegame.ModeEndurance} {
		b.WriteString(renderBoard(mode, m.boards[mode], 5))
	}
	m.Unlock()

	// Set the viewport content to the built string
	m.viewport.SetContent(b.String())

	return m.viewport.View()
}

func formatEvent(ev cubegame.Event) string {
	when := time.Unix(ev.At, 0).Format("15:04:05")
	switch ev.Type {
	case cubegame.EventSessionStarted:
		return fmt.Sprintf("%s session %d started [%s]", when, ev.SessionID, ev.Mode)
	case cubegame.EventStageCleared:
		return fmt.Sprintf("%s session %d: %s cleared stage %d in %dms",
			when, ev.SessionID, shortUID(ev.Player), ev.Stage, ev.TimeMs)
	case cubegame.EventScoreSubmitted:
		if ev.Improved {
			return fmt.Sprintf("%s session %d: %s survived %dms (new best)",
				when, ev.SessionID, shortUID(ev.Player), ev.TimeMs)
		}
		return fmt.Sprintf("%s session %d: %s survived %dms",
			when, ev.SessionID, shortUID(ev.Player), ev.TimeMs)
	case cubegame.EventSessionDecided:
		return decidedStyle.Render(fmt.Sprintf("%s session %d decided: winner %s",
			when, ev.SessionID, shortUID(ev.Winner)))
	case cubegame.EventLeaderboardUpdated:
		return faintStyle.Render(fmt.Sprintf("%s %s leaderboard updated", when, ev.Mode))
	}
	return fmt.Sprintf("%s %s", when, ev.Type)
}

func cmdWatch(ctx context.Context, c *client.Client, log slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	as := &appstate{
		ctx:    ctx,
		cancel: cancel,
		c:      c,
		log:    log,
		events: c.Watch(ctx),
	}

	p := tea.NewProgram(as)
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
