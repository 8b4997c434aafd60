package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/NikhilRaikwar/Cubeathon/gamehub"
	"github.com/NikhilRaikwar/Cubeathon/server/serverdb"
	"github.com/NikhilRaikwar/Cubeathon/zkverifier"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/slog"
	"github.com/vctt94/bisonbotkit/logging"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// ServerDir holds the database file.
	ServerDir string
	// ListenAddr is the HTTP listen address, e.g. ":8090". Empty means the
	// server is driven through Handler() only.
	ListenAddr string

	// StageCount is the sprint ladder length; 0 uses the registry default.
	StageCount uint32
	// BoardSize bounds each leaderboard; 0 uses the registry default.
	BoardSize int

	// VerifierURL is the zk verifier endpoint. Required unless
	// AllowEmptyProof is set.
	VerifierURL string
	// ImageID pins the circuit image receipts must attest to.
	ImageID chainhash.Hash
	// AllowEmptyProof admits submissions without proofs. Development only.
	AllowEmptyProof bool

	// HubURL is the game hub base URL; empty disables hub notifications.
	HubURL string

	// AuthDisabled skips consent signature checks. Development only.
	AuthDisabled bool

	LogBackend *logging.LogBackend

	// Overrides for the components built from the fields above; tests
	// inject fakes here.
	DB   serverdb.ServerDB
	Gate cubegame.ProofGate
	Hub  cubegame.HubNotifier
}

type Server struct {
	log          slog.Logger
	registry     *cubegame.Registry
	db           serverdb.ServerDB
	events       *eventHub
	authDisabled bool

	mux        *http.ServeMux
	httpServer *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.LogBackend == nil {
		return nil, fmt.Errorf("log backend is required")
	}
	log := cfg.LogBackend.Logger("SRVR")

	db := cfg.DB
	if db == nil {
		if cfg.ServerDir == "" {
			return nil, fmt.Errorf("server dir is required")
		}
		var err error
		db, err = serverdb.NewBoltDB(filepath.Join(cfg.ServerDir, "server.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	gate := cfg.Gate
	if gate == nil && cfg.VerifierURL != "" {
		var err error
		gate, err = zkverifier.New(zkverifier.Config{
			URL:     cfg.VerifierURL,
			ImageID: cfg.ImageID,
			Log:     cfg.LogBackend.Logger("ZKVR"),
		})
		if err != nil {
			db.Close()
			return nil, err
		}
		log.Infof("Proof verification via %s", cfg.VerifierURL)
	}
	if gate == nil && !cfg.AllowEmptyProof {
		db.Close()
		return nil, fmt.Errorf("verifier URL is required unless the empty-proof bypass is enabled")
	}

	hub := cfg.Hub
	if hub == nil {
		if cfg.HubURL != "" {
			var err error
			hub, err = gamehub.New(gamehub.Config{
				URL: cfg.HubURL,
				Log: cfg.LogBackend.Logger("HUB"),
			})
			if err != nil {
				db.Close()
				return nil, err
			}
			log.Infof("Game hub notifications to %s", cfg.HubURL)
		} else {
			hub = gamehub.Noop{}
			log.Infof("Game hub not configured; lifecycle notifications disabled")
		}
	}

	registry := cubegame.NewRegistry(cubegame.RegistryConfig{
		StageCount:      cfg.StageCount,
		BoardSize:       cfg.BoardSize,
		AllowEmptyProof: cfg.AllowEmptyProof,
		Gate:            gate,
		Hub:             hub,
		Store:           db,
		Log:             cfg.LogBackend.Logger("REGY"),
	})

	// Restore persisted state before taking traffic.
	ctx := context.Background()
	snaps, err := db.FetchSessions(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("restore sessions: %w", err)
	}
	boards := make(map[cubegame.Mode][]cubegame.LeaderboardEntry, 2)
	for _, mode := range []cubegame.Mode{cubegame.ModeSprint, cubegame.ModeEndurance} {
		entries, err := db.FetchLeaderboard(ctx, mode)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("restore %s leaderboard: %w", mode, err)
		}
		boards[mode] = entries
	}
	if err := registry.Restore(snaps, boards); err != nil {
		db.Close()
		return nil, fmt.Errorf("restore registry: %w", err)
	}

	s := &Server{
		log:          log,
		registry:     registry,
		db:           db,
		authDisabled: cfg.AuthDisabled,
	}
	s.events = newEventHub(log, registry)

	if cfg.AuthDisabled {
		log.Warnf("Consent signature checks are DISABLED")
	}
	if cfg.AllowEmptyProof {
		log.Warnf("Empty-proof bypass is ENABLED; unproven submissions will be admitted")
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.mux = mux
	if cfg.ListenAddr != "" {
		s.httpServer = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s, nil
}

// Registry exposes the session registry, mainly so the daemon can report
// state at startup.
func (s *Server) Registry() *cubegame.Registry { return s.registry }

// Handler returns the full routing table; tests drive it via httptest.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves HTTP until the context ends, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	if s.httpServer == nil {
		<-ctx.Done()
		return s.Shutdown(context.Background())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Infof("Listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown disconnects spectators, stops the HTTP server, and closes the
// database last.
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.stop()

	if s.httpServer != nil {
		s.log.Info("Shutting down HTTP server...")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Errorf("Error shutting down HTTP server: %v", err)
		}
	}

	s.log.Info("Closing database...")
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing database: %v", err)
		return err
	}
	s.log.Info("Server shut down completed.")
	return nil
}
