package main

import (
	"flag"
	"fmt"

	cubeathon "github.com/NikhilRaikwar/Cubeathon"
	"github.com/NikhilRaikwar/Cubeathon/server"
	"github.com/caarlos0/env/v11"
	"github.com/decred/dcrd/chaincfg/chainhash"
)

// Config is the daemon configuration. Environment variables provide the
// defaults; flags override them.
type Config struct {
	Dir    string `env:"CUBEATHON_DIR"`
	Listen string `env:"CUBEATHON_LISTEN" envDefault:":8090"`
	Debug  string `env:"CUBEATHON_DEBUG"  envDefault:"info"`

	StageCount uint `env:"CUBEATHON_STAGE_COUNT"`
	BoardSize  int  `env:"CUBEATHON_BOARD_SIZE"`

	VerifierURL string `env:"CUBEATHON_VERIFIER_URL"`
	ImageID     string `env:"CUBEATHON_IMAGE_ID"`
	HubURL      string `env:"CUBEATHON_HUB_URL"`

	// AllowEmptyProof admits submissions that carry no proof at all. It
	// exists for development against a missing verifier and must stay off
	// anywhere results matter.
	AllowEmptyProof bool `env:"CUBEATHON_ALLOW_EMPTY_PROOF"`
	// AuthDisabled skips consent signature checks. Development only.
	AuthDisabled bool `env:"CUBEATHON_AUTH_DISABLED"`
}

func parseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "data directory (database, logs)")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	fs.StringVar(&cfg.Debug, "debug", cfg.Debug, "log level (debug, info, warn, error)")
	fs.UintVar(&cfg.StageCount, "stages", cfg.StageCount, "sprint ladder length (0 = default)")
	fs.IntVar(&cfg.BoardSize, "boardsize", cfg.BoardSize, "leaderboard bound (0 = default)")
	fs.StringVar(&cfg.VerifierURL, "verifier", cfg.VerifierURL, "zk verifier verify endpoint")
	fs.StringVar(&cfg.ImageID, "imageid", cfg.ImageID, "circuit image id (64 hex chars)")
	fs.StringVar(&cfg.HubURL, "hub", cfg.HubURL, "game hub base URL (empty disables notifications)")
	fs.BoolVar(&cfg.AllowEmptyProof, "allowemptyproof", cfg.AllowEmptyProof, "admit submissions without proofs (dev only)")
	fs.BoolVar(&cfg.AuthDisabled, "noauth", cfg.AuthDisabled, "skip consent signature checks (dev only)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// serverConfig validates the daemon config into the server's form. The image
// id must be a full 32-byte hash whenever a verifier is configured.
func (cfg Config) serverConfig() (server.Config, error) {
	var imageID chainhash.Hash
	if cfg.ImageID != "" {
		var err error
		imageID, err = cubeathon.DecodeHash(cfg.ImageID)
		if err != nil {
			return server.Config{}, fmt.Errorf("invalid imageid: expected 64 hex chars (32 bytes): %w", err)
		}
	} else if cfg.VerifierURL != "" {
		return server.Config{}, fmt.Errorf("imageid is required when a verifier is configured")
	}

	return server.Config{
		ServerDir:       cfg.Dir,
		ListenAddr:      cfg.Listen,
		StageCount:      uint32(cfg.StageCount),
		BoardSize:       cfg.BoardSize,
		VerifierURL:     cfg.VerifierURL,
		ImageID:         imageID,
		AllowEmptyProof: cfg.AllowEmptyProof,
		HubURL:          cfg.HubURL,
		AuthDisabled:    cfg.AuthDisabled,
	}, nil
}
