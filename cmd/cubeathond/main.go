package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/NikhilRaikwar/Cubeathon/server"
	"github.com/joho/godotenv"
	"github.com/vctt94/bisonbotkit/logging"
	"github.com/vctt94/bisonbotkit/utils"
)

func realMain() error {
	// Best-effort .env for development setups; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.Dir == "" {
		cfg.Dir = utils.AppDataDir("cubeathond", false)
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	srvCfg, err := cfg.serverConfig()
	if err != nil {
		return err
	}

	useStdout := true
	lb, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:        filepath.Join(cfg.Dir, "logs", "cubeathond.log"),
		DebugLevel:     cfg.Debug,
		MaxLogFiles:    10,
		MaxBufferLines: 1000,
		UseStdout:      &useStdout,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	srvCfg.LogBackend = lb

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.NewServer(srvCfg)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
