package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/NikhilRaikwar/Cubeathon/client"
	"github.com/joho/godotenv"
	"github.com/vctt94/bisonbotkit/logging"
	"github.com/vctt94/bisonbotkit/utils"
)

var (
	flagURL     = flag.String("url", "", "coordinator base URL, e.g. http://127.0.0.1:8090")
	flagDataDir = flag.String("datadir", "", "directory for the signing key and logs")
	flagDebug   = flag.String("debug", "info", "log level (debug, info, warn, error)")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: cubeclient [flags] <command> [command flags]\n\n")
	fmt.Fprintf(out, "Commands:\n")
	fmt.Fprintf(out, "  id        print this client's player id and pubkey\n")
	fmt.Fprintf(out, "  consent   sign a proposed session; prints the pubkey and signature to hand over\n")
	fmt.Fprintf(out, "  start     start a session (requires the opponent's consent)\n")
	fmt.Fprintf(out, "  commit    compute the journal commitment for a prover run\n")
	fmt.Fprintf(out, "  stage     submit a cleared sprint stage\n")
	fmt.Fprintf(out, "  score     submit an endurance run\n")
	fmt.Fprintf(out, "  finalize  settle an endurance session\n")
	fmt.Fprintf(out, "  session   show one session\n")
	fmt.Fprintf(out, "  sessions  list all sessions\n")
	fmt.Fprintf(out, "  board     show a leaderboard\n")
	fmt.Fprintf(out, "  watch     live event feed and leaderboards\n\n")
	fmt.Fprintf(out, "Flags:\n")
	flag.PrintDefaults()
}

func realMain() error {
	_ = godotenv.Load()
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		return fmt.Errorf("missing command")
	}

	if *flagURL == "" {
		*flagURL = os.Getenv("CUBEATHON_URL")
	}
	if *flagURL == "" {
		*flagURL = "http://127.0.0.1:8090"
	}
	if *flagDataDir == "" {
		*flagDataDir = utils.AppDataDir("cubeclient", false)
	}

	useStdout := false
	lb, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:        filepath.Join(*flagDataDir, "logs", "cubeclient.log"),
		DebugLevel:     *flagDebug,
		MaxLogFiles:    10,
		MaxBufferLines: 1000,
		UseStdout:      &useStdout,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	log := lb.Logger("CLNT")

	signer, err := client.LoadSigner(filepath.Join(*flagDataDir, "client.key"))
	if err != nil {
		return err
	}
	c, err := client.New(client.Config{
		URL:    *flagURL,
		Signer: signer,
		Log:    log,
	})
	if err != nil {
		return err
	}
	log.Debugf("client %s targeting %s", signer.UID(), *flagURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "id":
		fmt.Printf("player id: %s\n", signer.UID())
		fmt.Printf("pubkey:    %s\n", signer.PubKeyHex())
		return nil
	case "consent":
		return cmdConsent(c, rest)
	case "start":
		return cmdStart(ctx, c, rest)
	case "commit":
		return cmdCommit(c, rest)
	case "stage":
		return cmdStage(ctx, c, rest)
	case "score":
		return cmdScore(ctx, c, rest)
	case "finalize":
		return cmdFinalize(ctx, c, rest)
	case "session":
		return cmdSession(ctx, c, rest)
	case "sessions":
		return cmdSessions(ctx, c)
	case "board":
		return cmdBoard(ctx, c, rest)
	case "watch":
		return cmdWatch(ctx, c, log)
	}
	usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
