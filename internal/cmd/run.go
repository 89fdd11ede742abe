package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/d2c-launcher/coordinator/internal/app"
	"github.com/d2c-launcher/coordinator/internal/config"
	"github.com/d2c-launcher/coordinator/internal/event"
	"github.com/d2c-launcher/coordinator/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the session coordinator until interrupted",
	Long: `Run the identity supervisor, credential exchange, Game Coordinator
channel and session state machine until SIGINT or SIGTERM.

Logs go to coordinator.log in the data directory. Use --events to also
print every coordinator event to stdout.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var printEvents bool

func init() {
	runCmd.Flags().BoolVar(&printEvents, "events", false, "Print coordinator events to stdout")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := CreateLogger(cfg.Paths.ResolveDataDir(), cfg)
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build coordinator: %w", err)
	}

	if printEvents {
		out := cmd.OutOrStdout()
		id := coordinator.Bus().SubscribeAll(func(e event.Event) { printEvent(out, e) })
		defer coordinator.Bus().Unsubscribe(id)
	}

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "coordinator running, socket %s (Ctrl+C to stop)\n", coordinator.Channel().Endpoint())

	<-ctx.Done()
	coordinator.Stop()
	return nil
}

// CreateLogger creates a logger if logging is enabled in config.
// Returns a NopLogger if logging is disabled or if creation fails.
func CreateLogger(dir string, cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}

	rotationConfig := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}

	logger, err := logging.NewLoggerWithRotation(dir, cfg.Logging.Level, rotationConfig)
	if err != nil {
		// Log creation failure shouldn't prevent the coordinator from starting
		fmt.Fprintf(os.Stderr, "Warning: failed to create logger: %v\n", err)
		return logging.NopLogger()
	}
	return logger
}

func printEvent(w io.Writer, e event.Event) {
	fmt.Fprintf(w, "%s %-28s %s\n", e.Timestamp().Format("15:04:05.000"), e.EventType(), describeEvent(e))
}

// describeEvent renders the fields worth reading on a terminal. Tokens and
// credentials are never printed.
func describeEvent(e event.Event) string {
	switch ev := e.(type) {
	case event.IdentityStatusChangedEvent:
		return fmt.Sprintf("%s -> %s", ev.Previous, ev.Current)
	case event.IdentityChangedEvent:
		if ev.Identity == nil {
			return "signed out"
		}
		return fmt.Sprintf("%s (account %d)", ev.Identity.Name, ev.Identity.AccountID())
	case event.CredentialChangedEvent:
		return fmt.Sprintf("present=%t", ev.Credential != "")
	case event.TokenChangedEvent:
		return fmt.Sprintf("present=%t fingerprint=%s", ev.HasToken, ev.Fingerprint)
	case event.ConnectionChangedEvent:
		return fmt.Sprintf("%s -> %s", ev.Previous, ev.Current)
	case event.MessageEvent:
		return string(ev.Message.Topic())
	case event.QueueChangedEvent:
		return fmt.Sprintf("modes=%d searching=%t queued=%v", len(ev.Modes), ev.Searching, ev.QueuedModes)
	case event.QueueTickEvent:
		return ev.Label
	case event.RoomChangedEvent:
		if ev.ReadyCheck.Room == nil {
			return "no room"
		}
		return fmt.Sprintf("room=%s entries=%d accepted=%t", ev.ReadyCheck.Room.ID, len(ev.ReadyCheck.Room.Entries), ev.ReadyCheck.HasAccepted)
	case event.PartyChangedEvent:
		return fmt.Sprintf("party=%q members=%d", ev.Roster.PartyID, len(ev.Roster.Members))
	case event.InvitesChangedEvent:
		return fmt.Sprintf("pending=%d", len(ev.Invites))
	case event.GameChangedEvent:
		return fmt.Sprintf("server=%q searching=%t", ev.ServerURL, ev.Searching)
	case event.OnlineChangedEvent:
		return fmt.Sprintf("online=%d sessions=%d", ev.Online, ev.Sessions)
	case event.CandidatesChangedEvent:
		return fmt.Sprintf("query=%q results=%d", ev.Query, len(ev.Candidates))
	case event.RequeueRequestedEvent:
		return fmt.Sprintf("mode=%d in_queue=%d", ev.Mode, ev.InQueue)
	default:
		return ""
	}
}
