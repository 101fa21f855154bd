package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/veildata/veil/internal/config"
	"github.com/veildata/veil/internal/watch"
)

var (
	watchInbox    string
	watchSchedule string
	watchWorkers  int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an inbox directory and redact arriving record files",
	Long: `Watch runs every .json/.jsonl file dropped into the inbox through the
configured pipeline. Redacted output lands in out/, the original moves
to done/ on success or failed/ on failure. A periodic resweep catches
files missed by filesystem events. Runs until SIGINT or SIGTERM.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "Inbox directory (default from config)")
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "Resweep cron spec (default from config, @every 5m)")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", watch.DefaultWorkers, "Concurrent file workers")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	inbox := watchInbox
	if inbox == "" {
		inbox = cfg.WatchInbox
	}
	if inbox == "" {
		return fmt.Errorf("no inbox directory: pass --inbox or set watch_inbox")
	}
	schedule := watchSchedule
	if schedule == "" {
		schedule = cfg.WatchSchedule
	}

	store, err := openAuditStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	orch, err := buildOrchestrator(ctx, cfg, "", nil, store)
	if err != nil {
		return err
	}
	if err := orch.ValidateSetup(ctx, ""); err != nil {
		return fmt.Errorf("setup validation: %w", err)
	}

	watcher := watch.NewWatcher(inbox, orch,
		watch.WithWorkers(watchWorkers),
		watch.WithSchedule(schedule),
	)

	log.Info().
		Str("inbox", inbox).
		Str("schedule", schedule).
		Int("workers", watchWorkers).
		Str("strategy", orch.Strategy()).
		Msg("veil_watch_started")

	if err := watcher.Run(ctx); err != nil {
		return fmt.Errorf("watching %s: %w", inbox, err)
	}
	log.Info().Msg("watch_stopped")
	return nil
}
