package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/daemon"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ledger"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/logging"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch [dir]",
	GroupID: "session",
	Short:   "Run a live session over a scripts directory",
	Long: `Start a viewport session, apply every script in the directory, then keep
watching it. New or modified scripts are applied after they have been quiet
for daemon.debounce; each batch pumps one frame and records a snapshot to
the ledger when ledger.path is set.

Example usage:
  wisp watch                  # Watch ./scenes
  wisp watch ~/shots/s01      # Watch another directory`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := cfg.Daemon.ScriptsDir
		if len(args) == 1 {
			dir = args[0]
		}

		db, err := openLedger()
		if err != nil {
			fatalf("failed to open ledger: %v", err)
		}
		if db != nil {
			defer db.Close()
		}

		d, err := newSessionDaemon(dir, db, nil)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Watching %s (Ctrl+C to stop)\n", ui.RenderAccent("👁"), dir)
		runDaemon(d)
	},
}

// newSessionDaemon builds a daemon from the loaded settings.
func newSessionDaemon(dir string, db *ledger.DB, obs daemon.Observer) (*daemon.Daemon, error) {
	dcfg := daemon.DefaultConfig()
	dcfg.DebounceInterval = cfg.Daemon.Debounce
	dcfg.OutputWidth, dcfg.OutputHeight = cfg.Output.Width, cfg.Output.Height
	dcfg.CameraName = cfg.Viewport.Camera
	dcfg.Ledger = db
	dcfg.Observer = obs
	dcfg.Logger = logging.For(baseLog.Logger, "daemon")
	return daemon.NewWithConfig(dir, dcfg)
}

// runDaemon blocks until interrupted, then prints the final state.
func runDaemon(d *daemon.Daemon) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := d.Start(ctx); err != nil {
		d.Stop()
		fatalf("%v", err)
	}

	st := d.Stats()
	fmt.Printf("\n%s Session stopped: %d scripts applied, %d failed, %d frames\n",
		ui.Status(st.Failed == 0), st.Applied, st.Failed, st.Frames)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
