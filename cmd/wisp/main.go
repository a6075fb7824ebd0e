// Command wisp drives the ray-traced viewport synchronizer outside the host:
// it replays scene scripts, watches script directories, serves a live
// dashboard, inspects the session ledger and runs randomized stress checks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/config"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ledger"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/logging"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ui"
)

var (
	cfg     *config.Config
	baseLog *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wisp",
	Short: "Ray-traced viewport scene synchronizer",
	Long: `wisp mirrors a host scene graph into a renderer scene and keeps the two
consistent as the graph changes.

Scene scripts (YAML, TOML or JSON) describe host edits: meshes, shaders,
shading engines, connections, attribute edits and frames. wisp applies them
to an in-memory host graph and reports what the synchronizer built.

Settings are read from wisp.toml/wisp.yaml/wisp.json and WISP_* environment
variables (WISP_OUTPUT_WIDTH overrides output.width).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded

		if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
			cfg.Log.File = logFile
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			cfg.Log.Verbose = true
		}
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			ui.SetColor(false)
		}
		// Without --verbose logs only reach the log file, if any.
		lc := cfg.Logging()
		lc.Quiet = !cfg.Log.Verbose
		baseLog = logging.New(lc)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if baseLog != nil {
			_ = baseLog.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "maint", Title: "Maintenance Commands:"},
	)
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./wisp.{toml,yaml,json})")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to a rotated file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log session activity to stderr")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

// openLedger opens the configured ledger, or returns nil when none is set.
func openLedger() (*ledger.DB, error) {
	if cfg.Ledger.Path == "" {
		return nil, nil
	}
	db, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s "+format+"\n", append([]any{ui.RenderFail("Error:")}, args...)...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
