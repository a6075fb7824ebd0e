package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/config"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scene"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "maint",
	Short:   "Show recorded sessions from the ledger",
	Long: `List the most recent sessions recorded in the ledger (ledger.path) with
their snapshot and event counts, and the latest snapshot of the newest one.

With --config-check the loaded config file is decoded strictly first, so
misspelled keys are reported instead of silently ignored.

Example usage:
  wisp status
  wisp status --limit 20
  wisp status --config-check --config wisp.toml`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		check, _ := cmd.Flags().GetBool("config-check")

		if check {
			if cfg.File == "" {
				fmt.Printf("%s No config file loaded, using defaults\n", ui.RenderWarn("!"))
			} else if _, err := config.Decode(cfg.File); err != nil {
				fatalf("%v", err)
			} else {
				fmt.Printf("%s %s is valid\n", ui.RenderPass("✓"), cfg.File)
			}
		}

		db, err := openLedger()
		if err != nil {
			fatalf("failed to open ledger: %v", err)
		}
		if db == nil {
			fmt.Printf("%s No ledger configured (set ledger.path)\n", ui.RenderWarn("!"))
			return
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sessions, err := db.Sessions(ctx, limit)
		if err != nil {
			fatalf("%v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded")
			return
		}

		fmt.Printf("%s %d sessions in %s\n\n", ui.RenderAccent("▶"), len(sessions), db.Path())
		for _, s := range sessions {
			fmt.Printf("   #%-4d %-20s %s  %d snapshots, %d events\n",
				s.ID, s.Name, ui.RenderMuted(s.StartedAt.Local().Format(time.DateTime)), s.Snapshots, s.Events)
		}

		newest := sessions[0]
		snap, err := db.LatestSnapshot(ctx, newest.ID)
		if err != nil {
			fatalf("%v", err)
		}
		if snap != nil {
			fmt.Printf("\nLatest snapshot of #%d:\n", newest.ID)
			printSnapshot(*snap)
		}

		counts, err := db.EventCounts(ctx, newest.ID)
		if err != nil {
			fatalf("%v", err)
		}
		if len(counts) > 0 {
			kinds := make([]string, 0, len(counts))
			for k := range counts {
				kinds = append(kinds, string(k))
			}
			sort.Strings(kinds)
			rows := make([][2]string, 0, len(kinds))
			for _, k := range kinds {
				rows = append(rows, [2]string{k, fmt.Sprint(counts[scene.EventKind(k)])})
			}
			fmt.Println("\nEvents:")
			fmt.Print(ui.KeyValues(rows))
		}
	},
}

func init() {
	statusCmd.Flags().Int("limit", 10, "Number of sessions to list")
	statusCmd.Flags().Bool("config-check", false, "Strictly decode the loaded config file")
	rootCmd.AddCommand(statusCmd)
}
