package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/daemon"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/logging"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scene"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ui"
)

var replayCmd = &cobra.Command{
	Use:     "replay [script...]",
	GroupID: "session",
	Short:   "Apply scene scripts and report the synchronized state",
	Long: `Activate a viewport session, apply scene scripts in order and print what
the synchronizer built: tracked meshes, material bindings, live shader
watches and display texture slots.

Without arguments every script in the scripts directory (daemon.scripts_dir)
is applied in lexical order.

Example usage:
  wisp replay                         # Replay ./scenes
  wisp replay scenes/cube.yaml        # Replay one script
  wisp replay --json a.toml b.json    # Print the final snapshot as JSON`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		db, err := openLedger()
		if err != nil {
			fatalf("failed to open ledger: %v", err)
		}
		if db != nil {
			defer db.Close()
		}

		dir := cfg.Daemon.ScriptsDir
		if len(args) > 0 {
			// Explicit scripts run against an empty scripts directory.
			tmp, err := os.MkdirTemp("", "wisp-replay-")
			if err != nil {
				fatalf("%v", err)
			}
			defer os.RemoveAll(tmp)
			dir = tmp
		}

		dcfg := daemon.DefaultConfig()
		dcfg.OutputWidth, dcfg.OutputHeight = cfg.Output.Width, cfg.Output.Height
	dcfg.CameraName = cfg.Viewport.Camera
		dcfg.SessionName = "replay"
		dcfg.Ledger = db
		dcfg.Logger = logging.For(baseLog.Logger, "daemon")
		d, err := daemon.NewWithConfig(dir, dcfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer d.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		start := time.Now()
		if err := d.Activate(ctx); err != nil {
			fatalf("%v", err)
		}
		failed := false
		for _, path := range args {
			res, err := d.ApplyFile(ctx, path)
			if err != nil {
				fmt.Printf("%s %v\n", ui.RenderFail("✗"), err)
				failed = true
				continue
			}
			if !asJSON {
				fmt.Printf("%s %s: %d steps, %d frames\n", ui.RenderPass("✓"), path, res.Applied, res.Frames)
			}
		}

		snap, err := d.Snapshot(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				fatalf("%v", err)
			}
		} else {
			st := d.Stats()
			fmt.Printf("\n%s Replayed %d scripts in %v\n\n", ui.RenderAccent("▶"), st.Applied+st.Failed, time.Since(start).Round(time.Millisecond))
			printSnapshot(snap)
		}
		if failed || d.Stats().Failed > 0 {
			d.Stop()
			os.Exit(1)
		}
	},
}

func printSnapshot(snap scene.Snapshot) {
	slot := func(s scene.SlotState) string {
		if !s.Valid {
			return ui.RenderWarn("none")
		}
		return fmt.Sprintf("%dx%d", s.Width, s.Height)
	}
	fmt.Print(ui.KeyValues([][2]string{
		{"Meshes", fmt.Sprintf("%d (%d on default material)", len(snap.Objects), snap.DefaultObjects())},
		{"Bindings", fmt.Sprintf("%d (%d built materials)", len(snap.Bindings), snap.BuiltMaterials())},
		{"Watches", fmt.Sprint(snap.Watches)},
		{"Callbacks", fmt.Sprint(snap.Callbacks)},
		{"Color slot", slot(snap.Color)},
		{"Depth slot", slot(snap.Depth)},
		{"Events", fmt.Sprintf("%d serviced, %d dropped", snap.Events, snap.Dropped)},
	}))
	if c := snap.Camera; c != nil {
		fmt.Printf("   camera at (%.2f, %.2f, %.2f), fov %.1f, clip %.2f..%.0f\n",
			c.Position[0], c.Position[1], c.Position[2], c.FOV, c.Near, c.Far)
	}
	for _, b := range snap.Bindings {
		marker := ui.RenderMuted("·")
		if b.Watched {
			marker = ui.RenderPass("●")
		}
		kind := b.Type
		if b.TypeName != "" {
			kind = b.TypeName
		}
		fmt.Printf("   %s engine %d: %s shader %d, %d meshes\n", marker, b.Engine, kind, b.Shader, b.Meshes)
	}
}

func init() {
	replayCmd.Flags().Bool("json", false, "Print the final snapshot as JSON")
	rootCmd.AddCommand(replayCmd)
}
