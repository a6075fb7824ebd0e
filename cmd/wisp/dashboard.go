package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/dashboard"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/logging"
	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard [dir]",
	GroupID: "session",
	Short:   "Watch a scripts directory and stream session state over WebSocket",
	Long: `Run a live session like 'wisp watch' and broadcast it to WebSocket clients.

Messages carry a type and a JSON payload:
- hello: sent on connect, followed by the latest snapshot
- event: a synchronizer event (mesh added, shader connected, ...)
- snapshot: the session state after each frame
- script: a scene script was applied or failed

Example usage:
  wisp dashboard                 # Serve on dashboard.host:dashboard.port
  wisp dashboard --port 9000     # Serve on a custom port

Connect with a WebSocket client:
  ws://127.0.0.1:7420/ws`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
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

		logger := logging.For(baseLog.Logger, "dashboard")
		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Host:   cfg.Dashboard.Host,
			Logger: logger,
		})
		if err := server.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}

		d, err := newSessionDaemon(dir, db, dashboard.NewHandler(server, logger))
		if err != nil {
			_ = server.Stop()
			fatalf("%v", err)
		}

		addr := server.Addr()
		fmt.Printf("%s Dashboard on http://%s\n", ui.RenderAccent("▶"), addr)
		fmt.Printf("   WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("   Latest snapshot:    http://%s/snapshot\n", addr)
		fmt.Printf("   Watching %s (Ctrl+C to stop)\n", dir)

		runDaemon(d)

		if err := server.Stop(); err != nil {
			fatalf("error during shutdown: %v", err)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().Int("port", 7420, "Port to listen on (default: dashboard.port)")
	rootCmd.AddCommand(dashboardCmd)
}
