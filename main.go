// OTMap: industrial asset inventory with passive network discovery.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/dmarzo/otmap/internal/capture"
	"github.com/dmarzo/otmap/internal/config"
	"github.com/dmarzo/otmap/internal/oui"
	"github.com/dmarzo/otmap/internal/server"
)

const version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "otmap",
		Short: "OTMap, an industrial asset inventory with passive network discovery",
		Long: `OTMap is a single-binary CMDB for industrial (OT) assets. It ingests
packet captures, discovers devices and their communications, and reconciles
them against the persisted inventory.`,
		SilenceUsage: true,
	}

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the OTMap inventory server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := server.Setup(cfg); err != nil {
				return fmt.Errorf("initializing server: %w", err)
			}

			gin.SetMode(gin.ReleaseMode)
			engine := gin.New()
			engine.Use(gin.Recovery())
			server.RegisterRoutes(engine)

			addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
			fmt.Printf("OTMap %s listening on http://%s\n", version, addr)

			srv := &http.Server{Addr: addr, Handler: engine}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt)

			select {
			case err := <-errCh:
				return err
			case <-quit:
				fmt.Println("shutting down gracefully...")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}

	// ── parse-worker subcommand (hidden) ──────────────────────────────────────
	// The server re-executes itself with this command to parse one capture
	// file in an isolated, killable child process.
	workerCmd := &cobra.Command{
		Use:    capture.WorkerCommand + " <file>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return capture.WorkerMain(args[0])
		},
	}

	// ── oui-update subcommand ─────────────────────────────────────────────────
	ouiCmd := &cobra.Command{
		Use:   "oui-update",
		Short: "Download the latest IEEE OUI registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			resolver := oui.NewResolver(cfg.OUIPath)
			if err := resolver.Download(cmd.Context(), cfg.OUIURL); err != nil {
				return err
			}
			fmt.Printf("OUI registry updated: %d prefixes in %s\n", resolver.Len(), cfg.OUIPath)
			return nil
		},
	}

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print OTMap version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("OTMap %s\n", version)
		},
	}

	root.AddCommand(serverCmd, workerCmd, ouiCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
