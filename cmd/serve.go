package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the archive API server",
	Long: `Start the Photo Archive HTTP API.
The API exposes search, face tagging, photo upload and background directory
ingest under /api/v1.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, anyBackend)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	server := web.NewServer(a.cfg, web.Deps{
		Store:      a.store,
		Engine:     a.engine,
		Reconciler: a.reconciler,
		Pipeline:   a.pipeline,
	}, a.log)

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go a.store.Refresh(refreshCtx, a.cfg.Database.RefreshInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		stopRefresh()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Serving %d record(s) on http://%s:%d\n", a.store.Len(), a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
