package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theotherzach/project-brain-bot/internal/api"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background sync workers",
	Long: `Starts the HTTP API for the chat surface and launches one
background sync worker per indexable source. Runs until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides configuration)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Provider == nil {
		return errors.New("context provider not configured")
	}
	if services.Scheduler == nil {
		return errors.New("scheduler not configured")
	}

	addr := serveAddr
	if addr == "" {
		addr = services.ServeAddr
	}
	if addr == "" {
		addr = ":8080"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- services.Scheduler.Start(ctx)
	}()

	handler := api.NewHandler(services.Provider, services.Scheduler, services.LLM)
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", addr)
		serverDone <- server.ListenAndServe()
	}()

	select {
	case err := <-serverDone:
		cancel()
		<-schedulerDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown: %v", err)
	}

	if err := <-schedulerDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
