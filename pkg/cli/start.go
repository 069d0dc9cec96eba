package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/imposterd/pkg/config"
)

// shutdownTimeout bounds imposter teardown and admin shutdown.
const shutdownTimeout = 10 * time.Second

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the management API (default command)",
	Long: `Start the management API and wait for SIGINT or SIGTERM.

On shutdown every imposter is stopped and its port released.`,
	Example: `  # Start with defaults (admin API on port 2525)
  imposterd start

  # Allow inject predicates and responses, do not record requests
  imposterd start --allowInjection --noMock

  # Load imposters at boot
  imposterd start --configfile imposters.yaml

  # Default certificate for https imposters
  imposterd start --keyfile server.key --certfile server.crt`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	optionsFile, err := cmd.Flags().GetString(config.FlagOptionsFile)
	if err != nil {
		return err
	}
	opts, err := config.Load(optionsFile, cmd.Flags())
	if err != nil {
		return err
	}

	srv, err := NewServer(opts, Version)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startErr := srv.Start(ctx)
	if startErr == nil {
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		startErr = errors.Join(startErr, fmt.Errorf("shutdown: %w", err))
	}
	return startErr
}
