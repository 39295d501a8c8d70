package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"taskloop/internal/app"
)

var (
	flagLogLevel    string
	flagStopTimeout time.Duration
)

// NewRootCmd creates the root cobra command for the taskloop CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "taskloop",
		Short:        "Run self-resubmitting jobs on event-loop and async schedulers",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&flagStopTimeout, "stop-timeout", 10*time.Second, "How long to wait for schedulers to exit on shutdown")

	root.AddCommand(
		newRunCmd(),
		newCountdownCmd(),
	)
	return root
}

// serve starts a and blocks until it shuts down, either because ctx is done
// or because every scheduler stopped on its own.
func serve(ctx context.Context, a *app.App) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	waitErr := a.Wait(context.Background())

	stopCtx, cancel := context.WithTimeout(context.Background(), flagStopTimeout)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil && waitErr == nil {
		return err
	}
	return waitErr
}
