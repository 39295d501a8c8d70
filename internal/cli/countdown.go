package cli

import (
	"github.com/spf13/cobra"

	"taskloop/internal/app"
	"taskloop/internal/config"
)

func newCountdownCmd() *cobra.Command {
	var (
		engine string
		count  int
		every  string
	)

	cmd := &cobra.Command{
		Use:   "countdown",
		Short: "Count down to zero on a single scheduler, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewFromConfig(&config.Config{
				Logging: config.LoggingConfig{Level: flagLogLevel, Console: true},
				Schedulers: []config.SchedulerConfig{{
					Name:   "countdown",
					Engine: engine,
					Jobs: []config.JobConfig{{
						Name:  "countdown",
						Kind:  config.JobCountdown,
						Count: count,
						Every: every,
					}},
				}},
			})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&engine, "engine", config.EngineEventLoop, "Scheduler engine (eventloop, async)")
	cmd.Flags().IntVar(&count, "count", 3, "Value to count down from")
	cmd.Flags().StringVar(&every, "every", "1s", "Delay between ticks")
	return cmd
}
