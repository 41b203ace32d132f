package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/execconf/execconf/pkg/watch"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		session sessionFlags
		out     outputFlags
		delay   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-resolve a configuration unit whenever a unit changes",
		Long: `Resolve a root unit, write the result, and repeat every time a unit below
the root directory changes. Failed sessions are logged and the previous output
is left in place.

With --metrics-addr the session counters and durations are served for
Prometheus while the command runs.`,
		Example: `  # Keep prod.json up to date
  execconf watch conf/prod.py -o prod.json

  # Expose metrics while watching
  execconf watch conf/prod.py -o prod.json --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := out.formatter(); err != nil {
				return err
			}

			r, err := session.newRunner(ctx, args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer r.close()

			serving, err := r.tel.StartMetricsServer()
			if err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}
			if serving {
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			var mu sync.Mutex
			run := func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				cfg, err := r.resolve(ctx)
				if err != nil {
					return err
				}
				if err := out.write(cmd.OutOrStdout(), cfg); err != nil {
					return err
				}
				log.Info().Int("keys", cfg.Len()).Msg("Configuration written")
				return nil
			}
			if err := run(ctx); err != nil {
				log.Error().Err(err).Msg("Initial resolution failed")
			}

			w := watch.New(r.rootDir, session.extensions, r.tel.Logger).
				WithDelay(delay).
				WithEvents(r.tel.Events)
			return w.Run(ctx, run)
		},
	}

	session.register(cmd)
	out.register(cmd)
	cmd.Flags().DurationVar(&delay, "delay", watch.DefaultDelay, "debounce delay after the last change")

	return cmd
}
