package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose     bool
	metricsAddr string
	traceExport string
	traceTarget string
	eventsPath  string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "execconf",
		Short: "execconf - composable configuration resolver",
		Long: `execconf resolves a root configuration unit into one merged mapping.

Units are Starlark scripts, YAML/JSON documents or CUE files under one root
directory. Script units compose other units with include(), merge() and
merge_option(), and the result can be checked against a schema unit.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (watch only)")
	rootCmd.PersistentFlags().StringVar(&traceExport, "trace", "", "trace exporter: stdout or otlp")
	rootCmd.PersistentFlags().StringVar(&traceTarget, "otlp-endpoint", "localhost:4317", "OTLP collector endpoint")
	rootCmd.PersistentFlags().StringVar(&eventsPath, "events", "", "append session events as JSON lines to this file (- for stderr)")

	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
