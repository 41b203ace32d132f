package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCheckCommand() *cobra.Command {
	var session sessionFlags

	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Resolve and validate a configuration unit without printing it",
		Long: `Run a full resolution session and report whether it succeeds.

Path errors, inclusion cycles, evaluation failures and schema violations make
the command exit with a non-zero status.`,
		Example: `  # Check a unit against its schema
  execconf check conf/prod.py --schema prod.validate.py`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := session.newRunner(cmd.Context(), args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer r.close()

			cfg, err := r.resolve(cmd.Context())
			if err != nil {
				return err
			}

			log.Info().
				Str("root_dir", r.rootDir).
				Int("keys", cfg.Len()).
				Msg("Configuration is valid")
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d keys\n", cfg.Len())
			return nil
		},
	}

	session.register(cmd)

	return cmd
}
