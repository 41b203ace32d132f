package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/execconf/execconf/pkg/config"
	"github.com/execconf/execconf/pkg/format"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// outputFlags select how a resolved configuration is written.
type outputFlags struct {
	typ     string
	output  string
	compact bool
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.typ, "type", "t", format.JSON, fmt.Sprintf("output format %v", format.Names()))
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the result to this file instead of stdout")
	cmd.Flags().BoolVar(&f.compact, "compact", false, "compact JSON output")
}

func (f *outputFlags) formatter() (format.Formatter, error) {
	if f.typ == format.JSON && f.compact {
		return &format.JSONFormatter{}, nil
	}
	return format.New(f.typ)
}

// write formats cfg into the output file, or into stdout when none is set.
func (f *outputFlags) write(stdout io.Writer, cfg *config.Config) error {
	fm, err := f.formatter()
	if err != nil {
		return err
	}
	if f.output == "" {
		if format.IsBinary(f.typ) && isTerminal(stdout) {
			return fmt.Errorf("refusing to write %s output to a terminal, use --output", f.typ)
		}
		return fm.Format(stdout, cfg)
	}

	file, err := os.Create(f.output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := fm.Format(file, cfg); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func newResolveCommand() *cobra.Command {
	var (
		session sessionFlags
		out     outputFlags
	)

	cmd := &cobra.Command{
		Use:   "resolve [file]",
		Short: "Resolve a configuration unit and print the result",
		Long: `Resolve a root unit with all of its includes, apply defaults, extras
and the optional schema, and write the merged mapping.

Without a file argument the root unit is read from stdin and evaluated as if
it lived in --root-dir.`,
		Example: `  # Resolve a unit in its own directory
  execconf resolve conf/prod.py

  # Read the root unit from stdin
  echo 'FOO = True' | execconf resolve --root-dir conf

  # Validate against a schema and write YAML
  execconf resolve conf/prod.py --schema prod.validate.py -t yaml -o prod.yaml

  # Override values after the merge
  execconf resolve conf/prod.py --set PORT=8080 --set DEBUG=true`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := out.formatter(); err != nil {
				return err
			}

			r, err := session.newRunner(cmd.Context(), args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer r.close()

			cfg, err := r.resolve(cmd.Context())
			if err != nil {
				return err
			}
			return out.write(cmd.OutOrStdout(), cfg)
		},
	}

	session.register(cmd)
	out.register(cmd)

	return cmd
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && isatty.IsTerminal(file.Fd())
}
