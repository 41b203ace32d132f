package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/execconf/execconf/pkg/config"
	"github.com/execconf/execconf/pkg/engine"
	"github.com/execconf/execconf/pkg/schema"
	"github.com/execconf/execconf/pkg/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// sessionFlags are the flags shared by every command that resolves a unit.
type sessionFlags struct {
	rootDir    string
	extensions []string
	defaults   string
	schemaRef  string
	sets       []string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.rootDir, "root-dir", "r", "", "root directory of all units (required when reading stdin)")
	cmd.Flags().StringSliceVarP(&f.extensions, "extension", "e", []string{"py"}, "allowed unit extensions, in lookup order")
	cmd.Flags().StringVarP(&f.defaults, "defaults", "d", "", "defaults unit, relative to the root directory")
	cmd.Flags().StringVarP(&f.schemaRef, "schema", "s", "", "schema unit, relative to the root directory")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "extra KEY=VALUE applied last (VALUE is parsed as YAML)")
}

// runner executes sessions for one command invocation.
type runner struct {
	loader  *engine.Loader
	rootDir string
	ref     string
	source  []byte
	extra   map[string]any

	tel       *telemetry.Telemetry
	eventsOut io.Closer
}

// newRunner builds the loader and target for args. An empty args list reads
// the root unit from in.
func (f *sessionFlags) newRunner(ctx context.Context, args []string, in io.Reader) (*runner, error) {
	r := &runner{}
	if err := f.target(r, args, in); err != nil {
		return nil, err
	}

	extra, err := parseSets(f.sets)
	if err != nil {
		return nil, err
	}
	r.extra = extra

	if err := r.newTelemetry(); err != nil {
		return nil, err
	}
	logger := r.tel.Logger

	opts := []engine.Option{
		engine.WithExtensions(f.extensions...),
		engine.WithTelemetry(logger, r.tel.Metrics, r.tel.Tracer),
		engine.WithEvents(r.tel.Events),
	}
	if f.defaults != "" {
		opts = append(opts, engine.WithDefaults(engine.DefaultsFile{Path: f.defaults}))
	}
	if f.schemaRef != "" {
		v, err := schema.NewLoader(r.rootDir, f.extensions...).WithLogger(logger).Load(ctx, f.schemaRef)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("failed to load schema %s: %w", f.schemaRef, err)
		}
		opts = append(opts, engine.WithValidator(v))
	}

	if r.loader, err = engine.NewLoader(r.rootDir, opts...); err != nil {
		r.close()
		return nil, err
	}
	return r, nil
}

// newTelemetry builds the telemetry bundle from the global flags.
func (r *runner) newTelemetry() error {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.ListenAddress = metricsAddr
	if traceExport != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExport
		cfg.Tracing.Endpoint = traceTarget
	}
	if eventsPath != "" {
		cfg.Events.Enabled = true
	}

	tel, err := telemetry.NewTelemetryWithLogger(cfg, telemetry.NewFromZerolog(log.Logger))
	if err != nil {
		return err
	}
	r.tel = tel

	if eventsPath == "" {
		return nil
	}
	var w io.Writer = os.Stderr
	if eventsPath != "-" {
		file, err := os.OpenFile(eventsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			r.close()
			return fmt.Errorf("failed to open events file: %w", err)
		}
		w, r.eventsOut = file, file
	}
	tel.Events.Subscribe(telemetry.JSONLinesSubscriber(w, func(err error) {
		log.Warn().Err(err).Msg("Failed to write event")
	}), nil)
	return nil
}

// target decides the root directory and the root unit. A file given without
// --root-dir is resolved in its own directory. A file outside --root-dir is
// evaluated as an in-memory unit of the root directory.
func (f *sessionFlags) target(r *runner, args []string, in io.Reader) error {
	if len(args) == 0 {
		if f.rootDir == "" {
			return fmt.Errorf("reading from stdin requires --root-dir")
		}
		src, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		r.rootDir, r.source = f.rootDir, src
		return nil
	}

	input := args[0]
	if f.rootDir == "" {
		r.rootDir, r.ref = filepath.Dir(input), filepath.Base(input)
		return nil
	}

	r.rootDir = f.rootDir
	absRoot, err := filepath.Abs(f.rootDir)
	if err != nil {
		return err
	}
	absInput, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	if rel, err := filepath.Rel(absRoot, absInput); err == nil && !strings.HasPrefix(rel, "..") {
		r.ref = filepath.ToSlash(rel)
		return nil
	}

	src, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}
	r.source = src
	return nil
}

// resolve runs one session.
func (r *runner) resolve(ctx context.Context) (*config.Config, error) {
	start := time.Now()
	var (
		cfg *config.Config
		err error
	)
	if r.source != nil {
		cfg, err = r.loader.LoadSource(ctx, r.source, r.extra)
	} else {
		cfg, err = r.loader.Load(ctx, r.ref, r.extra)
	}
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("root_dir", r.rootDir).
		Str("ref", r.ref).
		Int("keys", cfg.Len()).
		Dur("duration", time.Since(start)).
		Msg("Configuration resolved")
	return cfg, nil
}

// close drains events, stops the metrics server and flushes pending traces.
func (r *runner) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
	if r.eventsOut != nil {
		_ = r.eventsOut.Close()
	}
}

// parseSets parses KEY=VALUE pairs. Values are YAML scalars or documents.
func parseSets(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected KEY=VALUE", s)
		}
		var value any = raw
		if raw != "" {
			if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
				return nil, fmt.Errorf("invalid --set %s: %w", key, err)
			}
		}
		n, err := config.Normalize(value)
		if err != nil {
			return nil, fmt.Errorf("invalid --set %s: %w", key, err)
		}
		out[key] = n
	}
	return out, nil
}
