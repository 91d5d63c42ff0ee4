package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dport96/ISERN-Graph/internal/config"
	"github.com/dport96/ISERN-Graph/internal/database"
	"github.com/dport96/ISERN-Graph/internal/pipeline"
	"github.com/dport96/ISERN-Graph/internal/repository"
)

type discoverOptions struct {
	persist   bool
	format    string
	threshold float64
	workers   int
	static    string
}

func newDiscoverCmd(global *globalOptions) *cobra.Command {
	opts := &discoverOptions{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run collaboration discovery and print ISERN numbers",
		Long: `discover queries the enabled publication sources for every roster member,
resolves coauthor names back to the roster, and prints the resulting ISERN numbers
together with discovery and network statistics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(opts.format); err != nil {
				return err
			}
			cfg, logger, err := global.load("discover")
			if err != nil {
				return err
			}
			opts.apply(cfg, cmd.Flags().Changed)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var svcOpts []pipeline.Option
			if opts.persist {
				db, err := database.New(ctx, &cfg.Database, logger)
				if err != nil {
					return fmt.Errorf("connect to database: %w", err)
				}
				defer db.Close()
				svcOpts = append(svcOpts, pipeline.WithRepository(repository.NewPgRunRepository(db, logger)))
			}

			eventOpts, closeEvents, err := eventOptions(cfg.Events, logger)
			if err != nil {
				return err
			}
			defer closeEvents()
			svcOpts = append(svcOpts, eventOpts...)

			svc, err := pipeline.FromConfig(cfg, logger, nil, svcOpts...)
			if err != nil {
				return fmt.Errorf("configure pipeline: %w", err)
			}
			return runDiscover(ctx, svc, logger, cmd.OutOrStdout(), opts.format)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.persist, "persist", false, "record the run in PostgreSQL")
	f.StringVarP(&opts.format, "output", "o", formatText, "output format (text, json)")
	f.Float64Var(&opts.threshold, "threshold", 0, "override matching.threshold")
	f.IntVar(&opts.workers, "workers", 0, "override discovery.workers")
	f.StringVar(&opts.static, "static", "", "read publications from this file instead of the online sources")
	return cmd
}

// apply overlays the flags changed reports as set on the loaded configuration. Values are
// copied as given; Config.Validate rejects out-of-range ones.
func (o *discoverOptions) apply(cfg *config.Config, changed func(name string) bool) {
	if changed("threshold") {
		cfg.Matching.Threshold = o.threshold
	}
	if changed("workers") {
		cfg.Discovery.Workers = o.workers
	}
	if o.static != "" {
		cfg.Sources.Static = config.StaticConfig{Enabled: true, Path: o.static}
		cfg.Sources.DBLP.Enabled = false
		cfg.Sources.OpenAlex.Enabled = false
	}
}

type discoverer interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

func runDiscover(ctx context.Context, svc discoverer, logger zerolog.Logger, out io.Writer, format string) error {
	start := time.Now()
	res, err := svc.Run(ctx)
	if res != nil && res.Run != nil {
		logger.Info().
			Str("run_id", res.Run.ID.String()).
			Str("status", string(res.Run.Status)).
			Dur("elapsed", time.Since(start)).
			Msg("discovery finished")
	}
	if err != nil {
		return fmt.Errorf("run discovery: %w", err)
	}
	return writeReport(out, res, format)
}
