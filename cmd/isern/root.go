package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dport96/ISERN-Graph/internal/config"
	"github.com/dport96/ISERN-Graph/internal/events"
	"github.com/dport96/ISERN-Graph/internal/observability"
	"github.com/dport96/ISERN-Graph/internal/pipeline"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "isern",
		Short: "ISERN collaboration graph",
		Long: `isern resolves ISERN member names against publication sources, builds the
coauthorship graph and labels every member with an ISERN number: the collaboration
distance to the nearest founder.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/isern-graph/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newDiscoverCmd(opts),
		newScoreCmd(opts),
		newServeCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

// load reads the configuration and builds the logger for a subcommand.
func (o *globalOptions) load(component string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger := observability.NewLogger(cfg.Logging.Observability())
	return cfg, logger.With().Str("component", component).Logger(), nil
}

// eventOptions returns the pipeline option publishing run events when cfg enables them,
// and the cleanup that flushes the publisher.
func eventOptions(cfg config.EventsConfig, logger zerolog.Logger) ([]pipeline.Option, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	pub, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create event publisher: %w", err)
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("run events enabled")
	closeFn := func() {
		if err := pub.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}
	return []pipeline.Option{pipeline.WithEvents(pub)}, closeFn, nil
}
