package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/abxfeed/internal/config"
	"github.com/danmuck/abxfeed/internal/export"
	"github.com/danmuck/abxfeed/internal/feed"
	"github.com/danmuck/abxfeed/internal/logging"
	"github.com/danmuck/abxfeed/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	configPath     string
	host           string
	port           int
	output         string
	resendInterval time.Duration
	logLevel       string
	metricsFile    string
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{})
}

func buildRootCmd(opts *options) *cobra.Command {
	def := config.Default()

	cmd := &cobra.Command{
		Use:           "abxclient",
		Short:         "Fetch every ABX record, recover sequence gaps, write them as JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML config file")
	flags.StringVar(&opts.host, "host", def.Feed.Host, "ABX server host")
	flags.IntVarP(&opts.port, "port", "p", def.Feed.Port, "ABX server port")
	flags.StringVarP(&opts.output, "output", "o", def.Output, "JSON output path")
	flags.DurationVar(&opts.resendInterval, "resend-interval", def.Feed.ResendInterval, "spacing between resend requests (0 disables)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
	flags.StringVar(&opts.metricsFile, "metrics-textfile", "", "write run metrics in Prometheus text format to this path")

	cmd.AddCommand(newConfigCmd())
	return cmd
}

// resolveConfig layers defaults, the config file, env log overrides, then
// explicitly set flags.
func resolveConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	logging.ApplyEnvOverrides(&cfg.Log)

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Feed.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Feed.Port = opts.port
	}
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("resend-interval") {
		cfg.Feed.ResendInterval = opts.resendInterval
	}
	if flags.Changed("metrics-textfile") {
		cfg.MetricsTextfile = opts.metricsFile
	}
	if flags.Changed("log-level") {
		lvl, ok := logging.ParseLevel(opts.logLevel)
		if !ok {
			return config.Config{}, fmt.Errorf("%w: log level %q", config.ErrInvalid, opts.logLevel)
		}
		cfg.Log.Level = lvl
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	logger, closer := logging.Configure(cfg.Log)
	defer closer.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	defer writeMetrics(logger, metrics, cfg.MetricsTextfile)

	client, err := feed.NewClient(cfg.Feed, feed.WithLogger(logger), feed.WithMetrics(metrics))
	if err != nil {
		return err
	}
	res, err := client.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info().Str("path", cfg.Output).Int("records", len(res.Records)).Msg("saving packets")
	if err := export.WriteFile(cfg.Output, export.FromRecords(res.Records)); err != nil {
		return err
	}
	logger.Info().Str("path", cfg.Output).Msg("done")
	return nil
}

func writeMetrics(logger zerolog.Logger, m *observability.Metrics, path string) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("write metrics textfile failed")
	}
}
