package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/frontapp-tap/pkg/checkpoint"
	"github.com/Sternrassler/frontapp-tap/pkg/client"
	"github.com/Sternrassler/frontapp-tap/pkg/config"
	"github.com/Sternrassler/frontapp-tap/pkg/extract"
	"github.com/Sternrassler/frontapp-tap/pkg/logging"
	"github.com/Sternrassler/frontapp-tap/pkg/metrics"
	"github.com/Sternrassler/frontapp-tap/pkg/output"
	"github.com/Sternrassler/frontapp-tap/pkg/pagination"
	"github.com/Sternrassler/frontapp-tap/pkg/ratelimit"
	"github.com/Sternrassler/frontapp-tap/pkg/stream"
)

type runOptions struct {
	configPath  string
	envFile     string
	resume      bool
	discover    bool
	metricsAddr string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "frontapp-tap",
		Short: "Extract FrontApp events as Singer messages",
		Long: `frontapp-tap pages through the FrontApp /events endpoint and writes
SCHEMA, RECORD and STATE messages to stdout. Logs go to stderr.

Settings come from the --config JSON file and FRONTAPP_* environment
variables, e.g. FRONTAPP_API_KEY and FRONTAPP_RATE_LIMIT_QUOTA_PCT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.discover {
				return output.WriteCatalog(stdout, stream.NewEventsStream(config.ExtractionConfig{}))
			}
			return run(cmd.Context(), opts, stdout, stderr)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "JSON config file")
	cmd.Flags().StringVar(&opts.envFile, "env-file", "", "load environment variables from a .env file")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "continue from the stored checkpoint (requires redis_url)")
	cmd.Flags().BoolVar(&opts.discover, "discover", false, "print the stream catalog and exit")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "frontapp-tap %s (%s)\n", version, commit)
		},
	})

	return cmd
}

func run(ctx context.Context, opts runOptions, stdout, stderr io.Writer) error {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	settings, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(settings.LogLevel),
		Pretty: settings.LogPretty,
		Output: stderr,
	})

	runID := uuid.NewString()
	logger := logging.WithRun(logging.NewLogger("tap"), runID)

	extraction, err := settings.Extraction()
	if err != nil {
		return err
	}
	events := stream.NewEventsStream(extraction)

	clientCfg := client.DefaultConfig(settings.BaseURL(), settings.APIKey)
	clientCfg.Timeout = settings.RequestTimeout
	clientCfg.RequestsPerSecond = settings.RequestsPerSecond
	transport, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	var redisClient *redis.Client
	if settings.RedisURL != "" {
		redisOpts, err := redis.ParseURL(settings.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis_url: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
	}

	if opts.resume && redisClient == nil {
		return errors.New("--resume requires redis_url")
	}

	loopLogger := logging.WithRun(logging.NewLogger("extract"), runID)
	loopOpts := extract.Options{
		Transport: transport,
		Stream:    events,
		Tracker:   ratelimit.NewTracker(redisClient, logging.WithRun(logging.NewLogger("ratelimit"), runID)),
		Resume:    opts.resume,
		Logger:    &loopLogger,
	}
	loopOpts.Retry = client.DefaultRetryConfig()
	loopOpts.Retry.MaxAttempts = settings.MaxRetries

	if redisClient != nil {
		key := checkpoint.KeyFor(events.Name(), pagination.FirstPageParams(extraction))
		loopOpts.Checkpoint = checkpoint.NewStore(redisClient, key, checkpoint.DefaultTTL).WithRunID(runID)
	}

	if opts.metricsAddr != "" {
		srv, err := metrics.Listen(opts.metricsAddr, logging.NewLogger("metrics"))
		if err != nil {
			return err
		}
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := srv.Serve(metricsCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	loop, err := extract.New(loopOpts)
	if err != nil {
		return err
	}

	writer := output.NewWriter(stdout, nil).WithRunID(runID)
	if err := writer.WriteStream(events); err != nil {
		return err
	}

	result, err := loop.Run(ctx, writer)
	if err != nil {
		return err
	}

	logger.Info().
		Int("pages", result.Pages).
		Int("records", result.Records).
		Dur("waited", result.Waited).
		Msg("Run finished")

	return nil
}
