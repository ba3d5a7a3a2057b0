package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hookrelay/packages/cache"
	"github.com/abdul-hamid-achik/hookrelay/packages/core/config"
	"github.com/abdul-hamid-achik/hookrelay/packages/journal"
	"github.com/abdul-hamid-achik/hookrelay/packages/logging"
	"github.com/abdul-hamid-achik/hookrelay/packages/relay"
	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

var (
	serveIPFlag         string
	servePortFlag       int
	serveWorkersFlag    int
	serveTTLFlag        string
	serveCapacityFlag   int
	serveMaxBodyFlag    int64
	serveRateFlag       float64
	serveBurstFlag      int
	serveTrustProxyFlag bool
	serveJournalFlag    string
	serveConfigFlag     string
	serveWatchFlag      bool
	serveLogLevelFlag   string
	serveLogFormatFlag  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Run the relay server.

Any request to /push/<key> is captured and echoed back as JSON.
GET /poll/<key> returns everything captured under <key> and forgets it.

Settings come from hookrelay.yaml (or --config), then HOOKRELAY_* environment
variables, then flags.

Examples:
  hookrelay serve
  hookrelay serve --ip 0.0.0.0 --port 9000 --ttl 60000
  hookrelay serve --capacity 100 --rate 20 --burst 40
  hookrelay serve --config hookrelay.yaml --watch
  hookrelay serve --journal relay.db`,
	Args: exactArgs(0),
	RunE: serveCommand,
}

func init() {
	defaults := config.DefaultConfig()

	serveCmd.Flags().StringVarP(&serveIPFlag, "ip", "i", defaults.Host, "Server ip")
	serveCmd.Flags().IntVarP(&servePortFlag, "port", "p", defaults.Port, "Server port")
	serveCmd.Flags().IntVarP(&serveWorkersFlag, "workers", "w", 0, "Server workers - default value is number of logical CPUs")
	serveCmd.Flags().StringVarP(&serveTTLFlag, "ttl", "t", "900000", "Cache TTL in milliseconds, or a duration such as 15m")
	serveCmd.Flags().IntVar(&serveCapacityFlag, "capacity", defaults.Capacity, "Maximum number of keys held at once")
	serveCmd.Flags().Int64Var(&serveMaxBodyFlag, "max-body", defaults.MaxBodyBytes, "Largest request body captured, in bytes")
	serveCmd.Flags().Float64Var(&serveRateFlag, "rate", 0, "Pushes per second allowed per client (0 = unlimited)")
	serveCmd.Flags().IntVar(&serveBurstFlag, "burst", 0, "Push burst allowed per client (default 2x rate)")
	serveCmd.Flags().BoolVar(&serveTrustProxyFlag, "trust-proxy", false, "Take client ip from X-Forwarded-For / X-Real-IP")
	serveCmd.Flags().StringVar(&serveJournalFlag, "journal", "", "Record push/poll/evict events to this SQLite file")
	serveCmd.Flags().StringVar(&serveConfigFlag, "config", getEnvString("HOOKRELAY_CONFIG", ""), "Path to config file (env: HOOKRELAY_CONFIG)")
	serveCmd.Flags().BoolVar(&serveWatchFlag, "watch", false, "Reload log level and rate limit when the config file changes")
	serveCmd.Flags().StringVar(&serveLogLevelFlag, "log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveLogFormatFlag, "log-format", defaults.LogFormat, "Log format: text, json")
}

// loadServeConfig layers defaults, config file, environment and flags.
// It returns the config file path, or "" when none was used.
func loadServeConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := serveConfigFlag
	if path == "" {
		path = config.FindConfigFile(".")
	}

	cfg, err := serveLoader(cmd)(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// serveLoader loads a config file under the environment and the flags the
// user set. Reloads go through it too, so overrides survive file edits.
func serveLoader(cmd *cobra.Command) config.Loader {
	return func(path string) (*config.Config, error) {
		return config.Load(path, applyFlags(cmd))
	}
}

// applyFlags copies the flags the user actually set onto a config
func applyFlags(cmd *cobra.Command) func(*config.Config) {
	flags := cmd.Flags()
	return func(cfg *config.Config) {
		if flags.Changed("ip") {
			cfg.Host = serveIPFlag
		}
		if flags.Changed("port") {
			cfg.Port = servePortFlag
		}
		if flags.Changed("workers") {
			cfg.Workers = serveWorkersFlag
		}
		if flags.Changed("ttl") {
			cfg.TTL = serveTTLFlag
		}
		if flags.Changed("capacity") {
			cfg.Capacity = serveCapacityFlag
		}
		if flags.Changed("max-body") {
			cfg.MaxBodyBytes = serveMaxBodyFlag
		}
		if flags.Changed("rate") {
			cfg.RateLimit = serveRateFlag
		}
		if flags.Changed("burst") {
			cfg.RateBurst = serveBurstFlag
		}
		if flags.Changed("trust-proxy") {
			cfg.TrustProxyHeaders = config.BoolPtr(serveTrustProxyFlag)
		}
		if flags.Changed("journal") {
			cfg.Journal = serveJournalFlag
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = serveLogLevelFlag
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = serveLogFormatFlag
		}
		if flags.Changed("no-color") {
			cfg.NoColor = config.BoolPtr(noColorFlag)
		}
	}
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadServeConfig(cmd)
	if err != nil {
		return configError(err)
	}

	logger := logging.New(logging.Config{
		Level:   zerolog.TraceLevel,
		Format:  logging.ParseFormat(cfg.LogFormat),
		Output:  cmd.ErrOrStderr(),
		NoColor: cfg.GetNoColor(),
	})
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	if cfg.Workers > 0 {
		runtime.GOMAXPROCS(cfg.Workers)
	}
	// Validate has already checked the ttl
	ttl, _ := cfg.TTLDuration()

	var j *journal.Journal
	if cfg.Journal != "" {
		j, err = journal.Open(cfg.Journal)
		if err != nil {
			return configError(err)
		}
		defer j.Close()
	}

	srv := relay.NewServer(
		relay.WithAddr(cfg.Addr()),
		relay.WithCache(cache.New(
			cache.WithCapacity(cfg.Capacity),
			cache.WithTTL(ttl),
		)),
		relay.WithBuilder(snapshot.NewBuilder(
			snapshot.WithMaxBodyBytes(cfg.MaxBodyBytes),
			snapshot.WithTrustProxyHeaders(cfg.GetTrustProxyHeaders()),
			snapshot.WithLogger(logger),
		)),
		relay.WithLogger(logger),
		relay.WithJournal(j),
		relay.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveWatchFlag {
		if cfgPath == "" {
			return usageError(fmt.Errorf("--watch needs a config file"))
		}
		go watchConfig(ctx, cfgPath, serveLoader(cmd), srv, logger)
	}

	if cfgPath != "" {
		logger.Info().Str("config", cfgPath).Msg("loaded config file")
	}
	logger.Info().
		Str("workers", workersLabel(cfg.Workers)).
		Int64("max_body", cfg.MaxBodyBytes).
		Float64("rate", cfg.RateLimit).
		Str("journal", cfg.Journal).
		Msg("starting relay")

	return srv.ListenAndServe(ctx)
}

func watchConfig(ctx context.Context, path string, load config.Loader, srv *relay.Server, logger zerolog.Logger) {
	err := config.Watch(ctx, path, load,
		func(c *config.Config) {
			logging.SetLevel(logging.ParseLevel(c.LogLevel))
			srv.SetRateLimit(c.RateLimit, c.RateBurst)
			logger.Info().Str("config", path).Str("log_level", c.LogLevel).Msg("config reloaded")
		},
		func(err error) {
			logger.Warn().Err(err).Str("config", path).Msg("config reload failed")
		},
	)
	if err != nil {
		logger.Error().Err(err).Msg("config watch stopped")
	}
}

func workersLabel(n int) string {
	if n <= 0 {
		return strconv.Itoa(runtime.GOMAXPROCS(0)) + " (default)"
	}
	return strconv.Itoa(n)
}
