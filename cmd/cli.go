package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lectio/lectio/auth"
	"github.com/lectio/lectio/client"
	"github.com/lectio/lectio/config"
	"github.com/lectio/lectio/db"
	"github.com/lectio/lectio/pkg/clierr"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute(ctx context.Context) int {
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := createRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		rootCmd.PrintErrln("Error:", err.Error())
		return clierr.ExitCode(err)
	}
	return 0
}

func createRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "lectio",
		Short:         "A client for the lecture analytics backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a config file (default $LECTIO_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Backend API root, overrides api.base_url")
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	rootCmd.AddCommand(
		loginCmd(a),
		signupCmd(a),
		logoutCmd(a),
		statusCmd(a),
		lecturesCmd(a),
		devserverCmd(),
		versionCmd(a),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

// app holds what a command needs to talk to the backend. It is built
// lazily so that commands like version work without any configuration.
type app struct {
	configPath string
	apiURL     string

	cfg     *config.Config
	api     *client.Client
	service *auth.Service
	closers []func() error
}

// withSession wraps a command body so it runs with an opened session and
// returns user-facing errors.
func (a *app) withSession(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd.Context()); err != nil {
			return toCLIError(err)
		}
		defer a.close()
		return toCLIError(fn(cmd, args))
	}
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL
		if err := cfg.Validate(); err != nil {
			return clierr.New(clierr.Validation, err.Error(), err)
		}
	}
	configureLogLevel(cfg.Log.Level)

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		a.close()
		return err
	}

	api := client.New(cfg.API.BaseURL,
		client.WithTimeout(cfg.API.Timeout),
		client.WithRetries(cfg.API.Retries, time.Second),
		client.WithRateLimit(cfg.API.RateLimit),
		client.WithUploadRateLimit(cfg.API.UploadRateLimit),
	)
	service := auth.NewService(store, api)
	api.SetAuthorizer(service.Gateway())

	a.cfg, a.api, a.service = cfg, api, service
	log.Debug().Str("api", cfg.API.BaseURL).Str("store", cfg.Store.Backend).Msg("Session opened")
	return nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config) (auth.TokenStore, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn().Msg("Memory store selected, the session ends with this process")
		return auth.NewMemoryStore(), nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, clierr.New(clierr.Network, fmt.Sprintf("Cannot reach redis at %s.", cfg.Redis.Addr), err)
		}
		return auth.NewRedisStore(rdb, cfg.Redis.Prefix), nil
	default:
		gormDB, err := db.Open(cfg.Store.Path)
		if err != nil {
			return nil, clierr.New(clierr.Internal, "Failed to open the session database.", err)
		}
		a.closers = append(a.closers, func() error { return db.Close(gormDB) })
		return auth.NewSQLStore(db.NewCredentialRepository(gormDB)), nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error().Err(err).Msg("Failed to close session resource")
		}
	}
	a.closers = nil
}

// configureLogLevel applies log.level unless DEBUG_LECTIO already forced debug.
func configureLogLevel(level string) {
	if os.Getenv("DEBUG_LECTIO") != "" {
		return
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return
	}
	zerolog.SetGlobalLevel(lvl)
}
