package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/npezzotti/ravenchat/internal/api"
	"github.com/npezzotti/ravenchat/internal/config"
	"github.com/npezzotti/ravenchat/internal/connect"
	"github.com/npezzotti/ravenchat/internal/content"
	"github.com/npezzotti/ravenchat/internal/database"
	"github.com/npezzotti/ravenchat/internal/logging"
	"github.com/npezzotti/ravenchat/internal/server"
	"github.com/npezzotti/ravenchat/internal/stats"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	shutdownTimeout   = 10 * time.Second
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ravenchat",
		Short: "Ravenchat chat server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("addr", defaults.GetString("http.address"), "server address")
	flags.String("database-driver", defaults.GetString("database.driver"), "storage backend (postgres, memory)")
	flags.String("dsn", defaults.GetString("database.dsn"), "database connection string")
	flags.String("ledger-backend", defaults.GetString("ledger.backend"), "attempt ledger backend (database, redis)")
	flags.String("redis-addr", defaults.GetString("redis.address"), "redis address for the attempt ledger")
	flags.String("signing-key", defaultSigningKey, "base64 encoded signing key")
	flags.StringSlice("allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	flags.String("log-level", defaults.GetString("log.level"), "log level (debug, info, warn, error)")
	flags.String("content-endpoint", "", "text generation endpoint, templates are used when empty")
	flags.Duration("content-timeout", defaults.GetDuration("content.timeout"), "text generation request timeout")

	bindFlag(cmd, "http.address", "addr")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "dsn")
	bindFlag(cmd, "ledger.backend", "ledger-backend")
	bindFlag(cmd, "redis.address", "redis-addr")
	bindFlag(cmd, "auth.signing_key", "signing-key")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "content.endpoint", "content-endpoint")
	bindFlag(cmd, "content.timeout", "content-timeout")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// a missing .env file is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func openRepository(cfg *config.Config, logger *zap.Logger) (database.Repository, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return database.NewMemoryRepository(), nil
	}

	repo, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, err
	}

	return repo, nil
}

// attemptStore returns the ledger backend and a cleanup func for it.
func attemptStore(ctx context.Context, cfg *config.Config, repo database.Repository) (database.AttemptStore, func() error, error) {
	if cfg.LedgerBackend != config.LedgerRedis {
		return repo, func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	return database.NewRedisAttemptStore(client), client.Close, nil
}

func generators(cfg *config.Config, logger *zap.Logger) (poems, cryptic content.Generator) {
	poems, cryptic = content.NewPoemGenerator(), content.NewCrypticGenerator()
	if cfg.Content.Endpoint == "" {
		return poems, cryptic
	}

	svcCfg := content.ServiceConfig{
		Endpoint: cfg.Content.Endpoint,
		APIKey:   cfg.Content.APIKey,
		Timeout:  cfg.Content.Timeout,
	}

	return content.NewServiceGenerator(svcCfg, content.PoemPrompt, poems, logger),
		content.NewServiceGenerator(svcCfg, content.CrypticPrompt, cryptic, logger)
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("db close", zap.Error(err))
		}
	}()

	attempts, closeAttempts, err := attemptStore(ctx, cfg, repo)
	if err != nil {
		return err
	}
	defer closeAttempts() //nolint:errcheck

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	poems, cryptic := generators(cfg, logger)
	svc := connect.NewService(repo, logger, connect.Options{
		AttemptStore: attempts,
		Poems:        poems,
		Cryptic:      cryptic,
		Stats:        statsUpdater,
	})

	chatServer, err := server.NewChatServer(logger, statsUpdater)
	if err != nil {
		return fmt.Errorf("new chat server: %w", err)
	}
	go chatServer.Run()

	app := api.NewApp(mux, logger, chatServer, svc, cfg)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		err := app.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
		logger.Error("server", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("shutting down chat server")
	if err := chatServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("chat server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return runErr
}
