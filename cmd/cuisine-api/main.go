package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/config"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cuisine-api",
		Short: "Family recipe catalog backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newIssueTokenCommand())
	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func newIssueTokenCommand() *cobra.Command {
	var (
		subject string
		email   string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Sign a development access token for the self-hosted store",
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(viper.GetString("auth.jwt_secret")),
				Issuer:        viper.GetString("auth.issuer"),
				Audience:      viper.GetString("auth.audience"),
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.IssueAccessToken(subject, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "User id placed in the sub claim")
	cmd.Flags().StringVar(&email, "email", "", "Email placed in the email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded when present")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("store-backend", defaults.GetString("store.backend"), "Data store backend (postgrest, database)")
	cmd.PersistentFlags().String("postgrest-url", "", "Base URL of the hosted data API")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Relational driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Relational connection string")
	cmd.PersistentFlags().String("cache-backend", defaults.GetString("cache.backend"), "Read cache backend (memory, redis)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "store.backend", "store-backend")
	bindFlag(cmd, "postgrest.url", "postgrest-url")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "cache.backend", "cache-backend")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{Level: appConfig.LogLevel, Format: appConfig.LogFormat})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	events := server.NewEventHub()
	app, err := buildApplication(ctx, appConfig, events, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	validator, err := auth.NewTokenValidator(auth.TokenValidatorConfig{
		SigningSecret: []byte(appConfig.JWTSecret),
		Issuer:        appConfig.JWTIssuer,
		Audience:      appConfig.JWTAudience,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenValidator: validator,
		Catalog:        app.Service,
		Events:         events,
		Logger:         logger,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		RateLimit: server.RateLimitConfig{
			RPS:   appConfig.RateLimitRPS,
			Burst: appConfig.RateLimitBurst,
		},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store_backend", appConfig.StoreBackend),
			zap.String("cache_backend", appConfig.CacheBackend),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
