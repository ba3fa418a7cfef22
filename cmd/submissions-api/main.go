package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/auth"
	"github.com/Helli-o-s/Social-Media-Submission/internal/config"
	"github.com/Helli-o-s/Social-Media-Submission/internal/database"
	"github.com/Helli-o-s/Social-Media-Submission/internal/intake"
	"github.com/Helli-o-s/Social-Media-Submission/internal/logging"
	"github.com/Helli-o-s/Social-Media-Submission/internal/media"
	"github.com/Helli-o-s/Social-Media-Submission/internal/mutation"
	"github.com/Helli-o-s/Social-Media-Submission/internal/notify"
	"github.com/Helli-o-s/Social-Media-Submission/internal/objectstore"
	"github.com/Helli-o-s/Social-Media-Submission/internal/realtime"
	"github.com/Helli-o-s/Social-Media-Submission/internal/server"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/Helli-o-s/Social-Media-Submission/internal/telemetry"
	"github.com/Helli-o-s/Social-Media-Submission/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	serviceName         = "submissions-api"
	shutdownTimeout     = 10 * time.Second
	revocationPruneTick = time.Hour
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Social media submission intake and admin dashboard",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newHashPasswordCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to call the JSON API")
	cmd.PersistentFlags().Bool("secure-cookies", defaults.GetBool("http.secure_cookies"), "Mark session cookies Secure")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("auth.session_ttl_minutes"), "Session lifetime in minutes")
	cmd.PersistentFlags().String("storage-root", defaults.GetString("storage.root"), "Directory holding uploaded images")
	cmd.PersistentFlags().String("public-base-url", defaults.GetString("storage.public_base_url"), "Public URL prefix of uploaded images")
	cmd.PersistentFlags().String("discord-webhook-url", "", "Discord webhook notified about new submissions")
	cmd.PersistentFlags().String("telemetry-endpoint", "", "OTLP HTTP endpoint for traces")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "http.secure_cookies", "secure-cookies")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.session_ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "storage.root", "storage-root")
	bindFlag(cmd, "storage.public_base_url", "public-base-url")
	bindFlag(cmd, "discord.webhook_url", "discord-webhook-url")
	bindFlag(cmd, "telemetry.endpoint", "telemetry-endpoint")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
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

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash to use as admin.password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := users.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(signalCtx, serviceName, appConfig.TelemetryEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	accounts, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	if appConfig.AdminEmail != "" {
		if _, err := accounts.EnsureAccount(signalCtx, appConfig.AdminEmail, appConfig.AdminDisplayName, appConfig.AdminPasswordHash); err != nil {
			return fmt.Errorf("bootstrap admin account: %w", err)
		}
	} else {
		logger.Warn("no admin account configured; set admin.email and admin.password_hash to sign in")
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}
	sessions, err := auth.NewService(auth.ServiceConfig{
		Database:  db,
		Accounts:  accounts,
		Issuer:    issuer,
		Validator: validator,
		Changes:   realtime.NewDispatcher[auth.SessionChange](0),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	insertFeed := realtime.NewDispatcher[submissions.Submission](0)
	store, err := submissions.NewStore(submissions.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: submissions.NewUUIDProvider(),
		Logger:     logger,
		Feed:       insertFeed,
	})
	if err != nil {
		return err
	}

	objects, err := objectstore.NewOS(appConfig.StorageRoot, appConfig.PublicBaseURL)
	if err != nil {
		return err
	}
	thumbnails, err := media.NewThumbnailer(media.ThumbnailerConfig{Source: objects})
	if err != nil {
		return err
	}
	intakeService, err := intake.NewService(intake.Config{
		Objects: objects,
		Records: store,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	editor, err := mutation.NewEditor(mutation.Config{Store: store, Logger: logger})
	if err != nil {
		return err
	}

	if appConfig.DiscordWebhookURL != "" {
		notifier, err := notify.New(notify.Config{
			WebhookURL:   appConfig.DiscordWebhookURL,
			DashboardURL: dashboardURL(appConfig.PublicBaseURL),
			Feed:         store,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := notifier.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("discord notifier stopped", zap.Error(err))
			}
		}()
	}

	go pruneRevokedSessions(signalCtx, sessions, logger)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessions,
		Submissions:    store,
		Intake:         intakeService,
		Editor:         editor,
		Objects:        objects,
		Thumbnails:     thumbnails,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
		SecureCookies:  appConfig.SecureCookies,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func pruneRevokedSessions(ctx context.Context, sessions *auth.Service, logger *zap.Logger) {
	ticker := time.NewTicker(revocationPruneTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.PruneRevoked(ctx)
			if err != nil {
				logger.Warn("revocation prune failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("pruned revoked sessions", zap.Int64("removed", removed))
			}
		}
	}
}

// dashboardURL derives the admin dashboard link from the media base URL, which shares its origin.
func dashboardURL(publicBaseURL string) string {
	base := strings.TrimSuffix(strings.TrimRight(publicBaseURL, "/"), "/media")
	return base + "/admin"
}
