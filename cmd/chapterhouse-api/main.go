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

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/blob"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/config"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/database"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/invalidation"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/readinglist"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/server"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/social"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/users"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	originIDLength  = 12
	shutdownTimeout = 10 * time.Second
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chapterhouse-api",
		Short: "Chapterhouse catalog, comment and reading list service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMigrateCommand(), newIssueTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("redis-url", "", "Redis URL for cross-instance invalidation")
	cmd.PersistentFlags().String("blob-driver", defaults.GetString("blob.driver"), "Upload store (dir, minio)")
	cmd.PersistentFlags().String("blob-dir", defaults.GetString("blob.dir"), "Upload directory for the dir store")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "blob.driver", "blob-driver")
	bindFlag(cmd, "blob.dir", "blob-dir")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and apply data migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, dsn, err := config.LoadDatabase(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(viper.GetString("log.level"), viper.GetString("log.format"))
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.Open(driver, dsn, logger)
			if err != nil {
				return err
			}
			defer closeDatabase(db, logger)
			return database.Migrate(db, logger)
		},
	}
}

func newIssueTokenCommand() *cobra.Command {
	var (
		email       string
		displayName string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token <user-id>",
		Short: "Print a signed session token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(viper.GetString("session.signing_secret")),
				Issuer:        viper.GetString("session.issuer"),
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(auth.Identity{
				UserID:      args[0],
				Email:       email,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	defer closeDatabase(db, logger)
	if err := database.Migrate(db, logger); err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	ids := domain.NewUUIDProvider()
	contentService, err := content.NewService(content.ServiceConfig{Database: db, Clock: time.Now, IDProvider: ids, Logger: logger})
	if err != nil {
		return err
	}
	socialService, err := social.NewService(social.ServiceConfig{Database: db, Clock: time.Now, IDProvider: ids, Logger: logger})
	if err != nil {
		return err
	}
	readingListService, err := readinglist.NewService(readinglist.ServiceConfig{Database: db, Clock: time.Now, IDProvider: ids, Logger: logger})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}

	store, err := openBlobStore(signalCtx, appConfig.Blob)
	if err != nil {
		return err
	}

	originID, err := gonanoid.New(originIDLength)
	if err != nil {
		return err
	}
	origin := "api-" + originID
	dispatcher := server.NewInvalidationDispatcher()

	var publisher invalidation.Publisher
	if strings.TrimSpace(appConfig.RedisURL) != "" {
		redisPublisher, err := invalidation.NewRedisPublisher(appConfig.RedisURL, invalidation.DefaultChannel, logger)
		if err != nil {
			return err
		}
		defer redisPublisher.Close() //nolint:errcheck

		subscription, err := redisPublisher.Subscribe(signalCtx)
		if err != nil {
			return err
		}
		defer subscription.Close() //nolint:errcheck
		go func() {
			if err := subscription.Relay(signalCtx, origin, dispatcher.Publish); err != nil {
				logger.Warn("invalidation relay stopped", zap.Error(err))
			}
		}()
		publisher = redisPublisher
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessionValidator,
		Identities:     userService,
		Content:        contentService,
		Social:         socialService,
		ReadingList:    readingListService,
		Blobs:          store,
		UploadMaxBytes: appConfig.Blob.MaxBytes,
		Realtime:       dispatcher,
		Publisher:      publisher,
		Origin:         origin,
		CommentLimiter: ratelimit.PerMinute(appConfig.CommentsPerMinute),
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
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
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("origin", origin),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("blob_driver", appConfig.Blob.Driver),
		)
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

func openBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Driver {
	case "minio":
		return blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
	default:
		return blob.NewDirStore(cfg.Dir, cfg.PublicPrefix, cfg.MaxBytes)
	}
}

func closeDatabase(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("database close failed", zap.Error(err))
	}
}
