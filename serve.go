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

	"taskboard/auth"
	"taskboard/config"
	"taskboard/handlers"
	"taskboard/logging"
	"taskboard/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logging.Init(logOptions(cfg)); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func logOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		SystemName: systemName,
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logging.Logger.Infof("Event ID: SERVER_STARTING, Description: environment %s, auth provider %s", cfg.Env, cfg.AuthProvider)

	pool, err := utils.OpenDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	redisClient, err := utils.OpenRedisPool(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	store := utils.NewStore(pool)
	redisStore := utils.NewRedisStore(redisClient)

	provider, err := newProvider(ctx, cfg, store, redisStore)
	if err != nil {
		return err
	}

	h := &handlers.Handler{
		Users:      store,
		Tasks:      store,
		Resets:     redisStore,
		Auth:       provider,
		Mailer:     newMailer(cfg),
		UndoWindow: cfg.UndoWindow,
		Checks: map[string]handlers.Pinger{
			"postgres": store,
			"redis":    redisStore,
		},
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(h, cfg.StaticDir, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Logger.Infof("Event ID: SERVER_LISTENING, Description: Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Logger.Info("Event ID: SERVER_STOPPING, Description: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newProvider(ctx context.Context, cfg *config.Config, store *utils.Store, redisStore *utils.RedisStore) (auth.Provider, error) {
	switch cfg.AuthProvider {
	case config.ProviderSession:
		return auth.NewSessionProvider(redisStore, cfg.SessionTTL, cfg.CookieSecure), nil
	case config.ProviderFirebase:
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, err
		}
		return auth.NewFirebaseProvider(verifier, store), nil
	default:
		return auth.NewJWTProvider(cfg.JWTSecret, cfg.JWTTTL, cfg.CookieSecure, redisStore), nil
	}
}

func newMailer(cfg *config.Config) utils.Mailer {
	if cfg.SendGridAPIKey == "" {
		logging.Logger.Warn("Event ID: MAIL_DISABLED, Description: SENDGRID_API_KEY not set, reset codes are written to the log")
		return utils.LogMailer{}
	}
	return utils.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFrom)
}
