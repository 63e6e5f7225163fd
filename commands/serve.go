package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edudati/openheal-research/handlers"
	"github.com/edudati/openheal-research/notices"
	"github.com/edudati/openheal-research/openheal"
	"github.com/edudati/openheal-research/repositories"
	api "github.com/edudati/openheal-research/routes"
	"github.com/edudati/openheal-research/services"
	"github.com/edudati/openheal-research/storage"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, os.Stdout, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	if cfg.JWTSecretKey == "" {
		return errors.New("JWT_SECRET_KEY environment variable is not set")
	}
	if cfg.IngestAPIKey == "" {
		logger.Warn("API_INGEST_KEY is not set, telemetry ingest is unauthenticated")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Архив телеметрии в Cloudflare R2 (необязателен)
	var archiver storage.Archiver
	if cfg.ArchiveEnabled() {
		var err error
		archiver, err = storage.NewCloudflareR2Archiver(ctx, storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 archiver: %w", err)
		}
		logger.Info("Cloudflare R2 archiver initialized", slog.String("bucket", cfg.R2BucketName))
	} else {
		logger.Info("telemetry archive disabled")
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := notices.NewHub(logger)
	go wsHub.Run(hubCtx)
	logger.Info("WebSocket Hub started")

	// Репозитории
	studyRepo := repositories.NewPostgresStudyRepository(a.local)
	researcherRepo := repositories.NewPostgresResearcherRepository(a.local)
	participantRepo := repositories.NewPostgresParticipantRepository(a.local)
	matchRepo := repositories.NewPostgresMatchRepository(a.local)
	ballRepo := repositories.NewPostgresBallRepository(a.local)
	ingestRepo := repositories.NewPostgresIngestRepository(a.local)
	source := openheal.NewSource(a.source)

	// Сервисы
	policy := services.NewAccessPolicy(researcherRepo)
	authService := services.NewAuthService(a.local, researcherRepo, studyRepo, cfg.JWTSecretKey, logger)
	studyService := services.NewStudyService(studyRepo, policy)
	syncService := services.NewSyncService(a.local, source, matchRepo, logger)
	participantService := services.NewParticipantService(a.local, participantRepo, studyRepo, matchRepo, source, syncService, policy, wsHub, logger)
	matchService := services.NewMatchService(matchRepo, ballRepo, participantRepo, policy, logger)
	ingestService := services.NewIngestService(ingestRepo, archiver, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		api.Options{
			JWTSecret:      cfg.JWTSecretKey,
			IngestAPIKey:   cfg.IngestAPIKey,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Logger:         logger,
		},
		handlers.NewAuthHandler(authService, logger),
		handlers.NewStudyHandler(studyService, logger),
		handlers.NewParticipantHandler(participantService, logger),
		handlers.NewMatchHandler(matchService, logger),
		handlers.NewIngestHandler(ingestService, logger),
		handlers.NewWebSocketHandler(wsHub, studyService, cfg.CORSAllowedOrigins, logger),
	)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		stopHub()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return err
		}
		logger.Info("server shutdown complete")
	}
	return nil
}
