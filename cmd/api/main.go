package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vidgen/internal/adapter/repo"
	"vidgen/internal/adapter/sqlite"
	"vidgen/internal/domain"
	"vidgen/internal/http/handlers"
	"vidgen/internal/http/httpapi"
	"vidgen/internal/infra"
	"vidgen/internal/infra/geoip"
	"vidgen/internal/middleware"
	"vidgen/internal/providers/replicate"
	"vidgen/internal/videogen"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		accounts domain.AccountRepository
		videos   domain.VideoRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		accounts = repo.NewAccountRepository(pool)
		videos = repo.NewVideoRepository(pool)
		logger.Info().Msg("using postgres backend")
	} else {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open sqlite store")
		}
		defer store.Close()
		accounts = store.Accounts()
		videos = store.Videos()
		logger.Info().Str("path", cfg.SQLitePath).Msg("using sqlite backend")
	}

	client, err := replicate.NewClient(replicate.Options{
		APIToken:     cfg.ReplicateAPIToken,
		BaseURL:      cfg.ReplicateBaseURL,
		ModelVersion: cfg.ReplicateModelVersion,
		Logger:       &logger,
		PollInterval: cfg.PollInterval,
		MaxWait:      cfg.PollMaxWait,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build replicate client")
	}

	service := videogen.NewService(accounts, videos, client, logger, videogen.Config{
		ModelVersion:   cfg.ReplicateModelVersion,
		GenerationCost: cfg.GenerationCost,
	})

	sweeper := videogen.NewSweeper(service, cfg.SweepInterval, cfg.SweepStaleAfter, logger)
	go sweeper.Run(ctx)

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Service:       service,
		Accounts:      accounts,
		Logger:        logger,
		JWTSecret:     cfg.JWTSecret,
		SignupCredits: cfg.SignupCredits,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   lookup,
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
