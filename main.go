package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jssprz/pricewatcher/config"
	"jssprz/pricewatcher/internal/api"
	"jssprz/pricewatcher/internal/bgg"
	"jssprz/pricewatcher/internal/extract"
	"jssprz/pricewatcher/internal/render"
	"jssprz/pricewatcher/internal/scraper"
	"jssprz/pricewatcher/internal/storage"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/services/cache"
	"jssprz/pricewatcher/services/publisher"
	"jssprz/pricewatcher/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Initialize services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	if len(os.Args) > 1 {
		err := runCommand(ctx, services, os.Args[1:], os.Stdout)
		services.Cleanup()
		if err != nil {
			log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
			os.Exit(1)
		}
		return
	}
	defer services.Cleanup()

	log.Info().
		Str("environment", cfg.Environment).
		Str("renderer", cfg.Renderer).
		Str("schedule", cfg.RefreshSchedule).
		Msg("Starting application")

	if err := services.Refresher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start price refresher")
	}

	apiDone := make(chan error, 1)
	if cfg.APIAddr != "" {
		server := api.NewServer(services.Service, services.Repository, api.Options{
			RateLimit:      cfg.APIRateLimit,
			AllowedOrigins: cfg.AllowedOrigins,
			BGG:            services.BGG,
		})
		go func() {
			apiDone <- server.ListenAndServe(ctx, cfg.APIAddr)
		}()
	}

	// Wait for shutdown signal or API error
	select {
	case <-ctx.Done():
	case err := <-apiDone:
		if err != nil {
			log.Error().Err(err).Msg("HTTP adapter exited with error")
		}
		cancel()
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	services.Refresher.Stop()
}

// Services holds all the initialized services
type Services struct {
	Cache      cache.CacheService
	Repository storage.Repository
	Publisher  publisher.Publisher
	Service    *scraper.Service
	Refresher  *worker.Refresher
	BGG        *bgg.Client

	closers []func() error
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("Cleanup failed: %v", err)
		}
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	if cfg.MemcacheAddr != "" {
		memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcacheService.Ping(); err != nil {
			return nil, fmt.Errorf("failed to reach memcache at %s: %w", cfg.MemcacheAddr, err)
		}
		services.Cache = memcacheService
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	} else {
		services.Cache = cache.NewMemoryCache()
		logger.Info("Using in-process cache")
	}

	// Initialize repository
	repo, err := storage.OpenSQL(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	services.Repository = repo
	services.closers = append(services.closers, repo.Close)

	// Initialize publisher; observations are still stored when Redis is down
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(publisher.RedisOptions{
			Addr:            cfg.RedisAddr,
			DB:              cfg.RedisDB,
			StreamPrefix:    cfg.RedisStream,
			StreamCount:     cfg.RedisStreamCount,
			StreamMaxLength: cfg.RedisStreamMaxLength,
		})
		if err := redisPublisher.Ping(ctx); err != nil {
			logger.Warn("Redis at %s unreachable, publishing disabled: %v", cfg.RedisAddr, err)
			redisPublisher.Close()
		} else {
			services.Publisher = redisPublisher
			services.closers = append(services.closers, redisPublisher.Close)
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	// Initialize templates
	templates := extract.DefaultTable()
	if cfg.TemplatesFile != "" {
		templates, err = extract.LoadFile(cfg.TemplatesFile)
		if err != nil {
			services.Cleanup()
			return nil, err
		}
		logger.Info("Loaded extraction templates from %s", cfg.TemplatesFile)
	}

	// Initialize renderer
	var renderer render.Renderer
	switch cfg.Renderer {
	case "http":
		renderer = render.NewHTTPRenderer(render.HTTPOptions{
			UserAgent: cfg.BotUserAgent,
			Locale:    cfg.BrowserLocale,
			Timeout:   cfg.NavigationTimeout,
		})
	default:
		renderer = render.NewBrowserRenderer(render.BrowserOptions{
			Bin:               cfg.BrowserBin,
			UserAgent:         cfg.BotUserAgent,
			Locale:            cfg.BrowserLocale,
			NavigationTimeout: cfg.NavigationTimeout,
		})
	}
	renderer = render.Throttled(renderer, render.NewHostThrottle(cfg.HostDelay, services.Cache))

	services.Service = scraper.NewService(
		scraper.New(renderer, templates, cfg.DefaultCurrency),
		services.Repository,
		services.Publisher,
	)

	services.Refresher = worker.NewRefresher(services.Repository, services.Service, services.Publisher, worker.Options{
		Schedule:    cfg.RefreshSchedule,
		Concurrency: cfg.RefreshConcurrency,
	})

	services.BGG = bgg.NewClient(bgg.Options{
		BaseURL:   cfg.BGGBaseURL,
		Cache:     services.Cache,
		CacheTTL:  cfg.BGGCacheTTL,
		RateLimit: cfg.BGGRate,
		UserAgent: cfg.BotUserAgent,
	})

	return services, nil
}
