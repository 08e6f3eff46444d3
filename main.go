package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dealmungchi/pricewatcher/config"
	"github.com/dealmungchi/pricewatcher/internal/crawler"
	"github.com/dealmungchi/pricewatcher/internal/history"
	"github.com/dealmungchi/pricewatcher/internal/orchestrator"
	"github.com/dealmungchi/pricewatcher/internal/policy"
	"github.com/dealmungchi/pricewatcher/logger"
	"github.com/dealmungchi/pricewatcher/services/cache"
	"github.com/dealmungchi/pricewatcher/services/notify"
	"github.com/dealmungchi/pricewatcher/services/proxy"
	"github.com/dealmungchi/pricewatcher/services/publisher"
	"github.com/dealmungchi/pricewatcher/services/storage"
	"github.com/dealmungchi/pricewatcher/services/worker"
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

	log.Info().
		Str("environment", cfg.Environment).
		Str("schedule", cfg.CrawlSchedule).
		Str("timezone", cfg.Timezone).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	fetcher := crawler.NewFetcher(crawler.FetcherOptions{
		Policy:       crawler.NewPolicy(cfg.FetchPolicy),
		Timeout:      cfg.HTTPTimeout,
		HeadlessWait: cfg.HeadlessWait,
		BlockTime:    cfg.RateLimitBlock,
		Cache:        services.Cache,
		Proxies:      services.Proxies,
		Browser:      services.Browser,
	})

	registry := crawler.CreateRegistry()
	log.Info().Int("patterns", registry.Len()).Msg("Created adapter registry")

	crawls := orchestrator.New(orchestrator.Options{
		Repository: services.Store,
		Adapters:   registry,
		Fetcher:    fetcher,
		History:    history.NewTracker(services.Store, cfg.Location),
		Engine: policy.NewEngine(policy.Config{
			NotifyAnyChange:   cfg.NotifyAnyChange,
			HistoryPriceScale: cfg.LowestWithinPriceScale,
		}),
		Notifier: notify.NewStreamNotifier(services.Notifications),
		Feed:     notify.NewStreamFeed(services.Feed, cfg.FeedSourceLabel),
	})

	// Create and start worker
	w := worker.NewWorker(
		ctx,
		services.Store,
		crawls,
		[]publisher.Publisher{services.Notifications, services.Feed},
		cfg.CrawlSchedule,
		cfg.CrawlConcurrency,
	)
	if err := w.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker")
	}

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().
		Str("signal", sig.String()).
		Msg("Received shutdown signal")
	cancel()

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	select {
	case <-w.Stop().Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Timed out waiting for running crawls")
	}
}

// Services holds all the initialized services
type Services struct {
	Store         *storage.PostgresStore
	Cache         cache.CacheService
	Proxies       proxy.ProxyManager
	Browser       *crawler.RodBrowser
	Redis         *redis.Client
	Notifications *publisher.RedisPublisher
	Feed          *publisher.RedisPublisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Browser != nil {
		s.Browser.Close()
	}
	if s.Redis != nil {
		s.Redis.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize storage
	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, int32(cfg.CrawlConcurrency+2))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	services.Store = store
	logger.Info("Connected to Postgres")

	// Initialize cache service; rate-limit blocks stay in process without memcache
	memcache := cache.NewMemcacheService(cfg.MemcacheAddr)
	if err := memcache.Ping(); err != nil {
		logger.Warn("Memcache at %s unavailable (%v), using in-memory cache", cfg.MemcacheAddr, err)
		services.Cache = cache.NewMemoryService()
	} else {
		services.Cache = memcache
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	// Initialize proxies
	if len(cfg.ProxyURLs) > 0 {
		rotator, err := proxy.NewRotator(cfg.ProxyURLs, 10*time.Minute)
		if err != nil {
			services.Cleanup()
			return nil, fmt.Errorf("failed to configure proxies: %w", err)
		}
		services.Proxies = rotator
		logger.Info("Using %d proxies", rotator.Len())
	}

	// Initialize publishers sharing one connection
	services.Redis = redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := services.Redis.Ping(ctx).Err(); err != nil {
		services.Cleanup()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	services.Notifications = publisher.NewRedisPublisherWithClient(
		services.Redis, cfg.NotificationStream, cfg.RedisStreamCount, cfg.RedisStreamMaxLength)
	services.Feed = publisher.NewRedisPublisherWithClient(
		services.Redis, cfg.FeedStream, cfg.RedisStreamCount, cfg.RedisStreamMaxLength)

	logger.Info("Connected to Redis at %s (DB: %d, Streams: %s, %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.NotificationStream, cfg.FeedStream)

	// Headless browser launches on first use
	services.Browser = crawler.NewRodBrowser(cfg.ChromeBin)

	return services, nil
}
