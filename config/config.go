package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dealmungchi/pricewatcher/logger"
	"github.com/dealmungchi/pricewatcher/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Postgres connection string
	DatabaseURL string

	// Redis configuration for the notification and feed streams
	RedisAddr            string
	RedisDB              int
	NotificationStream   string
	FeedStream           string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration, used for rate-limit blocks
	MemcacheAddr   string
	RateLimitBlock time.Duration

	// Worker configuration
	CrawlSchedule    string
	CrawlConcurrency int

	// Fetcher configuration
	HTTPTimeout     time.Duration
	HeadlessWait    time.Duration
	ChromeBin       string
	ProxyURLs       []string
	FetchPolicyFile string
	FetchPolicy     FetchPolicy

	// Notification policy
	NotifyAnyChange        bool
	LowestWithinPriceScale float64
	FeedSourceLabel        string

	// Timezone used to bucket price history by calendar day
	Timezone string
	Location *time.Location

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "1000"))
	blockSeconds, _ := strconv.Atoi(getEnv("RATE_LIMIT_BLOCK_SECONDS", "300"))
	concurrency, _ := strconv.Atoi(getEnv("CRAWL_CONCURRENCY", "4"))
	httpTimeout, _ := strconv.Atoi(getEnv("HTTP_TIMEOUT_SECONDS", "30"))
	headlessWait, _ := strconv.Atoi(getEnv("HEADLESS_WAIT_SECONDS", "10"))
	scale, err := strconv.ParseFloat(getEnv("LOWEST_WITHIN_PRICE_SCALE", "1"), 64)
	if err != nil {
		scale = 1
	}

	cfg := Config{
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:                redisDB,
		NotificationStream:     getEnv("NOTIFICATION_STREAM", "price_notifications"),
		FeedStream:             getEnv("FEED_STREAM", "price_feed"),
		RedisStreamCount:       streamCount,
		RedisStreamMaxLength:   streamMaxLength,
		MemcacheAddr:           getEnv("MEMCACHE_ADDR", "localhost:11211"),
		RateLimitBlock:         time.Duration(blockSeconds) * time.Second,
		CrawlSchedule:          getEnv("CRAWL_SCHEDULE", "0 */6 * * *"),
		CrawlConcurrency:       concurrency,
		HTTPTimeout:            time.Duration(httpTimeout) * time.Second,
		HeadlessWait:           time.Duration(headlessWait) * time.Second,
		ChromeBin:              getEnv("CHROME_BIN", ""),
		ProxyURLs:              splitList(getEnv("PROXY_URLS", "")),
		FetchPolicyFile:        getEnv("FETCH_POLICY_FILE", ""),
		NotifyAnyChange:        getBool("NOTIFY_ANY_CHANGE", false),
		LowestWithinPriceScale: scale,
		FeedSourceLabel:        getEnv("FEED_SOURCE_LABEL", "Price Watcher"),
		Timezone:               getEnv("TIMEZONE", "UTC"),
		Environment:            getEnv("PRICEWATCHER_ENVIRONMENT", "development"),
	}

	cfg.FetchPolicy = DefaultFetchPolicy()
	if cfg.FetchPolicyFile != "" {
		policy, err := LoadFetchPolicy(cfg.FetchPolicyFile)
		if err != nil {
			logger.LogError("config", errors.NewConfiguration("cannot load fetch policy "+cfg.FetchPolicyFile, err),
				"Falling back to the default fetch policy")
		} else {
			cfg.FetchPolicy = policy
		}
	}

	cfg.bindTimezone()

	return cfg
}

// Validate checks that the configuration can run a worker. Failures are
// configuration errors.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return errors.NewConfiguration("invalid configuration", err)
	}
	return nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisStreamCount < 1 {
		return fmt.Errorf("REDIS_STREAM_COUNT must be at least 1, got %d", c.RedisStreamCount)
	}
	if c.CrawlConcurrency < 1 {
		return fmt.Errorf("CRAWL_CONCURRENCY must be at least 1, got %d", c.CrawlConcurrency)
	}
	if c.HeadlessWait <= 0 {
		return fmt.Errorf("HEADLESS_WAIT_SECONDS must be positive")
	}
	if c.LowestWithinPriceScale <= 0 {
		return fmt.Errorf("LOWEST_WITHIN_PRICE_SCALE must be positive, got %v", c.LowestWithinPriceScale)
	}
	return c.FetchPolicy.Validate()
}

func (c *Config) bindTimezone() {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		logger.Warn("config: unknown timezone %s, reverting to UTC", c.Timezone)
		c.Timezone = "UTC"
		loc = time.UTC
	}
	c.Location = loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
