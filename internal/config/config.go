package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/recon-map/internal/domain"
)

const maxFetchConcurrency = 64

// Config holds all service settings, populated from environment variables.
type Config struct {
	Sources      []domain.Source
	DateProperty string

	FilterDebounce   time.Duration
	FetchTimeout     time.Duration
	FetchConcurrency int
	ReloadInterval   time.Duration
	ViewCacheSize    int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional Kafka renderer; disabled when no brokers are configured.
	KafkaBrokers   []string
	KafkaViewTopic string
}

// sourcesFile is the YAML layout of SOURCES_FILE.
type sourcesFile struct {
	Sources []domain.Source `yaml:"sources"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	debounce, err := parseDuration("FILTER_DEBOUNCE", "250ms", false)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "0s", true)
	if err != nil {
		return nil, err
	}
	reloadInterval, err := parseDuration("RELOAD_INTERVAL", "0s", true)
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("FETCH_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	if concurrency > maxFetchConcurrency {
		return nil, fmt.Errorf("invalid FETCH_CONCURRENCY: must be at most %d", maxFetchConcurrency)
	}
	cacheSize, err := parsePositiveInt("VIEW_CACHE_SIZE", 128)
	if err != nil {
		return nil, err
	}

	sources, err := loadSources()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Sources:          sources,
		DateProperty:     sharedcfg.EnvOrDefault("DATE_PROPERTY", domain.DefaultDateProperty),
		FilterDebounce:   debounce,
		FetchTimeout:     fetchTimeout,
		FetchConcurrency: concurrency,
		ReloadInterval:   reloadInterval,
		ViewCacheSize:    cacheSize,
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		KafkaViewTopic:   sharedcfg.EnvOrDefault("KAFKA_VIEW_TOPIC", "recon-filtered-views"),
	}

	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if len(cfg.Sources) == 0 {
		return nil, errors.New("SOURCES is required")
	}
	if strings.TrimSpace(cfg.DateProperty) == "" {
		return nil, errors.New("DATE_PROPERTY must not be blank")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaViewTopic == "" {
		return nil, errors.New("KAFKA_VIEW_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether applied views should also be published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// loadSources reads SOURCES_FILE when set, otherwise the comma-separated SOURCES list.
func loadSources() ([]domain.Source, error) {
	if path := os.Getenv("SOURCES_FILE"); path != "" {
		return readSourcesFile(path)
	}

	var sources []domain.Source
	for _, loc := range strings.Split(sharedcfg.EnvOrDefault("SOURCES", "scans.geojson"), ",") {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		sources = append(sources, domain.Source{Location: loc})
	}
	return sources, nil
}

func readSourcesFile(path string) ([]domain.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read SOURCES_FILE: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse SOURCES_FILE: %w", err)
	}
	for i, s := range f.Sources {
		if strings.TrimSpace(s.Location) == "" {
			return nil, fmt.Errorf("parse SOURCES_FILE: source %d has no location", i)
		}
	}
	return f.Sources, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
