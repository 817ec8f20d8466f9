package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// API describes HTTP-layer configuration plus the schema capability flags
// consumed by the query builder and normalizer.
type API struct {
	Common
	BindAddr       string
	FacetDates     bool
	FilterDead     bool
	Chips          bool
	ChipsNegatives bool
	FlatURLs       bool
}

// Importer holds configuration for the CSV import binary.
type Importer struct {
	Common
}

// Sweeper configures the link liveness sweep.
type Sweeper struct {
	Common
	Interval     time.Duration
	Workers      int
	Rate         float64
	ProbeTimeout time.Duration
	ScanBatch    int
	PersistAlive bool
	FlatURLs     bool
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:         loadCommon(),
		BindAddr:       getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		FacetDates:     getBool("SEARCH_FACET_DATES", true),
		FilterDead:     getBool("SEARCH_FILTER_DEAD", false),
		Chips:          getBool("SEARCH_CHIPS", true),
		ChipsNegatives: getBool("SEARCH_CHIPS_NEGATIVES", false),
		FlatURLs:       getBool("SEARCH_FLAT_URLS", false),
	}

	if c.BindAddr == "" {
		return nil, fmt.Errorf("API_BIND_ADDR cannot be empty")
	}

	return c, nil
}

// LoadImporter builds an Importer config from environment variables.
func LoadImporter() (*Importer, error) {
	return &Importer{Common: loadCommon()}, nil
}

// LoadSweeper builds a Sweeper config from environment variables.
func LoadSweeper() (*Sweeper, error) {
	c := &Sweeper{
		Common:       loadCommon(),
		Interval:     getDuration("SWEEP_INTERVAL", "24h"),
		Workers:      getInt("SWEEP_WORKERS", 8),
		Rate:         getFloat("SWEEP_RATE", 5),
		ProbeTimeout: getDuration("SWEEP_PROBE_TIMEOUT", "10s"),
		ScanBatch:    getInt("SWEEP_SCAN_BATCH", 500),
		PersistAlive: getBool("SWEEP_PERSIST_ALIVE", true),
		FlatURLs:     getBool("SEARCH_FLAT_URLS", false),
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.Workers <= 0 {
		return nil, fmt.Errorf("SWEEP_WORKERS must be positive")
	}
	if c.Rate <= 0 {
		return nil, fmt.Errorf("SWEEP_RATE must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return nil, fmt.Errorf("SWEEP_PROBE_TIMEOUT must be positive")
	}
	if c.ScanBatch <= 0 {
		return nil, fmt.Errorf("SWEEP_SCAN_BATCH must be positive")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "goeievraag"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}
