package config_test

import (
	"testing"
	"time"

	"github.com/goeievraag/backend/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIDefaults(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "")
	t.Setenv("ELASTICSEARCH_INDEX", "")
	t.Setenv("API_BIND_ADDR", "")
	t.Setenv("SEARCH_FACET_DATES", "")
	t.Setenv("SEARCH_FILTER_DEAD", "")
	t.Setenv("SEARCH_CHIPS", "")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, "http://elasticsearch:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "goeievraag", cfg.ElasticsearchIndex)
	require.Equal(t, "0.0.0.0:8080", cfg.BindAddr)
	require.True(t, cfg.FacetDates)
	require.False(t, cfg.FilterDead)
	require.True(t, cfg.Chips)
	require.False(t, cfg.ChipsNegatives)
	require.False(t, cfg.FlatURLs)
}

func TestLoadAPIOverrides(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://localhost:9999")
	t.Setenv("ELASTICSEARCH_INDEX", "custom")
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("SEARCH_FACET_DATES", "false")
	t.Setenv("SEARCH_FILTER_DEAD", "true")
	t.Setenv("SEARCH_CHIPS", "false")
	t.Setenv("SEARCH_CHIPS_NEGATIVES", "true")
	t.Setenv("SEARCH_FLAT_URLS", "true")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:9999", cfg.ElasticsearchAddr)
	require.Equal(t, "custom", cfg.ElasticsearchIndex)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.False(t, cfg.FacetDates)
	require.True(t, cfg.FilterDead)
	require.False(t, cfg.Chips)
	require.True(t, cfg.ChipsNegatives)
	require.True(t, cfg.FlatURLs)
}

func TestLoadImporter(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://import-es:9200")
	t.Setenv("ELASTICSEARCH_INDEX", "import-index")

	cfg, err := config.LoadImporter()
	require.NoError(t, err)

	require.Equal(t, "http://import-es:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "import-index", cfg.ElasticsearchIndex)
}

func TestLoadSweeperDefaults(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("SWEEP_WORKERS", "")
	t.Setenv("SWEEP_RATE", "")
	t.Setenv("SWEEP_PROBE_TIMEOUT", "")
	t.Setenv("SWEEP_SCAN_BATCH", "")
	t.Setenv("SWEEP_PERSIST_ALIVE", "")

	cfg, err := config.LoadSweeper()
	require.NoError(t, err)

	require.Equal(t, 24*time.Hour, cfg.Interval)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, 5.0, cfg.Rate)
	require.Equal(t, 10*time.Second, cfg.ProbeTimeout)
	require.Equal(t, 500, cfg.ScanBatch)
	require.True(t, cfg.PersistAlive)
}

func TestLoadSweeperOverrides(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ADDR", "http://sweep-es:9200")
	t.Setenv("SWEEP_INTERVAL", "12h")
	t.Setenv("SWEEP_WORKERS", "4")
	t.Setenv("SWEEP_RATE", "2.5")
	t.Setenv("SWEEP_PROBE_TIMEOUT", "3s")
	t.Setenv("SWEEP_SCAN_BATCH", "100")
	t.Setenv("SWEEP_PERSIST_ALIVE", "false")

	cfg, err := config.LoadSweeper()
	require.NoError(t, err)

	require.Equal(t, "http://sweep-es:9200", cfg.ElasticsearchAddr)
	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, 2.5, cfg.Rate)
	require.Equal(t, 3*time.Second, cfg.ProbeTimeout)
	require.Equal(t, 100, cfg.ScanBatch)
	require.False(t, cfg.PersistAlive)
}

func TestLoadSweeperRejectsNonPositiveWorkers(t *testing.T) {
	t.Setenv("SWEEP_WORKERS", "-1")

	_, err := config.LoadSweeper()
	require.Error(t, err)
}
