package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	keys := []string{
		"SHIP_APP_ENV",
		"SHIP_APP_PORT",
		"SHIP_DATABASE_DRIVER",
		"SHIP_DATABASE_PASSWORD",
		"SHIP_QUEUE_BACKEND",
		"SHIP_CALIBRATION_SHIPPING_LABEL_SCALE_FACTOR",
		"SHIP_CARRIER_PAGE_DELAY",
		"SHIP_PROFILING_ENABLED",
		"SHIP_PROFILING_SERVER_ADDRESS",
	}
	original := make(map[string]string, len(keys))
	for _, k := range keys {
		original[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()
	clearEnv := func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "shipping-labels", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 1.08, cfg.Calibration.ShippingLabelScaleFactor)
		assert.Equal(t, 0.98, cfg.Calibration.BitmapScaleFactor)
		assert.Equal(t, time.Second, cfg.Carrier.PageDelay)
		assert.Equal(t, 3, cfg.Carrier.MaxRetries)
		assert.Equal(t, 3*time.Second, cfg.Carrier.RetryBaseDelay)
		assert.Equal(t, "memory", cfg.Queue.Backend)
		assert.Equal(t, "data/labels", cfg.Labels.LabelsRoot)
		assert.Equal(t, "data/zpl", cfg.Labels.ZPLRoot)
		assert.Equal(t, "http://api.labelary.com", cfg.Renderer.BaseURL)
		assert.Equal(t, 2.0, cfg.HTTP.PollRate)
		assert.Equal(t, 5, cfg.HTTP.PollBurst)
		assert.False(t, cfg.Telemetry.LogsEnabled)
		assert.False(t, cfg.Profiling.Enabled)
		assert.Equal(t, "shipping-labels", cfg.Profiling.ApplicationName)
		assert.Equal(t, []string{"cpu", "alloc_space", "inuse_space", "goroutines"}, cfg.Profiling.ProfileTypes)
	})

	t.Run("loads values from environment variables with SHIP prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHIP_APP_PORT", "9000")
		os.Setenv("SHIP_DATABASE_DRIVER", "sqlite")
		os.Setenv("SHIP_QUEUE_BACKEND", "redis")
		os.Setenv("SHIP_CALIBRATION_SHIPPING_LABEL_SCALE_FACTOR", "1.2")
		os.Setenv("SHIP_CARRIER_PAGE_DELAY", "250ms")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "redis", cfg.Queue.Backend)
		assert.Equal(t, 1.2, cfg.Calibration.ShippingLabelScaleFactor)
		assert.Equal(t, 250*time.Millisecond, cfg.Carrier.PageDelay)
	})

	t.Run("rejects unknown queue backend", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHIP_QUEUE_BACKEND", "kafka")

		_, err := Load()
		assert.ErrorContains(t, err, "queue.backend")
	})

	t.Run("profiling needs a server address", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHIP_PROFILING_ENABLED", "true")

		_, err := Load()
		assert.ErrorContains(t, err, "profiling.server_address")

		os.Setenv("SHIP_PROFILING_SERVER_ADDRESS", "http://pyroscope:4040")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Profiling.Enabled)
	})

	t.Run("production requires a database password", func(t *testing.T) {
		clearEnv()
		os.Setenv("SHIP_APP_ENV", "production")

		_, err := Load()
		assert.ErrorContains(t, err, "database.password")

		os.Setenv("SHIP_DATABASE_PASSWORD", "secret")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.App.IsProduction())
	})
}

func TestLoadFile_StoreTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
name = "labels-test"

[carrier]
page_delay = "10ms"

[[carrier.stores]]
store_id = 204
token = "tok-204"

[[carrier.stores]]
store_id = 305
token = "tok-305"

[calibration]
shipping_label_scale_factor = 1.05

[[calibration.stores]]
store_id = 204
shipping_label_scale_factor = 1.12
bitmap_scale_factor = 0.95
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "labels-test", cfg.App.Name)
	assert.Equal(t, 10*time.Millisecond, cfg.Carrier.PageDelay)
	require.Len(t, cfg.Carrier.Stores, 2)
	tokens := cfg.Carrier.Tokens()
	assert.Equal(t, "tok-305", tokens[305])
	assert.NotContains(t, tokens, int64(1))

	assert.Equal(t, 1.05, cfg.Calibration.ShippingLabelScaleFactor)
	assert.Equal(t, 0.98, cfg.Calibration.BitmapScaleFactor)
	require.Len(t, cfg.Calibration.Stores, 1)
	assert.Equal(t, StoreCalibration{StoreID: 204, ShippingLabelScaleFactor: 1.12, BitmapScaleFactor: 0.95}, cfg.Calibration.Stores[0])
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", DBName: "shipping", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/shipping?sslmode=disable", d.DSN())
}
