package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.AISHost)
	assert.Equal(t, 8040, cfg.AISPort)
	assert.Equal(t, 5*time.Second, cfg.RetryInterval)
	assert.Equal(t, 30*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 5000, cfg.TCPPort)
	assert.Equal(t, 8000, cfg.WebPort)
	assert.Equal(t, StorageModeHistory, cfg.StorageMode)
	assert.Equal(t, 168*time.Hour, cfg.RetentionAge)
	assert.Equal(t, 200000, cfg.QueueSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.EnableTCPAuth)
	assert.True(t, cfg.EnableWebAuth)
	assert.True(t, cfg.IsProduction())
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AIS_SERVER_HOST", "feed.example.com")
	t.Setenv("AIS_SERVER_PORT", "9000")
	t.Setenv("RETRY_INTERVAL", "10")
	t.Setenv("AIS_RELAY_STORAGE_MODE", "snapshot")
	t.Setenv("ENABLE_TCP_AUTH", "yes")
	t.Setenv("ENABLE_WEB_AUTH", "off")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("AIS_RELAY_RETENTION_AGE", "24h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "feed.example.com", cfg.AISHost)
	assert.Equal(t, 9000, cfg.AISPort)
	assert.Equal(t, 10*time.Second, cfg.RetryInterval)
	assert.Equal(t, StorageModeSnapshot, cfg.StorageMode)
	assert.True(t, cfg.EnableTCPAuth)
	assert.False(t, cfg.EnableWebAuth)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 24*time.Hour, cfg.RetentionAge)
}

func TestLoad_GeoLimits(t *testing.T) {
	t.Setenv("LIM_LAT", "50.0,60.0")
	t.Setenv("LIM_LON", "10.0, 20.0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, [2]float64{50.0, 60.0}, cfg.LimLat)
	assert.Equal(t, [2]float64{10.0, 20.0}, cfg.LimLon)

	bounds := cfg.DefaultBounds()
	assert.True(t, bounds.Contains(55.0, 15.0))
	assert.False(t, bounds.Contains(45.0, 15.0))
	assert.False(t, bounds.Contains(55.0, 25.0))
}

func TestLoad_InvalidGeoPair(t *testing.T) {
	t.Setenv("LIM_LAT", "not,numbers")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvertedGeoLimits(t *testing.T) {
	t.Setenv("LIM_LAT", "60.0,50.0")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	cfg.AISHost = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.AISPort = 70000
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.StorageMode = "archive"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.QueueSize = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Workers = -1
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.RetryInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestString_MasksCredentials(t *testing.T) {
	t.Setenv("AIS_USER_PASSWORD", "upstream-secret")
	t.Setenv("WEB_PASSWORD", "web-secret")
	t.Setenv("TCP_PASSWORD", "tcp-secret")

	cfg, err := Load()
	require.NoError(t, err)

	rendered := cfg.String()
	assert.NotContains(t, rendered, "upstream-secret")
	assert.NotContains(t, rendered, "web-secret")
	assert.NotContains(t, rendered, "tcp-secret")
	assert.Contains(t, rendered, "password=***")
}

func TestBounds_Contains(t *testing.T) {
	b := Bounds{MinLat: -10, MaxLat: 10, MinLon: -20, MaxLon: 20}

	assert.True(t, b.Contains(0, 0))
	assert.True(t, b.Contains(-10, -20), "bounds are inclusive")
	assert.True(t, b.Contains(10, 20))
	assert.False(t, b.Contains(10.0001, 0))
	assert.False(t, b.Contains(0, -20.0001))
}
