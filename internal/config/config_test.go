package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 120, cfg.FrameCount)
	require.Equal(t, 30, cfg.FPS)
	require.Equal(t, 320, cfg.BaseSize)
	require.Equal(t, 15*time.Minute, cfg.SessionTTL)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MORPHD_FRAMES", "5")
	t.Setenv("MORPHD_FPS", "10")
	t.Setenv("MORPHD_SESSION_TTL", "1m")
	t.Setenv("MORPHD_MAX_JOBS", "4")

	cfg := FromEnv()
	require.Equal(t, 5, cfg.FrameCount)
	require.Equal(t, 10, cfg.FPS)
	require.Equal(t, time.Minute, cfg.SessionTTL)
	require.Equal(t, int64(4), cfg.MaxJobs)
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MORPHD_FRAMES", "not-a-number")
	t.Setenv("MORPHD_OTEL_ENABLED", "maybe")

	cfg := FromEnv()
	require.Equal(t, 120, cfg.FrameCount)
	require.False(t, cfg.OTELEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"too few frames", func(c *Config) { c.FrameCount = 1 }, "frame count"},
		{"zero fps", func(c *Config) { c.FPS = 0 }, "fps"},
		{"tiny base size", func(c *Config) { c.BaseSize = 8 }, "base size"},
		{"no jobs", func(c *Config) { c.MaxJobs = 0 }, "max jobs"},
		{"no ttl", func(c *Config) { c.SessionTTL = 0 }, "session ttl"},
		{"no output dir", func(c *Config) { c.OutputDir = "" }, "output directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
