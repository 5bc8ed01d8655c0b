package testutil

import (
	"time"

	"dispatchhub/internal/config"
)

// NewTestConfig returns a development config with short token lifetimes and
// no external services.
func NewTestConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Database:    config.DatabaseConfig{Driver: "sqlite"},
		Security: config.SecurityConfig{
			JWTAccessSecret: "test-access-secret",
			JWTAccessTTL:    15 * time.Minute,
			JWTRefreshTTL:   24 * time.Hour,
			MaxSessions:     3,
		},
		Realtime: config.RealtimeConfig{
			AuthTimeout: time.Second,
			PongWait:    time.Minute,
			WriteWait:   time.Second,
			SendBuffer:  8,
		},
	}
}
