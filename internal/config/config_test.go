package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/bookings?sslmode=disable")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("AGGREGATOR_BASE_URL", "https://aggregator.example.test")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.OfferCache.Backend)
	assert.Equal(t, 45*time.Minute, cfg.OfferCache.TTL)
	assert.Equal(t, 2*time.Hour, cfg.OfferCache.Grace)
	assert.Equal(t, 20*time.Second, cfg.Aggregator.Timeout)
	assert.Contains(t, cfg.CORS.AllowedHeaders, "X-Session-ID")
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("OFFER_CACHE_BACKEND", "memory")
	t.Setenv("OFFER_CACHE_TTL_MINUTES", "10")
	t.Setenv("AGGREGATOR_TIMEOUT_SECONDS", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.test , ,https://b.test")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("ENVIRONMENT", "production")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "memory", cfg.OfferCache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.OfferCache.TTL)
	assert.Equal(t, 5*time.Second, cfg.Aggregator.Timeout)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 10, cfg.RateLimit.Requests)
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"Missing database", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"Missing JWT secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET"},
		{"Missing aggregator", map[string]string{"AGGREGATOR_BASE_URL": ""}, "AGGREGATOR_BASE_URL"},
		{"Unknown cache backend", map[string]string{"OFFER_CACHE_BACKEND": "memcached"}, "OFFER_CACHE_BACKEND"},
		{"Zero TTL", map[string]string{"OFFER_CACHE_TTL_MINUTES": "0"}, "OFFER_CACHE_TTL_MINUTES"},
		{"Zero timeout", map[string]string{"AGGREGATOR_TIMEOUT_SECONDS": "0"}, "AGGREGATOR_TIMEOUT_SECONDS"},
		{"Negative audit retention", map[string]string{"AUDIT_RETENTION_DAYS": "-1"}, "AUDIT_RETENTION_DAYS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := FromEnv().Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
