package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "")
	setEnv(t, "ESCROW_GATEWAY_URL", "")
	setEnv(t, "STRIPE_API_KEY", "")
	setEnv(t, "ESCROW_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultEscrowTimeout, cfg.EscrowTimeout)
	assert.Equal(t, DefaultRetryAttempts, cfg.EscrowRetryAttempts)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ENV", "production")
	setEnv(t, "ESCROW_GATEWAY_URL", "")
	setEnv(t, "STRIPE_API_KEY", "sk_test_xyz")
	setEnv(t, "ESCROW_TIMEOUT", "2s")
	setEnv(t, "ESCROW_RETRY_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sk_test_xyz", cfg.StripeAPIKey)
	assert.Equal(t, 2*time.Second, cfg.EscrowTimeout)
	assert.Equal(t, 5, cfg.EscrowRetryAttempts)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	setEnv(t, "ESCROW_GATEWAY_URL", "")
	setEnv(t, "STRIPE_API_KEY", "")
	setEnv(t, "ESCROW_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultEscrowTimeout, cfg.EscrowTimeout)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid with stripe backend",
			config: Config{
				StripeAPIKey:        "sk_test_xyz",
				EscrowTimeout:       time.Second,
				EscrowRetryAttempts: 3,
			},
			wantErr: "",
		},
		{
			name: "both escrow backends set",
			config: Config{
				EscrowGatewayURL:    "https://escrow.example.com",
				StripeAPIKey:        "sk_test_xyz",
				EscrowTimeout:       time.Second,
				EscrowRetryAttempts: 3,
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "loopback gateway URL rejected",
			config: Config{
				EscrowGatewayURL:    "http://127.0.0.1:9000",
				EscrowTimeout:       time.Second,
				EscrowRetryAttempts: 3,
			},
			wantErr: "ESCROW_GATEWAY_URL",
		},
		{
			name: "zero timeout rejected",
			config: Config{
				EscrowRetryAttempts: 3,
			},
			wantErr: "ESCROW_TIMEOUT",
		},
		{
			name: "zero attempts rejected",
			config: Config{
				EscrowTimeout: time.Second,
			},
			wantErr: "ESCROW_RETRY_ATTEMPTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
