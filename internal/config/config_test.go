package config

import (
	"os"
	"testing"

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

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "OWNER_ADDRESS", "0x1234567890123456789012345678901234567890")
	setEnv(t, "PORT", "9090")
	setEnv(t, "ENV", "development")
	setEnv(t, "FREEZE_DURATION", "")
	setEnv(t, "ORDERING_TICK", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, uint64(DefaultFreezeDuration), cfg.FreezeDuration)
	assert.Equal(t, uint64(DefaultOrderingTick), cfg.OrderingTick)
	assert.Equal(t, DefaultKafkaTopic, cfg.KafkaTopic)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_MissingOwnerAddress(t *testing.T) {
	setEnv(t, "OWNER_ADDRESS", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "OWNER_ADDRESS is required")
}

func TestLoad_InvalidOwnerAddress(t *testing.T) {
	setEnv(t, "OWNER_ADDRESS", "not-an-address")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "40-hex-char address")
}

func TestLoad_KafkaBrokers(t *testing.T) {
	setEnv(t, "OWNER_ADDRESS", "0x1234567890123456789012345678901234567890")
	setEnv(t, "ENV", "development")
	setEnv(t, "FREEZE_DURATION", "")
	setEnv(t, "ORDERING_TICK", "")
	setEnv(t, "KAFKA_BROKERS", "broker1:9092, broker2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}

func TestConfig_Validate(t *testing.T) {
	owner := "0x1234567890123456789012345678901234567890"

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "valid config",
			config:  Config{OwnerAddress: owner, FreezeDuration: 30, OrderingTick: 12},
			wantErr: "",
		},
		{
			name:    "missing owner",
			config:  Config{FreezeDuration: 30, OrderingTick: 12},
			wantErr: "OWNER_ADDRESS is required",
		},
		{
			name:    "bad oracle address",
			config:  Config{OwnerAddress: owner, OracleAddress: "0x123", FreezeDuration: 30, OrderingTick: 12},
			wantErr: "ORACLE_ADDRESS",
		},
		{
			name:    "zero freeze duration",
			config:  Config{OwnerAddress: owner, FreezeDuration: 0, OrderingTick: 12},
			wantErr: "FREEZE_DURATION must be positive",
		},
		{
			name:    "zero ordering tick",
			config:  Config{OwnerAddress: owner, FreezeDuration: 30, OrderingTick: 0},
			wantErr: "ORDERING_TICK must be positive",
		},
		{
			name:    "production requires admin secret",
			config:  Config{OwnerAddress: owner, Env: "production", FreezeDuration: 30, OrderingTick: 12},
			wantErr: "ADMIN_SECRET is required in production",
		},
		{
			name:    "production with admin secret",
			config:  Config{OwnerAddress: owner, Env: "production", AdminSecret: "s3cret", FreezeDuration: 30, OrderingTick: 12},
			wantErr: "",
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

func TestConfig_EnvModes(t *testing.T) {
	dev := Config{Env: "development"}
	assert.True(t, dev.IsDevelopment())
	assert.False(t, dev.IsProduction())

	prod := Config{Env: "production"}
	assert.False(t, prod.IsDevelopment())
	assert.True(t, prod.IsProduction())
}
