package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("TOKEN_STORE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TokenStoreMemory, cfg.Tokens.Store)
	assert.Equal(t, 60*time.Second, cfg.Tokens.CheckInTTL)
	assert.Equal(t, 3*time.Second, cfg.Verification.CheckInTimeout)
	assert.Equal(t, 2*time.Second, cfg.Verification.StoreTimeout)
	assert.Equal(t, "all_or_nothing", cfg.Verification.BundlePolicy)
	assert.False(t, cfg.Tokens.CheckInSingleUse)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_PostgresStoreWhenDSNSet(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/credentials")
	t.Setenv("TOKEN_STORE", "")
	t.Setenv("CHECKIN_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TokenStorePostgres, cfg.Tokens.Store)
	assert.Equal(t, 5*time.Second, cfg.Verification.CheckInTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"unknown store":    {"TOKEN_STORE", "etcd"},
		"bad policy":       {"BUNDLE_POLICY", "most"},
		"non did issuer":   {"ISSUER_DID", "gym.example"},
		"postgres no dsn":  {"TOKEN_STORE", "postgres"},
		"negative timeout": {"STORE_TIMEOUT", "-1s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("POSTGRES_DSN", "")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvAsDuration_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvAsDuration("SOME_DURATION", time.Minute))
}
