package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/bugsneak/pkg/config"
)

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(&config.DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable", MaxConnections: 7,
	})

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", cfg.URL)
	assert.Equal(t, int32(7), cfg.MaxConnections)
}

func TestConfig_PoolDefaults(t *testing.T) {
	pc, err := (&Config{URL: "host=localhost dbname=bugsneak"}).poolConfig()
	require.NoError(t, err)

	assert.Equal(t, int32(defaultMaxConns), pc.MaxConns)
	assert.Equal(t, defaultMaxConnLifetime, pc.MaxConnLifetime)
	assert.Equal(t, defaultMaxConnIdleTime, pc.MaxConnIdleTime)
	assert.Equal(t, applicationName, pc.ConnConfig.RuntimeParams["application_name"])
}

func TestConfig_PoolOverrides(t *testing.T) {
	pc, err := (&Config{
		URL:             "postgres://localhost/bugsneak?application_name=worker",
		MaxConnections:  3,
		MaxConnLifetime: time.Minute,
		MaxConnIdleTime: time.Second,
	}).poolConfig()
	require.NoError(t, err)

	assert.Equal(t, int32(3), pc.MaxConns)
	assert.Equal(t, time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, time.Second, pc.MaxConnIdleTime)
	assert.Equal(t, "worker", pc.ConnConfig.RuntimeParams["application_name"])
}

func TestConfig_BadURL(t *testing.T) {
	_, err := NewConnection(context.Background(), &Config{URL: "postgres://%zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse database URL")
}

func TestDB_NilSafe(t *testing.T) {
	var db *DB
	assert.ErrorIs(t, db.Healthy(context.Background()), ErrNotConfigured)
	assert.NotPanics(t, db.Close)
}
