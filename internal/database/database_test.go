package database

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declinewatch/declinewatch-go/internal/config"
)

func TestPostgresDB_Close_NilPool(t *testing.T) {
	db := &PostgresDB{Pool: nil}

	assert.NotPanics(t, func() {
		db.Close()
	})
}

func TestPostgresDB_HealthCheck_NilPool(t *testing.T) {
	db := &PostgresDB{Pool: nil}

	err := db.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database pool is nil")
}

func TestNewPostgresConnection_InvalidURL(t *testing.T) {
	cfg := &config.DatabaseConfig{
		DatabaseURL: "invalid-url",
	}

	db, err := NewPostgresConnection(cfg)
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to parse database config")
}

func TestNewRedisConnection(t *testing.T) {
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	client, err := NewRedisConnection(config.RedisConfig{
		Host: srv.Host(),
		Port: port,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	// Grab a port nothing listens on by starting and stopping miniredis.
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)
	host := srv.Host()
	srv.Close()

	client, err := NewRedisConnection(config.RedisConfig{Host: host, Port: port})
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestRedisClient_HealthCheck_NilClient(t *testing.T) {
	client := &RedisClient{Client: nil}

	err := client.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")
}

func TestRedisClient_Close_NilClient(t *testing.T) {
	client := &RedisClient{Client: nil}

	assert.NotPanics(t, func() {
		client.Close()
	})
}
