package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/config"
)

func TestNewFallsBackToInProcessBusWhenRedisIsDown(t *testing.T) {
	cfg := &config.Config{
		Auth:  config.AuthConfig{JWTSecret: "secret"},
		Redis: config.RedisConfig{Addr: "127.0.0.1:1"},
	}

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.redisClient)
	assert.Nil(t, a.subscriber)
	assert.NotNil(t, a.dispatcher)
}
