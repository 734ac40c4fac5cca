package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/config"
)

func TestDisabledCache(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, c.Enabled())

	var v map[string]string
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheDisabled)
	assert.ErrorIs(t, c.Set(ctx, "k", v), ErrCacheDisabled)
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestJobKeys(t *testing.T) {
	id := uuid.MustParse("7d9f1c1e-0000-4000-8000-000000000001")

	assert.Equal(t, "job:7d9f1c1e-0000-4000-8000-000000000001", JobKey(id))
	assert.Equal(t, "job_steps:7d9f1c1e-0000-4000-8000-000000000001", JobStepsKey(id))
	assert.Equal(t, []string{JobKey(id), JobStepsKey(id)}, JobKeys(id))
}
