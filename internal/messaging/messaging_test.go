package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/config"
)

func TestNewClientWithoutConnectionStringIsInMemory(t *testing.T) {
	c, err := NewClient(config.AzureConfig{}, "test", nil)
	require.NoError(t, err)
	_, ok := c.(*MemoryClient)
	assert.True(t, ok)
}

func TestMemoryClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient("test")

	require.NoError(t, c.Publish(ctx, "orders", Message{Subject: "order", Body: map[string]string{"order_number": "A-1"}}))
	require.NoError(t, c.Publish(ctx, "orders", Message{Body: map[string]string{"order_number": "A-2"}}))

	got, err := c.Receive(ctx, "orders", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"order_number":"A-1"}`, string(got[0].Body()))
	assert.NotEmpty(t, got[0].ID())

	require.NoError(t, got[0].Abandon(ctx))
	assert.Equal(t, 2, c.Pending("orders"))

	rest, err := c.Receive(ctx, "orders", 10)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.Equal(t, 0, c.Pending("orders"))
	assert.Len(t, c.Sent("orders"), 2)
}

func TestRetryWithBackoff(t *testing.T) {
	backoffBase = time.Millisecond
	t.Cleanup(func() { backoffBase = time.Second })
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("amqp: link detached")
			}
			return nil
		}, 5)
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		permanent := errors.New("unauthorized")
		err := RetryWithBackoff(ctx, func() error {
			calls++
			return permanent
		}, 5)
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			return errors.New("awaiting send: context deadline exceeded")
		}, 3)
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})
}
