package service

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/internal/messaging"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/models"
)

const ordersQueue = "production-orders"

func publishOrder(t *testing.T, bus *messaging.MemoryClient, body interface{}) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), ordersQueue, messaging.Message{Subject: "order.confirmed", Body: body}))
}

func TestOrderIntakeCreatesJobsOnce(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	f.withDefaults()
	bus := messaging.NewMemoryClient("test")
	svc := NewOrderIntakeService(bus, ordersQueue, f.jobs, f.service, f.metrics)

	order := OrderMessage{
		OrderID:      "so-77",
		OrderNumber:  "SO-0077",
		CustomerName: "Acme Apparel",
		ProductName:  "Polo",
		Quantity:     40,
	}
	publishOrder(t, bus, order)
	publishOrder(t, bus, order)

	res, err := svc.Poll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, IntakeResult{Received: 2, Created: 1, Duplicate: 1}, res)
	assert.Equal(t, 0, bus.Pending(ordersQueue))

	job, err := f.jobs.GetByOrderNumber(ctx, "SO-0077")
	require.NoError(t, err)
	assert.Equal(t, "so-77", job.OrderID)
	assert.Equal(t, 40, job.Quantity)
	assert.Equal(t, int64(1), f.metrics.GetCounters()[metrics.CounterOrdersImported])
}

func TestOrderIntakeRejectsBadOrders(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	f.withDefaults()
	bus := messaging.NewMemoryClient("test")
	svc := NewOrderIntakeService(bus, ordersQueue, f.jobs, f.service, f.metrics)

	publishOrder(t, bus, "not an order")
	publishOrder(t, bus, OrderMessage{OrderNumber: "SO-0078", CustomerName: "Acme"})

	res, err := svc.Poll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, IntakeResult{Received: 2, Rejected: 2}, res)
	assert.Equal(t, 0, bus.Pending(ordersQueue), "rejected orders must not be redelivered")
	assert.Empty(t, f.jobs.jobs)
}

type failingCreator struct{ err error }

func (c failingCreator) Create(context.Context, CreateJobInput) (*models.Job, error) {
	return nil, c.err
}

func TestOrderIntakeRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(t)
	bus := messaging.NewMemoryClient("test")
	svc := NewOrderIntakeService(bus, ordersQueue, f.jobs, failingCreator{err: errors.New("connection reset")}, f.metrics)

	publishOrder(t, bus, OrderMessage{OrderNumber: "SO-0079", CustomerName: "Acme", ProductName: "Polo", Quantity: 1})

	res, err := svc.Poll(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, IntakeResult{Received: 1, Retried: 1}, res)
	assert.Equal(t, 1, bus.Pending(ordersQueue))
}
