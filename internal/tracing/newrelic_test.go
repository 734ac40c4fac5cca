package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/config"
)

func TestTracerDisabledWithoutLicenseKey(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{AppName: "test"})
	require.NoError(t, err)

	txn := tracer.StartTransaction("advance")
	assert.Nil(t, txn)
	assert.Nil(t, tracer.Application())

	assert.NotPanics(t, func() {
		seg := tracer.StartSpan("db", txn)
		assert.Nil(t, seg)
		seg.End()
		tracer.AddAttribute(txn, "job_id", "x")
		tracer.RecordError(txn, errors.New("boom"))
		tracer.EndTransaction(txn)
		tracer.Close()
	})
}

func TestSegmentWithoutTransaction(t *testing.T) {
	end := Segment(context.Background(), "noop")
	assert.NotPanics(t, end)
}

type recordingTracer struct {
	NewRelicTracer
	txn     *newrelic.Transaction
	started []string
	ended   int
	noticed []error
}

func (r *recordingTracer) StartTransaction(name string) *newrelic.Transaction {
	r.started = append(r.started, name)
	return r.txn
}

func (r *recordingTracer) EndTransaction(txn *newrelic.Transaction) {
	r.ended++
}

func (r *recordingTracer) RecordError(txn *newrelic.Transaction, err error) {
	if err != nil {
		r.noticed = append(r.noticed, err)
	}
}

func TestBackgroundRunsInsideTransaction(t *testing.T) {
	rec := &recordingTracer{txn: &newrelic.Transaction{}}
	boom := errors.New("boom")

	err := Background(context.Background(), rec, "worker/job-reindex", func(ctx context.Context) error {
		assert.Same(t, rec.txn, newrelic.FromContext(ctx))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"worker/job-reindex"}, rec.started)
	assert.Equal(t, 1, rec.ended)
	assert.Equal(t, []error{boom}, rec.noticed)
}

func TestBackgroundWithDisabledTracer(t *testing.T) {
	calls := 0
	err := Background(context.Background(), NewNoopTracer(), "noop", func(ctx context.Context) error {
		calls++
		assert.Nil(t, newrelic.FromContext(ctx))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	require.NoError(t, Background(context.Background(), nil, "nil tracer", func(context.Context) error { return nil }))
}
