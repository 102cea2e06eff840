package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/cv-forge/internal/pipeline"
	"github.com/cuongbtq/cv-forge/internal/queue"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settlement struct {
	requeue bool
	acked   bool
}

type fakeBroker struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	settled    map[uint64]settlement
	consumeErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		deliveries: make(chan amqp.Delivery, 16),
		settled:    make(map[uint64]settlement),
	}
}

func (b *fakeBroker) Consume(string) (<-chan amqp.Delivery, error) {
	if b.consumeErr != nil {
		return nil, b.consumeErr
	}
	return b.deliveries, nil
}

func (b *fakeBroker) Ack(tag uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settled[tag] = settlement{acked: true}
	return nil
}

func (b *fakeBroker) Nack(tag uint64, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settled[tag] = settlement{requeue: requeue}
	return nil
}

func (b *fakeBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.settled)
}

func (b *fakeBroker) get(tag uint64) settlement {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settled[tag]
}

type fakeProcessor struct {
	mu     sync.Mutex
	seen   []pipeline.Delivery
	result map[string]pipeline.Disposition
	block  bool
}

func (p *fakeProcessor) Process(ctx context.Context, d pipeline.Delivery) pipeline.Disposition {
	p.mu.Lock()
	p.seen = append(p.seen, d)
	block := p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return pipeline.Requeue
	}
	return p.result[d.JobID]
}

func newTestWorker(b *fakeBroker, p *fakeProcessor, shutdown time.Duration) *Worker {
	return NewWorker(&Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Broker:          b,
		Processor:       p,
		WorkerID:        "worker-test",
		Concurrency:     2,
		ShutdownTimeout: shutdown,
	})
}

func delivery(t *testing.T, tag uint64, jobID string) amqp.Delivery {
	t.Helper()
	body, err := queue.Encode(jobID, uuid.NewString())
	require.NoError(t, err)
	return amqp.Delivery{DeliveryTag: tag, Body: body}
}

func TestWorker_SettlesByDisposition(t *testing.T) {
	ackJob, requeueJob := uuid.NewString(), uuid.NewString()
	b := newFakeBroker()
	p := &fakeProcessor{result: map[string]pipeline.Disposition{
		ackJob:     pipeline.Ack,
		requeueJob: pipeline.Requeue,
	}}
	w := newTestWorker(b, p, time.Second)

	b.deliveries <- delivery(t, 1, ackJob)
	b.deliveries <- delivery(t, 2, requeueJob)
	b.deliveries <- amqp.Delivery{DeliveryTag: 3, Body: []byte("{not json")}
	b.deliveries <- amqp.Delivery{DeliveryTag: 4, Body: []byte(`{"job_id":"abc","task_id":"def"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return b.count() == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	assert.True(t, b.get(1).acked)
	assert.Equal(t, settlement{requeue: true}, b.get(2))
	assert.Equal(t, settlement{}, b.get(3), "malformed body is dropped without requeue")
	assert.Equal(t, settlement{}, b.get(4), "non-UUID ids are dropped without requeue")

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Len(t, p.seen, 2)
}

func TestWorker_DeliveriesClosed(t *testing.T) {
	b := newFakeBroker()
	close(b.deliveries)
	w := newTestWorker(b, &fakeProcessor{}, time.Second)

	err := w.Start(context.Background())
	assert.ErrorIs(t, err, ErrDeliveriesClosed)
}

func TestWorker_ConsumeError(t *testing.T) {
	b := newFakeBroker()
	b.consumeErr = errors.New("not connected")
	w := newTestWorker(b, &fakeProcessor{}, time.Second)

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestWorker_ShutdownInterruptsInFlightJobs(t *testing.T) {
	b := newFakeBroker()
	p := &fakeProcessor{block: true}
	w := newTestWorker(b, p, 50*time.Millisecond)

	b.deliveries <- delivery(t, 7, uuid.NewString())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.seen) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after the shutdown timeout")
	}
	assert.Equal(t, settlement{requeue: true}, b.get(7))
}
