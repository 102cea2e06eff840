package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	published [][]byte
	delayed   []time.Duration
	err       error
}

func (f *fakeBroker) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

func (f *fakeBroker) PublishDelayed(ctx context.Context, body []byte, contentType string, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	f.delayed = append(f.delayed, delay)
	return nil
}

func TestPublisher_Enqueue(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker)

	require.NoError(t, p.Enqueue(context.Background(), "job-1", "task-1"))
	require.Len(t, broker.published, 1)

	msg, err := Decode(broker.published[0])
	require.NoError(t, err)
	assert.Equal(t, "job-1", msg.JobID)
	assert.Equal(t, "task-1", msg.TaskID)
}

func TestPublisher_Schedule(t *testing.T) {
	broker := &fakeBroker{}
	p := NewPublisher(broker)

	require.NoError(t, p.Schedule(context.Background(), "job-1", "task-2", 20*time.Second))
	assert.Equal(t, []time.Duration{20 * time.Second}, broker.delayed)
}

func TestPublisher_BrokerError(t *testing.T) {
	p := NewPublisher(&fakeBroker{err: errors.New("channel closed")})

	err := p.Enqueue(context.Background(), "job-1", "task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to enqueue job job-1")
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"job_id":"a","task_id":"b"}`},
		{name: "malformed json", body: `{"job_id":`, wantErr: true},
		{name: "missing task id", body: `{"job_id":"a"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}
