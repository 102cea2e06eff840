package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

// Broker is the subset of the RabbitMQ client the publisher needs.
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
	PublishDelayed(ctx context.Context, body []byte, contentType string, delay time.Duration) error
}

// Publisher hands job messages to the task queue.
type Publisher struct {
	broker Broker
}

// NewPublisher creates a new Publisher
func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

// Enqueue publishes enqueue(job_id) for immediate pickup.
func (p *Publisher) Enqueue(ctx context.Context, jobID, taskID string) error {
	body, err := Encode(jobID, taskID)
	if err != nil {
		return err
	}
	if err := p.broker.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Schedule publishes the message so it reaches a worker after delay.
func (p *Publisher) Schedule(ctx context.Context, jobID, taskID string, delay time.Duration) error {
	body, err := Encode(jobID, taskID)
	if err != nil {
		return err
	}
	if err := p.broker.PublishDelayed(ctx, body, "application/json", delay); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobID, err)
	}
	return nil
}

// Encode renders the wire form of a job message.
func Encode(jobID, taskID string) ([]byte, error) {
	body, err := json.Marshal(domain.JobMessage{JobID: jobID, TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job message: %w", err)
	}
	return body, nil
}

// Decode parses a delivery body into a job message.
func Decode(body []byte) (*domain.JobMessage, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed message: %v", domain.ErrValidation, err)
	}
	if msg.JobID == "" || msg.TaskID == "" {
		return nil, fmt.Errorf("%w: message missing job_id or task_id", domain.ErrValidation)
	}
	return &msg, nil
}
