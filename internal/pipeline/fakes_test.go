package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cuongbtq/cv-forge/internal/compiler"
	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/extract"
)

// memStore mirrors the claim and fencing rules of the PostgreSQL store.
type memStore struct {
	mu        sync.Mutex
	clock     time.Time
	jobs      map[string]*domain.Job
	templates map[string]*domain.Template
}

func newMemStore() *memStore {
	return &memStore{
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		jobs:  map[string]*domain.Job{},
		templates: map[string]*domain.Template{
			"tmpl-1": {ID: "tmpl-1", Key: "classic_arabic", SchemaName: "classic_cv", IsActive: true},
		},
	}
}

func (m *memStore) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(d)
}

func (m *memStore) put(job domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = &job
}

func (m *memStore) get(id string) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) setStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].Status = status
}

func (m *memStore) ClaimJob(ctx context.Context, jobID, taskID, workerID string, lease time.Duration) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	switch {
	case domain.IsTerminal(job.Status):
		return &cp, domain.ErrJobTerminal
	case job.TaskID != taskID:
		return &cp, domain.ErrJobAlreadyClaimed
	case job.Status == domain.JobStatusProcessing && job.LeaseExpiresAt != nil && job.LeaseExpiresAt.After(m.clock):
		return &cp, domain.ErrJobLeased
	}

	job.Status = domain.JobStatusProcessing
	job.WorkerID = &workerID
	if job.StartedAt == nil {
		started := m.clock
		job.StartedAt = &started
	}
	expires := m.clock.Add(lease)
	job.LeaseExpiresAt = &expires
	cp = *job
	return &cp, nil
}

func (m *memStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	return t, nil
}

func (m *memStore) fenced(lease domain.Lease, apply func(job *domain.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[lease.JobID]
	if !ok || job.TaskID != lease.TaskID || job.Status != domain.JobStatusProcessing ||
		job.WorkerID == nil || *job.WorkerID != lease.Holder {
		return domain.ErrLeaseLost
	}
	apply(job)
	return nil
}

func (m *memStore) SaveExtraction(ctx context.Context, lease domain.Lease, payload json.RawMessage) error {
	return m.fenced(lease, func(job *domain.Job) {
		job.Payload = payload
		job.Stage = domain.StageRender
	})
}

func (m *memStore) SaveSource(ctx context.Context, lease domain.Lease, source string) error {
	return m.fenced(lease, func(job *domain.Job) {
		job.Source = source
		job.Stage = domain.StageCompile
	})
}

func (m *memStore) CompleteJob(ctx context.Context, lease domain.Lease, c domain.Completion) error {
	return m.fenced(lease, func(job *domain.Job) {
		job.Status = domain.JobStatusSuccess
		job.ArtifactURL = c.ArtifactURL
		job.ArtifactSize = c.ArtifactSize
		job.Logs = c.Logs
		done := m.clock
		job.CompletedAt = &done
		job.LeaseExpiresAt = nil
	})
}

func (m *memStore) FailJob(ctx context.Context, lease domain.Lease, class domain.ErrorClass, message, logs string) error {
	return m.fenced(lease, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.ErrorClass = string(class)
		job.ErrorMessage = domain.Truncate(message, domain.MaxErrorMessageLen)
		job.Logs = domain.Truncate(logs, domain.MaxLogsLen)
		done := m.clock
		job.CompletedAt = &done
		job.LeaseExpiresAt = nil
	})
}

func (m *memStore) ScheduleRetry(ctx context.Context, lease domain.Lease, newTaskID string, class domain.ErrorClass, delay time.Duration, logs string) error {
	return m.fenced(lease, func(job *domain.Job) {
		job.RetryCount++
		job.TaskID = newTaskID
		job.ErrorClass = string(class)
		job.Logs = logs
		expires := m.clock.Add(delay)
		job.LeaseExpiresAt = &expires
	})
}

type scheduled struct {
	delivery Delivery
	delay    time.Duration
}

type fakeScheduler struct {
	mu      sync.Mutex
	sent    []scheduled
	history []scheduled
	err     error
}

func (f *fakeScheduler) Schedule(ctx context.Context, jobID, taskID string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	s := scheduled{Delivery{JobID: jobID, TaskID: taskID}, delay}
	f.sent = append(f.sent, s)
	f.history = append(f.history, s)
	return nil
}

type fakeExtractor struct {
	calls int
	doc   domain.Document
	err   error
	hook  func()
}

func (f *fakeExtractor) Extract(ctx context.Context, req extract.Request) (domain.Document, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return f.doc, f.err
}

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(key string, doc domain.Document) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return `\documentclass{article}`, nil
}

type fakeCompiler struct {
	calls   int
	results []error
	block   bool
	hook    func()
}

func (f *fakeCompiler) Compile(ctx context.Context, in compiler.Input) (*compiler.Result, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	if f.block {
		<-ctx.Done()
		return nil, domain.NewStageError(domain.ClassInternal, domain.StageCompile, ctx.Err())
	}
	if len(f.results) > 0 {
		err := f.results[0]
		f.results = f.results[1:]
		if err != nil {
			return nil, err
		}
	}
	return &compiler.Result{PDF: []byte("%PDF-1.7"), Logs: "ok"}, nil
}

type fakeArtifacts struct {
	writes map[string][]byte
}

func (f *fakeArtifacts) Write(ctx context.Context, name string, data []byte) (string, error) {
	if f.writes == nil {
		f.writes = map[string][]byte{}
	}
	f.writes[name] = data
	return "http://media/" + name, nil
}
