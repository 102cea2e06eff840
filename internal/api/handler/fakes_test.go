package handler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
	"github.com/cuongbtq/cv-forge/internal/extract"
)

const (
	arabicTemplateID  = "6f0c5a52-0000-4000-8000-000000000c01"
	premiumTemplateID = "6f0c5a52-0000-4000-8000-000000000c09"
)

type fakeStore struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	created   []domain.NewJob
	abandoned []string
	templates []domain.Template
	stats     domain.UserStats
	count     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs: map[string]*domain.Job{},
		templates: []domain.Template{
			{ID: arabicTemplateID, Key: "classic_arabic", Name: "Classic Arabic", SchemaName: extract.SchemaClassicCV, IsActive: true},
			{ID: premiumTemplateID, Key: "executive", Name: "Executive", SchemaName: extract.SchemaClassicCV, IsActive: true, IsPremium: true},
		},
	}
}

func (s *fakeStore) CreateJob(_ context.Context, in domain.NewJob) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, in)
	job := &domain.Job{
		ID:          newID(len(s.created)),
		ProjectID:   in.ProjectID,
		OwnerID:     in.OwnerID,
		Origin:      in.Origin,
		ParentJobID: in.ParentJobID,
		Status:      domain.JobStatusQueued,
		Stage:       in.Stage,
		Language:    in.Language,
		TemplateID:  in.TemplateID,
		Payload:     in.Payload,
		TaskID:      newID(100 + len(s.created)),
		CreatedAt:   time.Now(),
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *fakeStore) AbandonQueued(_ context.Context, jobID string, _ domain.ErrorClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = append(s.abandoned, jobID)
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *fakeStore) GetJobForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID == nil || *job.OwnerID != ownerID {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *fakeStore) CancelJob(ctx context.Context, jobID, ownerID string) error {
	job, err := s.GetJobForOwner(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	if domain.IsTerminal(job.Status) {
		return domain.ErrJobTerminal
	}
	job.Status = domain.JobStatusCancelled
	return nil
}

func (s *fakeStore) ListRecent(_ context.Context, ownerID string, _ time.Time, _ int) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := []domain.HistoryEntry{}
	for _, j := range s.jobs {
		if j.OwnerID != nil && *j.OwnerID == ownerID {
			entries = append(entries, domain.HistoryEntry{JobID: j.ID, Status: j.Status, CreatedAt: j.CreatedAt})
		}
	}
	return entries, nil
}

func (s *fakeStore) Stats(context.Context, string, time.Time) (domain.UserStats, error) {
	return s.stats, nil
}

func (s *fakeStore) CountCreatedSince(context.Context, string, time.Time) (int, error) {
	return s.count, nil
}

func (s *fakeStore) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	for _, t := range s.templates {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, domain.ErrTemplateNotFound
}

func (s *fakeStore) GetTemplateByKey(_ context.Context, key string) (*domain.Template, error) {
	for _, t := range s.templates {
		if t.Key == key {
			t := t
			return &t, nil
		}
	}
	return nil, domain.ErrTemplateNotFound
}

func (s *fakeStore) ListActiveTemplates(context.Context) ([]domain.Template, error) {
	return s.templates, nil
}

func (s *fakeStore) put(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

type fakePublisher struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (p *fakePublisher) Enqueue(_ context.Context, jobID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.enqueued = append(p.enqueued, jobID)
	return nil
}

type fakeExtractor struct {
	doc  domain.Document
	err  error
	last extract.Request
}

func (e *fakeExtractor) Extract(_ context.Context, req extract.Request) (domain.Document, error) {
	e.last = req
	return e.doc, e.err
}

type fakePDF struct {
	text string
	err  error
}

func (p *fakePDF) Text(context.Context, []byte) (string, error) {
	return p.text, p.err
}

type fakeExporter struct{}

func (fakeExporter) ExportXLSX(context.Context, string) ([]byte, error) {
	return []byte("xlsx"), nil
}

var errBroker = errors.New("broker unavailable")

func newID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

func validDocument() map[string]any {
	return map[string]any{
		"full_name":            "Layla Haddad",
		"contact":              map[string]any{"email": "layla@example.com"},
		"professional_summary": "Backend engineer.",
		"education": []any{
			map[string]any{"degree": "BSc Computer Science", "institution": "Cairo University"},
		},
		"skills": []any{
			map[string]any{"category_name": "Languages", "skills": []any{"Go", "SQL"}},
		},
	}
}

type fakeTrials struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

func newFakeTrials() *fakeTrials {
	return &fakeTrials{expires: map[string]time.Time{}}
}

func (f *fakeTrials) TrialActive(_ context.Context, origin string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end, ok := f.expires[origin]
	return ok && now.Before(end), nil
}

func (f *fakeTrials) ConsumeTrial(_ context.Context, origin string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[origin] = expiresAt
	return nil
}
