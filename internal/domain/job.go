package domain

import (
	"encoding/json"
	"time"
)

// Job is a single compilation request and its audit trail.
type Job struct {
	ID             string          `db:"id"`
	ProjectID      string          `db:"project_id"`
	OwnerID        *string         `db:"owner_id"`
	Origin         string          `db:"origin"`
	ParentJobID    *string         `db:"parent_job_id"`
	Status         string          `db:"status"`
	Stage          string          `db:"stage"`
	Language       string          `db:"language"`
	TemplateID     string          `db:"template_id"`
	Payload        json.RawMessage `db:"payload"`
	Source         string          `db:"source"`
	ArtifactURL    string          `db:"artifact_url"`
	ArtifactSize   int64           `db:"artifact_size"`
	Logs           string          `db:"logs"`
	ErrorMessage   string          `db:"error_message"`
	ErrorClass     string          `db:"error_class"`
	RetryCount     int             `db:"retry_count"`
	TaskID         string          `db:"task_id"`
	WorkerID       *string         `db:"worker_id"`
	LeaseExpiresAt *time.Time      `db:"lease_expires_at"`
	CreatedAt      time.Time       `db:"created_at"`
	StartedAt      *time.Time      `db:"started_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Duration is completed_at - started_at, zero until both are set.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Lease is the fencing key of one claim: writes made under it apply only
// while the job is still PROCESSING under the same task handle and holder.
type Lease struct {
	JobID  string
	TaskID string
	Holder string
}

// Lease returns the fencing key of the claim that produced j.
func (j *Job) Lease() Lease {
	l := Lease{JobID: j.ID, TaskID: j.TaskID}
	if j.WorkerID != nil {
		l.Holder = *j.WorkerID
	}
	return l
}

// IsGuest reports whether the job was submitted without an authenticated owner.
func (j *Job) IsGuest() bool {
	return j.OwnerID == nil
}

// AuthorInput is the payload a job carries before extraction runs.
type AuthorInput struct {
	RawPrompt string `json:"raw_prompt"`
	Mode      string `json:"mode"`
}

// NewJob holds what the admission boundary supplies when creating a job.
type NewJob struct {
	OwnerID     *string
	Origin      string
	ParentJobID *string
	ProjectID   string // reuse an existing project; empty creates one
	ProjectName string
	Stage       string
	Language    string
	TemplateID  string
	Payload     json.RawMessage
}

// JobMessage is the task-queue envelope for enqueue(job_id).
type JobMessage struct {
	JobID       string `json:"job_id"`
	TaskID      string `json:"task_id"`
	DeliveryTag uint64 `json:"-"`
	Redelivered bool   `json:"-"`
}

// Identity is the caller as seen by the quota guard.
type Identity struct {
	UserID string
	Tier   string
	Origin string
}

// Authenticated reports whether the identity carries a user id.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Key is the quota record key: the user id for members, the origin for guests.
func (i Identity) Key() string {
	if i.Authenticated() {
		return i.UserID
	}
	return i.Origin
}

// UserStats aggregates an identity's jobs for the stats view.
type UserStats struct {
	Total      int `db:"total"`
	Successful int `db:"successful"`
	Today      int `db:"today"`
}

// HistoryEntry is one row of an identity's recent job history.
type HistoryEntry struct {
	JobID        string     `db:"id"`
	ProjectName  string     `db:"project_name"`
	TemplateName string     `db:"template_name"`
	Status       string     `db:"status"`
	ArtifactURL  string     `db:"artifact_url"`
	ErrorClass   string     `db:"error_class"`
	CreatedAt    time.Time  `db:"created_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// Completion is what a successful compile leaves on the job.
type Completion struct {
	ArtifactURL  string
	ArtifactSize int64
	Logs         string
}

// Document is the structured résumé payload: named fields and nested lists of entries.
type Document map[string]any
