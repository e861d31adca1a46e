package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("import job not found")

// Import job states.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// ImportJob tracks one background recipe import.
type ImportJob struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	URL         string     `json:"url"`
	RecipeID    *uuid.UUID `json:"recipe_id,omitempty"`
	RecipeTitle string     `json:"recipe_title,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobStore keeps import job state in Redis. Entries expire an hour after
// their last update, so finished and abandoned jobs clean themselves up
// instead of accumulating for the life of the process.
type JobStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJobStore creates a job store with a one hour entry TTL.
func NewJobStore(client *redis.Client) *JobStore {
	return &JobStore{client: client, ttl: time.Hour}
}

func jobKey(id string) string {
	return "import:job:" + id
}

// Create registers a new pending job and returns it.
func (s *JobStore) Create(ctx context.Context, url string) (*ImportJob, error) {
	now := time.Now().UTC()
	job := &ImportJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (*ImportJob, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	var job ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// List returns every live job, newest first. Anything older than the TTL has
// already expired out of Redis, so the listing is self-pruning.
func (s *JobStore) List(ctx context.Context) ([]ImportJob, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, jobKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}

	jobs := make([]ImportJob, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Expired between scan and read.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to load job: %w", err)
		}
		var job ImportJob
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// MarkRunning transitions a job to running.
func (s *JobStore) MarkRunning(ctx context.Context, id string) error {
	return s.update(ctx, id, func(job *ImportJob) {
		job.Status = JobStatusRunning
	})
}

// MarkDone records a successful import.
func (s *JobStore) MarkDone(ctx context.Context, id string, recipeID uuid.UUID, title string) error {
	return s.update(ctx, id, func(job *ImportJob) {
		job.Status = JobStatusDone
		job.RecipeID = &recipeID
		job.RecipeTitle = title
	})
}

// MarkFailed records an import failure.
func (s *JobStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return s.update(ctx, id, func(job *ImportJob) {
		job.Status = JobStatusFailed
		job.Error = errMsg
	})
}

func (s *JobStore) update(ctx context.Context, id string, apply func(*ImportJob)) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	apply(job)
	job.UpdatedAt = time.Now().UTC()
	return s.save(ctx, job)
}

func (s *JobStore) save(ctx context.Context, job *ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(job.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}
