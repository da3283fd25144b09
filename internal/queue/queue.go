// Package queue carries capture tasks from the API and the dispatcher to
// workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
)

var ErrQueueFull = errors.New("task queue is full")

// Task is the queue envelope for one capture run. JobID is empty for
// scheduled runs (the worker creates the job) and for on-demand runs whose
// job could not be created.
type Task struct {
	ID            string             `json:"id"`
	JobID         string             `json:"job_id,omitempty"`
	ScheduleID    string             `json:"schedule_id,omitempty"`
	CaptureType   domain.CaptureType `json:"capture_type"`
	OwnerID       string             `json:"owner_id"`
	CredentialIDs []string           `json:"credential_ids"`
	Params        json.RawMessage    `json:"params,omitempty"`
	EnqueuedAt    time.Time          `json:"enqueued_at"`
	// RequestID carries the API request that triggered the task into worker logs.
	RequestID string `json:"request_id,omitempty"`
}

// Scheduled reports whether the task was fired by a schedule.
func (t Task) Scheduled() bool { return t.ScheduleID != "" }

type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	// Dequeue blocks until a task is available or ctx is done.
	Dequeue(ctx context.Context) (Task, error)
}

// MemoryQueue is an in-process queue for single-binary deployments and tests.
type MemoryQueue struct {
	ch chan Task
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{ch: make(chan Task, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case <-ctx.Done():
		return Task{}, ctx.Err()
	case t := <-q.ch:
		return t, nil
	}
}

// Len reports queued tasks.
func (q *MemoryQueue) Len() int { return len(q.ch) }
