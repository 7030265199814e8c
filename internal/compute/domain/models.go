package domain

import (
	"context"
	"errors"
)

const (
	StateInQueue    = "IN_QUEUE"
	StateInProgress = "IN_PROGRESS"
	StateCompleted  = "COMPLETED"
	StateFailed     = "FAILED"
)

// JobInput is the payload handed to a worker. AudioURL must be reachable
// from inside the pool network.
type JobInput struct {
	ServiceType string `json:"service_type"`
	AudioURL    string `json:"audio_url"`
	Stems       int    `json:"stems,omitempty"`
}

// JobOutput is what a completed worker reports back.
type JobOutput struct {
	OutputURL      string                 `json:"output_url"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
	ProcessSeconds float64                `json:"process_seconds,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

type JobStatus struct {
	ID     string     `json:"id"`
	State  string     `json:"status"`
	Output *JobOutput `json:"output,omitempty"`
}

func (s JobStatus) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// Pool is a remote fleet of workers that run jobs asynchronously.
type Pool interface {
	Submit(ctx context.Context, input JobInput) (string, error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

// Poller drives a submitted job to a terminal state.
type Poller interface {
	Wait(ctx context.Context, jobID string) (*JobOutput, error)
}

var (
	ErrJobFailed   = errors.New("job_failed")
	ErrJobTimeout  = errors.New("job_timeout")
	ErrPoolRequest = errors.New("pool_request_failed")
)
