package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stemforge/stemforge/internal/compute/client"
	"github.com/stemforge/stemforge/internal/compute/domain"
	"github.com/stemforge/stemforge/internal/compute/service"
	"github.com/stemforge/stemforge/internal/config"
	"go.uber.org/zap"
)

// fakePool serves the pool wire protocol and walks a job through a
// scripted sequence of states.
type fakePool struct {
	mu     sync.Mutex
	states []domain.JobStatus
	polls  int
}

func (f *fakePool) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": domain.StateInQueue})
	})
	mux.HandleFunc("GET /status/job-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		idx := f.polls
		if idx >= len(f.states) {
			idx = len(f.states) - 1
		}
		status := f.states[idx]
		f.polls++
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

func newPoller(t *testing.T, baseURL string, maxWait time.Duration) (domain.Pool, domain.Poller) {
	t.Helper()
	cfg := config.Config{
		Compute: config.ComputeConfig{
			BaseURL:      baseURL,
			APIKey:       "test-key",
			PollInterval: 5 * time.Millisecond,
			MaxWait:      maxWait,
		},
	}
	pool := client.Provide(client.Params{Config: cfg, Log: zap.NewNop()})
	poller := service.NewPoller(service.Params{Config: cfg, Log: zap.NewNop(), Pool: pool})
	return pool, poller
}

func TestWaitCompletedJob(t *testing.T) {
	fake := &fakePool{states: []domain.JobStatus{
		{ID: "job-1", State: domain.StateInQueue},
		{ID: "job-1", State: domain.StateInProgress},
		{ID: "job-1", State: domain.StateCompleted, Output: &domain.JobOutput{
			OutputURL:      "https://cdn.test/out.zip",
			ProcessSeconds: 42.5,
		}},
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	pool, poller := newPoller(t, srv.URL, time.Second)

	jobID, err := pool.Submit(context.Background(), domain.JobInput{
		ServiceType: "spleeter",
		AudioURL:    "https://cdn.test/in.mp3",
		Stems:       4,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if jobID != "job-1" {
		t.Fatalf("expected job-1, got %q", jobID)
	}

	out, err := poller.Wait(context.Background(), jobID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if out.OutputURL != "https://cdn.test/out.zip" {
		t.Fatalf("unexpected output url %q", out.OutputURL)
	}
	if out.ProcessSeconds != 42.5 {
		t.Fatalf("unexpected process seconds %v", out.ProcessSeconds)
	}
}

func TestWaitFailedJob(t *testing.T) {
	fake := &fakePool{states: []domain.JobStatus{
		{ID: "job-1", State: domain.StateInProgress},
		{ID: "job-1", State: domain.StateFailed, Output: &domain.JobOutput{Error: "oom killed"}},
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	_, poller := newPoller(t, srv.URL, time.Second)

	_, err := poller.Wait(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
}

func TestWaitTimesOutOnStuckJob(t *testing.T) {
	fake := &fakePool{states: []domain.JobStatus{
		{ID: "job-1", State: domain.StateInProgress},
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	_, poller := newPoller(t, srv.URL, 30*time.Millisecond)

	_, err := poller.Wait(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrJobTimeout) {
		t.Fatalf("expected ErrJobTimeout, got %v", err)
	}
}

func TestWaitCompletedWithoutOutputFails(t *testing.T) {
	fake := &fakePool{states: []domain.JobStatus{
		{ID: "job-1", State: domain.StateCompleted},
	}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	_, poller := newPoller(t, srv.URL, time.Second)

	_, err := poller.Wait(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
}

func TestSubmitRejectedAuth(t *testing.T) {
	fake := &fakePool{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	cfg := config.Config{Compute: config.ComputeConfig{
		BaseURL: srv.URL,
		APIKey:  "wrong-key",
	}}
	pool := client.Provide(client.Params{Config: cfg, Log: zap.NewNop()})

	_, err := pool.Submit(context.Background(), domain.JobInput{ServiceType: "spleeter"})
	if !errors.Is(err, domain.ErrPoolRequest) {
		t.Fatalf("expected ErrPoolRequest, got %v", err)
	}
}
