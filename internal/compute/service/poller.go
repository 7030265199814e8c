package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stemforge/stemforge/internal/compute/domain"
	"github.com/stemforge/stemforge/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Pool   domain.Pool
}

type poller struct {
	pool     domain.Pool
	log      *zap.Logger
	interval time.Duration
	maxWait  time.Duration
}

func NewPoller(p Params) domain.Poller {
	return &poller{
		pool:     p.Pool,
		log:      p.Log.Named("compute.poller"),
		interval: p.Config.Compute.PollInterval,
		maxWait:  p.Config.Compute.MaxWait,
	}
}

// Wait polls the pool until the job reaches a terminal state or the wait
// budget runs out. Transient status errors are retried on the next tick.
func (p *poller) Wait(ctx context.Context, jobID string) (*domain.JobOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.pool.Status(ctx, jobID)
		if err != nil {
			p.log.Warn("poll status failed", zap.String("job_id", jobID), zap.Error(err))
		} else {
			switch status.State {
			case domain.StateCompleted:
				if status.Output == nil || status.Output.OutputURL == "" {
					return nil, fmt.Errorf("%w: completed without output", domain.ErrJobFailed)
				}
				return status.Output, nil
			case domain.StateFailed:
				detail := "worker reported failure"
				if status.Output != nil && status.Output.Error != "" {
					detail = status.Output.Error
				}
				return nil, fmt.Errorf("%w: %s", domain.ErrJobFailed, detail)
			}
		}

		select {
		case <-ctx.Done():
			return nil, domain.ErrJobTimeout
		case <-ticker.C:
		}
	}
}
