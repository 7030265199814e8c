package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stemforge/stemforge/internal/clock"
	identitydomain "github.com/stemforge/stemforge/internal/identity/domain"
	invitedomain "github.com/stemforge/stemforge/internal/invite/domain"
	"github.com/stemforge/stemforge/internal/locks"
	"github.com/stemforge/stemforge/internal/metrics"
	rechargedomain "github.com/stemforge/stemforge/internal/recharge/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

const (
	jobIdentitySync      = "identity_sync"
	jobInviteSweep       = "invite_sweep"
	jobRechargeReconcile = "recharge_reconcile"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	IdentitySvc identitydomain.Syncer
	InviteSvc   invitedomain.Service
	RechargeSvc rechargedomain.Service
	Locker      *locks.Locker `optional:"true"`
	Config      Config        `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	identitySvc identitydomain.Syncer
	inviteSvc   invitedomain.Service
	rechargeSvc rechargedomain.Service
	locker      *locks.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.IdentitySvc == nil || p.InviteSvc == nil || p.RechargeSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler"),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		identitySvc: p.IdentitySvc,
		inviteSvc:   p.InviteSvc,
		rechargeSvc: p.RechargeSvc,
		locker:      p.Locker,
	}, nil
}

// runJob wraps one execution with a timeout, an optional cross-replica lock
// and metrics. A lock held elsewhere skips the run without error.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	lockKey := locks.ScheduleKey(name)
	token, acquired, err := s.locker.TryLock(ctx, lockKey, s.cfg.JobTimeout)
	if err != nil {
		s.log.Warn("job lock unavailable", zap.String("job", name), zap.Error(err))
	} else if !acquired {
		metrics.SchedulerRuns.WithLabelValues(name, "skipped").Inc()
		return nil
	} else {
		defer func() {
			_ = s.locker.Release(context.WithoutCancel(ctx), lockKey, token)
		}()
	}

	err = fn(ctx)
	metrics.SchedulerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.SchedulerRuns.WithLabelValues(name, "ok").Inc()
		return nil
	}

	metrics.SchedulerRuns.WithLabelValues(name, "error").Inc()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job back to back. Exposed for the admin
// trigger endpoints and tests; RunForever drives each job on its own period.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.isJobEnabled(jobIdentitySync) {
		err = errors.Join(err, s.runJob(parent, jobIdentitySync, s.IdentitySyncJob))
	}
	if s.isJobEnabled(jobInviteSweep) {
		err = errors.Join(err, s.runJob(parent, jobInviteSweep, s.InviteSweepJob))
	}
	if s.isJobEnabled(jobRechargeReconcile) {
		err = errors.Join(err, s.runJob(parent, jobRechargeReconcile, s.RechargeReconcileJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{jobIdentitySync, s.cfg.SyncInterval, s.IdentitySyncJob},
		{jobInviteSweep, s.cfg.SweepInterval, s.InviteSweepJob},
		{jobRechargeReconcile, s.cfg.ReconcileInterval, s.RechargeReconcileJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.name) {
			continue
		}
		job := job
		go func() {
			ticker := time.NewTicker(job.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				if err := s.runJob(ctx, job.name, job.run); err != nil {
					s.log.Warn("scheduled job failed", zap.String("job", job.name), zap.Error(err))
				}
			}
		}()
	}

	<-ctx.Done()
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// IdentitySyncJob mirrors new directory users into local accounts.
func (s *Scheduler) IdentitySyncJob(ctx context.Context) error {
	created, err := s.identitySvc.SyncAll(ctx)
	if err != nil {
		return err
	}
	if created > 0 {
		s.log.Info("identity sync", zap.Int("created", created))
	}
	return nil
}

// InviteSweepJob revalidates every promotionally elevated account.
func (s *Scheduler) InviteSweepJob(ctx context.Context) error {
	downgraded, err := s.inviteSvc.RevalidateAll(ctx)
	if err != nil {
		return err
	}
	if downgraded > 0 {
		s.log.Info("invite sweep", zap.Int("downgraded", downgraded))
	}
	return nil
}

// RechargeReconcileJob settles stale pending recharges whose webhook never
// arrived.
func (s *Scheduler) RechargeReconcileJob(ctx context.Context) error {
	settled, err := s.rechargeSvc.ReconcilePending(ctx)
	if err != nil {
		return err
	}
	if settled > 0 {
		s.log.Info("recharge reconcile", zap.Int("settled", settled))
	}
	return nil
}
