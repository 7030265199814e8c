package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	"github.com/stemforge/stemforge/internal/audio"
	computedomain "github.com/stemforge/stemforge/internal/compute/domain"
	ledgerdomain "github.com/stemforge/stemforge/internal/ledger/domain"
	"github.com/stemforge/stemforge/internal/locks"
	"github.com/stemforge/stemforge/internal/metrics"
	"github.com/stemforge/stemforge/internal/pipeline/domain"
	pricingdomain "github.com/stemforge/stemforge/internal/pricing/domain"
	processingdomain "github.com/stemforge/stemforge/internal/processing/domain"
	"github.com/stemforge/stemforge/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const jobLockTTL = 10 * time.Minute

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Prober  audio.Prober
	Store   storage.Store
	Pool    computedomain.Pool
	Poller  computedomain.Poller
	Locker  *locks.Locker `optional:"true"`
	Records processingdomain.Repository
	Ledger  ledgerdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	prober  audio.Prober
	store   storage.Store
	pool    computedomain.Pool
	poller  computedomain.Poller
	locker  *locks.Locker
	records processingdomain.Repository
	ledger  ledgerdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("pipeline.service"),
		genID:   p.GenID,
		prober:  p.Prober,
		store:   p.Store,
		pool:    p.Pool,
		poller:  p.Poller,
		locker:  p.Locker,
		records: p.Records,
		ledger:  p.Ledger,
	}
}

func (s *Service) Process(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if err := validateVariant(req.ServiceType, req.Stems); err != nil {
		return nil, err
	}

	info, err := s.prober.Probe(ctx, req.LocalPath)
	if err != nil {
		return nil, err
	}

	// Reject before any state is written when the balance cannot cover
	// the charge. The authoritative check is the conditional deduction.
	quote, err := s.ledger.Quote(ctx, req.ServiceType, req.Account.Tier, info.DurationSeconds)
	if err != nil {
		return nil, err
	}
	if req.Account.Credits < quote {
		return nil, accountdomain.ErrInsufficientCredits
	}

	fileHash, err := hashFile(req.LocalPath)
	if err != nil {
		return nil, err
	}
	key := processingdomain.Key{FileHash: fileHash, ServiceType: req.ServiceType, Stems: req.Stems}

	record, state, err := s.resolveRecord(ctx, key)
	if err != nil {
		return nil, err
	}

	if state == recordInFlight {
		var jobID string
		if record.JobID != nil {
			jobID = *record.JobID
		}
		s.log.Info("request joined in-flight record",
			zap.String("record_id", record.ID.String()),
			zap.String("job_id", jobID),
		)
		return &domain.Result{
			RecordID:        record.ID.String(),
			Status:          processingdomain.StatusProcessing,
			JobID:           jobID,
			DurationSeconds: info.DurationSeconds,
		}, nil
	}

	if state == recordFresh && s.locker != nil {
		lockKey := locks.JobKey(key.FileHash, key.ServiceType, key.Stems)
		token, ok, lockErr := s.locker.TryLock(ctx, lockKey, jobLockTTL)
		if lockErr != nil {
			s.log.Warn("job lock unavailable", zap.Error(lockErr))
		} else if !ok {
			return nil, domain.ErrBusy
		} else {
			defer func() {
				_ = s.locker.Release(context.WithoutCancel(ctx), lockKey, token)
			}()
		}
	}

	// The history row is written only once this request owns the work or a
	// cached output. Returns before this point must not leave rows stuck at
	// processing.
	history := &processingdomain.History{
		ID:          s.genID.Generate(),
		AccountID:   req.Account.ID,
		RecordID:    record.ID,
		ServiceType: req.ServiceType,
		Filename:    req.Filename,
		Status:      processingdomain.StatusProcessing,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.records.InsertHistory(ctx, s.db, history); err != nil {
		return nil, err
	}

	if state == recordCached {
		return s.serveFromCache(ctx, req, record, history, info.DurationSeconds)
	}

	if record.InputURL == "" {
		inputURL, upErr := s.uploadInput(ctx, fileHash, req)
		if upErr != nil {
			return nil, s.failRecord(ctx, record, history, upErr)
		}
		record.InputURL = inputURL
		if err := s.records.SetInputURL(ctx, s.db, record.ID, inputURL); err != nil {
			return nil, err
		}
	}

	jobID, err := s.pool.Submit(ctx, computedomain.JobInput{
		ServiceType: req.ServiceType,
		AudioURL:    record.InputURL,
		Stems:       req.Stems,
	})
	if err != nil {
		return nil, s.failRecord(ctx, record, history, err)
	}
	if err := s.records.SetJobID(ctx, s.db, record.ID, jobID); err != nil {
		return nil, err
	}
	metrics.JobsSubmitted.WithLabelValues(req.ServiceType).Inc()

	output, err := s.poller.Wait(ctx, jobID)
	if err != nil {
		return nil, s.failRecord(ctx, record, history, err)
	}

	return s.settleSuccess(ctx, req, record, history, info.DurationSeconds, output)
}

// serveFromCache bills the requester and completes the history row without
// touching the shared record. Cache hits are charged at full price.
func (s *Service) serveFromCache(
	ctx context.Context,
	req domain.Request,
	record *processingdomain.Record,
	history *processingdomain.History,
	duration float64,
) (*domain.Result, error) {
	consumption, err := s.ledger.Charge(ctx, ledgerdomain.ChargeRequest{
		AccountID:       req.Account.ID,
		Tier:            req.Account.Tier,
		RecordID:        record.ID,
		ServiceType:     req.ServiceType,
		DurationSeconds: duration,
	})
	if err != nil {
		_ = s.records.FailHistory(ctx, s.db, history.ID, err.Error())
		return nil, err
	}
	if err := s.records.CompleteHistory(ctx, s.db, history.ID, consumption.ID); err != nil {
		return nil, err
	}
	metrics.CacheHits.WithLabelValues(req.ServiceType).Inc()
	metrics.CreditsCharged.WithLabelValues(req.ServiceType).Add(consumption.CreditsCost)

	s.log.Info("served from cache",
		zap.String("record_id", record.ID.String()),
		zap.String("account_id", req.Account.ID.String()),
	)
	return &domain.Result{
		RecordID:        record.ID.String(),
		Status:          processingdomain.StatusCompleted,
		OutputURL:       *record.OutputURL,
		FromCache:       true,
		CreditsCharged:  consumption.CreditsCost,
		DurationSeconds: duration,
	}, nil
}

// settleSuccess charges the account first and persists the completed output
// only after the charge sticks. A charge failure downgrades the record to
// failed so the next request retries instead of serving unbilled output.
func (s *Service) settleSuccess(
	ctx context.Context,
	req domain.Request,
	record *processingdomain.Record,
	history *processingdomain.History,
	duration float64,
	output *computedomain.JobOutput,
) (*domain.Result, error) {
	consumption, err := s.ledger.Charge(ctx, ledgerdomain.ChargeRequest{
		AccountID:       req.Account.ID,
		Tier:            req.Account.Tier,
		RecordID:        record.ID,
		ServiceType:     req.ServiceType,
		DurationSeconds: duration,
	})
	if err != nil {
		failErr := s.failRecord(ctx, record, history, fmt.Errorf("%w: %v", domain.ErrBillingConflict, err))
		s.log.Error("charge failed after compute success",
			zap.String("record_id", record.ID.String()),
			zap.Error(err),
		)
		return nil, failErr
	}

	var meta datatypes.JSON
	if len(output.Meta) > 0 {
		if raw, mErr := json.Marshal(output.Meta); mErr == nil {
			meta = datatypes.JSON(raw)
		}
	}

	ok, err := s.records.MarkCompleted(ctx, s.db, record.ID, output.OutputURL, meta, output.ProcessSeconds)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another worker settled the row first; the charge already stuck,
		// so the output is still served.
		s.log.Warn("record settled concurrently", zap.String("record_id", record.ID.String()))
	}
	if err := s.records.CompleteHistory(ctx, s.db, history.ID, consumption.ID); err != nil {
		return nil, err
	}
	metrics.JobsSettled.WithLabelValues(req.ServiceType, "completed").Inc()
	metrics.CreditsCharged.WithLabelValues(req.ServiceType).Add(consumption.CreditsCost)

	return &domain.Result{
		RecordID:        record.ID.String(),
		Status:          processingdomain.StatusCompleted,
		OutputURL:       output.OutputURL,
		FromCache:       false,
		CreditsCharged:  consumption.CreditsCost,
		DurationSeconds: duration,
	}, nil
}

type recordState int

const (
	recordFresh recordState = iota
	recordCached
	recordInFlight
)

// resolveRecord finds or creates the shared record for the key and reports
// whether it is servable as-is, still running under another request, or owned
// by this one.
func (s *Service) resolveRecord(ctx context.Context, key processingdomain.Key) (*processingdomain.Record, recordState, error) {
	existing, err := s.records.FindLatest(ctx, s.db, key)
	if err != nil {
		return nil, recordFresh, err
	}

	if existing != nil {
		if existing.CacheHit() {
			return existing, recordCached, nil
		}
		if existing.Reusable() {
			ok, resetErr := s.records.ResetForRetry(ctx, s.db, existing.ID)
			if resetErr != nil {
				return nil, recordFresh, resetErr
			}
			if ok {
				existing.Status = processingdomain.StatusProcessing
				existing.OutputURL = nil
				existing.ErrorDetail = nil
				return existing, recordFresh, nil
			}
		}
		// Still processing under another request; report it instead of
		// submitting a second job for the same content.
		if existing.Status == processingdomain.StatusProcessing {
			return existing, recordInFlight, nil
		}
	}

	now := time.Now().UTC()
	record := &processingdomain.Record{
		ID:          s.genID.Generate(),
		FileHash:    key.FileHash,
		ServiceType: key.ServiceType,
		Stems:       key.Stems,
		Status:      processingdomain.StatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.records.Insert(ctx, s.db, record); err != nil {
		return nil, recordFresh, err
	}
	return record, recordFresh, nil
}

func (s *Service) uploadInput(ctx context.Context, fileHash string, req domain.Request) (string, error) {
	f, err := os.Open(req.LocalPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := storage.InputKey(fileHash, req.Filename)
	return s.store.Upload(ctx, key, f, stat.Size(), "application/octet-stream")
}

// failRecord marks both the shared record and the per-user history row as
// failed, then returns the original error for the caller.
func (s *Service) failRecord(
	ctx context.Context,
	record *processingdomain.Record,
	history *processingdomain.History,
	cause error,
) error {
	ctx = context.WithoutCancel(ctx)
	metrics.JobsSettled.WithLabelValues(record.ServiceType, "failed").Inc()
	if _, err := s.records.MarkFailed(ctx, s.db, record.ID, cause.Error()); err != nil {
		s.log.Error("mark record failed", zap.String("record_id", record.ID.String()), zap.Error(err))
	}
	if err := s.records.FailHistory(ctx, s.db, history.ID, cause.Error()); err != nil {
		s.log.Error("mark history failed", zap.String("history_id", history.ID.String()), zap.Error(err))
	}
	return cause
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return storage.HashReader(f)
}

func validateVariant(serviceType string, stems int) error {
	if !pricingdomain.ValidServiceType(serviceType) {
		return pricingdomain.ErrUnknownService
	}
	if serviceType == pricingdomain.ServiceSpleeter {
		switch stems {
		case 2, 4, 5:
			return nil
		default:
			return domain.ErrInvalidStems
		}
	}
	if stems != 0 {
		return domain.ErrInvalidStems
	}
	return nil
}
