// Package scheduler runs the campaign engine: it expands due campaigns into runs,
// dispatches due recipients and reconciles work abandoned by crashed workers.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/amirphl/orochi-outreach/config"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
	"golang.org/x/sync/errgroup"
)

const (
	minTickInterval = 100 * time.Millisecond
	maxTickInterval = time.Minute
)

// CampaignScheduler periodically promotes due campaigns into runs and sends due recipients
type CampaignScheduler struct {
	campaignRepo  repository.CampaignRepository
	runRepo       repository.CampaignRunRepository
	recipientRepo repository.CampaignRecipientRepository

	orchestrator *RunOrchestrator
	dispatcher   *RecipientDispatcher
	finalizer    *RunFinalizer

	cfg      config.SchedulerConfig
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
}

func NewCampaignScheduler(
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	recipientRepo repository.CampaignRecipientRepository,
	orchestrator *RunOrchestrator,
	dispatcher *RecipientDispatcher,
	finalizer *RunFinalizer,
	cfg config.SchedulerConfig,
	logger *log.Logger,
) *CampaignScheduler {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.CampaignBatchSize <= 0 {
		cfg.CampaignBatchSize = 25
	}
	if cfg.RecipientBatchSize <= 0 {
		cfg.RecipientBatchSize = 10
	}
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return &CampaignScheduler{
		campaignRepo:  campaignRepo,
		runRepo:       runRepo,
		recipientRepo: recipientRepo,
		orchestrator:  orchestrator,
		dispatcher:    dispatcher,
		finalizer:     finalizer,
		cfg:           cfg,
		interval:      ClampTickInterval(cfg.TickInterval),
		logger:        logger,
		now:           utils.UTCNow,
	}
}

// ClampTickInterval bounds the tick to [100ms, 1m]; zero or negative means 1s
func ClampTickInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return time.Second
	case d < minTickInterval:
		return minTickInterval
	case d > maxTickInterval:
		return maxTickInterval
	default:
		return d
	}
}

// WithClock overrides the time source used to pick due work
func (s *CampaignScheduler) WithClock(now func() time.Time) *CampaignScheduler {
	s.now = now
	return s
}

// Interval returns the effective tick interval
func (s *CampaignScheduler) Interval() time.Duration {
	return s.interval
}

// Start launches the scheduler loop in a background goroutine and returns a stop function.
// A disabled scheduler starts nothing.
func (s *CampaignScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	if !s.cfg.Enabled {
		s.logger.Printf("scheduler: disabled, worker loop not started")
		return cancel
	}

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	// reconciliation of abandoned locks, runs and campaigns
	go func() {
		defer func() { done <- struct{}{} }()
		s.startSweepWorker(ctx)
	}()

	s.logger.Printf("scheduler: started worker=%s interval=%s", s.dispatcher.Identity(), s.interval)

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			cancel()
			<-done
			<-done
			s.logger.Printf("scheduler: stopped")
		})
	}
}

// RunOnce performs one tick. Errors and panics are logged, never returned.
func (s *CampaignScheduler) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			schedulerTicksTotal.WithLabelValues("panic").Inc()
			s.logger.Printf("scheduler: tick panicked: %v\n%s", r, debug.Stack())
		}
	}()

	if ctx.Err() != nil {
		return
	}

	result := "ok"
	if err := s.processDueCampaigns(ctx); err != nil {
		result = "error"
		s.logger.Printf("scheduler: due campaigns: %v", err)
	}
	if err := s.processDueRecipients(ctx); err != nil {
		result = "error"
		s.logger.Printf("scheduler: due recipients: %v", err)
	}
	schedulerTicksTotal.WithLabelValues(result).Inc()
}

// 1) due campaigns become runs, one at a time, oldest due first
func (s *CampaignScheduler) processDueCampaigns(ctx context.Context) error {
	due, err := s.campaignRepo.ListDue(ctx, s.now(), s.cfg.CampaignBatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}
	s.logger.Printf("scheduler: %d campaigns due", len(due))

	for _, c := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := s.orchestrator.BeginRun(ctx, c.ID)
		if err != nil {
			s.logger.Printf("scheduler: begin run of campaign id=%d failed: %v", c.ID, err)
			continue
		}
		if !res.Claimed {
			s.logger.Printf("scheduler: campaign id=%d already claimed by another worker", c.ID)
		}
	}
	return nil
}

// 2) due recipients are dispatched concurrently, bounded by the dispatch concurrency
func (s *CampaignScheduler) processDueRecipients(ctx context.Context) error {
	due, err := s.recipientRepo.ListDue(ctx, s.now(), s.cfg.RecipientBatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.DispatchConcurrency)
	for _, r := range due {
		id := r.ID
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					s.logger.Printf("scheduler: dispatch of recipient id=%d panicked: %v\n%s", id, p, debug.Stack())
				}
			}()
			if _, err := s.dispatcher.ClaimAndSend(gctx, id); err != nil {
				s.logger.Printf("scheduler: claim recipient id=%d failed: %v", id, err)
			}
			// one recipient never aborts the batch
			return nil
		})
	}
	return g.Wait()
}

func (s *CampaignScheduler) startSweepWorker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep releases stale recipient locks and finalizes runs and campaigns left open by crashed workers
func (s *CampaignScheduler) Sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("scheduler: sweep panicked: %v\n%s", r, debug.Stack())
		}
	}()

	if err := s.releaseStaleLocks(ctx); err != nil {
		s.logger.Printf("scheduler: release stale locks: %v", err)
	}
	if err := s.finalizeOrphanRuns(ctx); err != nil {
		s.logger.Printf("scheduler: finalize orphan runs: %v", err)
	}
	if err := s.finalizeOrphanCampaigns(ctx); err != nil {
		s.logger.Printf("scheduler: finalize orphan campaigns: %v", err)
	}
}

// releaseStaleLocks returns recipients stuck in sending to the queue with a back-off,
// or fails them once they used up their attempts
func (s *CampaignScheduler) releaseStaleLocks(ctx context.Context) error {
	if s.cfg.LockTimeout <= 0 {
		return nil
	}
	now := s.now()
	lockedBefore := now.Add(-s.cfg.LockTimeout)

	stale, err := s.recipientRepo.ListStaleLocks(ctx, lockedBefore, 100)
	if err != nil {
		return err
	}

	runs := make(map[uint]struct{})
	for _, r := range stale {
		var (
			status models.CampaignRecipientStatus
			fields map[string]any
		)
		if r.Attempts < s.cfg.MaxAttempts {
			status = models.CampaignRecipientStatusScheduled
			fields = map[string]any{
				"scheduled_at": now.Add(time.Duration(r.Attempts) * s.cfg.RetryBackoff),
			}
		} else {
			status = models.CampaignRecipientStatusFailed
			fields = map[string]any{
				"error": "lock expired",
			}
		}

		released, err := s.recipientRepo.ReleaseStale(ctx, r.ID, lockedBefore, status, fields)
		if err != nil {
			s.logger.Printf("scheduler: release recipient id=%d failed: %v", r.ID, err)
			continue
		}
		if !released {
			continue
		}
		schedulerStaleLocksReleased.WithLabelValues(string(status)).Inc()
		s.logger.Printf("scheduler: released stale lock of recipient id=%d owner=%s attempts=%d as %s", r.ID, lockOwner(r), r.Attempts, status)
		if status == models.CampaignRecipientStatusFailed {
			runs[r.RunID] = struct{}{}
		}
	}

	for runID := range runs {
		if _, err := s.finalizer.FinalizeRun(ctx, runID); err != nil {
			s.logger.Printf("scheduler: finalize run id=%d failed: %v", runID, err)
		}
	}
	return nil
}

// finalizeOrphanRuns closes running runs whose recipients are all resolved
func (s *CampaignScheduler) finalizeOrphanRuns(ctx context.Context) error {
	runs, err := s.runRepo.ListRunning(ctx, 100)
	if err != nil {
		return err
	}
	for _, r := range runs {
		closed, err := s.finalizer.FinalizeRun(ctx, r.ID)
		if err != nil {
			s.logger.Printf("scheduler: finalize run id=%d failed: %v", r.ID, err)
			continue
		}
		if closed {
			s.logger.Printf("scheduler: closed orphan run id=%d of campaign id=%d", r.ID, r.CampaignID)
		}
	}
	return nil
}

// finalizeOrphanCampaigns moves campaigns that are running without a running run to their next state
// once no run was opened for them within the lock timeout
func (s *CampaignScheduler) finalizeOrphanCampaigns(ctx context.Context) error {
	if s.cfg.LockTimeout <= 0 {
		return nil
	}
	campaigns, err := s.campaignRepo.ListStaleRunning(ctx, s.now().Add(-s.cfg.LockTimeout), 100)
	if err != nil {
		return err
	}
	for _, c := range campaigns {
		runs, err := s.runRepo.ListRunningByCampaignID(ctx, c.ID)
		if err != nil {
			s.logger.Printf("scheduler: list runs of campaign id=%d failed: %v", c.ID, err)
			continue
		}
		if len(runs) > 0 {
			continue
		}

		latest, err := s.runRepo.LatestByCampaignID(ctx, c.ID)
		if err != nil {
			s.logger.Printf("scheduler: latest run of campaign id=%d failed: %v", c.ID, err)
			continue
		}
		if latest != nil && c.LastRunAt != nil && !latest.StartedAt.Before(*c.LastRunAt) {
			// the run of this cycle finished but the campaign was never moved on
			err = s.finalizer.FinalizeCampaign(ctx, c.ID)
		} else {
			// the cycle never produced a run
			err = s.orchestrator.Abandon(ctx, c)
		}
		if err != nil {
			s.logger.Printf("scheduler: finalize campaign id=%d failed: %v", c.ID, err)
			continue
		}
		s.logger.Printf("scheduler: closed orphan campaign id=%d", c.ID)
	}
	return nil
}

func lockOwner(r *models.CampaignRecipient) string {
	if r.LockOwner == nil {
		return "-"
	}
	return *r.LockOwner
}

// String describes the scheduler configuration for startup logs
func (s *CampaignScheduler) String() string {
	return fmt.Sprintf("campaign scheduler (enabled=%t interval=%s campaigns=%d recipients=%d concurrency=%d)",
		s.cfg.Enabled, s.interval, s.cfg.CampaignBatchSize, s.cfg.RecipientBatchSize, s.cfg.DispatchConcurrency)
}
