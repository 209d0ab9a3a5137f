package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
)

// RunFinalizer closes runs whose recipients are all resolved and moves their
// campaign to its next state
type RunFinalizer struct {
	campaignRepo  repository.CampaignRepository
	runRepo       repository.CampaignRunRepository
	recipientRepo repository.CampaignRecipientRepository
	logger        *log.Logger
	now           func() time.Time
}

func NewRunFinalizer(
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	recipientRepo repository.CampaignRecipientRepository,
	logger *log.Logger,
) *RunFinalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &RunFinalizer{
		campaignRepo:  campaignRepo,
		runRepo:       runRepo,
		recipientRepo: recipientRepo,
		logger:        logger,
		now:           utils.UTCNow,
	}
}

// WithClock overrides the time source
func (f *RunFinalizer) WithClock(now func() time.Time) *RunFinalizer {
	f.now = now
	return f
}

// FinalizeRun completes the run when none of its recipients is scheduled or sending.
// It reports whether this call closed the run.
func (f *RunFinalizer) FinalizeRun(ctx context.Context, runID uint) (bool, error) {
	pending, err := f.recipientRepo.CountPendingByRun(ctx, runID)
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}

	closed, err := f.runRepo.Finish(ctx, runID, models.CampaignRunStatusCompleted, f.now())
	if err != nil {
		return false, err
	}
	if !closed {
		// already finished by another worker, or superseded
		return false, nil
	}
	schedulerRunsFinished.WithLabelValues(string(models.CampaignRunStatusCompleted)).Inc()

	run, err := f.runRepo.ByID(ctx, runID)
	if err != nil {
		return true, err
	}
	if run == nil {
		return true, nil
	}
	f.logger.Printf("scheduler: run id=%d of campaign id=%d completed", run.ID, run.CampaignID)

	if err := f.FinalizeCampaign(ctx, run.CampaignID); err != nil {
		return true, err
	}
	return true, nil
}

// FinalizeCampaign moves a running campaign to scheduled when it has a next run, else to completed.
// Campaigns that are no longer running (paused, cancelled) are left untouched.
func (f *RunFinalizer) FinalizeCampaign(ctx context.Context, campaignID uint) error {
	campaign, err := f.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign == nil || campaign.Status != models.CampaignStatusRunning {
		return nil
	}
	return f.closeCampaign(ctx, campaign.ID, campaign.NextRunAt)
}

// closeCampaign ends the current run cycle of a running campaign with next as its next run time
func (f *RunFinalizer) closeCampaign(ctx context.Context, campaignID uint, next *time.Time) error {
	running := []models.CampaignStatus{models.CampaignStatusRunning}

	if next != nil {
		moved, err := f.campaignRepo.TransitionStatus(ctx, campaignID, running, models.CampaignStatusScheduled, map[string]any{
			"next_run_at": next.UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to reschedule campaign %d: %w", campaignID, err)
		}
		if moved {
			f.logger.Printf("scheduler: campaign id=%d rescheduled for %s", campaignID, next.UTC().Format(time.RFC3339))
		}
		return nil
	}

	moved, err := f.campaignRepo.TransitionStatus(ctx, campaignID, running, models.CampaignStatusCompleted, map[string]any{
		"next_run_at":  nil,
		"completed_at": f.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to complete campaign %d: %w", campaignID, err)
	}
	if moved {
		f.logger.Printf("scheduler: campaign id=%d completed", campaignID)
	}
	return nil
}
