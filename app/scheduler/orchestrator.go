package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
	"gorm.io/gorm"
)

// BeginRunResult describes what BeginRun did with a due campaign
type BeginRunResult struct {
	// Claimed is false when another worker moved the campaign first
	Claimed    bool
	Run        *models.CampaignRun
	Recipients int
	NextRunAt  *time.Time
}

// RunOrchestrator turns a due campaign into a run with scheduled recipients
type RunOrchestrator struct {
	db              *gorm.DB
	campaignRepo    repository.CampaignRepository
	runRepo         repository.CampaignRunRepository
	recipientRepo   repository.CampaignRecipientRepository
	selections      SelectionResolver
	finalizer       *RunFinalizer
	logger          *log.Logger
	insertBatchSize int
	now             func() time.Time
}

func NewRunOrchestrator(
	db *gorm.DB,
	campaignRepo repository.CampaignRepository,
	runRepo repository.CampaignRunRepository,
	recipientRepo repository.CampaignRecipientRepository,
	selections SelectionResolver,
	finalizer *RunFinalizer,
	logger *log.Logger,
) *RunOrchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &RunOrchestrator{
		db:              db,
		campaignRepo:    campaignRepo,
		runRepo:         runRepo,
		recipientRepo:   recipientRepo,
		selections:      selections,
		finalizer:       finalizer,
		logger:          logger,
		insertBatchSize: utils.DefaultRecipientBatchInsertSize,
		now:             utils.UTCNow,
	}
}

// WithClock overrides the time source
func (o *RunOrchestrator) WithClock(now func() time.Time) *RunOrchestrator {
	o.now = now
	return o
}

// WithInsertBatchSize sets how many recipient rows go into one INSERT
func (o *RunOrchestrator) WithInsertBatchSize(n int) *RunOrchestrator {
	if n > 0 {
		o.insertBatchSize = n
	}
	return o
}

// BeginRun claims a scheduled campaign and expands it into a run.
// A failure after the claim closes the campaign cycle so it never stays running without a run.
func (o *RunOrchestrator) BeginRun(ctx context.Context, campaignID uint) (*BeginRunResult, error) {
	now := o.now()

	// 1) claim: the only cross-worker mutual exclusion for run creation
	claimed, err := o.campaignRepo.TransitionStatus(ctx, campaignID,
		[]models.CampaignStatus{models.CampaignStatusScheduled},
		models.CampaignStatusRunning,
		map[string]any{"last_run_at": now},
	)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &BeginRunResult{Claimed: false}, nil
	}

	// 2) load and resolve
	campaign, err := o.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return &BeginRunResult{Claimed: true}, err
	}
	if campaign == nil {
		return &BeginRunResult{Claimed: true}, fmt.Errorf("campaign %d disappeared after claim", campaignID)
	}

	anchor := runAnchor(campaign, now)
	next := o.nextRunAt(campaign, anchor, now)
	result := &BeginRunResult{Claimed: true, NextRunAt: next}

	contacts, err := o.selections.Resolve(ctx, campaign)
	if err != nil {
		o.abandon(ctx, campaign, next, err)
		return result, fmt.Errorf("failed to resolve recipients of campaign %d: %w", campaignID, err)
	}

	// 3-5) run, recipients and next run time commit together
	var run *models.CampaignRun
	err = repository.WithTransaction(ctx, o.db, func(txCtx context.Context) error {
		if err := o.supersedeRunning(txCtx, campaign.ID, now); err != nil {
			return err
		}

		run = &models.CampaignRun{
			CampaignID:   campaign.ID,
			TenantID:     campaign.TenantID,
			Status:       models.CampaignRunStatusRunning,
			ScheduledFor: anchor,
			StartedAt:    now,
		}
		if err := o.runRepo.Save(txCtx, run); err != nil {
			return err
		}

		if len(contacts) == 0 {
			if _, err := o.runRepo.Finish(txCtx, run.ID, models.CampaignRunStatusCompleted, now); err != nil {
				return err
			}
			run.Status = models.CampaignRunStatusCompleted
			run.FinishedAt = &now
		} else {
			schedule := BuildSchedule(anchor, len(contacts), time.Duration(campaign.DelaySeconds)*time.Second, RateLimitOf(campaign))
			recipients := make([]*models.CampaignRecipient, 0, len(contacts))
			for i, c := range contacts {
				contactID := c.ID
				recipients = append(recipients, &models.CampaignRecipient{
					RunID:       run.ID,
					CampaignID:  campaign.ID,
					TenantID:    campaign.TenantID,
					ContactID:   &contactID,
					Phone:       c.Phone,
					DisplayName: displayName(c),
					Status:      models.CampaignRecipientStatusScheduled,
					ScheduledAt: schedule[i],
				})
			}
			if err := o.recipientRepo.SaveBatchSize(txCtx, recipients, o.insertBatchSize); err != nil {
				return err
			}
		}

		// only while still running; a concurrent pause or cancel owns next_run_at
		_, err := o.campaignRepo.TransitionStatus(txCtx, campaign.ID,
			[]models.CampaignStatus{models.CampaignStatusRunning},
			models.CampaignStatusRunning,
			map[string]any{"next_run_at": next},
		)
		return err
	})
	if err != nil {
		o.abandon(ctx, campaign, next, err)
		return result, fmt.Errorf("failed to begin run of campaign %d: %w", campaignID, err)
	}

	schedulerRunsStarted.Inc()
	result.Run = run
	result.Recipients = len(contacts)

	if len(contacts) == 0 {
		schedulerRunsFinished.WithLabelValues(string(models.CampaignRunStatusCompleted)).Inc()
		o.logger.Printf("scheduler: campaign id=%d resolved no recipients, run id=%d completed", campaign.ID, run.ID)
		if err := o.finalizer.FinalizeCampaign(ctx, campaign.ID); err != nil {
			return result, err
		}
		return result, nil
	}

	o.logger.Printf("scheduler: campaign id=%d started run id=%d recipients=%d", campaign.ID, run.ID, len(contacts))
	return result, nil
}

// nextRunAt is the first occurrence of the campaign's series after both the run anchor and now.
// Missed occurrences are skipped rather than replayed.
func (o *RunOrchestrator) nextRunAt(campaign *models.Campaign, anchor, now time.Time) *time.Time {
	start := anchor
	if campaign.StartAt != nil {
		start = campaign.StartAt.UTC()
	}
	after := anchor
	if now.After(after) {
		after = now
	}
	next := NextOccurrenceAfter(campaign.Recurrence, start, after)
	if next == nil {
		return nil
	}
	utc := next.UTC()
	return &utc
}

// supersedeRunning cancels runs left running by an earlier cycle of the campaign
func (o *RunOrchestrator) supersedeRunning(ctx context.Context, campaignID uint, now time.Time) error {
	runs, err := o.runRepo.ListRunningByCampaignID(ctx, campaignID)
	if err != nil {
		return err
	}
	for _, r := range runs {
		skipped, err := o.recipientRepo.SkipScheduledByRun(ctx, r.ID, fmt.Sprintf("superseded by a new run of campaign %d", campaignID), now)
		if err != nil {
			return err
		}
		if _, err := o.runRepo.Finish(ctx, r.ID, models.CampaignRunStatusCancelled, now); err != nil {
			return err
		}
		schedulerRunsFinished.WithLabelValues(string(models.CampaignRunStatusCancelled)).Inc()
		o.logger.Printf("scheduler: run id=%d of campaign id=%d superseded, skipped=%d", r.ID, campaignID, skipped)
	}
	return nil
}

// Abandon closes the cycle of a running campaign whose run was never created
func (o *RunOrchestrator) Abandon(ctx context.Context, campaign *models.Campaign) error {
	now := o.now()
	return o.finalizer.closeCampaign(ctx, campaign.ID, o.nextRunAt(campaign, runAnchor(campaign, now), now))
}

// runAnchor is the time the current cycle was due: next_run_at, else start_at, else now
func runAnchor(campaign *models.Campaign, now time.Time) time.Time {
	if campaign.NextRunAt != nil {
		return campaign.NextRunAt.UTC()
	}
	if campaign.StartAt != nil {
		return campaign.StartAt.UTC()
	}
	return now
}

// abandon closes the campaign cycle after a failed expansion. Errors are logged, the sweep retries.
func (o *RunOrchestrator) abandon(ctx context.Context, campaign *models.Campaign, next *time.Time, cause error) {
	o.logger.Printf("scheduler: begin run of campaign id=%d failed: %v", campaign.ID, cause)
	if err := o.finalizer.closeCampaign(ctx, campaign.ID, next); err != nil {
		o.logger.Printf("scheduler: failed to close campaign id=%d after failed run: %v", campaign.ID, err)
	}
}

func displayName(c *models.Contact) *string {
	if c.Name == "" {
		return nil
	}
	return utils.ToPtr(c.Name)
}
