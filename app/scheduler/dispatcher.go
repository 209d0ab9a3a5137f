package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/orochi-outreach/app/services"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
)

// DispatchOutcome is the result of one ClaimAndSend call
type DispatchOutcome string

const (
	DispatchNotClaimed DispatchOutcome = "not_claimed"
	DispatchSent       DispatchOutcome = "sent"
	DispatchFailed     DispatchOutcome = "failed"
	DispatchSkipped    DispatchOutcome = "skipped"
)

// Recipient failure and skip reasons recorded in the error column
const (
	ReasonCampaignPaused        = "campaign paused"
	ReasonCampaignCancelled     = "campaign cancelled"
	ReasonCampaignNotFound      = "campaign not found"
	ReasonEmptyAfterTemplate    = "empty after template"
	ReasonConnectionNotFound    = "connection not found"
	ReasonConnectionUnavailable = "connection not connected"
)

// resolution is the terminal state a claimed recipient is resolved into
type resolution struct {
	status    models.CampaignRecipientStatus
	reason    string
	messageID *uint
	sentAt    *time.Time
}

func skipped(reason string) resolution {
	return resolution{status: models.CampaignRecipientStatusSkipped, reason: reason}
}

func failed(reason string) resolution {
	return resolution{status: models.CampaignRecipientStatusFailed, reason: reason}
}

// RecipientDispatcher claims one due recipient and delivers its message
type RecipientDispatcher struct {
	campaignRepo   repository.CampaignRepository
	recipientRepo  repository.CampaignRecipientRepository
	contactRepo    repository.ContactRepository
	connectionRepo repository.ConnectionRepository
	messageRepo    repository.MessageRepository
	renderer       services.TemplateRenderer
	quota          services.QuotaGuard
	conversations  services.ConversationService
	delivery       services.MessageDeliveryService
	finalizer      *RunFinalizer
	identity       WorkerIdentity
	logger         *log.Logger
	now            func() time.Time
}

func NewRecipientDispatcher(
	campaignRepo repository.CampaignRepository,
	recipientRepo repository.CampaignRecipientRepository,
	contactRepo repository.ContactRepository,
	connectionRepo repository.ConnectionRepository,
	messageRepo repository.MessageRepository,
	renderer services.TemplateRenderer,
	quota services.QuotaGuard,
	conversations services.ConversationService,
	delivery services.MessageDeliveryService,
	finalizer *RunFinalizer,
	identity WorkerIdentity,
	logger *log.Logger,
) *RecipientDispatcher {
	if logger == nil {
		logger = log.Default()
	}
	if identity.IsZero() {
		identity = GenerateWorkerIdentity()
	}
	return &RecipientDispatcher{
		campaignRepo:   campaignRepo,
		recipientRepo:  recipientRepo,
		contactRepo:    contactRepo,
		connectionRepo: connectionRepo,
		messageRepo:    messageRepo,
		renderer:       renderer,
		quota:          quota,
		conversations:  conversations,
		delivery:       delivery,
		finalizer:      finalizer,
		identity:       identity,
		logger:         logger,
		now:            utils.UTCNow,
	}
}

// WithClock overrides the time source
func (d *RecipientDispatcher) WithClock(now func() time.Time) *RecipientDispatcher {
	d.now = now
	return d
}

// Identity returns the lock owner token this dispatcher claims with
func (d *RecipientDispatcher) Identity() WorkerIdentity {
	return d.identity
}

// ClaimAndSend claims the recipient and drives it to a terminal status.
// Losing the claim returns DispatchNotClaimed with no error. Once claimed, failures are
// recorded on the recipient and the run finalization check always runs.
func (d *RecipientDispatcher) ClaimAndSend(ctx context.Context, recipientID uint) (DispatchOutcome, error) {
	owner := d.identity.String()

	// 1) claim
	claimed, err := d.recipientRepo.Claim(ctx, recipientID, owner, d.now())
	if err != nil {
		return DispatchNotClaimed, err
	}
	if !claimed {
		return DispatchNotClaimed, nil
	}

	start := time.Now()
	defer func() {
		schedulerDispatchDuration.Observe(time.Since(start).Seconds())
	}()

	recipient, err := d.recipientRepo.ByID(ctx, recipientID)
	if err != nil || recipient == nil {
		if err == nil {
			err = fmt.Errorf("recipient %d vanished after claim", recipientID)
		}
		// the row cannot be resolved without being read; the stale lock sweep picks it up
		d.logger.Printf("scheduler: reload recipient id=%d failed: %v", recipientID, err)
		schedulerRecipientsDispatched.WithLabelValues("error").Inc()
		return DispatchFailed, err
	}

	res, sendErr := d.send(ctx, recipient)
	if sendErr != nil {
		d.logger.Printf("scheduler: dispatch of recipient id=%d failed: %v", recipient.ID, sendErr)
		res = failed(sendErr.Error())
	}

	outcome := d.resolve(ctx, recipient, owner, res)

	// 8) always check whether the run is done
	if _, err := d.finalizer.FinalizeRun(ctx, recipient.RunID); err != nil {
		d.logger.Printf("scheduler: finalize run id=%d failed: %v", recipient.RunID, err)
	}

	return outcome, nil
}

// send performs steps 2-7 for a claimed recipient. An error means infrastructure failed.
func (d *RecipientDispatcher) send(ctx context.Context, recipient *models.CampaignRecipient) (resolution, error) {
	// 2) campaign state
	campaign, err := d.campaignRepo.ByID(ctx, recipient.CampaignID)
	if err != nil {
		return resolution{}, err
	}
	if campaign == nil {
		return skipped(ReasonCampaignNotFound), nil
	}
	switch campaign.Status {
	case models.CampaignStatusPaused:
		return skipped(ReasonCampaignPaused), nil
	case models.CampaignStatusCancelled:
		return skipped(ReasonCampaignCancelled), nil
	}

	// 3) render
	vars, err := d.variables(ctx, recipient)
	if err != nil {
		return resolution{}, err
	}
	body := d.renderer.Render(campaign.MessageTemplate, vars)
	if strings.TrimSpace(body) == "" {
		return failed(ReasonEmptyAfterTemplate), nil
	}

	// 4) quota
	if err := d.quota.Check(ctx, recipient.TenantID); err != nil {
		if errors.Is(err, services.ErrQuotaExceeded) || errors.Is(err, services.ErrTenantNotFound) {
			return failed(err.Error()), nil
		}
		return resolution{}, err
	}

	// 5) connection and conversation
	connection, err := d.connectionRepo.ByID(ctx, campaign.ConnectionID)
	if err != nil {
		return resolution{}, err
	}
	if connection == nil || connection.TenantID != campaign.TenantID {
		return failed(ReasonConnectionNotFound), nil
	}
	if !connection.IsConnected() {
		return failed(ReasonConnectionUnavailable), nil
	}
	conversation, err := d.conversations.GetOrCreate(ctx, recipient.TenantID, recipient.Phone, connection, recipient.ContactID)
	if err != nil {
		return resolution{}, err
	}

	// 6) persist, count, send
	recipientID := recipient.ID
	message := &models.Message{
		TenantID:            recipient.TenantID,
		ConversationID:      conversation.ID,
		ConnectionID:        connection.ID,
		Direction:           models.MessageDirectionOutbound,
		Kind:                models.MessageKindText,
		Body:                body,
		Status:              models.MessageStatusQueued,
		CampaignRecipientID: &recipientID,
	}
	if err := d.messageRepo.Save(ctx, message); err != nil {
		return resolution{}, err
	}
	messageID := message.ID

	if err := d.quota.Consume(ctx, recipient.TenantID); err != nil {
		// advisory counter, the send goes ahead
		d.logger.Printf("scheduler: quota increment for tenant id=%d failed: %v", recipient.TenantID, err)
	}

	if err := d.delivery.Deliver(ctx, message, connection, recipient.Phone); err != nil {
		res := failed(err.Error())
		res.messageID = &messageID
		return res, nil
	}

	// 7) observe the persisted message status
	stored, err := d.messageRepo.ByID(ctx, messageID)
	if err != nil {
		return resolution{}, err
	}
	if stored == nil {
		res := failed(fmt.Sprintf("message %d not found after send", messageID))
		res.messageID = &messageID
		return res, nil
	}

	switch stored.Status {
	case models.MessageStatusSent, models.MessageStatusDelivered, models.MessageStatusRead:
		sentAt := d.now()
		if stored.SentAt != nil {
			sentAt = stored.SentAt.UTC()
		}
		return resolution{
			status:    models.CampaignRecipientStatusSent,
			messageID: &messageID,
			sentAt:    &sentAt,
		}, nil
	default:
		reason := fmt.Sprintf("message status: %s", stored.Status)
		if stored.Error != nil && *stored.Error != "" {
			reason = *stored.Error
		}
		res := failed(reason)
		res.messageID = &messageID
		return res, nil
	}
}

func (d *RecipientDispatcher) variables(ctx context.Context, recipient *models.CampaignRecipient) (map[string]string, error) {
	if recipient.ContactID == nil {
		return services.RecipientVariables(recipient), nil
	}
	contacts, err := d.contactRepo.ByIDs(ctx, recipient.TenantID, []uint{*recipient.ContactID})
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return services.RecipientVariables(recipient), nil
	}
	return services.ContactVariables(contacts[0]), nil
}

// resolve writes the terminal status. Only the lock owner's write lands.
func (d *RecipientDispatcher) resolve(ctx context.Context, recipient *models.CampaignRecipient, owner string, res resolution) DispatchOutcome {
	fields := map[string]any{}
	if res.reason != "" {
		fields["error"] = res.reason
	}
	if res.messageID != nil {
		fields["message_id"] = *res.messageID
	}
	if res.sentAt != nil {
		fields["sent_at"] = *res.sentAt
	}
	// a skip is not a delivery attempt
	if res.status == models.CampaignRecipientStatusSkipped && recipient.Attempts > 0 {
		fields["attempts"] = recipient.Attempts - 1
	}

	outcome := DispatchFailed
	switch res.status {
	case models.CampaignRecipientStatusSent:
		outcome = DispatchSent
	case models.CampaignRecipientStatusSkipped:
		outcome = DispatchSkipped
	}

	ok, err := d.recipientRepo.Resolve(ctx, recipient.ID, owner, res.status, fields)
	if err != nil {
		d.logger.Printf("scheduler: resolve recipient id=%d as %s failed: %v", recipient.ID, res.status, err)
		schedulerRecipientsDispatched.WithLabelValues("error").Inc()
		return outcome
	}
	if !ok {
		d.logger.Printf("scheduler: recipient id=%d lock lost before resolving as %s", recipient.ID, res.status)
	}
	schedulerRecipientsDispatched.WithLabelValues(string(outcome)).Inc()
	return outcome
}
