package scheduler

import (
	"log"
	"time"

	"github.com/amirphl/orochi-outreach/app/services"
	"github.com/amirphl/orochi-outreach/config"
	"github.com/amirphl/orochi-outreach/repository"
	"gorm.io/gorm"
)

// EngineDeps are the collaborators an Engine is assembled from.
// Nil optional fields fall back to database-backed defaults.
type EngineDeps struct {
	DB       *gorm.DB
	Provider services.MessagingProvider
	Config   config.SchedulerConfig
	Logger   *log.Logger

	// optional
	QuotaCounter services.QuotaCounter
	Selections   SelectionResolver
	Identity     WorkerIdentity
}

// Engine wires the run orchestrator, recipient dispatcher, run finalizer and worker loop
// over one store and one worker identity
type Engine struct {
	Orchestrator *RunOrchestrator
	Dispatcher   *RecipientDispatcher
	Finalizer    *RunFinalizer
	Scheduler    *CampaignScheduler

	quota *services.QuotaGuardImpl
}

func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	campaignRepo := repository.NewCampaignRepository(deps.DB)
	runRepo := repository.NewCampaignRunRepository(deps.DB)
	recipientRepo := repository.NewCampaignRecipientRepository(deps.DB)
	contactRepo := repository.NewContactRepository(deps.DB)
	connectionRepo := repository.NewConnectionRepository(deps.DB)
	conversationRepo := repository.NewConversationRepository(deps.DB)
	messageRepo := repository.NewMessageRepository(deps.DB)
	tenantRepo := repository.NewTenantRepository(deps.DB)

	counter := deps.QuotaCounter
	if counter == nil {
		counter = services.NewDBQuotaCounter(tenantRepo)
	}
	quota := services.NewQuotaGuard(tenantRepo, counter)

	selections := deps.Selections
	if selections == nil {
		selections = NewDefaultSelectionRegistry(contactRepo, logger)
	}

	identity := deps.Identity
	if identity.IsZero() && deps.Config.WorkerID != "" {
		identity = NewWorkerIdentity(deps.Config.WorkerID)
	}
	if identity.IsZero() {
		identity = GenerateWorkerIdentity()
	}

	finalizer := NewRunFinalizer(campaignRepo, runRepo, recipientRepo, logger)
	orchestrator := NewRunOrchestrator(deps.DB, campaignRepo, runRepo, recipientRepo, selections, finalizer, logger)
	dispatcher := NewRecipientDispatcher(
		campaignRepo,
		recipientRepo,
		contactRepo,
		connectionRepo,
		messageRepo,
		services.NewTemplateRenderer(),
		quota,
		services.NewConversationService(conversationRepo),
		services.NewMessageDeliveryService(deps.Provider, messageRepo, conversationRepo),
		finalizer,
		identity,
		logger,
	)
	sched := NewCampaignScheduler(campaignRepo, runRepo, recipientRepo, orchestrator, dispatcher, finalizer, deps.Config, logger)

	return &Engine{
		Orchestrator: orchestrator,
		Dispatcher:   dispatcher,
		Finalizer:    finalizer,
		Scheduler:    sched,
		quota:        quota,
	}
}

// WithClock makes every component read time from now
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.Orchestrator.WithClock(now)
	e.Dispatcher.WithClock(now)
	e.Finalizer.WithClock(now)
	e.Scheduler.WithClock(now)
	e.quota.WithClock(now)
	return e
}
