package scheduler_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/orochi-outreach/app/scheduler"
	"github.com/amirphl/orochi-outreach/app/services"
	"github.com/amirphl/orochi-outreach/config"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	testingutil "github.com/amirphl/orochi-outreach/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// testClock is a settable time source shared by every engine component
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineEnv struct {
	ctx           context.Context
	db            *testingutil.TestDB
	fixtures      *testingutil.TestFixtures
	provider      *services.MockMessagingProvider
	clock         *testClock
	engine        *scheduler.Engine
	campaignRepo  repository.CampaignRepository
	runRepo       repository.CampaignRunRepository
	recipientRepo repository.CampaignRecipientRepository
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:             true,
		TickInterval:        time.Second,
		CampaignBatchSize:   25,
		RecipientBatchSize:  10,
		DispatchConcurrency: 1,
		SweepInterval:       time.Minute,
		LockTimeout:         15 * time.Minute,
		MaxAttempts:         3,
		RetryBackoff:        time.Minute,
	}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newEngineEnv(testDB *testingutil.TestDB) *engineEnv {
	return newEngineEnvWith(testDB, testSchedulerConfig(), "worker-test")
}

func newEngineEnvWith(testDB *testingutil.TestDB, cfg config.SchedulerConfig, worker string) *engineEnv {
	clock := newTestClock(baseTime)
	provider := services.NewMockMessagingProvider()
	engine := scheduler.NewEngine(scheduler.EngineDeps{
		DB:       testDB.DB,
		Provider: provider,
		Config:   cfg,
		Logger:   discardLogger(),
		Identity: scheduler.NewWorkerIdentity(worker),
	}).WithClock(clock.Now)

	return &engineEnv{
		ctx:           testingutil.CreateTestContext(),
		db:            testDB,
		fixtures:      testingutil.NewTestFixtures(testDB),
		provider:      provider,
		clock:         clock,
		engine:        engine,
		campaignRepo:  repository.NewCampaignRepository(testDB.DB),
		runRepo:       repository.NewCampaignRunRepository(testDB.DB),
		recipientRepo: repository.NewCampaignRecipientRepository(testDB.DB),
	}
}

// scheduledCampaign seeds a tenant, a connection, n contacts and a campaign scheduled at baseTime
func (e *engineEnv) scheduledCampaign(t *testing.T, quota int64, connStatus models.ConnectionStatus, n int, rec models.Recurrence, delaySeconds int) *models.Campaign {
	t.Helper()

	tenant, err := e.fixtures.CreateTestTenant(quota)
	require.NoError(t, err)
	conn, err := e.fixtures.CreateTestConnection(tenant.ID, connStatus)
	require.NoError(t, err)
	contacts, err := e.fixtures.CreateTestContacts(tenant.ID, n)
	require.NoError(t, err)
	campaign, err := e.fixtures.CreateTestCampaign(tenant.ID, conn.ID, contacts)
	require.NoError(t, err)
	require.NoError(t, e.fixtures.ScheduleTestCampaign(campaign, baseTime, rec, delaySeconds))
	return campaign
}

func (e *engineEnv) campaign(t *testing.T, id uint) *models.Campaign {
	t.Helper()
	c, err := e.campaignRepo.ByID(e.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (e *engineEnv) runs(t *testing.T, campaignID uint) []*models.CampaignRun {
	t.Helper()
	runs, err := e.runRepo.ByFilter(e.ctx, models.CampaignRunFilter{CampaignID: &campaignID}, "id ASC", 0, 0)
	require.NoError(t, err)
	return runs
}

func (e *engineEnv) recipients(t *testing.T, runID uint) []*models.CampaignRecipient {
	t.Helper()
	rows, err := e.recipientRepo.ByFilter(e.ctx, models.CampaignRecipientFilter{RunID: &runID}, "scheduled_at ASC, id ASC", 0, 0)
	require.NoError(t, err)
	return rows
}

func (e *engineEnv) messageCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.DB.Model(&models.Message{}).Count(&n).Error)
	return n
}

func assertSameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s got %s", want, got)
}

func newBufferLogger(w io.Writer) *log.Logger {
	return log.New(w, "", 0)
}

type stubResolver struct {
	contacts []*models.Contact
	err      error
}

func (s stubResolver) Resolve(context.Context, *models.Campaign) ([]*models.Contact, error) {
	return s.contacts, s.err
}
