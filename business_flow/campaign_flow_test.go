package businessflow_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/amirphl/orochi-outreach/app/dto"
	businessflow "github.com/amirphl/orochi-outreach/business_flow"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	testingutil "github.com/amirphl/orochi-outreach/testing"
	"github.com/amirphl/orochi-outreach/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flowEnv struct {
	flow          businessflow.CampaignFlow
	campaignRepo  repository.CampaignRepository
	runRepo       repository.CampaignRunRepository
	recipientRepo repository.CampaignRecipientRepository
	auditRepo     repository.AuditLogRepository
	fixtures      *testingutil.TestFixtures
	testDB        *testingutil.TestDB
}

func newFlowEnv(testDB *testingutil.TestDB) *flowEnv {
	db := testDB.DB
	env := &flowEnv{
		campaignRepo:  repository.NewCampaignRepository(db),
		runRepo:       repository.NewCampaignRunRepository(db),
		recipientRepo: repository.NewCampaignRecipientRepository(db),
		auditRepo:     repository.NewAuditLogRepository(db),
		fixtures:      testingutil.NewTestFixtures(testDB),
		testDB:        testDB,
	}
	env.flow = businessflow.NewCampaignFlow(
		env.campaignRepo,
		env.runRepo,
		env.recipientRepo,
		repository.NewConnectionRepository(db),
		repository.NewTenantRepository(db),
		env.auditRepo,
		db,
	)
	return env
}

// tenantWithLine creates an active tenant, a connected line and three contacts
func (e *flowEnv) tenantWithLine(t *testing.T) (*models.Tenant, *models.Connection, []*models.Contact) {
	t.Helper()
	tenant, err := e.fixtures.CreateTestTenant(0)
	require.NoError(t, err)
	conn, err := e.fixtures.CreateTestConnection(tenant.ID, models.ConnectionStatusConnected)
	require.NoError(t, err)
	contacts, err := e.fixtures.CreateTestContacts(tenant.ID, 3)
	require.NoError(t, err)
	return tenant, conn, contacts
}

func (e *flowEnv) createDraft(t *testing.T, ctx context.Context, tenant *models.Tenant, conn *models.Connection, contacts []*models.Contact) *dto.CreateCampaignResponse {
	t.Helper()
	ids := make([]uint, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	resp, err := e.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
		TenantID:        tenant.ID,
		Name:            "Launch week",
		MessageTemplate: "Hi {first_name}",
		ConnectionID:    conn.ID,
		ContactIDs:      ids,
	}, businessflow.NewClientMetadata("10.0.0.1", "flow-test"))
	require.NoError(t, err)
	return resp
}

func (e *flowEnv) setStatus(t *testing.T, uuid string, status models.CampaignStatus) *models.Campaign {
	t.Helper()
	campaign, err := e.campaignRepo.ByUUID(context.Background(), uuid)
	require.NoError(t, err)
	require.NotNil(t, campaign)
	require.NoError(t, e.campaignRepo.UpdateFields(context.Background(), campaign.ID, map[string]any{"status": status}))
	campaign.Status = status
	return campaign
}

func (e *flowEnv) auditCount(t *testing.T, tenantID uint, action string) int64 {
	t.Helper()
	n, err := e.auditRepo.Count(context.Background(), models.AuditLogFilter{TenantID: &tenantID, Action: &action})
	require.NoError(t, err)
	return n
}

func TestCampaignFlow_CreateAndGet(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		env := newFlowEnv(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("CreatesDraftWithDedupedContacts", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)

			resp, err := env.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
				TenantID:        tenant.ID,
				Name:            "  Launch week  ",
				MessageTemplate: "Hi {first_name}",
				ConnectionID:    conn.ID,
				ContactIDs:      []uint{contacts[1].ID, contacts[0].ID, contacts[1].ID},
				DelaySeconds:    utils.ToPtr(30),
			}, businessflow.NewClientMetadata("10.0.0.1", "flow-test"))
			require.NoError(t, err)
			assert.Equal(t, "draft", resp.Status)
			assert.NotEmpty(t, resp.UUID)

			got, err := env.flow.GetCampaign(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID})
			require.NoError(t, err)
			assert.Equal(t, "Launch week", got.Name)
			assert.Equal(t, "explicit", got.SelectionMode)
			assert.Equal(t, "none", got.Recurrence)
			assert.Equal(t, 30, got.DelaySeconds)
			assert.Nil(t, got.NextRunAt)

			var payload models.ExplicitSelection
			require.NoError(t, json.Unmarshal(got.SelectionPayload, &payload))
			assert.Equal(t, []uint{contacts[1].ID, contacts[0].ID}, payload.ContactIDs)

			assert.Equal(t, int64(1), env.auditCount(t, tenant.ID, models.AuditActionCampaignCreated))
		})

		t.Run("ColumnSelection", func(t *testing.T) {
			tenant, conn, _ := env.tenantWithLine(t)

			resp, err := env.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
				TenantID:        tenant.ID,
				Name:            "Board stage",
				MessageTemplate: "Hello",
				ConnectionID:    conn.ID,
				Selection: &dto.SelectionDTO{
					Mode:    "column",
					Payload: json.RawMessage(`{"board_id":7,"column_key":"stage","value":"won"}`),
				},
			}, nil)
			require.NoError(t, err)

			got, err := env.flow.GetCampaign(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID})
			require.NoError(t, err)
			assert.Equal(t, "column", got.SelectionMode)
		})

		t.Run("RejectsMalformedSelection", func(t *testing.T) {
			tenant, conn, _ := env.tenantWithLine(t)

			_, err := env.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
				TenantID:        tenant.ID,
				Name:            "Broken",
				MessageTemplate: "Hello",
				ConnectionID:    conn.ID,
				Selection: &dto.SelectionDTO{
					Mode:    "filter",
					Payload: json.RawMessage(`{"unknown":true}`),
				},
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsValidationError(err))
		})

		t.Run("RejectsForeignConnection", func(t *testing.T) {
			tenant, _, contacts := env.tenantWithLine(t)
			_, otherConn, _ := env.tenantWithLine(t)

			_, err := env.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
				TenantID:        tenant.ID,
				Name:            "Borrowed line",
				MessageTemplate: "Hello",
				ConnectionID:    otherConn.ID,
				ContactIDs:      []uint{contacts[0].ID},
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsConnectionNotFound(err))
			assert.Equal(t, int64(1), env.auditCount(t, tenant.ID, models.AuditActionCampaignActionFailed))
		})

		t.Run("RejectsBlankNameAndNegativeDelay", func(t *testing.T) {
			tenant, conn, _ := env.tenantWithLine(t)

			_, err := env.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
				TenantID: tenant.ID, Name: "  ", MessageTemplate: "Hello", ConnectionID: conn.ID,
			}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, businessflow.ErrCampaignNameRequired)

			_, err = env.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
				TenantID: tenant.ID, Name: "Late", MessageTemplate: "Hello", ConnectionID: conn.ID, DelaySeconds: utils.ToPtr(-1),
			}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, businessflow.ErrInvalidDelay)
		})

		t.Run("InactiveTenant", func(t *testing.T) {
			tenant, conn, _ := env.tenantWithLine(t)
			require.NoError(t, testDB.DB.Model(&models.Tenant{}).Where("id = ?", tenant.ID).Update("is_active", false).Error)

			_, err := env.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
				TenantID: tenant.ID, Name: "Nope", MessageTemplate: "Hello", ConnectionID: conn.ID,
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsTenantInactive(err))
		})

		t.Run("GetChecksOwnership", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			other, _, _ := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)

			_, err := env.flow.GetCampaign(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: other.ID})
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignAccessDenied(err))

			_, err = env.flow.GetCampaign(ctx, &dto.GetCampaignRequest{UUID: "not-a-uuid", TenantID: tenant.ID})
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCampaignFlow_ListUpdateDelete(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		env := newFlowEnv(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ListPaginates", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			for i := 0; i < 3; i++ {
				env.createDraft(t, ctx, tenant, conn, contacts)
			}
			scheduled := env.createDraft(t, ctx, tenant, conn, contacts)
			env.setStatus(t, scheduled.UUID, models.CampaignStatusScheduled)

			page, err := env.flow.ListCampaigns(ctx, &dto.ListCampaignsRequest{TenantID: tenant.ID, Page: 1, Limit: 3})
			require.NoError(t, err)
			assert.Len(t, page.Items, 3)
			assert.Equal(t, int64(4), page.Pagination.Total)
			assert.Equal(t, 2, page.Pagination.TotalPages)

			second, err := env.flow.ListCampaigns(ctx, &dto.ListCampaignsRequest{TenantID: tenant.ID, Page: 2, Limit: 3})
			require.NoError(t, err)
			assert.Len(t, second.Items, 1)

			status := "scheduled"
			filtered, err := env.flow.ListCampaigns(ctx, &dto.ListCampaignsRequest{
				TenantID: tenant.ID,
				Filter:   &dto.ListCampaignsFilter{Status: &status},
			})
			require.NoError(t, err)
			require.Len(t, filtered.Items, 1)
			assert.Equal(t, scheduled.UUID, filtered.Items[0].UUID)
			assert.Equal(t, 10, filtered.Pagination.Limit)

			_, err = env.flow.ListCampaigns(ctx, &dto.ListCampaignsRequest{TenantID: tenant.ID, Limit: 500})
			require.Error(t, err)
			assert.ErrorIs(t, err, businessflow.ErrInvalidPageSize)
		})

		t.Run("UpdateFieldsAndRateLimit", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)

			updated, err := env.flow.UpdateCampaign(ctx, &dto.UpdateCampaignRequest{
				UUID:           resp.UUID,
				TenantID:       tenant.ID,
				Name:           utils.ToPtr("Renamed"),
				RateLimitCount: utils.ToPtr(100),
				RateLimitUnit:  utils.ToPtr("hour"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "Renamed", updated.Campaign.Name)
			require.NotNil(t, updated.Campaign.RateLimitCount)
			assert.Equal(t, 100, *updated.Campaign.RateLimitCount)
			require.NotNil(t, updated.Campaign.RateLimitUnit)
			assert.Equal(t, "hour", *updated.Campaign.RateLimitUnit)

			// count alone keeps the stored unit
			updated, err = env.flow.UpdateCampaign(ctx, &dto.UpdateCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, RateLimitCount: utils.ToPtr(5),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, 5, *updated.Campaign.RateLimitCount)
			assert.Equal(t, "hour", *updated.Campaign.RateLimitUnit)

			updated, err = env.flow.UpdateCampaign(ctx, &dto.UpdateCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, RateLimitCount: utils.ToPtr(0),
			}, nil)
			require.NoError(t, err)
			assert.Nil(t, updated.Campaign.RateLimitCount)
			assert.Nil(t, updated.Campaign.RateLimitUnit)

			assert.Equal(t, int64(3), env.auditCount(t, tenant.ID, models.AuditActionCampaignUpdated))
		})

		t.Run("UpdateRejectsCountWithoutUnit", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)

			_, err := env.flow.UpdateCampaign(ctx, &dto.UpdateCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, RateLimitCount: utils.ToPtr(10),
			}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, businessflow.ErrInvalidRateLimit)
		})

		t.Run("UpdateRequiresAField", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)

			_, err := env.flow.UpdateCampaign(ctx, &dto.UpdateCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, businessflow.ErrCampaignUpdateRequired)
		})

		t.Run("UpdateRejectsRunningCampaign", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)
			env.setStatus(t, resp.UUID, models.CampaignStatusRunning)

			_, err := env.flow.UpdateCampaign(ctx, &dto.UpdateCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, Name: utils.ToPtr("Too late"),
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignNotEditable(err))
		})

		t.Run("DeleteRemovesRunsAndRecipients", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)
			campaign := env.setStatus(t, resp.UUID, models.CampaignStatusScheduled)

			run, err := env.fixtures.CreateTestRun(campaign, time.Now())
			require.NoError(t, err)
			_, err = env.fixtures.CreateTestRecipient(run, contacts[0], time.Now())
			require.NoError(t, err)
			_, err = env.runRepo.Finish(ctx, run.ID, models.CampaignRunStatusCompleted, time.Now())
			require.NoError(t, err)

			out, err := env.flow.DeleteCampaign(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID}, nil)
			require.NoError(t, err)
			assert.NotEmpty(t, out.Message)

			_, err = env.flow.GetCampaign(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID})
			assert.True(t, businessflow.IsCampaignNotFound(err))

			left, err := env.recipientRepo.Count(ctx, models.CampaignRecipientFilter{CampaignID: &campaign.ID})
			require.NoError(t, err)
			assert.Zero(t, left)
			assert.Equal(t, int64(1), env.auditCount(t, tenant.ID, models.AuditActionCampaignDeleted))
		})

		t.Run("DeleteRejectsRunningCampaign", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)
			env.setStatus(t, resp.UUID, models.CampaignStatusRunning)

			_, err := env.flow.DeleteCampaign(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignNotDeletable(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCampaignFlow_RecipientsAndSchedule(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		env := newFlowEnv(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("SetRecipientsDedups", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts[:1])

			out, err := env.flow.SetRecipients(ctx, &dto.SetRecipientsRequest{
				UUID:       resp.UUID,
				TenantID:   tenant.ID,
				ContactIDs: []uint{contacts[2].ID, contacts[2].ID, contacts[0].ID},
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, []uint{contacts[2].ID, contacts[0].ID}, out.ContactIDs)

			campaign, err := env.campaignRepo.ByUUID(ctx, resp.UUID)
			require.NoError(t, err)
			sel, err := campaign.Selection()
			require.NoError(t, err)
			assert.Equal(t, models.ExplicitSelection{ContactIDs: []uint{contacts[2].ID, contacts[0].ID}}, sel)
		})

		t.Run("SetRecipientsRejectsZeroID", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)

			_, err := env.flow.SetRecipients(ctx, &dto.SetRecipientsRequest{
				UUID: resp.UUID, TenantID: tenant.ID, ContactIDs: []uint{contacts[0].ID, 0},
			}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, businessflow.ErrInvalidContactID)
		})

		t.Run("ScheduleSetsNextRun", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)
			startAt := time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))

			out, err := env.flow.ScheduleCampaign(ctx, &dto.ScheduleCampaignRequest{
				UUID:           resp.UUID,
				TenantID:       tenant.ID,
				StartAt:        &startAt,
				Recurrence:     "weekly",
				RateLimitCount: utils.ToPtr(50),
				RateLimitUnit:  utils.ToPtr("minute"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "scheduled", out.Campaign.Status)
			assert.Equal(t, "weekly", out.Campaign.Recurrence)
			require.NotNil(t, out.Campaign.NextRunAt)
			assert.True(t, out.Campaign.NextRunAt.Equal(startAt))
			require.NotNil(t, out.Campaign.StartAt)
			assert.True(t, out.Campaign.StartAt.Equal(startAt))
			assert.Equal(t, 50, *out.Campaign.RateLimitCount)

			// rescheduling a scheduled campaign moves next_run_at
			later := startAt.Add(48 * time.Hour)
			out, err = env.flow.ScheduleCampaign(ctx, &dto.ScheduleCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, StartAt: &later,
			}, nil)
			require.NoError(t, err)
			assert.True(t, out.Campaign.NextRunAt.Equal(later))
			assert.Equal(t, "none", out.Campaign.Recurrence)
			assert.Equal(t, 50, *out.Campaign.RateLimitCount)

			assert.Equal(t, int64(2), env.auditCount(t, tenant.ID, models.AuditActionCampaignScheduled))
		})

		t.Run("ScheduleValidation", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)
			startAt := time.Now().Add(time.Hour)

			_, err := env.flow.ScheduleCampaign(ctx, &dto.ScheduleCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID}, nil)
			assert.ErrorIs(t, err, businessflow.ErrStartAtRequired)

			_, err = env.flow.ScheduleCampaign(ctx, &dto.ScheduleCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, StartAt: &startAt, Recurrence: "hourly",
			}, nil)
			assert.ErrorIs(t, err, businessflow.ErrInvalidRecurrence)

			_, err = env.flow.ScheduleCampaign(ctx, &dto.ScheduleCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, StartAt: &startAt, RateLimitCount: utils.ToPtr(3), RateLimitUnit: utils.ToPtr("fortnight"),
			}, nil)
			assert.ErrorIs(t, err, businessflow.ErrInvalidRateLimit)

			got, err := env.flow.GetCampaign(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID})
			require.NoError(t, err)
			assert.Equal(t, "draft", got.Status)
		})

		t.Run("ScheduleRejectsPaused", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)
			env.setStatus(t, resp.UUID, models.CampaignStatusPaused)
			startAt := time.Now().Add(time.Hour)

			_, err := env.flow.ScheduleCampaign(ctx, &dto.ScheduleCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, StartAt: &startAt,
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignNotSchedulable(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCampaignFlow_PauseResumeCancel(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		env := newFlowEnv(testDB)
		ctx := testingutil.CreateTestContext()

		scheduledCampaign := func(t *testing.T) (*models.Tenant, string, []*models.Contact) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)
			startAt := time.Now().Add(time.Hour)
			_, err := env.flow.ScheduleCampaign(ctx, &dto.ScheduleCampaignRequest{
				UUID: resp.UUID, TenantID: tenant.ID, StartAt: &startAt,
			}, nil)
			require.NoError(t, err)
			return tenant, resp.UUID, contacts
		}

		t.Run("PauseIsIdempotent", func(t *testing.T) {
			tenant, uuid, _ := scheduledCampaign(t)
			req := &dto.CampaignActionRequest{UUID: uuid, TenantID: tenant.ID}

			out, err := env.flow.PauseCampaign(ctx, req, nil)
			require.NoError(t, err)
			assert.Equal(t, "paused", out.Campaign.Status)
			assert.NotNil(t, out.Campaign.PausedAt)
			assert.Nil(t, out.Campaign.NextRunAt)

			out, err = env.flow.PauseCampaign(ctx, req, nil)
			require.NoError(t, err)
			assert.Equal(t, "paused", out.Campaign.Status)
			assert.Equal(t, int64(2), env.auditCount(t, tenant.ID, models.AuditActionCampaignPaused))
		})

		t.Run("ResumeDueNow", func(t *testing.T) {
			tenant, uuid, _ := scheduledCampaign(t)
			req := &dto.CampaignActionRequest{UUID: uuid, TenantID: tenant.ID}

			_, err := env.flow.ResumeCampaign(ctx, req, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignNotPaused(err))

			_, err = env.flow.PauseCampaign(ctx, req, nil)
			require.NoError(t, err)

			before := time.Now().Add(-time.Second)
			out, err := env.flow.ResumeCampaign(ctx, req, nil)
			require.NoError(t, err)
			assert.Equal(t, "scheduled", out.Campaign.Status)
			assert.Nil(t, out.Campaign.PausedAt)
			require.NotNil(t, out.Campaign.NextRunAt)
			assert.True(t, out.Campaign.NextRunAt.After(before))
			assert.True(t, out.Campaign.NextRunAt.Before(time.Now().Add(time.Second)))
		})

		t.Run("PauseRejectsTerminal", func(t *testing.T) {
			tenant, uuid, _ := scheduledCampaign(t)
			env.setStatus(t, uuid, models.CampaignStatusCompleted)

			_, err := env.flow.PauseCampaign(ctx, &dto.CampaignActionRequest{UUID: uuid, TenantID: tenant.ID}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignAlreadyTerminated(err))
		})

		t.Run("CancelSkipsScheduledRecipients", func(t *testing.T) {
			tenant, uuid, contacts := scheduledCampaign(t)
			campaign := env.setStatus(t, uuid, models.CampaignStatusRunning)
			now := time.Now()

			idle, err := env.fixtures.CreateTestRun(campaign, now)
			require.NoError(t, err)
			for _, c := range contacts {
				_, err := env.fixtures.CreateTestRecipient(idle, c, now.Add(time.Minute))
				require.NoError(t, err)
			}

			busy, err := env.fixtures.CreateTestRun(campaign, now)
			require.NoError(t, err)
			inFlight, err := env.fixtures.CreateTestRecipient(busy, contacts[0], now)
			require.NoError(t, err)
			claimed, err := env.recipientRepo.Claim(ctx, inFlight.ID, "worker-a", now)
			require.NoError(t, err)
			require.True(t, claimed)

			req := &dto.CampaignActionRequest{UUID: uuid, TenantID: tenant.ID}
			out, err := env.flow.CancelCampaign(ctx, req, nil)
			require.NoError(t, err)
			assert.Equal(t, "cancelled", out.Campaign.Status)
			assert.NotNil(t, out.Campaign.CancelledAt)
			assert.Nil(t, out.Campaign.NextRunAt)

			skipped := models.CampaignRecipientStatusSkipped
			n, err := env.recipientRepo.Count(ctx, models.CampaignRecipientFilter{RunID: &idle.ID, Status: &skipped})
			require.NoError(t, err)
			assert.Equal(t, int64(len(contacts)), n)

			rows, err := env.recipientRepo.ByFilter(ctx, models.CampaignRecipientFilter{RunID: &idle.ID}, "id ASC", 10, 0)
			require.NoError(t, err)
			for _, r := range rows {
				require.NotNil(t, r.Error)
				assert.Equal(t, "campaign cancelled", *r.Error)
			}

			idleRun, err := env.runRepo.ByID(ctx, idle.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignRunStatusCancelled, idleRun.Status)
			assert.NotNil(t, idleRun.FinishedAt)

			// the in-flight recipient is left to its worker
			busyRun, err := env.runRepo.ByID(ctx, busy.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignRunStatusRunning, busyRun.Status)
			stillSending, err := env.recipientRepo.ByID(ctx, inFlight.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignRecipientStatusSending, stillSending.Status)

			// second cancel is a no-op
			out, err = env.flow.CancelCampaign(ctx, req, nil)
			require.NoError(t, err)
			assert.Equal(t, "cancelled", out.Campaign.Status)
			n, err = env.recipientRepo.Count(ctx, models.CampaignRecipientFilter{RunID: &idle.ID, Status: &skipped})
			require.NoError(t, err)
			assert.Equal(t, int64(len(contacts)), n)
			assert.Equal(t, int64(2), env.auditCount(t, tenant.ID, models.AuditActionCampaignCancelled))
		})

		t.Run("CancelRejectsCompleted", func(t *testing.T) {
			tenant, uuid, _ := scheduledCampaign(t)
			env.setStatus(t, uuid, models.CampaignStatusCompleted)

			_, err := env.flow.CancelCampaign(ctx, &dto.CampaignActionRequest{UUID: uuid, TenantID: tenant.ID}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignAlreadyTerminated(err))
			assert.Equal(t, int64(1), env.auditCount(t, tenant.ID, models.AuditActionCampaignActionFailed))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCampaignFlow_Stats(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		env := newFlowEnv(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("CountsByStatusAndLatestRun", func(t *testing.T) {
			tenant, conn, contacts := env.tenantWithLine(t)
			resp := env.createDraft(t, ctx, tenant, conn, contacts)
			campaign := env.setStatus(t, resp.UUID, models.CampaignStatusRunning)
			now := time.Now()

			empty, err := env.flow.GetCampaignStats(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID})
			require.NoError(t, err)
			assert.Zero(t, empty.Total)
			assert.Nil(t, empty.LatestRun)

			first, err := env.fixtures.CreateTestRun(campaign, now.Add(-24*time.Hour))
			require.NoError(t, err)
			_, err = env.fixtures.CreateTestRecipient(first, contacts[0], now)
			require.NoError(t, err)

			second, err := env.fixtures.CreateTestRun(campaign, now)
			require.NoError(t, err)
			for _, c := range contacts {
				_, err := env.fixtures.CreateTestRecipient(second, c, now)
				require.NoError(t, err)
			}
			_, err = env.recipientRepo.SkipScheduledByRun(ctx, first.ID, "campaign paused", now)
			require.NoError(t, err)

			stats, err := env.flow.GetCampaignStats(ctx, &dto.GetCampaignRequest{UUID: resp.UUID, TenantID: tenant.ID})
			require.NoError(t, err)
			assert.Equal(t, int64(4), stats.Total)
			assert.Equal(t, int64(3), stats.ByStatus["scheduled"])
			assert.Equal(t, int64(1), stats.ByStatus["skipped"])
			assert.Equal(t, int64(0), stats.ByStatus["sent"])
			assert.Equal(t, "running", stats.Status)
			require.NotNil(t, stats.LatestRun)
			assert.Equal(t, second.UUID.String(), stats.LatestRun.UUID)
		})

		return nil
	})
	require.NoError(t, err)
}
