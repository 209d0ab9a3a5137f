package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	testingutil "github.com/amirphl/orochi-outreach/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var repoBaseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// draftCampaign creates a tenant, a connected line, two contacts and a draft campaign
func draftCampaign(t *testing.T, fixtures *testingutil.TestFixtures) (*models.Tenant, *models.Campaign, []*models.Contact) {
	t.Helper()
	tenant, err := fixtures.CreateTestTenant(0)
	require.NoError(t, err)
	conn, err := fixtures.CreateTestConnection(tenant.ID, models.ConnectionStatusConnected)
	require.NoError(t, err)
	contacts, err := fixtures.CreateTestContacts(tenant.ID, 2)
	require.NoError(t, err)
	campaign, err := fixtures.CreateTestCampaign(tenant.ID, conn.ID, contacts)
	require.NoError(t, err)
	return tenant, campaign, contacts
}

func TestCampaignRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCampaignRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ByIDAndUUID", func(t *testing.T) {
			_, campaign, _ := draftCampaign(t, fixtures)

			byID, err := repo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			require.NotNil(t, byID)
			assert.Equal(t, campaign.UUID, byID.UUID)
			assert.Equal(t, models.CampaignStatusDraft, byID.Status)
			assert.Equal(t, models.SelectionModeExplicit, byID.SelectionMode)

			byUUID, err := repo.ByUUID(ctx, campaign.UUID.String())
			require.NoError(t, err)
			require.NotNil(t, byUUID)
			assert.Equal(t, campaign.ID, byUUID.ID)

			sel, err := byUUID.Selection()
			require.NoError(t, err)
			explicit, ok := sel.(models.ExplicitSelection)
			require.True(t, ok)
			assert.Len(t, explicit.ContactIDs, 2)
		})

		t.Run("ByIDNotFound", func(t *testing.T) {
			campaign, err := repo.ByID(ctx, 999999)
			assert.NoError(t, err)
			assert.Nil(t, campaign)
		})

		t.Run("ByUUIDInvalid", func(t *testing.T) {
			_, err := repo.ByUUID(ctx, "not-a-uuid")
			assert.Error(t, err)
		})

		t.Run("ByTenantID", func(t *testing.T) {
			tenant, first, _ := draftCampaign(t, fixtures)
			second, err := fixtures.CreateTestCampaign(tenant.ID, first.ConnectionID, nil)
			require.NoError(t, err)

			campaigns, err := repo.ByTenantID(ctx, tenant.ID, 10, 0)
			require.NoError(t, err)
			require.Len(t, campaigns, 2)
			assert.Equal(t, second.ID, campaigns[0].ID)

			page, err := repo.ByTenantID(ctx, tenant.ID, 1, 1)
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, first.ID, page[0].ID)

			count, err := repo.Count(ctx, models.CampaignFilter{TenantID: &tenant.ID})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})

		t.Run("TransitionStatus", func(t *testing.T) {
			_, campaign, _ := draftCampaign(t, fixtures)
			next := repoBaseTime

			won, err := repo.TransitionStatus(ctx, campaign.ID,
				[]models.CampaignStatus{models.CampaignStatusDraft},
				models.CampaignStatusScheduled,
				map[string]any{"next_run_at": next, "start_at": next})
			require.NoError(t, err)
			assert.True(t, won)

			// the source status no longer matches
			won, err = repo.TransitionStatus(ctx, campaign.ID,
				[]models.CampaignStatus{models.CampaignStatusDraft},
				models.CampaignStatusCancelled, nil)
			require.NoError(t, err)
			assert.False(t, won)

			stored, err := repo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusScheduled, stored.Status)
			require.NotNil(t, stored.NextRunAt)
			assert.True(t, next.Equal(*stored.NextRunAt))
			assert.NotNil(t, stored.UpdatedAt)

			_, err = repo.TransitionStatus(ctx, campaign.ID, nil, models.CampaignStatusPaused, nil)
			assert.Error(t, err)
		})

		t.Run("ListDue", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, due, _ := draftCampaign(t, fixtures)
			require.NoError(t, fixtures.ScheduleTestCampaign(due, repoBaseTime, models.RecurrenceNone, 0))

			_, later, _ := draftCampaign(t, fixtures)
			require.NoError(t, fixtures.ScheduleTestCampaign(later, repoBaseTime.Add(time.Hour), models.RecurrenceNone, 0))

			_, paused, _ := draftCampaign(t, fixtures)
			require.NoError(t, fixtures.ScheduleTestCampaign(paused, repoBaseTime.Add(-time.Hour), models.RecurrenceNone, 0))
			require.NoError(t, repo.UpdateFields(ctx, paused.ID, map[string]any{"status": models.CampaignStatusPaused}))

			// drafts are never due
			draftCampaign(t, fixtures)

			rows, err := repo.ListDue(ctx, repoBaseTime, 25)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, due.ID, rows[0].ID)

			rows, err = repo.ListDue(ctx, repoBaseTime.Add(2*time.Hour), 25)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, due.ID, rows[0].ID)
			assert.Equal(t, later.ID, rows[1].ID)

			rows, err = repo.ListDue(ctx, repoBaseTime.Add(2*time.Hour), 1)
			require.NoError(t, err)
			assert.Len(t, rows, 1)
		})

		t.Run("ListStaleRunning", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			_, stale, _ := draftCampaign(t, fixtures)
			require.NoError(t, repo.UpdateFields(ctx, stale.ID, map[string]any{
				"status":      models.CampaignStatusRunning,
				"last_run_at": repoBaseTime.Add(-time.Hour),
			}))
			_, fresh, _ := draftCampaign(t, fixtures)
			require.NoError(t, repo.UpdateFields(ctx, fresh.ID, map[string]any{
				"status":      models.CampaignStatusRunning,
				"last_run_at": repoBaseTime,
			}))

			rows, err := repo.ListStaleRunning(ctx, repoBaseTime.Add(-time.Minute), 10)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, stale.ID, rows[0].ID)
		})

		t.Run("DeleteCascades", func(t *testing.T) {
			_, campaign, contacts := draftCampaign(t, fixtures)
			run, err := fixtures.CreateTestRun(campaign, repoBaseTime)
			require.NoError(t, err)
			for _, c := range contacts {
				_, err := fixtures.CreateTestRecipient(run, c, repoBaseTime)
				require.NoError(t, err)
			}

			require.NoError(t, repo.Delete(ctx, campaign.ID))

			gone, err := repo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Nil(t, gone)

			runRepo := repository.NewCampaignRunRepository(testDB.DB)
			runs, err := runRepo.ByFilter(ctx, models.CampaignRunFilter{CampaignID: &campaign.ID}, "", 0, 0)
			require.NoError(t, err)
			assert.Empty(t, runs)

			recipientRepo := repository.NewCampaignRecipientRepository(testDB.DB)
			n, err := recipientRepo.Count(ctx, models.CampaignRecipientFilter{CampaignID: &campaign.ID})
			require.NoError(t, err)
			assert.Zero(t, n)
		})

		t.Run("TransactionRollback", func(t *testing.T) {
			_, campaign, _ := draftCampaign(t, fixtures)
			boom := errors.New("boom")

			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				won, err := repo.TransitionStatus(txCtx, campaign.ID,
					[]models.CampaignStatus{models.CampaignStatusDraft}, models.CampaignStatusCancelled, nil)
				require.NoError(t, err)
				require.True(t, won)
				return boom
			})
			assert.ErrorIs(t, err, boom)

			stored, err := repo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignStatusDraft, stored.Status)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCampaignRunRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCampaignRunRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		_, campaign, _ := draftCampaign(t, fixtures)
		first, err := fixtures.CreateTestRun(campaign, repoBaseTime)
		require.NoError(t, err)
		second, err := fixtures.CreateTestRun(campaign, repoBaseTime.Add(time.Hour))
		require.NoError(t, err)

		t.Run("LatestAndRunning", func(t *testing.T) {
			latest, err := repo.LatestByCampaignID(ctx, campaign.ID)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, second.ID, latest.ID)

			running, err := repo.ListRunningByCampaignID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Len(t, running, 2)

			none, err := repo.LatestByCampaignID(ctx, 999999)
			require.NoError(t, err)
			assert.Nil(t, none)
		})

		t.Run("FinishOnce", func(t *testing.T) {
			won, err := repo.Finish(ctx, first.ID, models.CampaignRunStatusCompleted, repoBaseTime.Add(time.Minute))
			require.NoError(t, err)
			assert.True(t, won)

			won, err = repo.Finish(ctx, first.ID, models.CampaignRunStatusCancelled, repoBaseTime.Add(2*time.Minute))
			require.NoError(t, err)
			assert.False(t, won)

			stored, err := repo.ByID(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CampaignRunStatusCompleted, stored.Status)
			require.NotNil(t, stored.FinishedAt)

			_, err = repo.Finish(ctx, second.ID, models.CampaignRunStatusRunning, repoBaseTime)
			assert.Error(t, err)

			running, err := repo.ListRunning(ctx, 10)
			require.NoError(t, err)
			require.Len(t, running, 1)
			assert.Equal(t, second.ID, running[0].ID)
		})

		return nil
	})
	require.NoError(t, err)
}
