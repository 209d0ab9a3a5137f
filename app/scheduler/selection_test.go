package scheduler_test

import (
	"strings"
	"testing"

	"github.com/amirphl/orochi-outreach/app/scheduler"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	testingutil "github.com/amirphl/orochi-outreach/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionRegistry(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		registry := scheduler.NewDefaultSelectionRegistry(repository.NewContactRepository(testDB.DB), discardLogger())

		tenant, err := fixtures.CreateTestTenant(0)
		require.NoError(t, err)
		other, err := fixtures.CreateTestTenant(0)
		require.NoError(t, err)
		contacts, err := fixtures.CreateTestContacts(tenant.ID, 3)
		require.NoError(t, err)
		foreign, err := fixtures.CreateTestContact(other.ID, "Mallory")
		require.NoError(t, err)

		t.Run("ExplicitKeepsListedOrder", func(t *testing.T) {
			campaign := &models.Campaign{TenantID: tenant.ID}
			require.NoError(t, campaign.SetSelection(models.ExplicitSelection{
				ContactIDs: []uint{contacts[2].ID, contacts[0].ID, contacts[1].ID},
			}))

			got, err := registry.Resolve(ctx, campaign)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, contacts[2].ID, got[0].ID)
			assert.Equal(t, contacts[0].ID, got[1].ID)
			assert.Equal(t, contacts[1].ID, got[2].ID)
		})

		t.Run("ExplicitDropsDuplicatesAndForeignContacts", func(t *testing.T) {
			campaign := &models.Campaign{TenantID: tenant.ID}
			require.NoError(t, campaign.SetSelection(models.ExplicitSelection{
				ContactIDs: []uint{contacts[0].ID, foreign.ID, contacts[0].ID, 999999},
			}))

			got, err := registry.Resolve(ctx, campaign)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, contacts[0].ID, got[0].ID)
		})

		t.Run("ExplicitEmpty", func(t *testing.T) {
			campaign := &models.Campaign{TenantID: tenant.ID}
			require.NoError(t, campaign.SetSelection(models.ExplicitSelection{}))

			got, err := registry.Resolve(ctx, campaign)
			require.NoError(t, err)
			assert.Empty(t, got)
		})

		t.Run("UnregisteredModeResolvesToNothing", func(t *testing.T) {
			var buf strings.Builder
			logged := scheduler.NewDefaultSelectionRegistry(repository.NewContactRepository(testDB.DB), newBufferLogger(&buf))

			campaign := &models.Campaign{ID: 42, TenantID: tenant.ID}
			require.NoError(t, campaign.SetSelection(models.FilterSelection{Tags: []string{"lead"}}))

			got, err := logged.Resolve(ctx, campaign)
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Contains(t, buf.String(), `no resolver for selection mode "filter"`)
		})

		t.Run("RegisteredResolverIsUsed", func(t *testing.T) {
			r := scheduler.NewSelectionRegistry(discardLogger())
			r.Register(models.SelectionModeColumn, stubResolver{contacts: contacts[:1]})

			campaign := &models.Campaign{TenantID: tenant.ID}
			require.NoError(t, campaign.SetSelection(models.ColumnSelection{BoardID: 1, ColumnKey: "stage", Value: "won"}))

			got, err := r.Resolve(ctx, campaign)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, contacts[0].ID, got[0].ID)
		})

		t.Run("MalformedPayload", func(t *testing.T) {
			campaign := &models.Campaign{
				TenantID:         tenant.ID,
				SelectionMode:    models.SelectionModeExplicit,
				SelectionPayload: models.SelectionPayload(`{"contact_ids":"nope"}`),
			}
			_, err := registry.Resolve(ctx, campaign)
			assert.Error(t, err)
		})

		return nil
	})
	require.NoError(t, err)
}
