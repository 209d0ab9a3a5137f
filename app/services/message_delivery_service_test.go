package services_test

import (
	"errors"
	"testing"

	"github.com/amirphl/orochi-outreach/app/services"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	testingutil "github.com/amirphl/orochi-outreach/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageDelivery(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		ctx := testingutil.CreateTestContext()
		fixtures := testingutil.NewTestFixtures(testDB)
		messageRepo := repository.NewMessageRepository(testDB.DB)
		convRepo := repository.NewConversationRepository(testDB.DB)
		conversations := services.NewConversationService(convRepo)
		provider := services.NewMockMessagingProvider()
		delivery := services.NewMessageDeliveryService(provider, messageRepo, convRepo)

		tenant, err := fixtures.CreateTestTenant(0)
		require.NoError(t, err)
		conn, err := fixtures.CreateTestConnection(tenant.ID, models.ConnectionStatusConnected)
		require.NoError(t, err)

		newMessage := func(t *testing.T, conv *models.Conversation, body string) *models.Message {
			t.Helper()
			msg := &models.Message{
				TenantID:       tenant.ID,
				ConversationID: conv.ID,
				ConnectionID:   conn.ID,
				Direction:      models.MessageDirectionOutbound,
				Kind:           models.MessageKindText,
				Body:           body,
				Status:         models.MessageStatusQueued,
			}
			require.NoError(t, messageRepo.Save(ctx, msg))
			return msg
		}

		t.Run("ConversationIsReused", func(t *testing.T) {
			first, err := conversations.GetOrCreate(ctx, tenant.ID, "+15550009999", conn, nil)
			require.NoError(t, err)
			second, err := conversations.GetOrCreate(ctx, tenant.ID, "+15550009999", conn, nil)
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)

			_, err = conversations.GetOrCreate(ctx, tenant.ID, "", conn, nil)
			assert.Error(t, err)
		})

		t.Run("Delivered", func(t *testing.T) {
			conv, err := conversations.GetOrCreate(ctx, tenant.ID, "+15550001234", conn, nil)
			require.NoError(t, err)
			msg := newMessage(t, conv, "hello")

			require.NoError(t, delivery.Deliver(ctx, msg, conn, conv.Phone))

			stored, err := messageRepo.ByID(ctx, msg.ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageStatusSent, stored.Status)
			assert.NotNil(t, stored.SentAt)
			require.NotNil(t, stored.ProviderMessageID)

			sent := provider.SentMessages()
			require.NotEmpty(t, sent)
			last := sent[len(sent)-1]
			assert.Equal(t, msg.UUID.String(), last.Request.IdempotencyKey)
			assert.Equal(t, *conn.ExternalID, last.Request.ExternalID)

			touched, err := convRepo.ByID(ctx, conv.ID)
			require.NoError(t, err)
			assert.NotNil(t, touched.LastMessageAt)
		})

		t.Run("ProviderErrorIsRecordedOnMessage", func(t *testing.T) {
			conv, err := conversations.GetOrCreate(ctx, tenant.ID, "+15550004321", conn, nil)
			require.NoError(t, err)
			msg := newMessage(t, conv, "hello")
			provider.FailFor(conv.Phone, errors.New("number blocked"))

			require.NoError(t, delivery.Deliver(ctx, msg, conn, conv.Phone))

			stored, err := messageRepo.ByID(ctx, msg.ID)
			require.NoError(t, err)
			assert.Equal(t, models.MessageStatusFailed, stored.Status)
			require.NotNil(t, stored.Error)
			assert.Equal(t, "number blocked", *stored.Error)
			assert.Nil(t, stored.SentAt)
		})

		t.Run("MissingArguments", func(t *testing.T) {
			assert.Error(t, delivery.Deliver(ctx, nil, conn, "+1"))
		})

		return nil
	})
	require.NoError(t, err)
}
