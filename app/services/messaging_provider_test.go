package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/orochi-outreach/config"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMessagingProvider_Send(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		var body providerMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		switch body.To {
		case "+15550000001":
			assert.Equal(t, "ext-9", body.Connection)
			_ = json.NewEncoder(w).Encode(providerMessageResponse{ID: "pm-1", Status: "DELIVERED"})
		case "+15550000002":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(providerMessageResponse{Error: "invalid destination"})
		default:
			_ = json.NewEncoder(w).Encode(providerMessageResponse{ID: "pm-x", Status: "weird"})
		}
	}))
	defer server.Close()

	provider := NewHTTPMessagingProvider(&config.ProviderConfig{
		Kind:          "http",
		BaseURL:       server.URL + "/",
		APIKey:        "secret",
		Timeout:       5 * time.Second,
		RatePerSecond: 100,
		Burst:         10,
	})
	ctx := context.Background()

	t.Run("Accepted", func(t *testing.T) {
		res, err := provider.Send(ctx, ProviderSendRequest{
			IdempotencyKey: "key-1", ConnectionID: 3, ExternalID: "ext-9", To: "+15550000001", Body: "hi", Kind: models.MessageKindText,
		})
		require.NoError(t, err)
		assert.Equal(t, "pm-1", res.ProviderMessageID)
		assert.Equal(t, models.MessageStatusDelivered, res.Status)
	})

	t.Run("Rejected", func(t *testing.T) {
		res, err := provider.Send(ctx, ProviderSendRequest{IdempotencyKey: "key-1", To: "+15550000002", Body: "hi"})
		require.Error(t, err)
		assert.Nil(t, res)
		assert.Contains(t, err.Error(), "invalid destination")
		assert.Contains(t, err.Error(), "422")
	})

	t.Run("UnknownStatusCountsAsSent", func(t *testing.T) {
		res, err := provider.Send(ctx, ProviderSendRequest{IdempotencyKey: "key-1", To: "+15550000003", Body: "hi"})
		require.NoError(t, err)
		assert.Equal(t, models.MessageStatusSent, res.Status)
	})

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPMessagingProvider_CancelledContext(t *testing.T) {
	provider := NewHTTPMessagingProvider(&config.ProviderConfig{
		BaseURL:       "http://127.0.0.1:1",
		RatePerSecond: 0.001,
		Burst:         1,
	})
	ctx, cancel := context.WithCancel(context.Background())

	// the first call drains the burst, the second has to wait for the limiter
	_, _ = provider.Send(ctx, ProviderSendRequest{To: "+1"})
	cancel()
	_, err := provider.Send(ctx, ProviderSendRequest{To: "+1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestMockMessagingProvider(t *testing.T) {
	ctx := context.Background()
	m := NewMockMessagingProvider()

	res, err := m.Send(ctx, ProviderSendRequest{To: "+1", Body: "a"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSent, res.Status)
	assert.Equal(t, "mock-1", res.ProviderMessageID)

	m.FailFor("+2", errors.New("blocked"))
	_, err = m.Send(ctx, ProviderSendRequest{To: "+2", Body: "b"})
	assert.EqualError(t, err, "blocked")

	_, err = m.Send(ctx, ProviderSendRequest{Body: "c"})
	assert.Error(t, err)

	m.SetStatus(models.MessageStatusRead)
	res, err = m.Send(ctx, ProviderSendRequest{To: "+3", Body: "d"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusRead, res.Status)

	m.FailAll(errors.New("down"))
	_, err = m.Send(ctx, ProviderSendRequest{To: "+1", Body: "e"})
	assert.EqualError(t, err, "down")

	assert.Len(t, m.SentMessages(), 2)
	m.Clear()
	assert.Empty(t, m.SentMessages())

	m.FailAll(nil)
	m.SetDelay(time.Second)
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = m.Send(cctx, ProviderSendRequest{To: "+1", Body: "f"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
