package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/orochi-outreach/config"
	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/utils"
	"golang.org/x/time/rate"
)

// ProviderSendRequest is one outbound message handed to the channel provider
type ProviderSendRequest struct {
	IdempotencyKey string
	ConnectionID   uint
	ExternalID     string
	To             string
	Body           string
	Kind           string
}

// ProviderSendResult is the provider's answer for an accepted send
type ProviderSendResult struct {
	ProviderMessageID string
	Status            models.MessageStatus
}

// MessagingProvider sends messages through an external channel
type MessagingProvider interface {
	Send(ctx context.Context, req ProviderSendRequest) (*ProviderSendResult, error)
}

// HTTPMessagingProvider implements MessagingProvider over a JSON HTTP API
type HTTPMessagingProvider struct {
	config  *config.ProviderConfig
	client  *http.Client
	limiter *rate.Limiter
}

// providerMessageRequest represents the request payload for the provider API
type providerMessageRequest struct {
	To             string `json:"to"`
	Body           string `json:"body"`
	Kind           string `json:"kind"`
	Connection     string `json:"connection"`
	IdempotencyKey string `json:"idempotency_key"`
}

// providerMessageResponse represents the provider API answer
type providerMessageResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewHTTPMessagingProvider creates a provider client paced at cfg.RatePerSecond
func NewHTTPMessagingProvider(cfg *config.ProviderConfig) *HTTPMessagingProvider {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPMessagingProvider{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (p *HTTPMessagingProvider) Send(ctx context.Context, req ProviderSendRequest) (*ProviderSendResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider rate limiter: %w", err)
	}

	connection := req.ExternalID
	if connection == "" {
		connection = fmt.Sprintf("%d", req.ConnectionID)
	}
	requestBody, err := json.Marshal(providerMessageRequest{
		To:             req.To,
		Body:           req.Body,
		Kind:           req.Kind,
		Connection:     connection,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	var out providerMessageResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to decode provider response (%d): %w", resp.StatusCode, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != "" {
			return nil, fmt.Errorf("provider rejected message: %s (%d)", out.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("provider rejected message: status %d", resp.StatusCode)
	}

	status := models.MessageStatus(strings.ToLower(out.Status))
	if !status.Valid() {
		status = models.MessageStatusSent
	}
	return &ProviderSendResult{ProviderMessageID: out.ID, Status: status}, nil
}

// MockMessagingProvider implements MessagingProvider for testing and local runs
type MockMessagingProvider struct {
	mu      sync.Mutex
	sent    []MockProviderMessage
	status  models.MessageStatus
	failErr error
	failFor map[string]error
	delay   time.Duration
	logger  *log.Logger
}

// MockProviderMessage represents a message accepted by the mock provider
type MockProviderMessage struct {
	Request ProviderSendRequest
	SentAt  time.Time
}

// NewMockMessagingProvider creates a mock provider that accepts every message as sent
func NewMockMessagingProvider() *MockMessagingProvider {
	return &MockMessagingProvider{
		status:  models.MessageStatusSent,
		failFor: make(map[string]error),
	}
}

// WithLogger logs each accepted message
func (m *MockMessagingProvider) WithLogger(logger *log.Logger) *MockMessagingProvider {
	m.logger = logger
	return m
}

// SetStatus sets the status reported for accepted messages
func (m *MockMessagingProvider) SetStatus(status models.MessageStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// FailAll makes every send return err; nil restores success
func (m *MockMessagingProvider) FailAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// FailFor makes sends to phone return err
func (m *MockMessagingProvider) FailFor(phone string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[phone] = err
}

// SetDelay makes every send block for d or until ctx is done
func (m *MockMessagingProvider) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MockMessagingProvider) Send(ctx context.Context, req ProviderSendRequest) (*ProviderSendResult, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, m.failErr
	}
	if err, ok := m.failFor[req.To]; ok && err != nil {
		return nil, err
	}
	if req.To == "" {
		return nil, errors.New("destination is required")
	}

	m.sent = append(m.sent, MockProviderMessage{Request: req, SentAt: utils.UTCNow()})
	if m.logger != nil {
		m.logger.Printf("mock provider: sent to=%s len=%d", req.To, len(req.Body))
	}
	return &ProviderSendResult{
		ProviderMessageID: fmt.Sprintf("mock-%d", len(m.sent)),
		Status:            m.status,
	}, nil
}

// SentMessages returns a copy of all accepted messages
func (m *MockMessagingProvider) SentMessages() []MockProviderMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockProviderMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Clear drops the recorded messages
func (m *MockMessagingProvider) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
