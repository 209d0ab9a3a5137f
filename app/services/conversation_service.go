package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
)

// ConversationService resolves the thread a message belongs to
type ConversationService interface {
	GetOrCreate(ctx context.Context, tenantID uint, phone string, connection *models.Connection, contactID *uint) (*models.Conversation, error)
}

// ConversationServiceImpl implements ConversationService
type ConversationServiceImpl struct {
	convRepo repository.ConversationRepository
}

func NewConversationService(convRepo repository.ConversationRepository) ConversationService {
	return &ConversationServiceImpl{convRepo: convRepo}
}

// GetOrCreate returns the conversation for (tenant, connection, phone), creating it when absent.
// A concurrent insert losing the unique constraint falls back to reading the winner's row.
func (s *ConversationServiceImpl) GetOrCreate(ctx context.Context, tenantID uint, phone string, connection *models.Connection, contactID *uint) (*models.Conversation, error) {
	if connection == nil {
		return nil, errors.New("connection is required")
	}
	if phone == "" {
		return nil, errors.New("phone is required")
	}

	existing, err := s.convRepo.ByKey(ctx, tenantID, connection.ID, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	conv := &models.Conversation{
		TenantID:     tenantID,
		ConnectionID: connection.ID,
		Phone:        phone,
		ContactID:    contactID,
	}
	if saveErr := s.convRepo.Save(ctx, conv); saveErr != nil {
		existing, err := s.convRepo.ByKey(ctx, tenantID, connection.ID, phone)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", saveErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("failed to create conversation: %w", saveErr)
		}
		return existing, nil
	}
	return conv, nil
}
