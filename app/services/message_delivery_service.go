package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
)

// MessageDeliveryService hands persisted outbound messages to the provider and
// records the outcome on the message row
type MessageDeliveryService interface {
	Deliver(ctx context.Context, message *models.Message, connection *models.Connection, to string) error
}

// MessageDeliveryServiceImpl implements MessageDeliveryService
type MessageDeliveryServiceImpl struct {
	provider    MessagingProvider
	messageRepo repository.MessageRepository
	convRepo    repository.ConversationRepository
}

func NewMessageDeliveryService(provider MessagingProvider, messageRepo repository.MessageRepository, convRepo repository.ConversationRepository) MessageDeliveryService {
	return &MessageDeliveryServiceImpl{
		provider:    provider,
		messageRepo: messageRepo,
		convRepo:    convRepo,
	}
}

// Deliver sends the message and persists its resulting status. A provider
// failure is recorded on the message, only persistence failures are returned.
func (s *MessageDeliveryServiceImpl) Deliver(ctx context.Context, message *models.Message, connection *models.Connection, to string) error {
	if message == nil || connection == nil {
		return errors.New("message and connection are required")
	}

	req := ProviderSendRequest{
		IdempotencyKey: message.UUID.String(),
		ConnectionID:   connection.ID,
		To:             to,
		Body:           message.Body,
		Kind:           message.Kind,
	}
	if connection.ExternalID != nil {
		req.ExternalID = *connection.ExternalID
	}

	result, sendErr := s.provider.Send(ctx, req)
	now := utils.UTCNow()
	if sendErr != nil {
		message.Status = models.MessageStatusFailed
		message.Error = utils.ToPtr(sendErr.Error())
	} else {
		message.Status = result.Status
		if result.ProviderMessageID != "" {
			message.ProviderMessageID = utils.ToPtr(result.ProviderMessageID)
		}
		if result.Status.Accepted() {
			message.SentAt = &now
		}
	}

	if err := s.messageRepo.Update(ctx, message); err != nil {
		return fmt.Errorf("failed to record delivery of message %d: %w", message.ID, err)
	}
	if err := s.convRepo.TouchLastMessage(ctx, message.ConversationID, now); err != nil {
		return fmt.Errorf("failed to touch conversation %d: %w", message.ConversationID, err)
	}
	return nil
}
