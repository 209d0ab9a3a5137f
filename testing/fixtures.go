// Package testing provides test utilities and database setup for testing the campaign engine
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestTenant creates a tenant with the given monthly message limit (0 = unlimited)
func (tf *TestFixtures) CreateTestTenant(monthlyLimit int64) (*models.Tenant, error) {
	tenant := &models.Tenant{
		Name:                fmt.Sprintf("Tenant %d", rand.Intn(1000000)),
		MonthlyMessageLimit: monthlyLimit,
		IsActive:            utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to create test tenant: %w", err)
	}
	return tenant, nil
}

// CreateTestConnection creates a messaging connection in the given state
func (tf *TestFixtures) CreateTestConnection(tenantID uint, status models.ConnectionStatus) (*models.Connection, error) {
	conn := &models.Connection{
		TenantID:   tenantID,
		Name:       "Primary line",
		Provider:   "mock",
		ExternalID: utils.ToPtr(fmt.Sprintf("ext-%d", rand.Intn(1000000))),
		Status:     status,
	}
	if err := tf.DB.DB.Create(conn).Error; err != nil {
		return nil, fmt.Errorf("failed to create test connection: %w", err)
	}
	return conn, nil
}

// CreateTestContact creates a contact with a random phone number
func (tf *TestFixtures) CreateTestContact(tenantID uint, name string) (*models.Contact, error) {
	contact := &models.Contact{
		TenantID:     tenantID,
		Name:         name,
		Phone:        fmt.Sprintf("+1555%07d", rand.Intn(10000000)),
		Email:        utils.ToPtr(fmt.Sprintf("contact.%d@example.com", rand.Intn(1000000))),
		Tags:         models.StringList{"lead"},
		CustomFields: models.CustomFields{"company": "Acme"},
	}
	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateTestContacts creates n contacts named Contact 1..n
func (tf *TestFixtures) CreateTestContacts(tenantID uint, n int) ([]*models.Contact, error) {
	out := make([]*models.Contact, 0, n)
	for i := 1; i <= n; i++ {
		c, err := tf.CreateTestContact(tenantID, fmt.Sprintf("Contact %d", i))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// CreateTestCampaign creates a draft campaign targeting contacts explicitly
func (tf *TestFixtures) CreateTestCampaign(tenantID, connectionID uint, contacts []*models.Contact) (*models.Campaign, error) {
	ids := make([]uint, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	campaign := &models.Campaign{
		TenantID:        tenantID,
		Name:            "Spring promo",
		MessageTemplate: "Hi {first_name}, welcome to {company}",
		ConnectionID:    connectionID,
		Status:          models.CampaignStatusDraft,
		Recurrence:      models.RecurrenceNone,
	}
	if err := campaign.SetSelection(models.ExplicitSelection{ContactIDs: ids}); err != nil {
		return nil, err
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// ScheduleTestCampaign moves a campaign straight to scheduled at startAt
func (tf *TestFixtures) ScheduleTestCampaign(campaign *models.Campaign, startAt time.Time, recurrence models.Recurrence, delaySeconds int) error {
	startAt = startAt.UTC()
	campaign.Status = models.CampaignStatusScheduled
	campaign.StartAt = &startAt
	campaign.NextRunAt = &startAt
	campaign.Recurrence = recurrence
	campaign.DelaySeconds = delaySeconds
	if err := tf.DB.DB.Save(campaign).Error; err != nil {
		return fmt.Errorf("failed to schedule test campaign: %w", err)
	}
	return nil
}

// CreateTestRun creates a running run for the campaign
func (tf *TestFixtures) CreateTestRun(campaign *models.Campaign, scheduledFor time.Time) (*models.CampaignRun, error) {
	run := &models.CampaignRun{
		CampaignID:   campaign.ID,
		TenantID:     campaign.TenantID,
		Status:       models.CampaignRunStatusRunning,
		ScheduledFor: scheduledFor.UTC(),
		StartedAt:    scheduledFor.UTC(),
	}
	if err := tf.DB.DB.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create test run: %w", err)
	}
	return run, nil
}

// CreateTestRecipient creates a scheduled recipient of run for contact
func (tf *TestFixtures) CreateTestRecipient(run *models.CampaignRun, contact *models.Contact, scheduledAt time.Time) (*models.CampaignRecipient, error) {
	contactID := contact.ID
	recipient := &models.CampaignRecipient{
		RunID:       run.ID,
		CampaignID:  run.CampaignID,
		TenantID:    run.TenantID,
		ContactID:   &contactID,
		Phone:       contact.Phone,
		DisplayName: utils.ToPtr(contact.Name),
		Status:      models.CampaignRecipientStatusScheduled,
		ScheduledAt: scheduledAt.UTC(),
	}
	if err := tf.DB.DB.Create(recipient).Error; err != nil {
		return nil, fmt.Errorf("failed to create test recipient: %w", err)
	}
	return recipient, nil
}
