package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
)

// SelectionResolver turns a campaign's selection into the contacts it targets
type SelectionResolver interface {
	Resolve(ctx context.Context, campaign *models.Campaign) ([]*models.Contact, error)
}

// SelectionRegistry maps selection modes to their resolvers
type SelectionRegistry struct {
	mu        sync.RWMutex
	resolvers map[models.SelectionMode]SelectionResolver
	logger    *log.Logger
}

func NewSelectionRegistry(logger *log.Logger) *SelectionRegistry {
	if logger == nil {
		logger = log.Default()
	}
	return &SelectionRegistry{
		resolvers: make(map[models.SelectionMode]SelectionResolver),
		logger:    logger,
	}
}

// NewDefaultSelectionRegistry registers the resolvers available today: explicit contact lists
func NewDefaultSelectionRegistry(contactRepo repository.ContactRepository, logger *log.Logger) *SelectionRegistry {
	r := NewSelectionRegistry(logger)
	r.Register(models.SelectionModeExplicit, NewExplicitSelectionResolver(contactRepo))
	return r
}

func (r *SelectionRegistry) Register(mode models.SelectionMode, resolver SelectionResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[mode] = resolver
}

// Resolve dispatches to the resolver of the campaign's mode.
// Modes without a resolver yield no contacts.
func (r *SelectionRegistry) Resolve(ctx context.Context, campaign *models.Campaign) ([]*models.Contact, error) {
	r.mu.RLock()
	resolver, ok := r.resolvers[campaign.SelectionMode]
	r.mu.RUnlock()
	if !ok {
		r.logger.Printf("scheduler: no resolver for selection mode %q of campaign id=%d, resolving to no recipients", campaign.SelectionMode, campaign.ID)
		return []*models.Contact{}, nil
	}
	return resolver.Resolve(ctx, campaign)
}

// ExplicitSelectionResolver loads the listed contacts of the campaign's tenant
type ExplicitSelectionResolver struct {
	contactRepo repository.ContactRepository
}

func NewExplicitSelectionResolver(contactRepo repository.ContactRepository) *ExplicitSelectionResolver {
	return &ExplicitSelectionResolver{contactRepo: contactRepo}
}

func (r *ExplicitSelectionResolver) Resolve(ctx context.Context, campaign *models.Campaign) ([]*models.Contact, error) {
	sel, err := campaign.Selection()
	if err != nil {
		return nil, err
	}
	explicit, ok := sel.(models.ExplicitSelection)
	if !ok {
		return nil, fmt.Errorf("expected explicit selection, got %s", sel.Mode())
	}

	ids := utils.DedupUint(explicit.ContactIDs)
	if len(ids) == 0 {
		return []*models.Contact{}, nil
	}
	contacts, err := r.contactRepo.ByIDs(ctx, campaign.TenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	// keep the order the ids were listed in
	byID := make(map[uint]*models.Contact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}
	out := make([]*models.Contact, 0, len(contacts))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
