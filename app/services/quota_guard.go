package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/orochi-outreach/models"
	"github.com/amirphl/orochi-outreach/repository"
	"github.com/amirphl/orochi-outreach/utils"
	"github.com/redis/go-redis/v9"
)

var (
	ErrQuotaExceeded  = errors.New("monthly message quota exceeded")
	ErrTenantNotFound = errors.New("tenant not found")
)

// QuotaCounter stores per-tenant monthly message usage
type QuotaCounter interface {
	Usage(ctx context.Context, tenant *models.Tenant, period string) (int64, error)
	Increment(ctx context.Context, tenantID uint, period string) error
}

// QuotaGuard enforces a tenant's monthly message limit.
// Check and Consume are not atomic together; concurrent sends may overshoot slightly.
type QuotaGuard interface {
	Check(ctx context.Context, tenantID uint) error
	Consume(ctx context.Context, tenantID uint) error
}

// QuotaGuardImpl implements QuotaGuard
type QuotaGuardImpl struct {
	tenantRepo repository.TenantRepository
	counter    QuotaCounter
	now        func() time.Time
}

func NewQuotaGuard(tenantRepo repository.TenantRepository, counter QuotaCounter) *QuotaGuardImpl {
	return &QuotaGuardImpl{
		tenantRepo: tenantRepo,
		counter:    counter,
		now:        utils.UTCNow,
	}
}

// WithClock overrides the time source used to pick the quota period
func (g *QuotaGuardImpl) WithClock(now func() time.Time) *QuotaGuardImpl {
	g.now = now
	return g
}

func (g *QuotaGuardImpl) Check(ctx context.Context, tenantID uint) error {
	tenant, err := g.tenantRepo.ByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}
	if tenant == nil {
		return ErrTenantNotFound
	}
	if tenant.MonthlyMessageLimit <= 0 {
		return nil
	}

	used, err := g.counter.Usage(ctx, tenant, utils.QuotaPeriod(g.now()))
	if err != nil {
		return fmt.Errorf("failed to read quota usage of tenant %d: %w", tenantID, err)
	}
	if used >= tenant.MonthlyMessageLimit {
		return ErrQuotaExceeded
	}
	return nil
}

func (g *QuotaGuardImpl) Consume(ctx context.Context, tenantID uint) error {
	if err := g.counter.Increment(ctx, tenantID, utils.QuotaPeriod(g.now())); err != nil {
		return fmt.Errorf("failed to increment quota usage of tenant %d: %w", tenantID, err)
	}
	return nil
}

// DBQuotaCounter keeps usage on the tenants row
type DBQuotaCounter struct {
	tenantRepo repository.TenantRepository
}

func NewDBQuotaCounter(tenantRepo repository.TenantRepository) *DBQuotaCounter {
	return &DBQuotaCounter{tenantRepo: tenantRepo}
}

func (c *DBQuotaCounter) Usage(_ context.Context, tenant *models.Tenant, period string) (int64, error) {
	return tenant.UsageIn(period), nil
}

func (c *DBQuotaCounter) Increment(ctx context.Context, tenantID uint, period string) error {
	return c.tenantRepo.IncrementMonthlyCounter(ctx, tenantID, period)
}

// RedisQuotaCounter keeps usage in redis under one key per tenant and month
type RedisQuotaCounter struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisQuotaCounter(client redis.UniversalClient, keyPrefix string) *RedisQuotaCounter {
	if keyPrefix == "" {
		keyPrefix = "quota"
	}
	return &RedisQuotaCounter{client: client, keyPrefix: keyPrefix}
}

func (c *RedisQuotaCounter) key(tenantID uint, period string) string {
	return fmt.Sprintf("%s:%d:%s", c.keyPrefix, tenantID, period)
}

func (c *RedisQuotaCounter) Usage(ctx context.Context, tenant *models.Tenant, period string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(tenant.ID, period)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *RedisQuotaCounter) Increment(ctx context.Context, tenantID uint, period string) error {
	start, err := time.Parse(utils.QuotaPeriodLayout, period)
	if err != nil {
		return fmt.Errorf("invalid quota period %q: %w", period, err)
	}
	key := c.key(tenantID, period)

	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	// keep the key one day past the end of its month
	pipe.ExpireAt(ctx, key, utils.EndOfMonth(start).Add(24*time.Hour))
	_, err = pipe.Exec(ctx)
	return err
}
