package cache

import (
	"context"
	"time"

	"marketcrm/backend/internal/domain"
)

const OverviewKey = "marketcrm:report:overview"

// OverviewCache holds the most recent report overview. Writers invalidate it
// whenever orders, products or customers change.
type OverviewCache interface {
	Get(ctx context.Context, key string) (*domain.ReportOverview, bool, error)
	Set(ctx context.Context, key string, value *domain.ReportOverview, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopOverviewCache struct{}

func (NoopOverviewCache) Get(_ context.Context, _ string) (*domain.ReportOverview, bool, error) {
	return nil, false, nil
}

func (NoopOverviewCache) Set(_ context.Context, _ string, _ *domain.ReportOverview, _ time.Duration) error {
	return nil
}

func (NoopOverviewCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
