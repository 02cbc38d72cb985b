package cache

import (
	"context"
	"time"

	"pharmacy/backend/internal/domain"
)

// ReportCache stores computed financial summaries by key. Invalidate drops
// every stored report; callers use it after any ledger or catalog change.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.FinancialSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.FinancialSummary, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.FinancialSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.FinancialSummary, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}
