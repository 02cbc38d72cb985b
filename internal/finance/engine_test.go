package finance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/store"
)

var fixedNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type memoryCache struct {
	items       map[string]domain.FinancialSummary
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]domain.FinancialSummary{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (*domain.FinancialSummary, bool, error) {
	v, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value *domain.FinancialSummary, _ time.Duration) error {
	c.items[key] = *value
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context) error {
	c.items = map[string]domain.FinancialSummary{}
	c.invalidated++
	return nil
}

func newTestEngine(c *memoryCache) *Engine {
	if c == nil {
		return NewEngine(nil, time.Minute).WithClock(func() time.Time { return fixedNow })
	}
	return NewEngine(c, time.Minute).WithClock(func() time.Time { return fixedNow })
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func sale(name string, qty int, total string, purchaseAtTime string, at time.Time) domain.SaleRecord {
	return domain.SaleRecord{
		ID:                  fmt.Sprintf("sale-%s-%d", name, at.UnixNano()),
		MedicineName:        name,
		Quantity:            qty,
		TotalPrice:          dec(total),
		Date:                at,
		PurchasePriceAtTime: dec(purchaseAtTime),
	}
}

func TestComputeAppliesReturnsAndDamagedToProfit(t *testing.T) {
	engine := newTestEngine(nil)
	window, err := engine.Window("monthly", "", "")
	require.NoError(t, err)

	at := fixedNow.Add(-time.Hour)
	summary := engine.Compute(window, Inputs{
		Sales: []domain.SaleRecord{sale("ParacetamolX", 10, "50", "3", at)},
		Adjustments: []domain.AdjustmentRecord{
			{Kind: domain.AdjustmentReturn, MedicineName: "ParacetamolX", Quantity: 5, PurchasePrice: dec("3"), Date: at},
			{Kind: domain.AdjustmentDamaged, MedicineName: "ParacetamolX", Quantity: 3, PurchasePrice: dec("3"), Date: at},
		},
		Catalog: []domain.Medicine{{Name: "ParacetamolX", Quantity: 92, PurchasePrice: dec("3")}},
	})

	totals := summary.Summary
	assertDecimal(t, "50", totals.TotalRevenue)
	assertDecimal(t, "30", totals.TotalCost)
	assertDecimal(t, "20", totals.GrossProfit)
	assertDecimal(t, "15", totals.ReturnsValue)
	assertDecimal(t, "9", totals.DamagedValue)
	assertDecimal(t, "26", totals.AdjustedProfit)
	assertDecimal(t, "52", totals.ProfitMargin)
	assertDecimal(t, "26", totals.NetProfit)
	assertDecimal(t, "50", totals.AverageTransaction)
	assert.Equal(t, 1, totals.TotalSales)
	assertDecimal(t, "276", summary.Expenses.Inventory)
	assertDecimal(t, "0", summary.Expenses.Total)
	assert.True(t, summary.HistoricalPricesUsed)
	assert.Empty(t, summary.UnpricedProducts)
	assert.Equal(t, "Monthly", summary.PeriodLabel)
}

func TestComputeFallsBackToCatalogPriceForLegacySales(t *testing.T) {
	engine := newTestEngine(nil)
	window, err := engine.Window("weekly", "", "")
	require.NoError(t, err)

	at := fixedNow.Add(-24 * time.Hour)
	summary := engine.Compute(window, Inputs{
		Sales: []domain.SaleRecord{
			sale("Amoxicillin", 2, "20", "0", at),
			sale("Discontinued", 1, "8", "0", at),
		},
		Catalog: []domain.Medicine{{Name: "Amoxicillin", PurchasePrice: dec("6")}},
	})

	assertDecimal(t, "12", summary.Summary.TotalCost)
	assertDecimal(t, "16", summary.Summary.GrossProfit)
	assert.False(t, summary.HistoricalPricesUsed)
	assert.Equal(t, []string{"Discontinued"}, summary.UnpricedProducts)
}

func TestComputeIsZeroSafe(t *testing.T) {
	engine := newTestEngine(nil)
	window, err := engine.Window("daily", "", "")
	require.NoError(t, err)

	summary := engine.Compute(window, Inputs{})

	assert.True(t, summary.Summary.TotalRevenue.IsZero())
	assert.True(t, summary.Summary.ProfitMargin.IsZero())
	assert.True(t, summary.Summary.AverageTransaction.IsZero())
	assert.Equal(t, 0, summary.Summary.TotalSales)
	assert.Empty(t, summary.ProductPerformance)
	assert.Empty(t, summary.TopProducts)
	assert.Empty(t, summary.MonthlyData)
}

func TestComputeFiltersByWindow(t *testing.T) {
	engine := newTestEngine(nil)
	window, err := engine.Window("daily", "", "")
	require.NoError(t, err)

	old := fixedNow.AddDate(0, 0, -3)
	summary := engine.Compute(window, Inputs{
		Sales: []domain.SaleRecord{
			sale("Ibuprofen", 1, "10", "4", fixedNow.Add(-time.Hour)),
			sale("Ibuprofen", 5, "50", "4", old),
		},
		Adjustments: []domain.AdjustmentRecord{
			{Kind: domain.AdjustmentDamaged, Quantity: 2, PurchasePrice: dec("4"), Date: old},
		},
	})

	assert.Equal(t, 1, summary.Summary.TotalSales)
	assertDecimal(t, "10", summary.Summary.TotalRevenue)
	assert.True(t, summary.Summary.DamagedValue.IsZero())
	require.Len(t, summary.MonthlyData, 1)
	assert.Equal(t, 2, summary.MonthlyData[0].Sales)
}

func TestComputeRanksProductsByProfit(t *testing.T) {
	engine := newTestEngine(nil)
	window, err := engine.Window("yearly", "", "")
	require.NoError(t, err)

	at := fixedNow.Add(-time.Hour)
	var sales []domain.SaleRecord
	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("Med-%d", i)
		sales = append(sales, sale(name, 1, fmt.Sprintf("%d", 10+i), "5", at))
	}
	summary := engine.Compute(window, Inputs{Sales: sales})

	require.Len(t, summary.ProductPerformance, 7)
	require.Len(t, summary.TopProducts, 5)
	assert.Equal(t, "Med-6", summary.TopProducts[0].Name)
	assertDecimal(t, "11", summary.TopProducts[0].Profit)
	assertDecimal(t, "68.75", summary.TopProducts[0].Margin)
	assert.Equal(t, "Med-0", summary.ProductPerformance[6].Name)
}

func TestMonthlySeriesKeepsLastTwelveMonths(t *testing.T) {
	engine := newTestEngine(nil)
	window, err := engine.Window("monthly", "", "")
	require.NoError(t, err)

	var sales []domain.SaleRecord
	for i := 0; i < 14; i++ {
		sales = append(sales, sale("Cetirizine", 1, "4", "2", fixedNow.AddDate(0, -i, 0)))
	}
	summary := engine.Compute(window, Inputs{Sales: sales})

	require.Len(t, summary.MonthlyData, 12)
	assert.Equal(t, "2025-04", summary.MonthlyData[0].Month)
	assert.Equal(t, "2026-03", summary.MonthlyData[11].Month)
	assertDecimal(t, "2", summary.MonthlyData[11].Profit)
}

func TestWindowResolvesPeriods(t *testing.T) {
	engine := newTestEngine(nil)

	daily, err := engine.Window("daily", "", "")
	require.NoError(t, err)
	assert.Equal(t, fixedNow.AddDate(0, 0, -1), daily.From)
	assert.Equal(t, fixedNow, daily.To)

	fallback, err := engine.Window("fortnightly", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.PeriodMonthly, fallback.Period)
	assert.Equal(t, fixedNow.AddDate(0, -1, 0), fallback.From)

	custom, err := engine.Window("custom", "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), custom.From)
	assert.Equal(t, time.Date(2026, 1, 31, 23, 59, 59, 999999999, time.UTC), custom.To)
	assert.Equal(t, "2026-01-01 to 2026-01-31", periodLabel(custom))

	_, err = engine.Window("custom", "yesterday", "2026-01-31")
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = engine.Window("custom", "2026-02-01", "2026-01-31")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestReportCachesRollingPeriodsOnly(t *testing.T) {
	c := newMemoryCache()
	engine := newTestEngine(c)
	ctx := context.Background()

	loads := 0
	load := func(context.Context) (Inputs, error) {
		loads++
		return Inputs{Sales: []domain.SaleRecord{sale("Loratadine", 1, "9", "4", fixedNow.Add(-time.Minute))}}, nil
	}

	monthly, err := engine.Window("monthly", "", "")
	require.NoError(t, err)
	first, err := engine.Report(ctx, monthly, load)
	require.NoError(t, err)
	second, err := engine.Report(ctx, monthly, load)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
	assertDecimal(t, "9", second.Summary.TotalRevenue)
	assert.Equal(t, first.PeriodLabel, second.PeriodLabel)

	engine.Invalidate(ctx)
	_, err = engine.Report(ctx, monthly, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 1, c.invalidated)

	custom, err := engine.Window("custom", "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	_, err = engine.Report(ctx, custom, load)
	require.NoError(t, err)
	_, err = engine.Report(ctx, custom, load)
	require.NoError(t, err)
	assert.Equal(t, 4, loads)
}

func TestReportLoadedAcrossInvalidationIsNotCached(t *testing.T) {
	c := newMemoryCache()
	engine := newTestEngine(c)
	ctx := context.Background()
	window, err := engine.Window("weekly", "", "")
	require.NoError(t, err)

	loads := 0
	revenue := "9"
	load := func(context.Context) (Inputs, error) {
		loads++
		in := Inputs{Sales: []domain.SaleRecord{sale("Loratadine", 1, revenue, "4", fixedNow.Add(-time.Hour))}}
		if loads == 1 {
			// A sale commits while this report is still being computed.
			revenue = "18"
			engine.Invalidate(ctx)
		}
		return in, nil
	}

	stale, err := engine.Report(ctx, window, load)
	require.NoError(t, err)
	assertDecimal(t, "9", stale.Summary.TotalRevenue)
	assert.Empty(t, c.items)

	fresh, err := engine.Report(ctx, window, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assertDecimal(t, "18", fresh.Summary.TotalRevenue)

	_, err = engine.Report(ctx, window, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestReportPropagatesLoadError(t *testing.T) {
	engine := newTestEngine(nil)
	window, err := engine.Window("daily", "", "")
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = engine.Report(context.Background(), window, func(context.Context) (Inputs, error) {
		return Inputs{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestParseLedgerFilterLeavesEmptyBoundsOpen(t *testing.T) {
	filter, err := ParseLedgerFilter("", "2026-01-31", 20)
	require.NoError(t, err)
	assert.True(t, filter.From.IsZero())
	assert.Equal(t, time.Date(2026, 1, 31, 23, 59, 59, 999999999, time.UTC), filter.To)
	assert.Equal(t, 20, filter.Limit)

	filter, err = ParseLedgerFilter("2026-01-01T08:00:00Z", "", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC), filter.From)
	assert.True(t, filter.To.IsZero())

	_, err = ParseLedgerFilter("soon", "", 0)
	assert.ErrorIs(t, err, store.ErrValidation)
}
