package finance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy/backend/internal/cache"
	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/logger"
	"pharmacy/backend/internal/store"
)

const (
	monthlySeriesLength = 12
	topProductsLength   = 5
)

var hundred = decimal.NewFromInt(100)

// Inputs is everything a report reads. Sales and Adjustments may cover
// more than the window; Compute filters them.
type Inputs struct {
	Sales       []domain.SaleRecord
	Adjustments []domain.AdjustmentRecord
	Catalog     []domain.Medicine
}

type Loader func(ctx context.Context) (Inputs, error)

type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
	now      func() time.Time
	// generation counts invalidations; a report loaded across one is not cached.
	generation atomic.Uint64
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Window resolves a period name into concrete bounds. Rolling periods end
// now; custom needs from and to, and a date-only to covers the whole day.
// Unknown periods fall back to monthly.
func (e *Engine) Window(period string, from string, to string) (domain.ReportWindow, error) {
	now := e.now()
	period = strings.ToLower(strings.TrimSpace(period))

	switch period {
	case domain.PeriodDaily:
		return domain.ReportWindow{Period: period, From: now.AddDate(0, 0, -1), To: now}, nil
	case domain.PeriodWeekly:
		return domain.ReportWindow{Period: period, From: now.AddDate(0, 0, -7), To: now}, nil
	case domain.PeriodYearly:
		return domain.ReportWindow{Period: period, From: now.AddDate(-1, 0, 0), To: now}, nil
	case domain.PeriodCustom:
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return domain.ReportWindow{}, fmt.Errorf("%w: custom period needs from and to", store.ErrValidation)
		}
		filter, err := ParseLedgerFilter(from, to, 0)
		if err != nil {
			return domain.ReportWindow{}, err
		}
		return domain.ReportWindow{Period: period, From: filter.From, To: filter.To}, nil
	default:
		return domain.ReportWindow{Period: domain.PeriodMonthly, From: now.AddDate(0, -1, 0), To: now}, nil
	}
}

// Report serves a cached summary for rolling periods when one is fresh and
// otherwise loads inputs and computes it.
func (e *Engine) Report(ctx context.Context, window domain.ReportWindow, load Loader) (domain.FinancialSummary, error) {
	key := cacheKey(window)
	if key != "" {
		if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			return *cached, nil
		} else if err != nil {
			logger.Logger.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		}
	}

	gen := e.generation.Load()
	in, err := load(ctx)
	if err != nil {
		return domain.FinancialSummary{}, err
	}
	summary := e.Compute(window, in)

	if key != "" && e.generation.Load() == gen {
		if err := e.cache.Set(ctx, key, &summary, e.cacheTTL); err != nil {
			logger.Logger.Warn().Err(err).Str("key", key).Msg("report cache write failed")
		}
	}
	return summary, nil
}

// Invalidate drops cached reports after the ledger or catalog changed.
func (e *Engine) Invalidate(ctx context.Context) {
	e.generation.Add(1)
	if err := e.cache.Invalidate(ctx); err != nil {
		logger.Logger.Warn().Err(err).Msg("report cache invalidation failed")
	}
}

// Compute builds the summary for window. Sale cost prefers the purchase
// price snapshot and falls back to the catalog price of a medicine with the
// same name; sales matching neither cost zero and are listed as unpriced.
func (e *Engine) Compute(window domain.ReportWindow, in Inputs) domain.FinancialSummary {
	prices := catalogPrices(in.Catalog)
	filter := window.Filter()
	unpriced := map[string]struct{}{}

	var totals domain.FinancialTotals
	products := map[string]*domain.ProductPerformance{}
	historical := false
	for _, sale := range in.Sales {
		if !filter.Contains(sale.Date) {
			continue
		}
		cost, priced := saleCost(sale, prices)
		if !priced {
			unpriced[sale.MedicineName] = struct{}{}
		}
		if sale.HasSnapshot() {
			historical = true
		}

		totals.TotalSales++
		totals.TotalRevenue = totals.TotalRevenue.Add(sale.TotalPrice)
		totals.TotalCost = totals.TotalCost.Add(cost)

		p, ok := products[sale.MedicineName]
		if !ok {
			p = &domain.ProductPerformance{Name: sale.MedicineName}
			products[sale.MedicineName] = p
		}
		p.Quantity += sale.Quantity
		p.Revenue = p.Revenue.Add(sale.TotalPrice)
		p.Cost = p.Cost.Add(cost)
	}

	for _, adj := range in.Adjustments {
		if !filter.Contains(adj.Date) {
			continue
		}
		value := adj.PurchasePrice.Mul(decimal.NewFromInt(int64(adj.Quantity)))
		switch adj.Kind {
		case domain.AdjustmentReturn:
			totals.ReturnsValue = totals.ReturnsValue.Add(value)
		case domain.AdjustmentDamaged:
			totals.DamagedValue = totals.DamagedValue.Add(value)
		}
	}

	totals.GrossProfit = totals.TotalRevenue.Sub(totals.TotalCost)
	totals.AdjustedProfit = totals.GrossProfit.Add(totals.ReturnsValue).Sub(totals.DamagedValue)
	totals.ProfitMargin = percent(totals.AdjustedProfit, totals.TotalRevenue)
	if totals.TotalSales > 0 {
		totals.AverageTransaction = totals.TotalRevenue.Div(decimal.NewFromInt(int64(totals.TotalSales))).Round(2)
	}

	expenses := inventoryExpenses(in.Catalog)
	totals.NetProfit = totals.AdjustedProfit.Sub(expenses.Total)

	performance := rankProducts(products)
	top := performance
	if len(top) > topProductsLength {
		top = top[:topProductsLength]
	}

	return domain.FinancialSummary{
		Window:               window,
		PeriodLabel:          periodLabel(window),
		Summary:              totals,
		Expenses:             expenses,
		MonthlyData:          monthlySeries(in.Sales, prices),
		ProductPerformance:   performance,
		TopProducts:          append([]domain.ProductPerformance(nil), top...),
		HistoricalPricesUsed: historical,
		UnpricedProducts:     sortedKeys(unpriced),
		GeneratedAt:          e.now(),
	}
}

func catalogPrices(catalog []domain.Medicine) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(catalog))
	for _, m := range catalog {
		if _, seen := prices[m.Name]; !seen {
			prices[m.Name] = m.PurchasePrice
		}
	}
	return prices
}

func saleCost(sale domain.SaleRecord, prices map[string]decimal.Decimal) (decimal.Decimal, bool) {
	qty := decimal.NewFromInt(int64(sale.Quantity))
	if sale.HasSnapshot() {
		return sale.PurchasePriceAtTime.Mul(qty), true
	}
	price, ok := prices[sale.MedicineName]
	if !ok {
		return decimal.Zero, false
	}
	return price.Mul(qty), true
}

func inventoryExpenses(catalog []domain.Medicine) domain.Expenses {
	inventory := decimal.Zero
	for _, m := range catalog {
		inventory = inventory.Add(m.PurchasePrice.Mul(decimal.NewFromInt(int64(m.Quantity))))
	}
	operational := decimal.Zero
	return domain.Expenses{
		Inventory:   inventory,
		Operational: operational,
		Total:       operational,
	}
}

func rankProducts(products map[string]*domain.ProductPerformance) []domain.ProductPerformance {
	ranked := make([]domain.ProductPerformance, 0, len(products))
	for _, p := range products {
		p.Profit = p.Revenue.Sub(p.Cost)
		p.Margin = percent(p.Profit, p.Revenue)
		ranked = append(ranked, *p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if c := ranked[i].Profit.Cmp(ranked[j].Profit); c != 0 {
			return c > 0
		}
		return ranked[i].Name < ranked[j].Name
	})
	return ranked
}

func monthlySeries(sales []domain.SaleRecord, prices map[string]decimal.Decimal) []domain.MonthlyPoint {
	buckets := map[string]*domain.MonthlyPoint{}
	for _, sale := range sales {
		month := sale.Date.UTC().Format("2006-01")
		b, ok := buckets[month]
		if !ok {
			b = &domain.MonthlyPoint{Month: month}
			buckets[month] = b
		}
		cost, _ := saleCost(sale, prices)
		b.Sales++
		b.Revenue = b.Revenue.Add(sale.TotalPrice)
		b.Cost = b.Cost.Add(cost)
		b.Profit = b.Revenue.Sub(b.Cost)
	}

	series := make([]domain.MonthlyPoint, 0, len(buckets))
	for _, b := range buckets {
		series = append(series, *b)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Month < series[j].Month })
	if len(series) > monthlySeriesLength {
		series = series[len(series)-monthlySeriesLength:]
	}
	return series
}

func percent(part decimal.Decimal, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

func periodLabel(window domain.ReportWindow) string {
	switch window.Period {
	case domain.PeriodDaily:
		return "Daily"
	case domain.PeriodWeekly:
		return "Weekly"
	case domain.PeriodMonthly:
		return "Monthly"
	case domain.PeriodYearly:
		return "Yearly"
	default:
		return fmt.Sprintf("%s to %s", window.From.Format("2006-01-02"), window.To.Format("2006-01-02"))
	}
}

func cacheKey(window domain.ReportWindow) string {
	if window.Period == domain.PeriodCustom {
		return ""
	}
	return "finance:" + window.Period
}

// ParseLedgerFilter turns optional from/to query values into a filter.
// Empty values stay open; a date-only to covers the whole day.
func ParseLedgerFilter(from string, to string, limit int) (domain.LedgerFilter, error) {
	filter := domain.LedgerFilter{Limit: limit}
	if strings.TrimSpace(from) != "" {
		start, _, err := parseBound(from)
		if err != nil {
			return domain.LedgerFilter{}, fmt.Errorf("%w: invalid from date", store.ErrValidation)
		}
		filter.From = start
	}
	if strings.TrimSpace(to) != "" {
		end, dateOnly, err := parseBound(to)
		if err != nil {
			return domain.LedgerFilter{}, fmt.Errorf("%w: invalid to date", store.ErrValidation)
		}
		if dateOnly {
			end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		filter.To = end
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return domain.LedgerFilter{}, fmt.Errorf("%w: from must not be after to", store.ErrValidation)
	}
	return filter, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
