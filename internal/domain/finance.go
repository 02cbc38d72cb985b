package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
	PeriodCustom  = "custom"
)

type ReportWindow struct {
	Period string    `json:"period"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

func (w ReportWindow) Filter() LedgerFilter {
	return LedgerFilter{From: w.From, To: w.To}
}

type FinancialTotals struct {
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	GrossProfit        decimal.Decimal `json:"gross_profit"`
	ReturnsValue       decimal.Decimal `json:"returns_value"`
	DamagedValue       decimal.Decimal `json:"damaged_value"`
	AdjustedProfit     decimal.Decimal `json:"adjusted_profit"`
	ProfitMargin       decimal.Decimal `json:"profit_margin"`
	NetProfit          decimal.Decimal `json:"net_profit"`
	TotalSales         int             `json:"total_sales"`
	AverageTransaction decimal.Decimal `json:"average_transaction"`
}

type Expenses struct {
	Inventory   decimal.Decimal `json:"inventory"`
	Operational decimal.Decimal `json:"operational"`
	Total       decimal.Decimal `json:"total"`
}

type ProductPerformance struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
	Cost     decimal.Decimal `json:"cost"`
	Profit   decimal.Decimal `json:"profit"`
	Margin   decimal.Decimal `json:"margin"`
}

type MonthlyPoint struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
	Sales   int             `json:"sales"`
}

type FinancialSummary struct {
	Window               ReportWindow         `json:"window"`
	PeriodLabel          string               `json:"period_label"`
	Summary              FinancialTotals      `json:"summary"`
	Expenses             Expenses             `json:"expenses"`
	MonthlyData          []MonthlyPoint       `json:"monthly_data"`
	ProductPerformance   []ProductPerformance `json:"product_performance"`
	TopProducts          []ProductPerformance `json:"top_products"`
	HistoricalPricesUsed bool                 `json:"historical_prices_used"`
	UnpricedProducts     []string             `json:"unpriced_products"`
	GeneratedAt          time.Time            `json:"generated_at"`
}
