package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSaleRecordSnapshotsCurrentPrices(t *testing.T) {
	med := Medicine{ID: "med-1", Name: "ParacetamolX", PurchasePrice: decimal.NewFromInt(3), SellingPrice: decimal.NewFromInt(5)}
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	sale := NewSaleRecord("sale-1", med, 10, nil, "seller1", at)

	assert.Equal(t, "50", sale.TotalPrice.String())
	assert.Equal(t, "5", sale.SalePriceAtTime.String())
	assert.Equal(t, "3", sale.PurchasePriceAtTime.String())
	assert.Equal(t, "20", sale.ProfitAtTime.String())
	assert.True(t, sale.HasSnapshot())

	med.PurchasePrice = decimal.NewFromInt(4)
	assert.Equal(t, "3", sale.PurchasePriceAtTime.String(), "record must not follow catalog edits")
}

func TestNewSaleRecordUsesUnitPriceOverride(t *testing.T) {
	med := Medicine{ID: "med-1", Name: "ParacetamolX", PurchasePrice: decimal.NewFromInt(3), SellingPrice: decimal.NewFromInt(5)}
	override := decimal.RequireFromString("4.5")

	sale := NewSaleRecord("sale-1", med, 2, &override, "seller1", time.Now())

	assert.Equal(t, "9", sale.TotalPrice.String())
	assert.Equal(t, "3", sale.ProfitAtTime.String())
}

func TestAdjustmentDelta(t *testing.T) {
	med := Medicine{ID: "med-1", Name: "ParacetamolX"}
	ret := NewAdjustmentRecord("adj-1", AdjustmentReturn, med, 5, "customer return", "admin", time.Now())
	dmg := NewAdjustmentRecord("adj-2", AdjustmentDamaged, med, 3, "broken", "admin", time.Now())

	assert.Equal(t, 5, ret.Delta())
	assert.Equal(t, -3, dmg.Delta())
}

func TestLedgerFilterBoundsAreInclusive(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	f := LedgerFilter{From: from, To: to}

	assert.True(t, f.Contains(from))
	assert.True(t, f.Contains(to))
	assert.False(t, f.Contains(from.Add(-time.Second)))
	assert.False(t, f.Contains(to.Add(time.Second)))
	assert.True(t, LedgerFilter{}.Contains(time.Now()))
}

func TestDecimalsEncodeAsJSONNumbers(t *testing.T) {
	payload, err := json.Marshal(Medicine{PurchasePrice: decimal.RequireFromString("3.25")})
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"purchase_price":3.25`)
}

func TestShelfDropsPurchasePrice(t *testing.T) {
	med := Medicine{ID: "med-1", Name: "ParacetamolX", PurchasePrice: decimal.NewFromInt(3), SellingPrice: decimal.NewFromInt(5)}

	payload, err := json.Marshal(med.Shelf())
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "purchase_price")
	assert.Contains(t, string(payload), `"selling_price":5`)
}

func TestCategories(t *testing.T) {
	assert.Len(t, Categories, 18)
	assert.True(t, IsCategory("Antibiotics"))
	assert.False(t, IsCategory("antibiotics"))
}
