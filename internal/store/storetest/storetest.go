// Package storetest holds behaviour every store.Repository backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/store"
)

type Factory func(t *testing.T) store.Repository

func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo store.Repository)
	}{
		{"CreateMedicineCreatesMirror", testCreateMedicineCreatesMirror},
		{"DuplicateMedicineNameConflicts", testDuplicateMedicineName},
		{"UpdateMedicineRewritesMirror", testUpdateMedicineRewritesMirror},
		{"DeleteMedicineRemovesMirrorKeepsLedger", testDeleteMedicine},
		{"RecordSalesSnapshotsAndDecrements", testRecordSales},
		{"RecordSalesResolvesByName", testRecordSalesByName},
		{"RecordSalesIsAllOrNothing", testRecordSalesAllOrNothing},
		{"RecordSalesChecksCumulativeQuantity", testRecordSalesCumulative},
		{"RecordSalesUnknownMedicine", testRecordSalesUnknownMedicine},
		{"ConcurrentSalesNeverOversell", testConcurrentSales},
		{"FractionalPricesKeepEveryDigit", testFractionalPrices},
		{"RecordAdjustments", testRecordAdjustments},
		{"DamagedBeyondStockRejected", testDamagedBeyondStock},
		{"AdjustmentValidation", testAdjustmentValidation},
		{"ImportAndFilterSales", testImportAndFilterSales},
		{"Notifications", testNotifications},
		{"Branches", testBranches},
		{"Users", testUsers},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newRepo(t))
		})
	}
}

var seq atomic.Int64

func nextID(prefix string) func() string {
	return func() string {
		return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
	}
}

func newMedicine(t *testing.T, repo store.Repository, name string, qty int, purchase, selling int64) domain.Medicine {
	t.Helper()
	created, err := repo.CreateMedicine(context.Background(), domain.Medicine{
		Name:           name,
		Category:       "Pain Relievers",
		Manufacturer:   "Test Labs",
		ProductionDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		Quantity:       qty,
		PurchasePrice:  decimal.NewFromInt(purchase),
		SellingPrice:   decimal.NewFromInt(selling),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	return *created
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s got %s", want, got.String())
}

// AssertMirrored fails unless every medicine has exactly one stock entry
// with the same quantity.
func AssertMirrored(t *testing.T, repo store.Repository) {
	t.Helper()
	ctx := context.Background()
	medicines, err := repo.ListMedicines(ctx)
	require.NoError(t, err)
	entries, err := repo.ListStock(ctx)
	require.NoError(t, err)

	require.Len(t, entries, len(medicines))
	byMedicine := make(map[string]domain.StockEntry, len(entries))
	for _, e := range entries {
		byMedicine[e.MedicineID] = e
	}
	for _, m := range medicines {
		e, ok := byMedicine[m.ID]
		if assert.True(t, ok, "missing stock entry for %s", m.Name) {
			assert.Equal(t, m.Quantity, e.Quantity, "quantity drift for %s", m.Name)
		}
	}
}

func quantityOf(t *testing.T, repo store.Repository, id string) int {
	t.Helper()
	m, err := repo.GetMedicine(context.Background(), id)
	require.NoError(t, err)
	return m.Quantity
}

func testCreateMedicineCreatesMirror(t *testing.T, repo store.Repository) {
	med := newMedicine(t, repo, "ParacetamolX", 100, 3, 5)

	entries, err := repo.ListStock(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, med.ID, entries[0].MedicineID)
	assert.Equal(t, "ParacetamolX", entries[0].Name)
	assert.Equal(t, 100, entries[0].Quantity)
	assertDecimal(t, "3", entries[0].PurchasePrice)
}

func testDuplicateMedicineName(t *testing.T, repo store.Repository) {
	newMedicine(t, repo, "ParacetamolX", 10, 3, 5)

	_, err := repo.CreateMedicine(context.Background(), domain.Medicine{
		Name:          "ParacetamolX",
		Category:      "Pain Relievers",
		ExpiryDate:    time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		PurchasePrice: decimal.NewFromInt(1),
		SellingPrice:  decimal.NewFromInt(2),
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func testUpdateMedicineRewritesMirror(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 100, 3, 5)

	med.Name = "ParacetamolX Forte"
	med.Quantity = 40
	med.PurchasePrice = decimal.NewFromInt(4)
	med.ExpiryDate = time.Date(2028, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.UpdateMedicine(ctx, med)
	require.NoError(t, err)

	entries, err := repo.ListStock(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ParacetamolX Forte", entries[0].Name)
	assert.Equal(t, 40, entries[0].Quantity)
	assertDecimal(t, "4", entries[0].PurchasePrice)
	assert.True(t, entries[0].ExpiryDate.Equal(med.ExpiryDate))

	_, err = repo.UpdateMedicine(ctx, domain.Medicine{ID: "med-missing", Name: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteMedicine(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 100, 3, 5)
	other := newMedicine(t, repo, "IbuprofenY", 10, 2, 4)

	_, err := repo.RecordSales(ctx, []domain.SaleLine{{MedicineID: med.ID, Quantity: 2}}, "seller1", time.Now().UTC(), nextID("sale"))
	require.NoError(t, err)

	deleted, err := repo.DeleteMedicine(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, "ParacetamolX", deleted.Name)

	_, err = repo.GetMedicine(ctx, med.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	entries, err := repo.ListStock(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, other.ID, entries[0].MedicineID)

	sales, err := repo.ListSales(ctx, domain.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "ParacetamolX", sales[0].MedicineName)

	_, err = repo.DeleteMedicine(ctx, med.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRecordSales(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 100, 3, 5)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	records, err := repo.RecordSales(ctx, []domain.SaleLine{{MedicineID: med.ID, Quantity: 10}}, "seller1", at, nextID("sale"))
	require.NoError(t, err)
	require.Len(t, records, 1)

	sale := records[0]
	assert.Equal(t, med.ID, sale.MedicineID)
	assert.Equal(t, "ParacetamolX", sale.MedicineName)
	assert.Equal(t, 10, sale.Quantity)
	assert.Equal(t, "seller1", sale.Seller)
	assertDecimal(t, "50", sale.TotalPrice)
	assertDecimal(t, "5", sale.SalePriceAtTime)
	assertDecimal(t, "3", sale.PurchasePriceAtTime)
	assertDecimal(t, "20", sale.ProfitAtTime)

	assert.Equal(t, 90, quantityOf(t, repo, med.ID))
	AssertMirrored(t, repo)

	// Later catalog edits leave the ledger untouched.
	med.Quantity = 90
	med.PurchasePrice = decimal.NewFromInt(4)
	_, err = repo.UpdateMedicine(ctx, med)
	require.NoError(t, err)

	sales, err := repo.ListSales(ctx, domain.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assertDecimal(t, "3", sales[0].PurchasePriceAtTime)
	assertDecimal(t, "20", sales[0].ProfitAtTime)
	assert.True(t, sales[0].Date.Equal(at))
}

func testRecordSalesByName(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 20, 3, 5)
	override := decimal.RequireFromString("4.5")

	records, err := repo.RecordSales(ctx, []domain.SaleLine{{MedicineName: "ParacetamolX", Quantity: 2, UnitPrice: &override}}, "seller1", time.Now().UTC(), nextID("sale"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, med.ID, records[0].MedicineID)
	assertDecimal(t, "9", records[0].TotalPrice)
	assertDecimal(t, "3", records[0].ProfitAtTime)
	assert.Equal(t, 18, quantityOf(t, repo, med.ID))
}

func testRecordSalesAllOrNothing(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	a := newMedicine(t, repo, "ParacetamolX", 100, 3, 5)
	b := newMedicine(t, repo, "IbuprofenY", 2, 2, 4)

	_, err := repo.RecordSales(ctx, []domain.SaleLine{
		{MedicineID: a.ID, Quantity: 10},
		{MedicineID: b.ID, Quantity: 3},
	}, "seller1", time.Now().UTC(), nextID("sale"))
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var lineErr *store.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 1, lineErr.Index)
	assert.Equal(t, b.ID, lineErr.MedicineID)

	assert.Equal(t, 100, quantityOf(t, repo, a.ID))
	assert.Equal(t, 2, quantityOf(t, repo, b.ID))
	AssertMirrored(t, repo)

	sales, err := repo.ListSales(ctx, domain.LedgerFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func testRecordSalesCumulative(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 5, 3, 5)

	_, err := repo.RecordSales(ctx, []domain.SaleLine{
		{MedicineID: med.ID, Quantity: 3},
		{MedicineID: med.ID, Quantity: 3},
	}, "seller1", time.Now().UTC(), nextID("sale"))
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 5, quantityOf(t, repo, med.ID))

	records, err := repo.RecordSales(ctx, []domain.SaleLine{
		{MedicineID: med.ID, Quantity: 3},
		{MedicineID: med.ID, Quantity: 2},
	}, "seller1", time.Now().UTC(), nextID("sale"))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 0, quantityOf(t, repo, med.ID))
	AssertMirrored(t, repo)
}

func testRecordSalesUnknownMedicine(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 5, 3, 5)

	_, err := repo.RecordSales(ctx, []domain.SaleLine{
		{MedicineID: med.ID, Quantity: 1},
		{MedicineName: "Nope", Quantity: 1},
	}, "seller1", time.Now().UTC(), nextID("sale"))
	require.ErrorIs(t, err, store.ErrNotFound)

	var lineErr *store.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 1, lineErr.Index)
	assert.Equal(t, 5, quantityOf(t, repo, med.ID))

	_, err = repo.RecordSales(ctx, []domain.SaleLine{{MedicineID: med.ID, Quantity: 0}}, "seller1", time.Now().UTC(), nextID("sale"))
	assert.ErrorIs(t, err, store.ErrInvalidQuantity)
}

func testConcurrentSales(t *testing.T, repo store.Repository) {
	const stock, buyers = 12, 30
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", stock, 3, 5)

	var (
		wg       sync.WaitGroup
		sold     atomic.Int32
		mu       sync.Mutex
		failures []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.RecordSales(ctx, []domain.SaleLine{{MedicineID: med.ID, Quantity: 1}},
				fmt.Sprintf("seller%d", i), time.Now().UTC(), nextID("sale"))
			if err == nil {
				sold.Add(1)
				return
			}
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(stock), sold.Load())
	require.Len(t, failures, buyers-stock)
	for _, err := range failures {
		assert.ErrorIs(t, err, store.ErrInsufficientStock)
	}
	assert.Equal(t, 0, quantityOf(t, repo, med.ID))
	AssertMirrored(t, repo)

	sales, err := repo.ListSales(ctx, domain.LedgerFilter{})
	require.NoError(t, err)
	assert.Len(t, sales, stock)
}

func testFractionalPrices(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	created, err := repo.CreateMedicine(ctx, domain.Medicine{
		Name:          "Syrup 120ml",
		Category:      "Pediatrics",
		Quantity:      10,
		PurchasePrice: decimal.RequireFromString("1.23456"),
		SellingPrice:  decimal.RequireFromString("2.000001"),
	})
	require.NoError(t, err)

	got, err := repo.GetMedicine(ctx, created.ID)
	require.NoError(t, err)
	assertDecimal(t, "1.23456", got.PurchasePrice)
	assertDecimal(t, "2.000001", got.SellingPrice)

	_, err = repo.RecordSales(ctx, []domain.SaleLine{{MedicineID: created.ID, Quantity: 3}}, "seller1", time.Now().UTC(), nextID("sale"))
	require.NoError(t, err)
	sales, err := repo.ListSales(ctx, domain.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assertDecimal(t, "1.23456", sales[0].PurchasePriceAtTime)
	assertDecimal(t, "6.000003", sales[0].TotalPrice)
	assertDecimal(t, "2.296323", sales[0].ProfitAtTime)
}

func testRecordAdjustments(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 100, 3, 5)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	ret, err := repo.RecordAdjustment(ctx, domain.AdjustmentReturn, domain.AdjustmentRequest{MedicineID: med.ID, Quantity: 5, Reason: "customer return"}, "admin", at, "adj-ret-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AdjustmentReturn, ret.Kind)
	assert.Equal(t, "ParacetamolX", ret.MedicineName)
	assertDecimal(t, "3", ret.PurchasePrice)
	assertDecimal(t, "5", ret.SellingPrice)
	assert.Equal(t, 105, quantityOf(t, repo, med.ID))

	dmg, err := repo.RecordAdjustment(ctx, domain.AdjustmentDamaged, domain.AdjustmentRequest{MedicineID: med.ID, Quantity: 3, Reason: "broken"}, "admin", at.Add(time.Minute), "adj-dmg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AdjustmentDamaged, dmg.Kind)
	assert.Equal(t, 102, quantityOf(t, repo, med.ID))
	AssertMirrored(t, repo)

	returns, err := repo.ListAdjustments(ctx, domain.AdjustmentReturn, domain.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, "adj-ret-1", returns[0].ID)

	all, err := repo.ListAdjustments(ctx, "", domain.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "adj-dmg-1", all[0].ID, "newest first")

	_, err = repo.RecordAdjustment(ctx, domain.AdjustmentReturn, domain.AdjustmentRequest{MedicineID: "med-missing", Quantity: 1}, "admin", at, "adj-x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDamagedBeyondStock(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 2, 3, 5)

	_, err := repo.RecordAdjustment(ctx, domain.AdjustmentDamaged, domain.AdjustmentRequest{MedicineID: med.ID, Quantity: 3}, "admin", time.Now().UTC(), "adj-dmg")
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Equal(t, 2, quantityOf(t, repo, med.ID))
	AssertMirrored(t, repo)

	records, err := repo.ListAdjustments(ctx, "", domain.LedgerFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func testAdjustmentValidation(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	med := newMedicine(t, repo, "ParacetamolX", 2, 3, 5)

	_, err := repo.RecordAdjustment(ctx, domain.AdjustmentReturn, domain.AdjustmentRequest{MedicineID: med.ID, Quantity: 0}, "admin", time.Now().UTC(), "adj-a")
	assert.ErrorIs(t, err, store.ErrInvalidQuantity)
	_, err = repo.RecordAdjustment(ctx, domain.AdjustmentDamaged, domain.AdjustmentRequest{MedicineID: med.ID, Quantity: -1}, "admin", time.Now().UTC(), "adj-b")
	assert.ErrorIs(t, err, store.ErrInvalidQuantity)
	_, err = repo.RecordAdjustment(ctx, "lost", domain.AdjustmentRequest{MedicineID: med.ID, Quantity: 1}, "admin", time.Now().UTC(), "adj-c")
	assert.ErrorIs(t, err, store.ErrValidation)
	assert.Equal(t, 2, quantityOf(t, repo, med.ID))
}

func testImportAndFilterSales(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	jan := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 15, 9, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

	n, err := repo.ImportSales(ctx, []domain.SaleRecord{
		{ID: "legacy-1", MedicineName: "OldMed", Quantity: 2, TotalPrice: decimal.NewFromInt(10), Seller: "legacy", Date: jan},
		{ID: "legacy-2", MedicineName: "OldMed", Quantity: 1, TotalPrice: decimal.NewFromInt(5), Seller: "legacy", Date: feb},
		{ID: "legacy-3", MedicineName: "OldMed", Quantity: 4, TotalPrice: decimal.NewFromInt(20), Seller: "legacy", Date: mar},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := repo.ListSales(ctx, domain.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "legacy-3", all[0].ID)
	assert.False(t, all[0].HasSnapshot())

	window, err := repo.ListSales(ctx, domain.LedgerFilter{From: feb, To: mar})
	require.NoError(t, err)
	require.Len(t, window, 2, "bounds are inclusive")

	limited, err := repo.ListSales(ctx, domain.LedgerFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "legacy-3", limited[0].ID)

	_, err = repo.ImportSales(ctx, []domain.SaleRecord{{ID: "bad", Quantity: 0, MedicineName: "OldMed"}})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func testNotifications(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	n := domain.Notification{ID: "ntf-1", Type: domain.NotificationLowStock, MedicineID: "med-1", MedicineName: "ParacetamolX", Message: "low", CreatedAt: time.Now().UTC()}

	created, err := repo.CreateNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)

	n.ID = "ntf-2"
	created, err = repo.CreateNotification(ctx, n)
	require.NoError(t, err)
	assert.False(t, created, "same type and medicine is deduplicated")

	n.ID = "ntf-3"
	n.Type = domain.NotificationExpired
	created, err = repo.CreateNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)

	list, err := repo.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, repo.DeleteNotification(ctx, "ntf-1"))
	assert.ErrorIs(t, repo.DeleteNotification(ctx, "ntf-1"), store.ErrNotFound)
}

func testBranches(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	created, err := repo.CreateBranch(ctx, domain.Branch{ID: "br-1", Name: "Main", Address: "1 High St", Phone: "555"})
	require.NoError(t, err)
	assert.Equal(t, "Main", created.Name)

	created.Name = "Main Street"
	updated, err := repo.UpdateBranch(ctx, *created)
	require.NoError(t, err)
	assert.Equal(t, "Main Street", updated.Name)

	list, err := repo.ListBranches(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Main Street", list[0].Name)

	require.NoError(t, repo.DeleteBranch(ctx, "br-1"))
	assert.ErrorIs(t, repo.DeleteBranch(ctx, "br-1"), store.ErrNotFound)
	_, err = repo.UpdateBranch(ctx, domain.Branch{ID: "br-1", Name: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUsers(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	user := domain.UserAccount{Username: "NewPharm", Password: "$2a$10$hash", Role: domain.RolePharmacist, Active: true}

	require.NoError(t, repo.CreateUser(ctx, user))
	assert.ErrorIs(t, repo.CreateUser(ctx, user), store.ErrConflict)

	require.NoError(t, repo.UpdateUserPassword(ctx, "newpharm", "$2a$10$other"))
	require.NoError(t, repo.SetUserActive(ctx, "newpharm", false))
	assert.ErrorIs(t, repo.SetUserActive(ctx, "ghost", false), store.ErrNotFound)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "newpharm" {
			found = &users[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "$2a$10$other", found.Password)
	assert.Equal(t, domain.RolePharmacist, found.Role)
	assert.False(t, found.Active)
}
