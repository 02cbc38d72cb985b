package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleSeller     = "seller"
)

const (
	AdjustmentReturn  = "return"
	AdjustmentDamaged = "damaged"
)

type Medicine struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Manufacturer   string          `json:"manufacturer"`
	ProductionDate time.Time       `json:"production_date"`
	ExpiryDate     time.Time       `json:"expiry_date"`
	Quantity       int             `json:"quantity"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	SupplierName   string          `json:"supplier_name"`
	SupplierPhone  string          `json:"supplier_phone"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ShelfMedicine is the catalog view handed to sellers: no purchase price.
type ShelfMedicine struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Manufacturer string          `json:"manufacturer"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	Quantity     int             `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

func (m Medicine) Shelf() ShelfMedicine {
	return ShelfMedicine{
		ID:           m.ID,
		Name:         m.Name,
		Category:     m.Category,
		Manufacturer: m.Manufacturer,
		ExpiryDate:   m.ExpiryDate,
		Quantity:     m.Quantity,
		SellingPrice: m.SellingPrice,
	}
}

type MedicineCreateRequest struct {
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Manufacturer   string          `json:"manufacturer"`
	ProductionDate string          `json:"production_date"`
	ExpiryDate     string          `json:"expiry_date"`
	Quantity       int             `json:"quantity"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	SupplierName   string          `json:"supplier_name"`
	SupplierPhone  string          `json:"supplier_phone"`
}

type MedicineUpdateRequest struct {
	Name           *string          `json:"name,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Manufacturer   *string          `json:"manufacturer,omitempty"`
	ProductionDate *string          `json:"production_date,omitempty"`
	ExpiryDate     *string          `json:"expiry_date,omitempty"`
	Quantity       *int             `json:"quantity,omitempty"`
	PurchasePrice  *decimal.Decimal `json:"purchase_price,omitempty"`
	SellingPrice   *decimal.Decimal `json:"selling_price,omitempty"`
	SupplierName   *string          `json:"supplier_name,omitempty"`
	SupplierPhone  *string          `json:"supplier_phone,omitempty"`
}

// StockEntry mirrors the stock-relevant fields of a Medicine.
type StockEntry struct {
	ID            string          `json:"id"`
	MedicineID    string          `json:"medicine_id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Quantity      int             `json:"quantity"`
	ExpiryDate    time.Time       `json:"expiry_date"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StockEntryFor builds the mirror row for m.
func StockEntryFor(m Medicine, id string) StockEntry {
	return StockEntry{
		ID:            id,
		MedicineID:    m.ID,
		Name:          m.Name,
		Category:      m.Category,
		Quantity:      m.Quantity,
		ExpiryDate:    m.ExpiryDate,
		PurchasePrice: m.PurchasePrice,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type StockDrift struct {
	MedicineID       string `json:"medicine_id"`
	Name             string `json:"name"`
	MedicineQuantity int    `json:"medicine_quantity"`
	StockQuantity    int    `json:"stock_quantity"`
	MissingEntry     bool   `json:"missing_entry"`
	OrphanEntry      bool   `json:"orphan_entry"`
}

type StockConsistencyReport struct {
	Checked    int          `json:"checked"`
	Consistent bool         `json:"consistent"`
	Drift      []StockDrift `json:"drift"`
}

// SaleRecord is an immutable ledger row. Price fields are copies taken
// when the sale committed.
type SaleRecord struct {
	ID                  string          `json:"id"`
	MedicineID          string          `json:"medicine_id"`
	MedicineName        string          `json:"medicine_name"`
	Quantity            int             `json:"quantity"`
	TotalPrice          decimal.Decimal `json:"total_price"`
	Seller              string          `json:"seller"`
	Date                time.Time       `json:"date"`
	SalePriceAtTime     decimal.Decimal `json:"sale_price_at_time"`
	PurchasePriceAtTime decimal.Decimal `json:"purchase_price_at_time"`
	ProfitAtTime        decimal.Decimal `json:"profit_at_time"`
}

// HasSnapshot reports whether the record carries a purchase price snapshot.
// Rows imported from before snapshots existed have a zero value.
func (s SaleRecord) HasSnapshot() bool {
	return s.PurchasePriceAtTime.IsPositive()
}

// NewSaleRecord snapshots m's prices into a ledger row. A nil unitPrice
// uses the current selling price.
func NewSaleRecord(id string, m Medicine, qty int, unitPrice *decimal.Decimal, seller string, at time.Time) SaleRecord {
	unit := m.SellingPrice
	if unitPrice != nil {
		unit = *unitPrice
	}
	q := decimal.NewFromInt(int64(qty))
	return SaleRecord{
		ID:                  id,
		MedicineID:          m.ID,
		MedicineName:        m.Name,
		Quantity:            qty,
		TotalPrice:          unit.Mul(q),
		Seller:              seller,
		Date:                at,
		SalePriceAtTime:     unit,
		PurchasePriceAtTime: m.PurchasePrice,
		ProfitAtTime:        unit.Sub(m.PurchasePrice).Mul(q),
	}
}

// SaleLine references a medicine by id, or by name when id is empty.
type SaleLine struct {
	MedicineID   string           `json:"medicine_id"`
	MedicineName string           `json:"name"`
	Quantity     int              `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"selling_price,omitempty"`
}

type SaleRequest struct {
	Items  []SaleLine `json:"items"`
	Seller string     `json:"seller"`
}

type SaleResponse struct {
	Sales       []SaleRecord    `json:"sales"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TotalProfit decimal.Decimal `json:"total_profit"`
}

// CounterSale is the ledger view handed to sellers: no cost or profit.
type CounterSale struct {
	ID              string          `json:"id"`
	MedicineID      string          `json:"medicine_id"`
	MedicineName    string          `json:"medicine_name"`
	Quantity        int             `json:"quantity"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Seller          string          `json:"seller"`
	Date            time.Time       `json:"date"`
	SalePriceAtTime decimal.Decimal `json:"sale_price_at_time"`
}

func (s SaleRecord) Counter() CounterSale {
	return CounterSale{
		ID:              s.ID,
		MedicineID:      s.MedicineID,
		MedicineName:    s.MedicineName,
		Quantity:        s.Quantity,
		TotalPrice:      s.TotalPrice,
		Seller:          s.Seller,
		Date:            s.Date,
		SalePriceAtTime: s.SalePriceAtTime,
	}
}

type CounterSaleResponse struct {
	Sales      []CounterSale   `json:"sales"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func (r SaleResponse) Counter() CounterSaleResponse {
	out := CounterSaleResponse{Sales: make([]CounterSale, 0, len(r.Sales)), TotalPrice: r.TotalPrice}
	for _, s := range r.Sales {
		out.Sales = append(out.Sales, s.Counter())
	}
	return out
}

type SaleImportRequest struct {
	Sales []SaleRecord `json:"sales"`
}

type SaleImportResponse struct {
	Imported int `json:"imported"`
}

// AdjustmentRecord is an immutable return or damaged-goods ledger row.
type AdjustmentRecord struct {
	ID            string          `json:"id"`
	MedicineID    string          `json:"medicine_id"`
	MedicineName  string          `json:"medicine_name"`
	Quantity      int             `json:"quantity"`
	Reason        string          `json:"reason"`
	Kind          string          `json:"type"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	RecordedBy    string          `json:"recorded_by"`
	Date          time.Time       `json:"date"`
}

func NewAdjustmentRecord(id string, kind string, m Medicine, qty int, reason string, by string, at time.Time) AdjustmentRecord {
	return AdjustmentRecord{
		ID:            id,
		MedicineID:    m.ID,
		MedicineName:  m.Name,
		Quantity:      qty,
		Reason:        reason,
		Kind:          kind,
		PurchasePrice: m.PurchasePrice,
		SellingPrice:  m.SellingPrice,
		RecordedBy:    by,
		Date:          at,
	}
}

// Delta is the signed quantity change the adjustment applies to stock.
func (a AdjustmentRecord) Delta() int {
	if a.Kind == AdjustmentDamaged {
		return -a.Quantity
	}
	return a.Quantity
}

type AdjustmentRequest struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason"`
}

// LedgerFilter bounds ledger reads. Zero times are open bounds; Limit 0
// means no limit.
type LedgerFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

func (f LedgerFilter) Contains(t time.Time) bool {
	if !f.From.IsZero() && t.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.After(f.To) {
		return false
	}
	return true
}

const (
	NotificationCriticalStock = "critical_stock"
	NotificationLowStock      = "low_stock"
	NotificationExpired       = "expired"
	NotificationExpiryWarning = "expiry_warning"
)

type Notification struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	MedicineID   string    `json:"medicine_id"`
	MedicineName string    `json:"medicine_name"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

type NotificationScanResponse struct {
	Scanned int            `json:"scanned"`
	Created []Notification `json:"created"`
}

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BranchRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserPasswordRequest struct {
	Password string `json:"password"`
}

type UserStatusRequest struct {
	Active bool `json:"active"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
