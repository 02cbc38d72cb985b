package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("already exists")
)

// LineError reports which line of a sale batch aborted it.
type LineError struct {
	Index      int
	MedicineID string
	Err        error
}

func (e *LineError) Error() string {
	ref := e.MedicineID
	if ref == "" {
		ref = "unknown medicine"
	}
	return fmt.Sprintf("line %d (%s): %v", e.Index+1, ref, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func lineRef(line domain.SaleLine) string {
	if line.MedicineID != "" {
		return line.MedicineID
	}
	return line.MedicineName
}

// NewLineError wraps err for the line at index.
func NewLineError(index int, line domain.SaleLine, err error) error {
	return &LineError{Index: index, MedicineID: lineRef(line), Err: err}
}

// ValidateSaleLines checks the shape of a batch before any backend touches it.
func ValidateSaleLines(lines []domain.SaleLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: sale has no items", ErrValidation)
	}
	for i, line := range lines {
		if line.MedicineID == "" && line.MedicineName == "" {
			return NewLineError(i, line, fmt.Errorf("%w: medicine reference is required", ErrValidation))
		}
		if line.Quantity <= 0 {
			return NewLineError(i, line, ErrInvalidQuantity)
		}
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return NewLineError(i, line, fmt.Errorf("%w: unit price must not be negative", ErrValidation))
		}
	}
	return nil
}

// ValidateImportedSale checks a historical ledger row before it is stored.
func ValidateImportedSale(index int, r domain.SaleRecord) error {
	switch {
	case strings.TrimSpace(r.MedicineName) == "":
		return fmt.Errorf("%w: row %d: medicine name is required", ErrValidation, index+1)
	case r.Quantity <= 0:
		return fmt.Errorf("%w: row %d: quantity must be positive", ErrValidation, index+1)
	case r.TotalPrice.IsNegative(), r.SalePriceAtTime.IsNegative(), r.PurchasePriceAtTime.IsNegative():
		return fmt.Errorf("%w: row %d: prices must not be negative", ErrValidation, index+1)
	}
	return nil
}

// ValidateAdjustment checks an adjustment before it reaches a backend.
func ValidateAdjustment(kind string, qty int) error {
	if kind != domain.AdjustmentReturn && kind != domain.AdjustmentDamaged {
		return fmt.Errorf("%w: unknown adjustment type %q", ErrValidation, kind)
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Repository keeps the catalog, its stock mirror and the ledger. Every
// method that changes a medicine quantity updates the mirror in the same
// transaction.
type Repository interface {
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
	GetMedicine(ctx context.Context, id string) (*domain.Medicine, error)
	CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	DeleteMedicine(ctx context.Context, id string) (*domain.Medicine, error)

	ListStock(ctx context.Context) ([]domain.StockEntry, error)

	// RecordSales resolves, checks and applies every line or none of them.
	// newID supplies ledger ids so backends do not pick their own scheme.
	RecordSales(ctx context.Context, lines []domain.SaleLine, seller string, at time.Time, newID func() string) ([]domain.SaleRecord, error)
	RecordAdjustment(ctx context.Context, kind string, req domain.AdjustmentRequest, by string, at time.Time, id string) (*domain.AdjustmentRecord, error)
	ImportSales(ctx context.Context, records []domain.SaleRecord) (int, error)
	ListSales(ctx context.Context, filter domain.LedgerFilter) ([]domain.SaleRecord, error)
	ListAdjustments(ctx context.Context, kind string, filter domain.LedgerFilter) ([]domain.AdjustmentRecord, error)

	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	// CreateNotification is a no-op returning false when one of the same
	// type already exists for the medicine.
	CreateNotification(ctx context.Context, n domain.Notification) (bool, error)
	DeleteNotification(ctx context.Context, id string) error

	ListBranches(ctx context.Context) ([]domain.Branch, error)
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	DeleteBranch(ctx context.Context, id string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	SetUserActive(ctx context.Context, username string, active bool) error
}
