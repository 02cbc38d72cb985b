// Package sqlite is a single-file Repository backend for one-terminal
// pharmacies. It uses the CGO-free glebarez driver through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitedriver "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/store"
	"pharmacy/backend/internal/xid"
)

type medicineRow struct {
	ID             string `gorm:"primaryKey"`
	Name           string `gorm:"uniqueIndex;not null"`
	Category       string
	Manufacturer   string
	ProductionDate *time.Time
	ExpiryDate     *time.Time
	Quantity       int             `gorm:"not null"`
	PurchasePrice  decimal.Decimal `gorm:"type:text"`
	SellingPrice   decimal.Decimal `gorm:"type:text"`
	SupplierName   string
	SupplierPhone  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (medicineRow) TableName() string { return "medicines" }

type stockRow struct {
	ID            string `gorm:"primaryKey"`
	MedicineID    string `gorm:"uniqueIndex;not null"`
	Name          string
	Category      string
	Quantity      int `gorm:"not null"`
	ExpiryDate    *time.Time
	PurchasePrice decimal.Decimal `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (stockRow) TableName() string { return "stock_entries" }

// Ledger timestamps are unix nanoseconds so range filters compare integers.
type saleRow struct {
	ID                  string `gorm:"primaryKey"`
	MedicineID          string
	MedicineName        string `gorm:"not null"`
	Quantity            int    `gorm:"not null"`
	TotalPrice          decimal.Decimal `gorm:"type:text"`
	Seller              string
	SoldAt              int64           `gorm:"index;not null"`
	SalePriceAtTime     decimal.Decimal `gorm:"type:text"`
	PurchasePriceAtTime decimal.Decimal `gorm:"type:text"`
	ProfitAtTime        decimal.Decimal `gorm:"type:text"`
}

func (saleRow) TableName() string { return "sales" }

type adjustmentRow struct {
	ID            string `gorm:"primaryKey"`
	Kind          string `gorm:"index;not null"`
	MedicineID    string
	MedicineName  string
	Quantity      int `gorm:"not null"`
	Reason        string
	PurchasePrice decimal.Decimal `gorm:"type:text"`
	SellingPrice  decimal.Decimal `gorm:"type:text"`
	RecordedBy    string
	RecordedAt    int64 `gorm:"index;not null"`
}

func (adjustmentRow) TableName() string { return "adjustments" }

type notificationRow struct {
	ID           string `gorm:"primaryKey"`
	Type         string `gorm:"uniqueIndex:idx_notification_kind_medicine;not null"`
	MedicineID   string `gorm:"uniqueIndex:idx_notification_kind_medicine;not null"`
	MedicineName string
	Message      string
	CreatedAt    time.Time
}

func (notificationRow) TableName() string { return "notifications" }

type branchRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Address   string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (branchRow) TableName() string { return "branches" }

type userRow struct {
	Username  string `gorm:"primaryKey"`
	Password  string `gorm:"not null"`
	Role      string `gorm:"not null"`
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "app_users" }

type Store struct {
	db *gorm.DB
}

// Open creates or opens the database at path and migrates it. ":memory:"
// gives a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := gorm.Open(sqlitedriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&medicineRow{},
		&stockRow{},
		&saleRow{},
		&adjustmentRow{},
		&notificationRow{},
		&branchRow{},
		&userRow{},
	)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	var rows []medicineRow
	if err := s.db.WithContext(ctx).Order("category, name").Find(&rows).Error; err != nil {
		return nil, err
	}
	medicines := make([]domain.Medicine, 0, len(rows))
	for _, r := range rows {
		medicines = append(medicines, r.toDomain())
	}
	return medicines, nil
}

func (s *Store) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	row, err := findMedicine(s.db.WithContext(ctx), "id = ?", id)
	if err != nil {
		return nil, err
	}
	m := row.toDomain()
	return &m, nil
}

func (s *Store) CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	if medicine.Name == "" || medicine.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if medicine.ID == "" {
		medicine.ID = xid.New("med")
	}
	now := time.Now().UTC()
	if medicine.CreatedAt.IsZero() {
		medicine.CreatedAt = now
	}
	medicine.UpdatedAt = now

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, medicine.Name, "")
		if err != nil {
			return err
		}
		if taken {
			return store.ErrConflict
		}
		row := medicineRowFrom(medicine)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		stock := stockRowFrom(domain.StockEntryFor(medicine, xid.New("stk")))
		return tx.Create(&stock).Error
	})
	if err != nil {
		return nil, err
	}
	return &medicine, nil
}

func (s *Store) UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findMedicine(tx, "id = ?", medicine.ID)
		if err != nil {
			return err
		}
		if medicine.Name == "" || medicine.Quantity < 0 {
			return store.ErrValidation
		}
		taken, err := nameTaken(tx, medicine.Name, medicine.ID)
		if err != nil {
			return err
		}
		if taken {
			return store.ErrConflict
		}
		medicine.CreatedAt = existing.CreatedAt.UTC()
		medicine.UpdatedAt = time.Now().UTC()

		row := medicineRowFrom(medicine)
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		return syncStock(tx, medicine)
	})
	if err != nil {
		return nil, err
	}
	return &medicine, nil
}

func (s *Store) DeleteMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	var deleted domain.Medicine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findMedicine(tx, "id = ?", id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&stockRow{}, "medicine_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&medicineRow{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (s *Store) ListStock(ctx context.Context) ([]domain.StockEntry, error) {
	var rows []stockRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.StockEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toDomain())
	}
	return entries, nil
}

func (s *Store) RecordSales(ctx context.Context, lines []domain.SaleLine, seller string, at time.Time, newID func() string) ([]domain.SaleRecord, error) {
	if err := store.ValidateSaleLines(lines); err != nil {
		return nil, err
	}

	var records []domain.SaleRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		touched := make(map[string]domain.Medicine, len(lines))
		records = make([]domain.SaleRecord, 0, len(lines))
		for i, line := range lines {
			var row medicineRow
			var err error
			if line.MedicineID != "" {
				row, err = findMedicine(tx, "id = ?", line.MedicineID)
			} else {
				row, err = findMedicine(tx, "name = ?", line.MedicineName)
			}
			if err != nil {
				return store.NewLineError(i, line, err)
			}

			m := row.toDomain()
			if current, seen := touched[m.ID]; seen {
				m = current
			}
			if line.Quantity > m.Quantity {
				return store.NewLineError(i, line, store.ErrInsufficientStock)
			}
			records = append(records, domain.NewSaleRecord(newID(), m, line.Quantity, line.UnitPrice, seller, at))
			m.Quantity -= line.Quantity
			m.UpdatedAt = at
			touched[m.ID] = m
		}

		for _, m := range touched {
			if err := setQuantity(tx, m); err != nil {
				return err
			}
		}
		rows := make([]saleRow, 0, len(records))
		for _, r := range records {
			rows = append(rows, saleRowFrom(r))
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) RecordAdjustment(ctx context.Context, kind string, req domain.AdjustmentRequest, by string, at time.Time, id string) (*domain.AdjustmentRecord, error) {
	if err := store.ValidateAdjustment(kind, req.Quantity); err != nil {
		return nil, err
	}

	var record domain.AdjustmentRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findMedicine(tx, "id = ?", req.MedicineID)
		if err != nil {
			return err
		}
		m := row.toDomain()
		record = domain.NewAdjustmentRecord(id, kind, m, req.Quantity, req.Reason, by, at)
		m.Quantity += record.Delta()
		if m.Quantity < 0 {
			return store.ErrInsufficientStock
		}
		m.UpdatedAt = at

		if err := setQuantity(tx, m); err != nil {
			return err
		}
		adj := adjustmentRowFrom(record)
		return tx.Create(&adj).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) ImportSales(ctx context.Context, records []domain.SaleRecord) (int, error) {
	rows := make([]saleRow, 0, len(records))
	for i, r := range records {
		if err := store.ValidateImportedSale(i, r); err != nil {
			return 0, err
		}
		if r.ID == "" {
			r.ID = xid.New("sale")
		}
		rows = append(rows, saleRowFrom(r))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.LedgerFilter) ([]domain.SaleRecord, error) {
	var rows []saleRow
	q := ledgerScope(s.db.WithContext(ctx), "sold_at", filter).Order("sold_at DESC, id")
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	sales := make([]domain.SaleRecord, 0, len(rows))
	for _, r := range rows {
		sales = append(sales, r.toDomain())
	}
	return sales, nil
}

func (s *Store) ListAdjustments(ctx context.Context, kind string, filter domain.LedgerFilter) ([]domain.AdjustmentRecord, error) {
	var rows []adjustmentRow
	q := ledgerScope(s.db.WithContext(ctx), "recorded_at", filter)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if err := q.Order("recorded_at DESC, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]domain.AdjustmentRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.toDomain())
	}
	return records, nil
}

func (s *Store) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	var rows []notificationRow
	if err := s.db.WithContext(ctx).Order("created_at DESC, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	list := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		list = append(list, domain.Notification{
			ID:           r.ID,
			Type:         r.Type,
			MedicineID:   r.MedicineID,
			MedicineName: r.MedicineName,
			Message:      r.Message,
			CreatedAt:    r.CreatedAt.UTC(),
		})
	}
	return list, nil
}

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = xid.New("ntf")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	row := notificationRow{
		ID:           n.ID,
		Type:         n.Type,
		MedicineID:   n.MedicineID,
		MedicineName: n.MedicineName,
		Message:      n.Message,
		CreatedAt:    n.CreatedAt,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	return affected(s.db.WithContext(ctx).Delete(&notificationRow{}, "id = ?", id))
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	var rows []branchRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	branches := make([]domain.Branch, 0, len(rows))
	for _, r := range rows {
		branches = append(branches, r.toDomain())
	}
	return branches, nil
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if branch.Name == "" {
		return nil, store.ErrValidation
	}
	if branch.ID == "" {
		branch.ID = xid.New("br")
	}
	now := time.Now().UTC()
	branch.CreatedAt = now
	branch.UpdatedAt = now

	row := branchRow{ID: branch.ID, Name: branch.Name, Address: branch.Address, Phone: branch.Phone, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if branch.Name == "" {
		return nil, store.ErrValidation
	}

	var updated domain.Branch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row branchRow
		if err := tx.First(&row, "id = ?", branch.ID).Error; err != nil {
			return notFound(err)
		}
		row.Name = branch.Name
		row.Address = branch.Address
		row.Phone = branch.Phone
		row.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	return affected(s.db.WithContext(ctx).Delete(&branchRow{}, "id = ?", id))
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRow{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrConflict
		}
		row := userRow{Username: username, Password: user.Password, Role: user.Role, Active: true, CreatedAt: user.CreatedAt}
		return tx.Create(&row).Error
	})
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("username").Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, r := range rows {
		users = append(users, domain.UserAccount{
			Username:  r.Username,
			Password:  r.Password,
			Role:      r.Role,
			Active:    r.Active,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	return affected(s.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", username).Update("password", password))
}

func (s *Store) SetUserActive(ctx context.Context, username string, active bool) error {
	username = strings.ToLower(strings.TrimSpace(username))
	return affected(s.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", username).Update("active", active))
}

func findMedicine(tx *gorm.DB, query string, arg any) (medicineRow, error) {
	var row medicineRow
	if err := tx.Where(query, arg).First(&row).Error; err != nil {
		return medicineRow{}, notFound(err)
	}
	return row, nil
}

func nameTaken(tx *gorm.DB, name string, exceptID string) (bool, error) {
	var count int64
	err := tx.Model(&medicineRow{}).Where("name = ? AND id <> ?", name, exceptID).Count(&count).Error
	return count > 0, err
}

func setQuantity(tx *gorm.DB, m domain.Medicine) error {
	err := tx.Model(&medicineRow{}).Where("id = ?", m.ID).
		Updates(map[string]any{"quantity": m.Quantity, "updated_at": m.UpdatedAt}).Error
	if err != nil {
		return err
	}
	return syncStock(tx, m)
}

// syncStock rewrites the mirror row for m inside tx.
func syncStock(tx *gorm.DB, m domain.Medicine) error {
	res := tx.Model(&stockRow{}).Where("medicine_id = ?", m.ID).Updates(map[string]any{
		"name":           m.Name,
		"category":       m.Category,
		"quantity":       m.Quantity,
		"expiry_date":    optionalTime(m.ExpiryDate),
		"purchase_price": m.PurchasePrice,
		"updated_at":     m.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	row := stockRowFrom(domain.StockEntryFor(m, xid.New("stk")))
	return tx.Create(&row).Error
}

func ledgerScope(q *gorm.DB, column string, filter domain.LedgerFilter) *gorm.DB {
	if !filter.From.IsZero() {
		q = q.Where(column+" >= ?", filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		q = q.Where(column+" <= ?", filter.To.UnixNano())
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return q
}

func affected(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func fromOptionalTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func medicineRowFrom(m domain.Medicine) medicineRow {
	return medicineRow{
		ID:             m.ID,
		Name:           m.Name,
		Category:       m.Category,
		Manufacturer:   m.Manufacturer,
		ProductionDate: optionalTime(m.ProductionDate),
		ExpiryDate:     optionalTime(m.ExpiryDate),
		Quantity:       m.Quantity,
		PurchasePrice:  m.PurchasePrice,
		SellingPrice:   m.SellingPrice,
		SupplierName:   m.SupplierName,
		SupplierPhone:  m.SupplierPhone,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (r medicineRow) toDomain() domain.Medicine {
	return domain.Medicine{
		ID:             r.ID,
		Name:           r.Name,
		Category:       r.Category,
		Manufacturer:   r.Manufacturer,
		ProductionDate: fromOptionalTime(r.ProductionDate),
		ExpiryDate:     fromOptionalTime(r.ExpiryDate),
		Quantity:       r.Quantity,
		PurchasePrice:  r.PurchasePrice,
		SellingPrice:   r.SellingPrice,
		SupplierName:   r.SupplierName,
		SupplierPhone:  r.SupplierPhone,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func stockRowFrom(e domain.StockEntry) stockRow {
	return stockRow{
		ID:            e.ID,
		MedicineID:    e.MedicineID,
		Name:          e.Name,
		Category:      e.Category,
		Quantity:      e.Quantity,
		ExpiryDate:    optionalTime(e.ExpiryDate),
		PurchasePrice: e.PurchasePrice,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func (r stockRow) toDomain() domain.StockEntry {
	return domain.StockEntry{
		ID:            r.ID,
		MedicineID:    r.MedicineID,
		Name:          r.Name,
		Category:      r.Category,
		Quantity:      r.Quantity,
		ExpiryDate:    fromOptionalTime(r.ExpiryDate),
		PurchasePrice: r.PurchasePrice,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func saleRowFrom(r domain.SaleRecord) saleRow {
	return saleRow{
		ID:                  r.ID,
		MedicineID:          r.MedicineID,
		MedicineName:        r.MedicineName,
		Quantity:            r.Quantity,
		TotalPrice:          r.TotalPrice,
		Seller:              r.Seller,
		SoldAt:              r.Date.UnixNano(),
		SalePriceAtTime:     r.SalePriceAtTime,
		PurchasePriceAtTime: r.PurchasePriceAtTime,
		ProfitAtTime:        r.ProfitAtTime,
	}
}

func (r saleRow) toDomain() domain.SaleRecord {
	return domain.SaleRecord{
		ID:                  r.ID,
		MedicineID:          r.MedicineID,
		MedicineName:        r.MedicineName,
		Quantity:            r.Quantity,
		TotalPrice:          r.TotalPrice,
		Seller:              r.Seller,
		Date:                time.Unix(0, r.SoldAt).UTC(),
		SalePriceAtTime:     r.SalePriceAtTime,
		PurchasePriceAtTime: r.PurchasePriceAtTime,
		ProfitAtTime:        r.ProfitAtTime,
	}
}

func adjustmentRowFrom(a domain.AdjustmentRecord) adjustmentRow {
	return adjustmentRow{
		ID:            a.ID,
		Kind:          a.Kind,
		MedicineID:    a.MedicineID,
		MedicineName:  a.MedicineName,
		Quantity:      a.Quantity,
		Reason:        a.Reason,
		PurchasePrice: a.PurchasePrice,
		SellingPrice:  a.SellingPrice,
		RecordedBy:    a.RecordedBy,
		RecordedAt:    a.Date.UnixNano(),
	}
}

func (r adjustmentRow) toDomain() domain.AdjustmentRecord {
	return domain.AdjustmentRecord{
		ID:            r.ID,
		Kind:          r.Kind,
		MedicineID:    r.MedicineID,
		MedicineName:  r.MedicineName,
		Quantity:      r.Quantity,
		Reason:        r.Reason,
		PurchasePrice: r.PurchasePrice,
		SellingPrice:  r.SellingPrice,
		RecordedBy:    r.RecordedBy,
		Date:          time.Unix(0, r.RecordedAt).UTC(),
	}
}

func (r branchRow) toDomain() domain.Branch {
	return domain.Branch{
		ID:        r.ID,
		Name:      r.Name,
		Address:   r.Address,
		Phone:     r.Phone,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
