package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/store"
	"pharmacy/backend/internal/xid"
)

//go:embed schema.sql
var schema string

const medicineColumns = `id, name, category, manufacturer, production_date, expiry_date, quantity,
	purchase_price, selling_price, supplier_name, supplier_phone, created_at, updated_at`

const saleColumns = `id, medicine_id, medicine_name, quantity, total_price, seller, sold_at,
	sale_price_at_time, purchase_price_at_time, profit_at_time`

const adjustmentColumns = `id, kind, medicine_id, medicine_name, quantity, reason,
	purchase_price, selling_price, recorded_by, recorded_at`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates any missing table. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(row rowScanner) (domain.Medicine, error) {
	var m domain.Medicine
	var production, expiry sql.NullTime
	err := row.Scan(&m.ID, &m.Name, &m.Category, &m.Manufacturer, &production, &expiry, &m.Quantity,
		&m.PurchasePrice, &m.SellingPrice, &m.SupplierName, &m.SupplierPhone, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Medicine{}, err
	}
	m.ProductionDate = fromNullTime(production)
	m.ExpiryDate = fromNullTime(expiry)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

func (s *Store) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+medicineColumns+` FROM medicines ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, 64)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (s *Store) GetMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	m, err := scanMedicine(s.db.QueryRowContext(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO medicines (`+medicineColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, medicine.ID, medicine.Name, medicine.Category, medicine.Manufacturer,
		nullTime(medicine.ProductionDate), nullTime(medicine.ExpiryDate), medicine.Quantity,
		medicine.PurchasePrice, medicine.SellingPrice, medicine.SupplierName, medicine.SupplierPhone,
		medicine.CreatedAt, medicine.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	entry := domain.StockEntryFor(medicine, xid.New("stk"))
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_entries (id, medicine_id, name, category, quantity, expiry_date, purchase_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.MedicineID, entry.Name, entry.Category, entry.Quantity,
		nullTime(entry.ExpiryDate), entry.PurchasePrice, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &medicine, nil
}

func (s *Store) UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanMedicine(tx.QueryRowContext(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1 FOR UPDATE`, medicine.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if medicine.Name == "" || medicine.Quantity < 0 {
		return nil, store.ErrValidation
	}
	medicine.CreatedAt = existing.CreatedAt
	medicine.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE medicines
		SET name = $2, category = $3, manufacturer = $4, production_date = $5, expiry_date = $6,
			quantity = $7, purchase_price = $8, selling_price = $9, supplier_name = $10,
			supplier_phone = $11, updated_at = $12
		WHERE id = $1
	`, medicine.ID, medicine.Name, medicine.Category, medicine.Manufacturer,
		nullTime(medicine.ProductionDate), nullTime(medicine.ExpiryDate), medicine.Quantity,
		medicine.PurchasePrice, medicine.SellingPrice, medicine.SupplierName, medicine.SupplierPhone,
		medicine.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := syncStock(ctx, tx, medicine); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &medicine, nil
}

// DeleteMedicine relies on the stock_entries foreign key cascade to drop the
// mirror row in the same statement.
func (s *Store) DeleteMedicine(ctx context.Context, id string) (*domain.Medicine, error) {
	m, err := scanMedicine(s.db.QueryRowContext(ctx, `DELETE FROM medicines WHERE id = $1 RETURNING `+medicineColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListStock(ctx context.Context) ([]domain.StockEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, medicine_id, name, category, quantity, expiry_date, purchase_price, created_at, updated_at
		FROM stock_entries
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 64)
	for rows.Next() {
		var e domain.StockEntry
		var expiry sql.NullTime
		if err := rows.Scan(&e.ID, &e.MedicineID, &e.Name, &e.Category, &e.Quantity, &expiry, &e.PurchasePrice, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.ExpiryDate = fromNullTime(expiry)
		e.CreatedAt = e.CreatedAt.UTC()
		e.UpdatedAt = e.UpdatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) RecordSales(ctx context.Context, lines []domain.SaleLine, seller string, at time.Time, newID func() string) ([]domain.SaleRecord, error) {
	if err := store.ValidateSaleLines(lines); err != nil {
		return nil, err
	}
	var records []domain.SaleRecord
	err := retrySerialization(ctx, func() error {
		var err error
		records, err = s.recordSales(ctx, lines, seller, at, newID)
		return err
	})
	return records, err
}

func (s *Store) recordSales(ctx context.Context, lines []domain.SaleLine, seller string, at time.Time, newID func() string) ([]domain.SaleRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	locked := make(map[string]domain.Medicine, len(lines))
	records := make([]domain.SaleRecord, 0, len(lines))
	for i, line := range lines {
		var row *sql.Row
		if line.MedicineID != "" {
			row = tx.QueryRowContext(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1 FOR UPDATE`, line.MedicineID)
		} else {
			row = tx.QueryRowContext(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE name = $1 FOR UPDATE`, line.MedicineName)
		}
		m, err := scanMedicine(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.NewLineError(i, line, store.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if current, seen := locked[m.ID]; seen {
			m = current
		}
		if line.Quantity > m.Quantity {
			return nil, store.NewLineError(i, line, store.ErrInsufficientStock)
		}
		records = append(records, domain.NewSaleRecord(newID(), m, line.Quantity, line.UnitPrice, seller, at))
		m.Quantity -= line.Quantity
		m.UpdatedAt = at
		locked[m.ID] = m
	}

	for _, m := range locked {
		if _, err := tx.ExecContext(ctx, `UPDATE medicines SET quantity = $2, updated_at = $3 WHERE id = $1`, m.ID, m.Quantity, m.UpdatedAt); err != nil {
			return nil, err
		}
		if err := syncStock(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	for _, r := range records {
		if err := insertSale(ctx, tx, r); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) RecordAdjustment(ctx context.Context, kind string, req domain.AdjustmentRequest, by string, at time.Time, id string) (*domain.AdjustmentRecord, error) {
	if err := store.ValidateAdjustment(kind, req.Quantity); err != nil {
		return nil, err
	}
	var record *domain.AdjustmentRecord
	err := retrySerialization(ctx, func() error {
		var err error
		record, err = s.recordAdjustment(ctx, kind, req, by, at, id)
		return err
	})
	return record, err
}

func (s *Store) recordAdjustment(ctx context.Context, kind string, req domain.AdjustmentRequest, by string, at time.Time, id string) (*domain.AdjustmentRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	m, err := scanMedicine(tx.QueryRowContext(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1 FOR UPDATE`, req.MedicineID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record := domain.NewAdjustmentRecord(id, kind, m, req.Quantity, req.Reason, by, at)
	m.Quantity += record.Delta()
	if m.Quantity < 0 {
		return nil, store.ErrInsufficientStock
	}
	m.UpdatedAt = at

	if _, err := tx.ExecContext(ctx, `UPDATE medicines SET quantity = $2, updated_at = $3 WHERE id = $1`, m.ID, m.Quantity, m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := syncStock(ctx, tx, m); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO adjustments (`+adjustmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, record.ID, record.Kind, record.MedicineID, record.MedicineName, record.Quantity, record.Reason,
		record.PurchasePrice, record.SellingPrice, record.RecordedBy, record.Date)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) ImportSales(ctx context.Context, records []domain.SaleRecord) (int, error) {
	for i, r := range records {
		if err := store.ValidateImportedSale(i, r); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		if r.ID == "" {
			r.ID = xid.New("sale")
		}
		if err := insertSale(ctx, tx, r); err != nil {
			if isUniqueViolation(err) {
				return 0, store.ErrConflict
			}
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.LedgerFilter) ([]domain.SaleRecord, error) {
	where, args := ledgerWhere("sold_at", filter, nil)
	query := `SELECT ` + saleColumns + ` FROM sales` + where + ` ORDER BY sold_at DESC, id` + limitClause(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.SaleRecord, 0, 64)
	for rows.Next() {
		var r domain.SaleRecord
		if err := rows.Scan(&r.ID, &r.MedicineID, &r.MedicineName, &r.Quantity, &r.TotalPrice, &r.Seller, &r.Date,
			&r.SalePriceAtTime, &r.PurchasePriceAtTime, &r.ProfitAtTime); err != nil {
			return nil, err
		}
		r.Date = r.Date.UTC()
		sales = append(sales, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListAdjustments(ctx context.Context, kind string, filter domain.LedgerFilter) ([]domain.AdjustmentRecord, error) {
	var conditions []string
	var args []any
	if kind != "" {
		args = append(args, kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	where, args := ledgerWhere("recorded_at", filter, &ledgerScope{conditions: conditions, args: args})
	query := `SELECT ` + adjustmentColumns + ` FROM adjustments` + where + ` ORDER BY recorded_at DESC, id` + limitClause(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.AdjustmentRecord, 0, 32)
	for rows.Next() {
		var a domain.AdjustmentRecord
		if err := rows.Scan(&a.ID, &a.Kind, &a.MedicineID, &a.MedicineName, &a.Quantity, &a.Reason,
			&a.PurchasePrice, &a.SellingPrice, &a.RecordedBy, &a.Date); err != nil {
			return nil, err
		}
		a.Date = a.Date.UTC()
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, medicine_id, medicine_name, message, created_at
		FROM notifications
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]domain.Notification, 0, 16)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.MedicineID, &n.MedicineName, &n.Message, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, type, medicine_id, medicine_name, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (type, medicine_id) DO NOTHING
	`, n.ID, n.Type, n.MedicineID, n.MedicineName, n.Message, n.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	return execAffecting(ctx, s.db, `DELETE FROM notifications WHERE id = $1`, id)
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, phone, created_at, updated_at
		FROM branches
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Phone, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		b.UpdatedAt = b.UpdatedAt.UTC()
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, address, phone, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, branch.ID, branch.Name, branch.Address, branch.Phone, branch.CreatedAt, branch.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &branch, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if branch.Name == "" {
		return nil, store.ErrValidation
	}
	branch.UpdatedAt = time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		UPDATE branches
		SET name = $2, address = $3, phone = $4, updated_at = $5
		WHERE id = $1
		RETURNING created_at
	`, branch.ID, branch.Name, branch.Address, branch.Phone, branch.UpdatedAt).Scan(&branch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	branch.CreatedAt = branch.CreatedAt.UTC()
	return &branch, nil
}

func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	return execAffecting(ctx, s.db, `DELETE FROM branches WHERE id = $1`, id)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	return execAffecting(ctx, s.db, `UPDATE app_users SET password = $2, updated_at = now() WHERE username = $1`, username, password)
}

func (s *Store) SetUserActive(ctx context.Context, username string, active bool) error {
	username = strings.ToLower(strings.TrimSpace(username))
	return execAffecting(ctx, s.db, `UPDATE app_users SET active = $2, updated_at = now() WHERE username = $1`, username, active)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// syncStock rewrites the mirror row for m inside the caller's transaction.
func syncStock(ctx context.Context, tx *sql.Tx, m domain.Medicine) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE stock_entries
		SET name = $2, category = $3, quantity = $4, expiry_date = $5, purchase_price = $6, updated_at = $7
		WHERE medicine_id = $1
	`, m.ID, m.Name, m.Category, m.Quantity, nullTime(m.ExpiryDate), m.PurchasePrice, m.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	entry := domain.StockEntryFor(m, xid.New("stk"))
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_entries (id, medicine_id, name, category, quantity, expiry_date, purchase_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.MedicineID, entry.Name, entry.Category, entry.Quantity,
		nullTime(entry.ExpiryDate), entry.PurchasePrice, m.UpdatedAt, m.UpdatedAt)
	return err
}

func insertSale(ctx context.Context, db execer, r domain.SaleRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.ID, r.MedicineID, r.MedicineName, r.Quantity, r.TotalPrice, r.Seller, r.Date,
		r.SalePriceAtTime, r.PurchasePriceAtTime, r.ProfitAtTime)
	return err
}

func execAffecting(ctx context.Context, db execer, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type ledgerScope struct {
	conditions []string
	args       []any
}

func ledgerWhere(column string, filter domain.LedgerFilter, scope *ledgerScope) (string, []any) {
	if scope == nil {
		scope = &ledgerScope{}
	}
	if !filter.From.IsZero() {
		scope.args = append(scope.args, filter.From)
		scope.conditions = append(scope.conditions, fmt.Sprintf("%s >= $%d", column, len(scope.args)))
	}
	if !filter.To.IsZero() {
		scope.args = append(scope.args, filter.To)
		scope.conditions = append(scope.conditions, fmt.Sprintf("%s <= $%d", column, len(scope.args)))
	}
	if len(scope.conditions) == 0 {
		return "", scope.args
	}
	return " WHERE " + strings.Join(scope.conditions, " AND "), scope.args
}

func limitClause(filter domain.LedgerFilter) string {
	if filter.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", filter.Limit)
}

const serializationAttempts = 8

// retrySerialization reruns fn while postgres aborts it with a
// serialization failure or deadlock. Sales locking several medicines in
// different orders can deadlock each other.
func retrySerialization(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < serializationAttempts; attempt++ {
		if err = fn(); !isSerializationFailure(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 5 * time.Millisecond):
		}
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val.UTC()
}

func fromNullTime(val sql.NullTime) time.Time {
	if !val.Valid {
		return time.Time{}
	}
	return val.Time.UTC()
}
