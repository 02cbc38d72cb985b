package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/logger"
	"pharmacy/backend/internal/store"
	"pharmacy/backend/internal/xid"
)

// Store keeps everything behind one mutex so a mutation touching the
// catalog, the mirror and the ledger is observed all-or-nothing.
type Store struct {
	mu              sync.RWMutex
	medicines       map[string]domain.Medicine
	stock           map[string]domain.StockEntry
	sales           []domain.SaleRecord
	adjustments     []domain.AdjustmentRecord
	notifications   map[string]domain.Notification
	branches        map[string]domain.Branch
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		medicines:       make(map[string]domain.Medicine),
		stock:           make(map[string]domain.StockEntry),
		sales:           make([]domain.SaleRecord, 0, 128),
		adjustments:     make([]domain.AdjustmentRecord, 0, 32),
		notifications:   make(map[string]domain.Notification),
		branches:        make(map[string]domain.Branch),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Passwords come from SEED_ADMIN_PASSWORD, SEED_PHARMACIST_PASSWORD and
// SEED_SELLER_PASSWORD, falling back to dev defaults with a warning.
func seedUsers() map[string]domain.UserAccount {
	accounts := []struct {
		username string
		env      string
		fallback string
		role     string
	}{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"pharmacist", "SEED_PHARMACIST_PASSWORD", "pharmacist123", domain.RolePharmacist},
		{"seller", "SEED_SELLER_PASSWORD", "seller123", domain.RoleSeller},
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, a := range accounts {
		password := os.Getenv(a.env)
		if password == "" {
			logger.Logger.Warn().Str("user", a.username).Msgf("using default dev credentials, set %s to override", a.env)
			password = a.fallback
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			logger.Logger.Fatal().Err(err).Str("user", a.username).Msg("failed to hash seed password")
		}
		users[a.username] = domain.UserAccount{
			Username:  a.username,
			Password:  string(hash),
			Role:      a.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	seed := []domain.Medicine{
		{Name: "Paracetamol 500mg", Category: "Pain Relievers", Manufacturer: "Generic Labs", Quantity: 120, PurchasePrice: decimal.NewFromInt(3), SellingPrice: decimal.NewFromInt(5)},
		{Name: "Ibuprofen 400mg", Category: "Anti-inflammatories", Manufacturer: "Generic Labs", Quantity: 80, PurchasePrice: decimal.RequireFromString("4.5"), SellingPrice: decimal.NewFromInt(7)},
		{Name: "Amoxicillin 500mg", Category: "Antibiotics", Manufacturer: "MedPharm", Quantity: 8, PurchasePrice: decimal.NewFromInt(12), SellingPrice: decimal.NewFromInt(18)},
		{Name: "Loratadine 10mg", Category: "Allergy", Manufacturer: "MedPharm", Quantity: 45, PurchasePrice: decimal.NewFromInt(6), SellingPrice: decimal.NewFromInt(10)},
		{Name: "Metformin 850mg", Category: "Diabetes", Manufacturer: "Glucare", Quantity: 4, PurchasePrice: decimal.NewFromInt(9), SellingPrice: decimal.NewFromInt(14)},
		{Name: "Vitamin C 1000mg", Category: "Vitamins & Supplements", Manufacturer: "NutriWell", Quantity: 60, PurchasePrice: decimal.NewFromInt(8), SellingPrice: decimal.NewFromInt(15)},
	}
	for i, m := range seed {
		m.ID = xid.New("med")
		m.ProductionDate = today.AddDate(-1, 0, 0)
		m.ExpiryDate = today.AddDate(0, 0, 20+90*i)
		m.CreatedAt = now
		m.UpdatedAt = now
		s.medicines[m.ID] = m
		s.stock[m.ID] = domain.StockEntryFor(m, xid.New("stk"))
	}
	return s
}

func (s *Store) ListMedicines(_ context.Context) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	medicines := make([]domain.Medicine, 0, len(s.medicines))
	for _, m := range s.medicines {
		medicines = append(medicines, m)
	}
	slices.SortFunc(medicines, func(a, b domain.Medicine) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return medicines, nil
}

func (s *Store) GetMedicine(_ context.Context, id string) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.medicines[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) CreateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if medicine.Name == "" || medicine.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if s.nameTaken(medicine.Name, "") {
		return nil, store.ErrConflict
	}
	if medicine.ID == "" {
		medicine.ID = xid.New("med")
	}
	now := time.Now().UTC()
	if medicine.CreatedAt.IsZero() {
		medicine.CreatedAt = now
	}
	medicine.UpdatedAt = now

	s.medicines[medicine.ID] = medicine
	s.stock[medicine.ID] = domain.StockEntryFor(medicine, xid.New("stk"))
	return &medicine, nil
}

func (s *Store) UpdateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.medicines[medicine.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if medicine.Name == "" || medicine.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if s.nameTaken(medicine.Name, medicine.ID) {
		return nil, store.ErrConflict
	}
	medicine.CreatedAt = existing.CreatedAt
	medicine.UpdatedAt = time.Now().UTC()
	s.medicines[medicine.ID] = medicine
	s.syncStock(medicine)
	return &medicine, nil
}

func (s *Store) DeleteMedicine(_ context.Context, id string) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.medicines[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.medicines, id)
	delete(s.stock, id)
	return &m, nil
}

func (s *Store) ListStock(_ context.Context) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockEntry, 0, len(s.stock))
	for _, e := range s.stock {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries, nil
}

func (s *Store) RecordSales(_ context.Context, lines []domain.SaleLine, seller string, at time.Time, newID func() string) ([]domain.SaleRecord, error) {
	if err := store.ValidateSaleLines(lines); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Work on a scratch copy so a failing line leaves nothing applied.
	remaining := make(map[string]int, len(lines))
	records := make([]domain.SaleRecord, 0, len(lines))
	for i, line := range lines {
		m, ok := s.resolve(line)
		if !ok {
			return nil, store.NewLineError(i, line, store.ErrNotFound)
		}
		qty, seen := remaining[m.ID]
		if !seen {
			qty = m.Quantity
		}
		if line.Quantity > qty {
			return nil, store.NewLineError(i, line, store.ErrInsufficientStock)
		}
		remaining[m.ID] = qty - line.Quantity
		records = append(records, domain.NewSaleRecord(newID(), m, line.Quantity, line.UnitPrice, seller, at))
	}

	for id, qty := range remaining {
		m := s.medicines[id]
		m.Quantity = qty
		m.UpdatedAt = at
		s.medicines[id] = m
		s.syncStock(m)
	}
	s.sales = append(s.sales, records...)
	return slices.Clone(records), nil
}

func (s *Store) RecordAdjustment(_ context.Context, kind string, req domain.AdjustmentRequest, by string, at time.Time, id string) (*domain.AdjustmentRecord, error) {
	if err := store.ValidateAdjustment(kind, req.Quantity); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.medicines[req.MedicineID]
	if !exists {
		return nil, store.ErrNotFound
	}
	record := domain.NewAdjustmentRecord(id, kind, m, req.Quantity, req.Reason, by, at)
	next := m.Quantity + record.Delta()
	if next < 0 {
		return nil, store.ErrInsufficientStock
	}

	m.Quantity = next
	m.UpdatedAt = at
	s.medicines[m.ID] = m
	s.syncStock(m)
	s.adjustments = append(s.adjustments, record)
	return &record, nil
}

func (s *Store) ImportSales(_ context.Context, records []domain.SaleRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range records {
		if err := store.ValidateImportedSale(i, r); err != nil {
			return 0, err
		}
	}
	for _, r := range records {
		if r.ID == "" {
			r.ID = xid.New("sale")
		}
		s.sales = append(s.sales, r)
	}
	return len(records), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.LedgerFilter) ([]domain.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.SaleRecord, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.Contains(sale.Date) {
			sales = append(sales, sale)
		}
	}
	slices.SortStableFunc(sales, func(a, b domain.SaleRecord) int {
		return b.Date.Compare(a.Date)
	})
	if filter.Limit > 0 && len(sales) > filter.Limit {
		sales = sales[:filter.Limit]
	}
	return sales, nil
}

func (s *Store) ListAdjustments(_ context.Context, kind string, filter domain.LedgerFilter) ([]domain.AdjustmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.AdjustmentRecord, 0, len(s.adjustments))
	for _, a := range s.adjustments {
		if kind != "" && a.Kind != kind {
			continue
		}
		if filter.Contains(a.Date) {
			records = append(records, a)
		}
	}
	slices.SortStableFunc(records, func(a, b domain.AdjustmentRecord) int {
		return b.Date.Compare(a.Date)
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

func (s *Store) ListNotifications(_ context.Context) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		list = append(list, n)
	}
	slices.SortFunc(list, func(a, b domain.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list, nil
}

func (s *Store) CreateNotification(_ context.Context, n domain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.notifications {
		if existing.Type == n.Type && existing.MedicineID == n.MedicineID {
			return false, nil
		}
	}
	if n.ID == "" {
		n.ID = xid.New("ntf")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications[n.ID] = n
	return true, nil
}

func (s *Store) DeleteNotification(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return strings.Compare(a.Name, b.Name)
	})
	return branches, nil
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if branch.Name == "" {
		return nil, store.ErrValidation
	}
	if branch.ID == "" {
		branch.ID = xid.New("br")
	}
	now := time.Now().UTC()
	branch.CreatedAt = now
	branch.UpdatedAt = now
	s.branches[branch.ID] = branch
	return &branch, nil
}

func (s *Store) UpdateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.branches[branch.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if branch.Name == "" {
		return nil, store.ErrValidation
	}
	branch.CreatedAt = existing.CreatedAt
	branch.UpdatedAt = time.Now().UTC()
	s.branches[branch.ID] = branch
	return &branch, nil
}

func (s *Store) DeleteBranch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branches[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.branches, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) SetUserActive(_ context.Context, username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Active = active
	s.usersByUsername[username] = user
	return nil
}

// resolve finds the medicine a sale line points at. Callers hold s.mu.
func (s *Store) resolve(line domain.SaleLine) (domain.Medicine, bool) {
	if line.MedicineID != "" {
		m, ok := s.medicines[line.MedicineID]
		return m, ok
	}
	for _, m := range s.medicines {
		if m.Name == line.MedicineName {
			return m, true
		}
	}
	return domain.Medicine{}, false
}

func (s *Store) nameTaken(name string, exceptID string) bool {
	for id, m := range s.medicines {
		if id != exceptID && m.Name == name {
			return true
		}
	}
	return false
}

// syncStock rewrites the mirror row for m. Callers hold s.mu.
func (s *Store) syncStock(m domain.Medicine) {
	entry, exists := s.stock[m.ID]
	if !exists {
		s.stock[m.ID] = domain.StockEntryFor(m, xid.New("stk"))
		return
	}
	next := domain.StockEntryFor(m, entry.ID)
	next.CreatedAt = entry.CreatedAt
	s.stock[m.ID] = next
}
