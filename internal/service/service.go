package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pharmacy/backend/internal/alerts"
	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/events"
	"pharmacy/backend/internal/finance"
	"pharmacy/backend/internal/logger"
	"pharmacy/backend/internal/metrics"
	"pharmacy/backend/internal/store"
	"pharmacy/backend/internal/xid"
)

const dateLayout = "2006-01-02"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	reports    *finance.Engine
	publisher  events.Publisher
	metrics    *metrics.Metrics
	thresholds alerts.Thresholds
	now        func() time.Time
	log        zerolog.Logger
}

func New(repo store.Repository, reports *finance.Engine, publisher events.Publisher, m *metrics.Metrics, thresholds alerts.Thresholds) *Service {
	if reports == nil {
		reports = finance.NewEngine(nil, 0)
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if m == nil {
		m = metrics.New()
	}

	return &Service{
		repo:       repo,
		reports:    reports,
		publisher:  publisher,
		metrics:    m,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Component("service"),
	}
}

func (s *Service) Categories() []string {
	return append([]string(nil), domain.Categories...)
}

func (s *Service) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	return s.repo.ListMedicines(ctx)
}

func (s *Service) GetMedicine(ctx context.Context, id string) (domain.Medicine, error) {
	m, err := s.repo.GetMedicine(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Medicine{}, err
	}
	return *m, nil
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.MedicineCreateRequest) (domain.Medicine, error) {
	production, err := parseDate(req.ProductionDate, "production_date")
	if err != nil {
		return domain.Medicine{}, err
	}
	expiry, err := parseDate(req.ExpiryDate, "expiry_date")
	if err != nil {
		return domain.Medicine{}, err
	}

	medicine := domain.Medicine{
		ID:             xid.New("med"),
		Name:           strings.TrimSpace(req.Name),
		Category:       strings.TrimSpace(req.Category),
		Manufacturer:   strings.TrimSpace(req.Manufacturer),
		ProductionDate: production,
		ExpiryDate:     expiry,
		Quantity:       req.Quantity,
		PurchasePrice:  req.PurchasePrice,
		SellingPrice:   req.SellingPrice,
		SupplierName:   strings.TrimSpace(req.SupplierName),
		SupplierPhone:  strings.TrimSpace(req.SupplierPhone),
	}
	if err := validateMedicine(medicine); err != nil {
		return domain.Medicine{}, err
	}

	created, err := s.repo.CreateMedicine(ctx, medicine)
	if err != nil {
		return domain.Medicine{}, err
	}

	s.log.Info().Str("medicine_id", created.ID).Str("name", created.Name).Int("quantity", created.Quantity).Msg("medicine created")
	s.afterCatalogChange(ctx, *created)
	return *created, nil
}

// UpdateMedicine applies the fields present in req. A quantity change is a
// manual restock and goes through the same mirror update as every other
// mutation.
func (s *Service) UpdateMedicine(ctx context.Context, id string, req domain.MedicineUpdateRequest) (domain.Medicine, error) {
	existing, err := s.repo.GetMedicine(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Medicine{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Manufacturer != nil {
		updated.Manufacturer = strings.TrimSpace(*req.Manufacturer)
	}
	if req.ProductionDate != nil {
		if updated.ProductionDate, err = parseDate(*req.ProductionDate, "production_date"); err != nil {
			return domain.Medicine{}, err
		}
	}
	if req.ExpiryDate != nil {
		if updated.ExpiryDate, err = parseDate(*req.ExpiryDate, "expiry_date"); err != nil {
			return domain.Medicine{}, err
		}
	}
	if req.Quantity != nil {
		updated.Quantity = *req.Quantity
	}
	if req.PurchasePrice != nil {
		updated.PurchasePrice = *req.PurchasePrice
	}
	if req.SellingPrice != nil {
		updated.SellingPrice = *req.SellingPrice
	}
	if req.SupplierName != nil {
		updated.SupplierName = strings.TrimSpace(*req.SupplierName)
	}
	if req.SupplierPhone != nil {
		updated.SupplierPhone = strings.TrimSpace(*req.SupplierPhone)
	}
	if err := validateMedicine(updated); err != nil {
		return domain.Medicine{}, err
	}

	saved, err := s.repo.UpdateMedicine(ctx, updated)
	if err != nil {
		return domain.Medicine{}, err
	}

	s.log.Info().Str("medicine_id", saved.ID).Int("quantity", saved.Quantity).Msg("medicine updated")
	s.afterCatalogChange(ctx, *saved)
	return *saved, nil
}

// DeleteMedicine removes the catalog row and its stock entry together. Ledger
// rows referencing the medicine stay untouched.
func (s *Service) DeleteMedicine(ctx context.Context, id string) (domain.Medicine, error) {
	deleted, err := s.repo.DeleteMedicine(ctx, strings.TrimSpace(id))
	if err != nil {
		s.reject("delete", err)
		return domain.Medicine{}, err
	}

	s.log.Info().Str("medicine_id", deleted.ID).Str("name", deleted.Name).Msg("medicine deleted")
	s.reports.Invalidate(ctx)
	s.dropNotificationsFor(ctx, deleted.ID)
	s.publish(ctx, events.TypeMedicineDeleted, deleted.ID, deleted)
	return *deleted, nil
}

func (s *Service) ListStock(ctx context.Context) ([]domain.StockEntry, error) {
	return s.repo.ListStock(ctx)
}

// ApplySale records every line of req or none. The seller defaults to the
// authenticated actor.
func (s *Service) ApplySale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	seller := strings.TrimSpace(req.Seller)
	if seller == "" {
		seller = actorName(ctx)
	}
	if err := store.ValidateSaleLines(req.Items); err != nil {
		s.reject("sale", err)
		return domain.SaleResponse{}, err
	}

	records, err := s.repo.RecordSales(ctx, req.Items, seller, s.now(), func() string { return xid.New("sale") })
	if err != nil {
		s.reject("sale", err)
		s.log.Warn().Err(err).Str("seller", seller).Int("lines", len(req.Items)).Msg("sale rejected")
		return domain.SaleResponse{}, err
	}

	resp := domain.SaleResponse{Sales: records}
	touched := make([]string, 0, len(records))
	for _, r := range records {
		resp.TotalPrice = resp.TotalPrice.Add(r.TotalPrice)
		resp.TotalProfit = resp.TotalProfit.Add(r.ProfitAtTime)
		touched = append(touched, r.MedicineID)
		s.publish(ctx, events.TypeSaleRecorded, r.MedicineID, r)
	}
	s.metrics.SalesLines.Add(float64(len(records)))

	s.log.Info().Str("seller", seller).Int("lines", len(records)).Str("total", resp.TotalPrice.String()).Msg("sale recorded")
	s.reports.Invalidate(ctx)
	s.raiseAlerts(ctx, touched...)
	return resp, nil
}

// ApplyAdjustment records a return (stock in) or damaged write-off (stock
// out) at the medicine's current prices.
func (s *Service) ApplyAdjustment(ctx context.Context, kind string, req domain.AdjustmentRequest) (domain.AdjustmentRecord, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	req.MedicineID = strings.TrimSpace(req.MedicineID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := store.ValidateAdjustment(kind, req.Quantity); err != nil {
		s.reject(kind, err)
		return domain.AdjustmentRecord{}, err
	}

	record, err := s.repo.RecordAdjustment(ctx, kind, req, actorName(ctx), s.now(), xid.New(kind))
	if err != nil {
		s.reject(kind, err)
		s.log.Warn().Err(err).Str("kind", kind).Str("medicine_id", req.MedicineID).Int("quantity", req.Quantity).Msg("adjustment rejected")
		return domain.AdjustmentRecord{}, err
	}

	s.metrics.Adjustments.WithLabelValues(kind).Inc()
	s.log.Info().Str("kind", kind).Str("medicine_id", record.MedicineID).Int("quantity", record.Quantity).Msg("adjustment recorded")
	s.reports.Invalidate(ctx)
	s.publish(ctx, events.TypeAdjustmentRecorded, record.MedicineID, record)
	s.raiseAlerts(ctx, record.MedicineID)
	return *record, nil
}

// ImportSales appends historical ledger rows without touching stock.
func (s *Service) ImportSales(ctx context.Context, req domain.SaleImportRequest) (domain.SaleImportResponse, error) {
	if len(req.Sales) == 0 {
		return domain.SaleImportResponse{}, fmt.Errorf("%w: nothing to import", store.ErrValidation)
	}

	records := make([]domain.SaleRecord, 0, len(req.Sales))
	for i, r := range req.Sales {
		r.MedicineName = strings.TrimSpace(r.MedicineName)
		if err := store.ValidateImportedSale(i, r); err != nil {
			s.reject("import", err)
			return domain.SaleImportResponse{}, err
		}
		if r.ID == "" {
			r.ID = xid.New("sale")
		}
		if r.Date.IsZero() {
			r.Date = s.now()
		}
		if r.TotalPrice.IsZero() && r.SalePriceAtTime.IsPositive() {
			r.TotalPrice = r.SalePriceAtTime.Mul(decimal.NewFromInt(int64(r.Quantity)))
		}
		if r.SalePriceAtTime.IsPositive() {
			r.ProfitAtTime = r.SalePriceAtTime.Sub(r.PurchasePriceAtTime).Mul(decimal.NewFromInt(int64(r.Quantity)))
		}
		records = append(records, r)
	}

	imported, err := s.repo.ImportSales(ctx, records)
	if err != nil {
		return domain.SaleImportResponse{}, err
	}
	s.log.Info().Int("imported", imported).Msg("sales imported")
	s.reports.Invalidate(ctx)
	return domain.SaleImportResponse{Imported: imported}, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.LedgerFilter) ([]domain.SaleRecord, error) {
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) ListAdjustments(ctx context.Context, kind string, filter domain.LedgerFilter) ([]domain.AdjustmentRecord, error) {
	return s.repo.ListAdjustments(ctx, kind, filter)
}

// CheckStockConsistency compares every catalog quantity with its mirror
// entry and reports each disagreement.
func (s *Service) CheckStockConsistency(ctx context.Context) (domain.StockConsistencyReport, error) {
	meds, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return domain.StockConsistencyReport{}, err
	}
	stock, err := s.repo.ListStock(ctx)
	if err != nil {
		return domain.StockConsistencyReport{}, err
	}

	entries := make(map[string]domain.StockEntry, len(stock))
	for _, e := range stock {
		entries[e.MedicineID] = e
	}

	report := domain.StockConsistencyReport{Checked: len(meds), Drift: []domain.StockDrift{}}
	for _, m := range meds {
		entry, ok := entries[m.ID]
		delete(entries, m.ID)
		switch {
		case !ok:
			report.Drift = append(report.Drift, domain.StockDrift{
				MedicineID: m.ID, Name: m.Name, MedicineQuantity: m.Quantity, MissingEntry: true,
			})
		case entry.Quantity != m.Quantity:
			report.Drift = append(report.Drift, domain.StockDrift{
				MedicineID: m.ID, Name: m.Name, MedicineQuantity: m.Quantity, StockQuantity: entry.Quantity,
			})
		}
	}
	for _, orphan := range entries {
		report.Drift = append(report.Drift, domain.StockDrift{
			MedicineID: orphan.MedicineID, Name: orphan.Name, StockQuantity: orphan.Quantity, OrphanEntry: true,
		})
	}
	sort.Slice(report.Drift, func(i, j int) bool { return report.Drift[i].MedicineID < report.Drift[j].MedicineID })
	report.Consistent = len(report.Drift) == 0

	if !report.Consistent {
		s.log.Error().Int("drift", len(report.Drift)).Msg("stock mirror disagrees with catalog")
	}
	return report, nil
}

func (s *Service) FinancialReport(ctx context.Context, period string, from string, to string) (domain.FinancialSummary, error) {
	window, err := s.reports.Window(period, from, to)
	if err != nil {
		return domain.FinancialSummary{}, err
	}

	started := time.Now()
	defer func() { s.metrics.ReportDuration.Observe(time.Since(started).Seconds()) }()

	return s.reports.Report(ctx, window, func(ctx context.Context) (finance.Inputs, error) {
		sales, err := s.repo.ListSales(ctx, domain.LedgerFilter{})
		if err != nil {
			return finance.Inputs{}, err
		}
		adjustments, err := s.repo.ListAdjustments(ctx, "", window.Filter())
		if err != nil {
			return finance.Inputs{}, err
		}
		catalog, err := s.repo.ListMedicines(ctx)
		if err != nil {
			return finance.Inputs{}, err
		}
		return finance.Inputs{Sales: sales, Adjustments: adjustments, Catalog: catalog}, nil
	})
}

func (s *Service) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	return s.repo.ListNotifications(ctx)
}

func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	return s.repo.DeleteNotification(ctx, strings.TrimSpace(id))
}

// ScanNotifications evaluates the whole catalog and stores any alert not
// already raised for the same medicine.
func (s *Service) ScanNotifications(ctx context.Context) (domain.NotificationScanResponse, error) {
	meds, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return domain.NotificationScanResponse{}, err
	}

	resp := domain.NotificationScanResponse{Scanned: len(meds), Created: []domain.Notification{}}
	fresh := alerts.Evaluate(meds, s.thresholds, s.now())
	s.clearStaleAlerts(ctx, meds, fresh)
	for _, n := range fresh {
		n.ID = xid.New("ntf")
		created, err := s.repo.CreateNotification(ctx, n)
		if err != nil {
			return resp, err
		}
		if created {
			resp.Created = append(resp.Created, n)
		}
	}
	return resp, nil
}

// ScanCount adapts ScanNotifications for the background scheduler.
func (s *Service) ScanCount(ctx context.Context) (int, error) {
	resp, err := s.ScanNotifications(ctx)
	return len(resp.Created), err
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchRequest) (domain.Branch, error) {
	branch := domain.Branch{
		ID:      xid.New("br"),
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
	}
	if branch.Name == "" {
		return domain.Branch{}, fmt.Errorf("%w: branch name is required", store.ErrValidation)
	}
	created, err := s.repo.CreateBranch(ctx, branch)
	if err != nil {
		return domain.Branch{}, err
	}
	return *created, nil
}

func (s *Service) UpdateBranch(ctx context.Context, id string, req domain.BranchRequest) (domain.Branch, error) {
	branch := domain.Branch{
		ID:      strings.TrimSpace(id),
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
	}
	if branch.Name == "" {
		return domain.Branch{}, fmt.Errorf("%w: branch name is required", store.ErrValidation)
	}
	updated, err := s.repo.UpdateBranch(ctx, branch)
	if err != nil {
		return domain.Branch{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteBranch(ctx context.Context, id string) error {
	return s.repo.DeleteBranch(ctx, strings.TrimSpace(id))
}

func (s *Service) afterCatalogChange(ctx context.Context, m domain.Medicine) {
	s.reports.Invalidate(ctx)
	s.raiseAlerts(ctx, m.ID)
}

// raiseAlerts stores alerts for the medicines a mutation touched. Failures
// are logged; the mutation itself has already committed.
func (s *Service) raiseAlerts(ctx context.Context, ids ...string) {
	seen := make(map[string]struct{}, len(ids))
	var meds []domain.Medicine
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		m, err := s.repo.GetMedicine(ctx, id)
		if err != nil {
			continue
		}
		meds = append(meds, *m)
	}

	fresh := alerts.Evaluate(meds, s.thresholds, s.now())
	s.clearStaleAlerts(ctx, meds, fresh)
	for _, n := range fresh {
		n.ID = xid.New("ntf")
		if _, err := s.repo.CreateNotification(ctx, n); err != nil {
			s.log.Warn().Err(err).Str("medicine_id", n.MedicineID).Str("type", n.Type).Msg("failed to store notification")
		}
	}
}

// clearStaleAlerts removes alerts of meds that no longer apply so the next
// crossing of a threshold raises a new one.
func (s *Service) clearStaleAlerts(ctx context.Context, meds []domain.Medicine, fresh []domain.Notification) {
	if len(meds) == 0 {
		return
	}
	stored, err := s.repo.ListNotifications(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to list notifications")
		return
	}
	for _, n := range alerts.Stale(stored, meds, fresh) {
		if err := s.repo.DeleteNotification(ctx, n.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to clear stale notification")
		}
	}
}

func (s *Service) dropNotificationsFor(ctx context.Context, medicineID string) {
	list, err := s.repo.ListNotifications(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to list notifications")
		return
	}
	for _, n := range list {
		if n.MedicineID != medicineID {
			continue
		}
		if err := s.repo.DeleteNotification(ctx, n.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to delete notification")
		}
	}
}

func (s *Service) publish(ctx context.Context, kind string, key string, payload any) {
	event := events.Event{
		ID:        xid.New("evt"),
		Type:      kind,
		Key:       key,
		Actor:     actorName(ctx),
		Timestamp: s.now(),
		Payload:   payload,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event_type", kind).Str("key", key).Msg("failed to publish event")
	}
}

func (s *Service) reject(operation string, err error) {
	s.metrics.Rejected(operation, rejectionReason(err))
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

func validateMedicine(m domain.Medicine) error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: name is required", store.ErrValidation)
	case !domain.IsCategory(m.Category):
		return fmt.Errorf("%w: unknown category %q", store.ErrValidation, m.Category)
	case m.Quantity < 0:
		return store.ErrInvalidQuantity
	case m.PurchasePrice.IsNegative() || m.SellingPrice.IsNegative():
		return fmt.Errorf("%w: prices must not be negative", store.ErrValidation)
	case !m.ProductionDate.IsZero() && !m.ExpiryDate.IsZero() && !m.ExpiryDate.After(m.ProductionDate):
		return fmt.Errorf("%w: expiry_date must be after production_date", store.ErrValidation)
	}
	return nil
}

func parseDate(raw string, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", store.ErrValidation, field)
	}
	return t.UTC(), nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}
