package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"pharmacy/backend/internal/domain"
	"pharmacy/backend/internal/finance"
	"pharmacy/backend/internal/logger"
	"pharmacy/backend/internal/metrics"
	"pharmacy/backend/internal/service"
	"pharmacy/backend/internal/store"
)

var (
	everyone = []string{domain.RoleAdmin, domain.RolePharmacist, domain.RoleSeller}
	staff    = []string{domain.RoleAdmin, domain.RolePharmacist}
	admins   = []string{domain.RoleAdmin}
)

// Options carries the collaborators the router needs besides the service.
type Options struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	// Driver names the storage backend reported by /healthz.
	Driver string
	Ping   func(ctx context.Context) error
}

type API struct {
	svc          *service.Service
	auth         *AuthManager
	opts         Options
	loginLimiter *attemptLimiter
	log          zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &API{
		svc:          svc,
		auth:         auth,
		opts:         opts,
		loginLimiter: newAttemptLimiter(5, time.Minute),
		log:          logger.Component("http"),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)
	r.Use(a.observe)

	r.Get("/healthz", a.handleHealth)
	if a.opts.Metrics != nil {
		r.Handle("/metrics", a.opts.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Get("/medicines", a.requireAuth(a.handleListMedicines, everyone...))
		r.Post("/medicines", a.requireAuth(a.handleCreateMedicine, staff...))
		r.Get("/medicines/categories", a.requireAuth(a.handleCategories, everyone...))
		r.Get("/medicines/{id}", a.requireAuth(a.handleGetMedicine, everyone...))
		r.Put("/medicines/{id}", a.requireAuth(a.handleUpdateMedicine, staff...))
		r.Delete("/medicines/{id}", a.requireAuth(a.handleDeleteMedicine, staff...))

		r.Get("/stock", a.requireAuth(a.handleListStock, staff...))
		r.Get("/stock/consistency", a.requireAuth(a.handleStockConsistency, staff...))

		r.Get("/sales", a.requireAuth(a.handleListSales, everyone...))
		r.Post("/sales", a.requireAuth(a.handleCreateSale, everyone...))
		r.Post("/sales/import", a.requireAuth(a.handleImportSales, admins...))

		r.Get("/returns", a.requireAuth(a.handleListAdjustments(domain.AdjustmentReturn), staff...))
		r.Post("/returns", a.requireAuth(a.handleCreateAdjustment(domain.AdjustmentReturn), staff...))
		r.Get("/damaged", a.requireAuth(a.handleListAdjustments(domain.AdjustmentDamaged), staff...))
		r.Post("/damaged", a.requireAuth(a.handleCreateAdjustment(domain.AdjustmentDamaged), staff...))

		r.Get("/finance/advanced", a.requireAuth(a.handleFinance, admins...))

		r.Get("/notifications", a.requireAuth(a.handleListNotifications, everyone...))
		r.Post("/notifications/scan", a.requireAuth(a.handleScanNotifications, staff...))
		r.Delete("/notifications/{id}", a.requireAuth(a.handleDeleteNotification, staff...))

		r.Get("/branches", a.requireAuth(a.handleListBranches, admins...))
		r.Post("/branches", a.requireAuth(a.handleCreateBranch, admins...))
		r.Put("/branches/{id}", a.requireAuth(a.handleUpdateBranch, admins...))
		r.Delete("/branches/{id}", a.requireAuth(a.handleDeleteBranch, admins...))

		r.Get("/users", a.requireAuth(a.handleListUsers, admins...))
		r.Post("/users", a.requireAuth(a.handleCreateUser, admins...))
		r.Put("/users/{username}/password", a.requireAuth(a.handleChangePassword, admins...))
		r.Put("/users/{username}/status", a.requireAuth(a.handleUserStatus, admins...))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	return cors.New(cors.Options{
		AllowedOrigins: a.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"ok":     true,
		"driver": a.opts.Driver,
		"at":     time.Now().UTC().Format(time.RFC3339),
	}
	if a.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.opts.Ping(ctx); err != nil {
			a.log.Warn().Err(err).Msg("health ping failed")
			body["ok"] = false
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListMedicines(w http.ResponseWriter, r *http.Request) {
	medicines, err := a.svc.ListMedicines(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if isSeller(r) {
		shelf := make([]domain.ShelfMedicine, 0, len(medicines))
		for _, m := range medicines {
			shelf = append(shelf, m.Shelf())
		}
		writeJSON(w, http.StatusOK, shelf)
		return
	}
	writeJSON(w, http.StatusOK, medicines)
}

func (a *API) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Categories())
}

func (a *API) handleGetMedicine(w http.ResponseWriter, r *http.Request) {
	medicine, err := a.svc.GetMedicine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if isSeller(r) {
		writeJSON(w, http.StatusOK, medicine.Shelf())
		return
	}
	writeJSON(w, http.StatusOK, medicine)
}

func (a *API) handleCreateMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.MedicineCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	medicine, err := a.svc.CreateMedicine(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, medicine)
}

func (a *API) handleUpdateMedicine(w http.ResponseWriter, r *http.Request) {
	var req domain.MedicineUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	medicine, err := a.svc.UpdateMedicine(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, medicine)
}

func (a *API) handleDeleteMedicine(w http.ResponseWriter, r *http.Request) {
	medicine, err := a.svc.DeleteMedicine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": medicine})
}

func (a *API) handleListStock(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.ListStock(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleStockConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.CheckStockConsistency(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	filter, err := ledgerFilter(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sales, err := a.svc.ListSales(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// Sellers see their own sales without cost or profit.
	if actor, ok := service.ActorFromContext(r.Context()); ok && actor.Role == domain.RoleSeller {
		own := make([]domain.CounterSale, 0, len(sales))
		for _, s := range sales {
			if s.Seller == actor.Username {
				own = append(own, s.Counter())
			}
		}
		writeJSON(w, http.StatusOK, own)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// Sellers record sales under their own name only.
	if actor, ok := service.ActorFromContext(r.Context()); ok && actor.Role == domain.RoleSeller {
		req.Seller = actor.Username
	}
	resp, err := a.svc.ApplySale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if isSeller(r) {
		writeJSON(w, http.StatusCreated, resp.Counter())
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleImportSales(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleImportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.svc.ImportSales(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListAdjustments(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := ledgerFilter(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		records, err := a.svc.ListAdjustments(r.Context(), kind, filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (a *API) handleCreateAdjustment(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.AdjustmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		record, err := a.svc.ApplyAdjustment(r.Context(), kind, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
	}
}

func (a *API) handleFinance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := a.svc.FinancialReport(r.Context(), q.Get("period"), q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := a.svc.ListNotifications(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (a *API) handleScanNotifications(w http.ResponseWriter, r *http.Request) {
	resp, err := a.svc.ScanNotifications(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteNotification(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := a.svc.ListBranches(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (a *API) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req domain.BranchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	branch, err := a.svc.CreateBranch(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, branch)
}

func (a *API) handleUpdateBranch(w http.ResponseWriter, r *http.Request) {
	var req domain.BranchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	branch, err := a.svc.UpdateBranch(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, branch)
}

func (a *API) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteBranch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.auth.ListUsers(r.Context()))
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.UserPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.auth.ChangePassword(r.Context(), chi.URLParam(r, "username"), req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UserStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	user, err := a.auth.SetUserActive(r.Context(), actor, chi.URLParam(r, "username"), req.Active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs each request and records it against its route pattern so
// path parameters do not explode metric cardinality.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(startedAt)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if a.opts.Metrics != nil {
			a.opts.Metrics.ObserveRequest(r.Method, route, status, elapsed)
		}
		a.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func isSeller(r *http.Request) bool {
	actor, ok := service.ActorFromContext(r.Context())
	return ok && actor.Role == domain.RoleSeller
}

func ledgerFilter(r *http.Request) (domain.LedgerFilter, error) {
	q := r.URL.Query()
	return finance.ParseLedgerFilter(q.Get("from"), q.Get("to"), parsePositiveLimit(q.Get("limit"), 200, 1000))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeServiceError maps store sentinels onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses get a generic message; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		log := logger.Component("http")
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
