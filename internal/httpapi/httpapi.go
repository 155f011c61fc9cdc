package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"stationpos/backend/internal/cache"
	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/metrics"
	"stationpos/backend/internal/report"
	"stationpos/backend/internal/service"
	"stationpos/backend/internal/store"
)

const submitKeyPrefix = "sale:submit:"

type API struct {
	service       *service.Service
	auth          *AuthManager
	guard         cache.SubmitGuard
	metrics       *metrics.Recorder
	logger        logrus.FieldLogger
	validate      *validator.Validate
	allowedOrigin string
	siteID        string
	loginLimiter  *attemptLimiter
}

type Options struct {
	AllowedOrigin string
	SiteID        string
	Guard         cache.SubmitGuard
	Metrics       *metrics.Recorder
	Logger        logrus.FieldLogger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Guard == nil {
		opts.Guard = cache.NewLocalSubmitGuard()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.SiteID == "" {
		opts.SiteID = "main-site"
	}
	return &API{
		service:       svc,
		auth:          auth,
		guard:         opts.Guard,
		metrics:       opts.Metrics,
		logger:        opts.Logger.WithField("module", "httpapi"),
		validate:      newValidator(),
		allowedOrigin: opts.AllowedOrigin,
		siteID:        opts.SiteID,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

// newValidator reports fields by their JSON name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
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
	kept = append(kept, now)
	l.entries[key] = kept
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
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/articles", a.requireAuth(a.handleArticles, domain.RoleCashier, domain.RoleManager))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, domain.RoleCashier, domain.RoleManager))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, domain.RoleManager))
	mux.HandleFunc("/api/v1/commits/", a.requireAuth(a.handleCommitLookup, domain.RoleCashier, domain.RoleManager))
	mux.HandleFunc("/api/v1/fuel-sales", a.requireAuth(a.handleFuelSales, domain.RoleCashier, domain.RoleManager))
	mux.HandleFunc("/api/v1/fuel-sales/bulk", a.requireAuth(a.handleFuelBulk, domain.RoleCashier, domain.RoleManager))

	mux.HandleFunc("/api/v1/historical-sales", a.requireAuth(a.handleHistorical, domain.RoleManager))
	mux.HandleFunc("/api/v1/historical-sales/close", a.requireAuth(a.handleCloseMonth, domain.RoleManager))
	mux.HandleFunc("/api/v1/deliveries", a.requireAuth(a.handleDeliveries, domain.RoleManager))
	mux.HandleFunc("/api/v1/stock/movements", a.requireAuth(a.handleMovements, domain.RoleManager))
	mux.HandleFunc("/api/v1/stock/reconciliation", a.requireAuth(a.handleReconciliation, domain.RoleManager))
	mux.HandleFunc("/api/v1/reports/comparison", a.requireAuth(a.handleComparison, domain.RoleManager))
	mux.HandleFunc("/api/v1/reports/comparison.xlsx", a.requireAuth(a.handleComparisonXLSX, domain.RoleManager))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, domain.RoleManager))

	return a.withMiddleware(mux)
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
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"site": a.siteID,
		"at":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleArticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	articles, err := a.service.SearchArticles(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

// handleSales commits one basket. A terminal may only have one commit in
// flight; a second submit while the first runs gets 409.
func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	release, err := a.guard.Acquire(r.Context(), submitKeyPrefix+a.siteID+":"+req.TerminalID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	defer release()

	draft, err := a.service.NewSaleDraft(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	result, err := a.service.CommitDraft(r.Context(), draft)
	if err != nil {
		var partial *service.PartialCommitError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusMultiStatus, map[string]any{
				"commit":   result,
				"error":    partial.Error(),
				"failures": partial.Lines,
			})
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"commit": result})
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	saleID, ok := pathTail(r, "/api/v1/sales/")
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	var req domain.EditSaleRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	saleDate, err := service.ParseDate(req.SaleDate, time.Time{})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	sale, err := a.service.EditSale(r.Context(), saleID, service.SaleEdit{
		Quantity:      req.Quantity,
		SaleDate:      saleDate,
		SalesLocation: req.SalesLocation,
	})
	if err != nil {
		var partial *service.PartialCommitError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusMultiStatus, map[string]any{
				"sale":     sale,
				"error":    partial.Error(),
				"failures": partial.Lines,
			})
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleCommitLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	commitID, ok := pathTail(r, "/api/v1/commits/")
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("commit id required"))
		return
	}

	commit, err := a.service.GetCommit(r.Context(), commitID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commit": commit})
}

func (a *API) handleFuelSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.FuelSaleRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	saleDate, err := service.ParseDate(req.SaleDate, time.Time{})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	entry, err := a.service.RecordVolume(r.Context(), req.FuelType, req.Quantity, req.Unit, saleDate)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry})
}

func (a *API) handleFuelBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.FuelBulkRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	days := make([]service.FuelDayInput, 0, len(req.Days))
	for _, day := range req.Days {
		date, err := service.ParseDate(day.SaleDate, time.Time{})
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		days = append(days, service.FuelDayInput{Date: date, Gasoil: day.Gasoil, SSP: day.SSP})
	}

	entries, err := a.service.RecordVolumes(r.Context(), days)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entries": entries})
}

func (a *API) handleHistorical(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		year, err := parseYear(r.URL.Query().Get("year"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entries, err := a.service.HistoricalYear(r.Context(), year)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"year":       year,
			"categories": service.HistoricalCategories,
			"entries":    entries,
		})
	case http.MethodPut:
		var req domain.HistoricalSaveRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		saved, err := a.service.SaveMonth(r.Context(), req.Year, req.Cells)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"year": req.Year, "saved": saved})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCloseMonth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CloseMonthRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	closing, err := a.service.CloseMonth(r.Context(), req.Year, req.Month)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closing": closing})
}

func (a *API) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.DeliveryRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	date, err := service.ParseDate(req.Date, time.Time{})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	delivery := service.Delivery{Date: date, Reference: req.Reference, Supplier: req.Supplier}
	for _, item := range req.Items {
		delivery.Items = append(delivery.Items, service.DeliveryItem{ArticleID: item.ArticleID, Quantity: item.Quantity})
	}

	result, err := a.service.RecordDelivery(r.Context(), delivery)
	if err != nil {
		var partial *service.PartialCommitError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusMultiStatus, map[string]any{
				"delivery": result,
				"error":    partial.Error(),
				"failures": partial.Lines,
			})
			return
		}
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"delivery": result})
}

func (a *API) handleMovements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		filter := domain.MovementFilter{ArticleID: strings.TrimSpace(query.Get("article_id"))}
		if raw := query.Get("from"); raw != "" {
			from, err := service.ParseDate(raw, time.Time{})
			if err != nil {
				a.writeServiceError(w, err)
				return
			}
			filter.From = &from
		}
		if raw := query.Get("to"); raw != "" {
			to, err := service.ParseDate(raw, time.Time{})
			if err != nil {
				a.writeServiceError(w, err)
				return
			}
			// inclusive of the whole day
			end := to.Add(24*time.Hour - time.Nanosecond)
			filter.To = &end
		}
		movements, err := a.service.ListMovements(r.Context(), filter)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		limit := parsePositiveLimit(query.Get("limit"), 200, 1000)
		if len(movements) > limit {
			movements = movements[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
	case http.MethodPost:
		var req domain.ManualMovementRequest
		if !a.decodeValid(w, r, &req) {
			return
		}
		movement, err := a.service.ManualMovement(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"movement": movement})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	drift, err := a.service.ReconcileStock(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, drift)
}

func (a *API) handleComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	year, err := parseYear(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.ComparisonReport(r.Context(), year)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleComparisonXLSX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	year, err := parseYear(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.ComparisonReport(r.Context(), year)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename(year))
	if err := report.WriteComparisonXLSX(w, result); err != nil {
		a.logger.WithError(err).WithField("year", year).Error("comparison export failed")
	}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=cashier manager"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req createUserRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	if err := a.auth.CreateUser(r.Context(), req.Username, req.Password, req.Role); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"username": strings.ToLower(strings.TrimSpace(req.Username)),
		"role":     req.Role,
	})
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)

		a.metrics.ObserveHTTP(r.Method, routeLabel(r.URL.Path), rec.status, elapsed)
		a.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("request")
	})
}

// routeLabel folds ID path segments so metric cardinality stays bounded.
func routeLabel(path string) string {
	for _, prefix := range []string{"/api/v1/sales/", "/api/v1/commits/"} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + ":id"
		}
	}
	return path
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var validation *service.ValidationError
	var writeFailure *service.WriteFailure
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": err.Error(),
			"field": validation.Field,
		})
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, cache.ErrSubmitInFlight):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &writeFailure):
		a.logger.WithError(writeFailure.Err).WithField("step", writeFailure.Step).Error("write failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": writeFailure.Step + " failed, nothing further was written",
			"cause": failureCause(writeFailure.Err),
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		a.logger.WithError(err).Error("unhandled service error")
		writeError(w, http.StatusInternalServerError, err)
	}
}

const maxCauseLen = 200

// failureCause renders a write failure's cause for the operator alert.
// Postgres errors give their server message and SQLSTATE only; anything
// that could carry a connection string is replaced.
func failureCause(err error) string {
	if err == nil {
		return ""
	}
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		return pgErr.Message + " (SQLSTATE " + pgErr.Code + ")"
	case errors.Is(err, context.DeadlineExceeded):
		return "the store did not answer in time"
	}

	msg := err.Error()
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "://") || strings.Contains(lower, "password") {
		return "the store connection failed"
	}
	if runes := []rune(msg); len(runes) > maxCauseLen {
		msg = string(runes[:maxCauseLen]) + "…"
	}
	return msg
}

// decodeValid decodes the body into dest and runs its validate tags. It
// writes the 400 response itself and reports whether the handler may go on.
func (a *API) decodeValid(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationFields(fieldErrs),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func validationFields(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func pathTail(r *http.Request, prefix string) (string, bool) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if tail == "" || strings.Contains(tail, "/") {
		return "", false
	}
	return tail, true
}

func parseYear(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC().Year(), nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 2100 {
		return 0, errors.New("year must be between 2000 and 2100")
	}
	return year, nil
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

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are meant for the operator.
	msg := err.Error()
	if status >= 500 {
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
