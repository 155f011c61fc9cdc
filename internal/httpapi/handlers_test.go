package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stationpos/backend/internal/cache"
	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/logx"
	"stationpos/backend/internal/metrics"
	"stationpos/backend/internal/report"
	"stationpos/backend/internal/service"
	"stationpos/backend/internal/store"
	"stationpos/backend/internal/store/memory"
)

// brokenLedger fails the chosen writes of an otherwise working memory store.
type brokenLedger struct {
	*memory.Store
	failSales     bool
	failMovements bool
}

func (b *brokenLedger) InsertSales(ctx context.Context, sales []domain.SaleRecord) error {
	if b.failSales {
		return errors.New("connection reset")
	}
	return b.Store.InsertSales(ctx, sales)
}

func (b *brokenLedger) InsertMovement(ctx context.Context, movement domain.StockMovement) error {
	if b.failMovements {
		return errors.New("connection reset")
	}
	return b.Store.InsertMovement(ctx, movement)
}

type testEnv struct {
	api     *API
	handler http.Handler
	repo    store.Repository
	guard   *cache.LocalSubmitGuard
}

// newTestEnv builds the full API over repo with a real AuthManager and
// Service so handler tests exercise the complete request path.
func newTestEnv(t *testing.T, repo store.Repository) *testEnv {
	t.Helper()

	logger := logx.Discard()
	recorder := metrics.New()
	svc := service.New(repo, nil, logger, recorder)
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, repo)
	guard := cache.NewLocalSubmitGuard()
	api := New(svc, auth, Options{
		AllowedOrigin: "*",
		Guard:         guard,
		Metrics:       recorder,
		Logger:        logger,
	})
	return &testEnv{api: api, handler: api.Handler(), repo: repo, guard: guard}
}

func newTestAPI(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnv(t, memory.NewSeeded())
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, username string, password string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed, status %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var payload domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func stockOf(t *testing.T, repo store.Catalog, id string) int {
	t.Helper()
	a, err := repo.GetArticle(context.Background(), id)
	if err != nil {
		t.Fatalf("get article %s: %v", id, err)
	}
	return a.CurrentStock
}

func TestHandleHealth(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "manager", "manager123")

	actor, err := env.api.auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if actor.Role != domain.RoleManager {
		t.Fatalf("expected manager role, got %s", actor.Role)
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "cashier", Password: "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleLogin_MissingFieldIsValidationError(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "cashier"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Fields["LoginRequest.password"] != "required" {
		t.Fatalf("expected password required, got %v", body.Fields)
	}
}

func TestArticlesRequireToken(t *testing.T) {
	env := newTestAPI(t)

	rec := env.do(t, http.MethodGet, "/api/v1/articles?q=xpro", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestArticlesSearch(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "cashier", "cashier123")

	rec := env.do(t, http.MethodGet, "/api/v1/articles?q=XPRO", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Articles []domain.Article `json:"articles"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Articles) != 2 {
		t.Fatalf("expected 2 lubricants, got %d", len(body.Articles))
	}
}

func TestPostSaleCommitsAndDecrementsStock(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "cashier", "cashier123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		TerminalID: "till-1",
		SaleDate:   "2026-05-12",
		Lines: []domain.SaleLineRequest{
			{ArticleID: "art-oil-filter", Quantity: 1},
			{ArticleID: "art-xpro-15w40-5l", Quantity: 2, Location: domain.LocationBosch},
			{ArticleID: "art-car-wash", Quantity: 1},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Commit domain.CommitReport `json:"commit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Commit.State != domain.CommitComplete {
		t.Fatalf("expected complete, got %s", body.Commit.State)
	}
	if !body.Commit.Total.Equal(decimal.NewFromInt(580)) {
		t.Fatalf("expected total 580, got %s", body.Commit.Total)
	}
	if got := stockOf(t, env.repo, "art-oil-filter"); got != 9 {
		t.Fatalf("expected oil filter stock 9, got %d", got)
	}
	if got := stockOf(t, env.repo, "art-xpro-15w40-5l"); got != 38 {
		t.Fatalf("expected lubricant stock 38, got %d", got)
	}

	lookup := env.do(t, http.MethodGet, "/api/v1/commits/"+body.Commit.CommitID, token, nil)
	if lookup.Code != http.StatusOK {
		t.Fatalf("expected commit lookup 200, got %d", lookup.Code)
	}
}

func TestPostSaleRejectsInvalidLines(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "cashier", "cashier123")

	cases := []struct {
		name string
		req  domain.SaleRequest
	}{
		{"zero quantity", domain.SaleRequest{TerminalID: "till-1", Lines: []domain.SaleLineRequest{{ArticleID: "art-oil-filter", Quantity: 0}}}},
		{"no lines", domain.SaleRequest{TerminalID: "till-1"}},
		{"unknown article", domain.SaleRequest{TerminalID: "till-1", Lines: []domain.SaleLineRequest{{ArticleID: "art-missing", Quantity: 1}}}},
		{"bad location", domain.SaleRequest{TerminalID: "till-1", Lines: []domain.SaleLineRequest{{ArticleID: "art-xpro-15w40-5l", Quantity: 1, Location: "garage"}}}},
		{"bad date", domain.SaleRequest{TerminalID: "till-1", SaleDate: "12/05/2026", Lines: []domain.SaleLineRequest{{ArticleID: "art-oil-filter", Quantity: 1}}}},
	}
	for _, tc := range cases {
		rec := env.do(t, http.MethodPost, "/api/v1/sales", token, tc.req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (body: %s)", tc.name, rec.Code, rec.Body.String())
		}
	}
	if got := stockOf(t, env.repo, "art-oil-filter"); got != 10 {
		t.Fatalf("expected untouched stock 10, got %d", got)
	}
}

func TestPostSaleWhileTerminalBusyReturns409(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "cashier", "cashier123")

	release, err := env.guard.Acquire(context.Background(), submitKeyPrefix+"main-site:till-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	rec := env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		TerminalID: "till-1",
		Lines:      []domain.SaleLineRequest{{ArticleID: "art-oil-filter", Quantity: 1}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestPostSalePartialCommitReturns207(t *testing.T) {
	repo := &brokenLedger{Store: memory.NewSeeded(), failMovements: true}
	env := newTestEnv(t, repo)
	token := env.login(t, "cashier", "cashier123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		TerminalID: "till-1",
		Lines:      []domain.SaleLineRequest{{ArticleID: "art-oil-filter", Quantity: 1}},
	})
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Commit   domain.CommitReport   `json:"commit"`
		Failures []service.LineFailure `json:"failures"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Commit.State != domain.CommitPartiallyAdjusted {
		t.Fatalf("expected partially_adjusted, got %s", body.Commit.State)
	}
	if len(body.Failures) != 1 || !body.Failures[0].MovementFailed || body.Failures[0].StockAdjustFailed {
		t.Fatalf("unexpected failures: %+v", body.Failures)
	}
	if got := stockOf(t, repo, "art-oil-filter"); got != 9 {
		t.Fatalf("expected stock 9 despite movement failure, got %d", got)
	}
}

func TestPostSaleWriteFailureReturns502(t *testing.T) {
	repo := &brokenLedger{Store: memory.NewSeeded(), failSales: true}
	env := newTestEnv(t, repo)
	token := env.login(t, "cashier", "cashier123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{
		TerminalID: "till-1",
		Lines:      []domain.SaleLineRequest{{ArticleID: "art-oil-filter", Quantity: 1}},
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
		Cause string `json:"cause"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Error, "record sales") {
		t.Fatalf("expected the failed step in the error, got %q", body.Error)
	}
	if body.Cause != "connection reset" {
		t.Fatalf("expected the underlying cause, got %q", body.Cause)
	}
	if got := stockOf(t, repo, "art-oil-filter"); got != 10 {
		t.Fatalf("expected untouched stock 10, got %d", got)
	}
}

func TestEditSaleCorrectsStock(t *testing.T) {
	env := newTestAPI(t)
	cashier := env.login(t, "cashier", "cashier123")
	manager := env.login(t, "manager", "manager123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", cashier, domain.SaleRequest{
		TerminalID: "till-1",
		Lines:      []domain.SaleLineRequest{{ArticleID: "art-wiper", Quantity: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created struct {
		Commit domain.CommitReport `json:"commit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	saleID := created.Commit.Sales[0].ID

	forbidden := env.do(t, http.MethodPatch, "/api/v1/sales/"+saleID, cashier, domain.EditSaleRequest{Quantity: 5})
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier edit, got %d", forbidden.Code)
	}

	edit := env.do(t, http.MethodPatch, "/api/v1/sales/"+saleID, manager, domain.EditSaleRequest{Quantity: 5})
	if edit.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", edit.Code, edit.Body.String())
	}
	var edited struct {
		Sale domain.SaleRecord `json:"sale"`
	}
	if err := json.NewDecoder(edit.Body).Decode(&edited); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !edited.Sale.TotalPrice.Equal(decimal.NewFromInt(225)) {
		t.Fatalf("expected total 225, got %s", edited.Sale.TotalPrice)
	}
	if got := stockOf(t, env.repo, "art-wiper"); got != 15 {
		t.Fatalf("expected wiper stock 15, got %d", got)
	}

	missing := env.do(t, http.MethodPatch, "/api/v1/sales/sale-missing", manager, domain.EditSaleRequest{Quantity: 1})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestFuelSalesRecordLiters(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "cashier", "cashier123")

	rec := env.do(t, http.MethodPost, "/api/v1/fuel-sales", token, domain.FuelSaleRequest{
		FuelType: "gasoil",
		Quantity: decimal.RequireFromString("1.5"),
		Unit:     "m3",
		SaleDate: "2026-05-12",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Entry domain.FuelVolumeEntry `json:"entry"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Entry.FuelType != domain.FuelGasoil || !body.Entry.QuantityLiters.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected entry: %+v", body.Entry)
	}

	bad := env.do(t, http.MethodPost, "/api/v1/fuel-sales", token, domain.FuelSaleRequest{
		FuelType: "Gasoil",
		Quantity: decimal.Zero,
		Unit:     "L",
	})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero volume, got %d", bad.Code)
	}
}

func TestFuelBulkSkipsEmptyCells(t *testing.T) {
	env := newTestAPI(t)
	token := env.login(t, "cashier", "cashier123")

	rec := env.do(t, http.MethodPost, "/api/v1/fuel-sales/bulk", token, domain.FuelBulkRequest{
		Days: []domain.FuelDayRequest{
			{SaleDate: "2026-05-01", Gasoil: decimal.NewFromInt(1200), SSP: decimal.Zero},
			{SaleDate: "2026-05-02", Gasoil: decimal.NewFromInt(900), SSP: decimal.NewFromInt(400)},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Entries []domain.FuelVolumeEntry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(body.Entries))
	}
}

func TestHistoricalSalesRoundTrip(t *testing.T) {
	env := newTestAPI(t)
	cashier := env.login(t, "cashier", "cashier123")
	manager := env.login(t, "manager", "manager123")

	if rec := env.do(t, http.MethodGet, "/api/v1/historical-sales?year=2025", cashier, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	amount := decimal.RequireFromString("12500.50")
	zero := decimal.Zero
	rec := env.do(t, http.MethodPut, "/api/v1/historical-sales", manager, domain.HistoricalSaveRequest{
		Year: 2025,
		Cells: []domain.HistoricalCell{
			{Month: 1, Category: "Shop", Amount: &amount},
			{Month: 1, Category: "Café", Amount: &zero},
			{Month: 2, Category: "Shop"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/historical-sales?year=2025", manager, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Entries []domain.HistoricalSalesEntry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Fatalf("expected 2 stored cells, got %d", len(body.Entries))
	}

	bad := env.do(t, http.MethodPut, "/api/v1/historical-sales", manager, domain.HistoricalSaveRequest{Year: 1999})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for year 1999, got %d", bad.Code)
	}
}

func TestCloseMonthTwiceKeepsOneRowPerCategory(t *testing.T) {
	env := newTestAPI(t)
	cashier := env.login(t, "cashier", "cashier123")
	manager := env.login(t, "manager", "manager123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", cashier, domain.SaleRequest{
		TerminalID: "till-1",
		SaleDate:   "2026-03-10",
		Lines:      []domain.SaleLineRequest{{ArticleID: "art-xpro-15w40-5l", Quantity: 2, Location: domain.LocationPiste}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	closeReq := domain.CloseMonthRequest{Year: 2026, Month: 3}
	if rec := env.do(t, http.MethodPost, "/api/v1/historical-sales/close", cashier, closeReq); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/historical-sales/close", manager, closeReq)
		if rec.Code != http.StatusOK {
			t.Fatalf("close %d: expected 200, got %d (body: %s)", i+1, rec.Code, rec.Body.String())
		}
	}

	rec = env.do(t, http.MethodGet, "/api/v1/historical-sales?year=2026", manager, nil)
	var body struct {
		Entries []domain.HistoricalSalesEntry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 1 {
		t.Fatalf("expected one row after closing twice, got %+v", body.Entries)
	}
	if e := body.Entries[0]; e.Category != "Lubrifiant Piste" || e.Month != 3 || !e.Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected closing row %+v", e)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/historical-sales/close", manager, domain.CloseMonthRequest{Year: 2026, Month: 13}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for month 13, got %d", rec.Code)
	}
}

func TestDeliveryAndMovements(t *testing.T) {
	env := newTestAPI(t)
	manager := env.login(t, "manager", "manager123")

	rec := env.do(t, http.MethodPost, "/api/v1/deliveries", manager, domain.DeliveryRequest{
		Date:      "2026-05-10",
		Reference: "BL-0042",
		Supplier:  "Lubrifiants SA",
		Items: []domain.DeliveryItemRequest{
			{ArticleID: "art-xpro-15w40-20l", Quantity: 4},
			{ArticleID: "art-xpro-15w40-5l", Quantity: 0},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := stockOf(t, env.repo, "art-xpro-15w40-20l"); got != 10 {
		t.Fatalf("expected stock 10, got %d", got)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/stock/movements?article_id=art-xpro-15w40-20l&from=2026-05-10&to=2026-05-10", manager, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Movements []domain.StockMovement `json:"movements"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Movements) != 1 || body.Movements[0].Type != domain.MovementIn {
		t.Fatalf("unexpected movements: %+v", body.Movements)
	}
	if !strings.Contains(body.Movements[0].Notes, "BL-0042") {
		t.Fatalf("expected delivery note in movement notes, got %q", body.Movements[0].Notes)
	}

	manual := env.do(t, http.MethodPost, "/api/v1/stock/movements", manager, domain.ManualMovementRequest{
		ArticleID: "art-wiper",
		Type:      domain.MovementOut,
		Quantity:  3,
		Notes:     "casse",
	})
	if manual.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", manual.Code, manual.Body.String())
	}
	if got := stockOf(t, env.repo, "art-wiper"); got != 17 {
		t.Fatalf("expected wiper stock 17, got %d", got)
	}
}

func TestReconciliationReportsDrift(t *testing.T) {
	env := newTestAPI(t)
	manager := env.login(t, "manager", "manager123")

	if err := env.repo.UpdateArticleStock(context.Background(), "art-oil-filter", 7); err != nil {
		t.Fatalf("update stock: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/stock/reconciliation", manager, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body domain.DriftReport
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Drifts) != 1 || body.Drifts[0].ArticleID != "art-oil-filter" || body.Drifts[0].Drift != -3 {
		t.Fatalf("unexpected drifts: %+v", body.Drifts)
	}
}

func TestComparisonReportJSONAndXLSX(t *testing.T) {
	env := newTestAPI(t)
	cashier := env.login(t, "cashier", "cashier123")
	manager := env.login(t, "manager", "manager123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", cashier, domain.SaleRequest{
		TerminalID: "till-1",
		SaleDate:   "2026-03-04",
		Lines:      []domain.SaleLineRequest{{ArticleID: "art-coffee", Quantity: 3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/reports/comparison?year=2026", manager, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body domain.ComparisonReport
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var cafe *domain.ComparisonRow
	for i := range body.Rows {
		if body.Rows[i].Month == 3 && body.Rows[i].Category == "Café" {
			cafe = &body.Rows[i]
		}
	}
	if cafe == nil || !cafe.Revenue.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected March café revenue 30, got %+v", cafe)
	}

	xlsx := env.do(t, http.MethodGet, "/api/v1/reports/comparison.xlsx?year=2026", manager, nil)
	if xlsx.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", xlsx.Code)
	}
	if got := xlsx.Header().Get("Content-Type"); got != report.ContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if xlsx.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}

	if bad := env.do(t, http.MethodGet, "/api/v1/reports/comparison?year=abc", manager, nil); bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad year, got %d", bad.Code)
	}
}

func TestCreateUserThenLogin(t *testing.T) {
	env := newTestAPI(t)
	manager := env.login(t, "manager", "manager123")

	rec := env.do(t, http.MethodPost, "/api/v1/users", manager, map[string]string{
		"username": "Pompiste2",
		"password": "secret99",
		"role":     "cashier",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	env.login(t, "pompiste2", "secret99")

	dup := env.do(t, http.MethodPost, "/api/v1/users", manager, map[string]string{
		"username": "pompiste2",
		"password": "secret99",
		"role":     "cashier",
	})
	if dup.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for duplicate, got %d", dup.Code)
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	env := newTestAPI(t)
	env.do(t, http.MethodGet, "/healthz", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("expected http_requests_total in metrics output")
	}
}
