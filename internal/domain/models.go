package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ArticleType string

const (
	ArticleTypeGoods   ArticleType = "goods"
	ArticleTypeService ArticleType = "service"
)

// Article categories as stored in the catalog. Only the categories the
// sale pipeline branches on are named here; goods categories are open.
const (
	CategoryShop            = "Shop"
	CategoryCafe            = "Café"
	CategoryBoschCarService = "Bosch Car Service"
	CategoryLabor           = "Main d'oeuvre"
	CategoryTires           = "Pneumatique"
	CategoryLubricants      = "Lubrifiants"
)

type SalesLocation string

const (
	LocationPiste SalesLocation = "piste"
	LocationBosch SalesLocation = "bosch"
)

func (l SalesLocation) Valid() bool {
	return l == LocationPiste || l == LocationBosch
}

type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

type FuelType string

const (
	FuelGasoil FuelType = "Gasoil"
	FuelSSP    FuelType = "SSP"
)

type Article struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Type         ArticleType     `json:"type"`
	Price        decimal.Decimal `json:"price"`
	InitialStock int             `json:"initial_stock"`
	CurrentStock int             `json:"current_stock"`
}

type SaleRecord struct {
	ID            string          `json:"id"`
	CommitID      string          `json:"commit_id,omitempty"`
	ArticleID     string          `json:"article_id"`
	Quantity      int             `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	SaleDate      time.Time       `json:"sale_date"`
	SalesLocation *SalesLocation  `json:"sales_location"`
	CreatedAt     time.Time       `json:"created_at"`
}

type StockMovement struct {
	ID           string       `json:"id"`
	ArticleID    string       `json:"article_id"`
	Type         MovementType `json:"type"`
	Quantity     int          `json:"quantity"`
	MovementDate time.Time    `json:"movement_date"`
	Notes        string       `json:"notes,omitempty"`
}

type MovementFilter struct {
	ArticleID string
	From      *time.Time
	To        *time.Time
}

// MovementTotals is the per-article sum of the movement ledger.
type MovementTotals struct {
	In  int
	Out int
}

type FuelVolumeEntry struct {
	ID             string          `json:"id"`
	SaleDate       time.Time       `json:"sale_date"`
	FuelType       FuelType        `json:"fuel_type"`
	QuantityLiters decimal.Decimal `json:"quantity_liters"`
}

type HistoricalSalesEntry struct {
	Year     int             `json:"year"`
	Month    int             `json:"month"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// HistoricalCell is one cell of the month x category entry grid. A nil
// Amount means the cell was never touched.
type HistoricalCell struct {
	Month    int              `json:"month"`
	Category string           `json:"category"`
	Amount   *decimal.Decimal `json:"amount"`
}

type CommitStatus string

const (
	CommitRecording         CommitStatus = "recording"
	CommitSalesWritten      CommitStatus = "sales_written"
	CommitComplete          CommitStatus = "complete"
	CommitPartiallyAdjusted CommitStatus = "partially_adjusted"
	CommitFailed            CommitStatus = "failed"
)

const (
	DecrementPathNone     = "none"
	DecrementPathAtomic   = "atomic"
	DecrementPathFallback = "fallback"
)

// CommitLine is the per-line processing outcome of a sale commit.
type CommitLine struct {
	ArticleID        string `json:"article_id"`
	ArticleName      string `json:"article_name,omitempty"`
	Quantity         int    `json:"quantity"`
	Stocked          bool   `json:"stocked"`
	DecrementPath    string `json:"decrement_path"`
	StockAdjusted    bool   `json:"stock_adjusted"`
	MovementRecorded bool   `json:"movement_recorded"`
	Error            string `json:"error,omitempty"`
}

func (l CommitLine) Failed() bool {
	return l.Stocked && (!l.StockAdjusted || !l.MovementRecorded)
}

// SaleCommit is the persisted processing status of one basket commit.
type SaleCommit struct {
	ID        string       `json:"id"`
	Status    CommitStatus `json:"status"`
	SaleDate  time.Time    `json:"sale_date"`
	Lines     []CommitLine `json:"lines"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type CommitReport struct {
	CommitID string          `json:"commit_id"`
	State    CommitStatus    `json:"state"`
	Total    decimal.Decimal `json:"total"`
	Sales    []SaleRecord    `json:"sales"`
	Lines    []CommitLine    `json:"lines"`
}

type StockDrift struct {
	ArticleID    string `json:"article_id"`
	Name         string `json:"name"`
	InitialStock int    `json:"initial_stock"`
	MovementsIn  int    `json:"movements_in"`
	MovementsOut int    `json:"movements_out"`
	Expected     int    `json:"expected"`
	Current      int    `json:"current"`
	Drift        int    `json:"drift"`
}

type DriftReport struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Checked     int          `json:"checked"`
	Drifts      []StockDrift `json:"drifts"`
}

type ComparisonRow struct {
	Month              int              `json:"month"`
	Category           string           `json:"category"`
	Revenue            decimal.Decimal  `json:"revenue"`
	PreviousYearAmount *decimal.Decimal `json:"previous_year_amount,omitempty"`
}

type FuelMonth struct {
	Month  int             `json:"month"`
	Gasoil decimal.Decimal `json:"gasoil_liters"`
	SSP    decimal.Decimal `json:"ssp_liters"`
}

// MonthClosing lists the historical rows written for one closed month.
type MonthClosing struct {
	Year    int                    `json:"year"`
	Month   int                    `json:"month"`
	Entries []HistoricalSalesEntry `json:"entries"`
}

type ComparisonReport struct {
	Year int             `json:"year"`
	Rows []ComparisonRow `json:"rows"`
	Fuel []FuelMonth     `json:"fuel"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
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

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
)

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
