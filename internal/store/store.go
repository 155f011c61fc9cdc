package store

import (
	"context"
	"errors"
	"time"

	"stationpos/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrAtomicUnsupported is returned when the backing store cannot run an
	// indivisible stock adjustment. Callers fall back to read-then-write.
	ErrAtomicUnsupported = errors.New("atomic stock adjustment unavailable")
)

type ArticleFilter struct {
	NameContains string
}

// Catalog owns articles and their on-hand quantity.
type Catalog interface {
	PutArticle(ctx context.Context, article domain.Article) error
	FindArticles(ctx context.Context, filter ArticleFilter, limit int) ([]domain.Article, error)
	GetArticle(ctx context.Context, id string) (*domain.Article, error)
	ListArticles(ctx context.Context) ([]domain.Article, error)
	AtomicDecrement(ctx context.Context, id string, amount int) error
	AtomicIncrement(ctx context.Context, id string, amount int) error
	UpdateArticleStock(ctx context.Context, id string, qty int) error
}

type SalesLedger interface {
	InsertSales(ctx context.Context, sales []domain.SaleRecord) error
	GetSale(ctx context.Context, id string) (*domain.SaleRecord, error)
	UpdateSale(ctx context.Context, sale domain.SaleRecord) error
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleRecord, error)
}

type MovementLedger interface {
	InsertMovement(ctx context.Context, movement domain.StockMovement) error
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error)
	MovementTotals(ctx context.Context) (map[string]domain.MovementTotals, error)
}

type FuelLedger interface {
	InsertFuel(ctx context.Context, entries ...domain.FuelVolumeEntry) error
	ListFuel(ctx context.Context, from time.Time, to time.Time) ([]domain.FuelVolumeEntry, error)
}

// HistoricalStore upserts on the composite (month, year, category) key.
type HistoricalStore interface {
	UpsertHistorical(ctx context.Context, entries []domain.HistoricalSalesEntry) error
	ListHistorical(ctx context.Context, year int) ([]domain.HistoricalSalesEntry, error)
}

type CommitLog interface {
	SaveCommit(ctx context.Context, commit domain.SaleCommit) error
	GetCommit(ctx context.Context, id string) (*domain.SaleCommit, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	Catalog
	SalesLedger
	MovementLedger
	FuelLedger
	HistoricalStore
	CommitLog
	UserStore
}
