package sqlstore

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stationpos/backend/internal/domain"
)

// Decimals are persisted as text so SQLite's numeric affinity never turns
// an amount into a float.

type articleRow struct {
	ID           string          `gorm:"primaryKey"`
	Name         string          `gorm:"not null;index"`
	NameLower    string          `gorm:"not null;default:'';index"`
	Category     string          `gorm:"not null;default:''"`
	Type         string          `gorm:"not null;default:goods"`
	Price        decimal.Decimal `gorm:"type:text;not null"`
	InitialStock int             `gorm:"not null;default:0"`
	CurrentStock int             `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (articleRow) TableName() string { return "articles" }

type saleRow struct {
	ID            string          `gorm:"primaryKey"`
	CommitID      string          `gorm:"index"`
	ArticleID     string          `gorm:"not null;index"`
	Quantity      int             `gorm:"not null"`
	TotalPrice    decimal.Decimal `gorm:"type:text;not null"`
	SaleDate      time.Time       `gorm:"not null;index"`
	SalesLocation *string
	CreatedAt     time.Time
}

func (saleRow) TableName() string { return "sales" }

type movementRow struct {
	ID           string    `gorm:"primaryKey"`
	ArticleID    string    `gorm:"not null;index"`
	Type         string    `gorm:"not null"`
	Quantity     int       `gorm:"not null"`
	MovementDate time.Time `gorm:"not null;index"`
	Notes        string
	CreatedAt    time.Time
}

func (movementRow) TableName() string { return "stock_movements" }

type fuelRow struct {
	ID             string          `gorm:"primaryKey"`
	SaleDate       time.Time       `gorm:"not null;index"`
	FuelType       string          `gorm:"not null"`
	QuantityLiters decimal.Decimal `gorm:"type:text;not null"`
	CreatedAt      time.Time
}

func (fuelRow) TableName() string { return "fuel_sales" }

type historicalRow struct {
	ID        uint            `gorm:"primaryKey"`
	Month     int             `gorm:"not null;uniqueIndex:idx_historical_cell"`
	Year      int             `gorm:"not null;uniqueIndex:idx_historical_cell"`
	Category  string          `gorm:"not null;uniqueIndex:idx_historical_cell"`
	Amount    decimal.Decimal `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (historicalRow) TableName() string { return "historical_sales" }

type commitRow struct {
	ID        string              `gorm:"primaryKey"`
	Status    string              `gorm:"not null"`
	SaleDate  time.Time           `gorm:"not null"`
	Lines     []domain.CommitLine `gorm:"serializer:json"`
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (commitRow) TableName() string { return "sale_commits" }

type userRow struct {
	Username  string `gorm:"primaryKey"`
	Password  string `gorm:"not null"`
	Role      string `gorm:"not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "app_users" }

// toArticleRow folds the name in Go: SQLite's LOWER only handles ASCII, so
// "ÉPONGE" would never match "éponge" in SQL.
func toArticleRow(a domain.Article) articleRow {
	return articleRow{
		ID:           a.ID,
		Name:         a.Name,
		NameLower:    strings.ToLower(a.Name),
		Category:     a.Category,
		Type:         string(a.Type),
		Price:        a.Price,
		InitialStock: a.InitialStock,
		CurrentStock: a.CurrentStock,
	}
}

func (r articleRow) toDomain() domain.Article {
	return domain.Article{
		ID:           r.ID,
		Name:         r.Name,
		Category:     r.Category,
		Type:         domain.ArticleType(r.Type),
		Price:        r.Price,
		InitialStock: r.InitialStock,
		CurrentStock: r.CurrentStock,
	}
}

func toSaleRow(s domain.SaleRecord) saleRow {
	row := saleRow{
		ID:         s.ID,
		CommitID:   s.CommitID,
		ArticleID:  s.ArticleID,
		Quantity:   s.Quantity,
		TotalPrice: s.TotalPrice,
		SaleDate:   s.SaleDate.UTC(),
		CreatedAt:  s.CreatedAt.UTC(),
	}
	if s.SalesLocation != nil {
		loc := string(*s.SalesLocation)
		row.SalesLocation = &loc
	}
	return row
}

func (r saleRow) toDomain() domain.SaleRecord {
	sale := domain.SaleRecord{
		ID:         r.ID,
		CommitID:   r.CommitID,
		ArticleID:  r.ArticleID,
		Quantity:   r.Quantity,
		TotalPrice: r.TotalPrice,
		SaleDate:   r.SaleDate.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.SalesLocation != nil {
		loc := domain.SalesLocation(*r.SalesLocation)
		sale.SalesLocation = &loc
	}
	return sale
}

func (r movementRow) toDomain() domain.StockMovement {
	return domain.StockMovement{
		ID:           r.ID,
		ArticleID:    r.ArticleID,
		Type:         domain.MovementType(r.Type),
		Quantity:     r.Quantity,
		MovementDate: r.MovementDate.UTC(),
		Notes:        r.Notes,
	}
}

func (r fuelRow) toDomain() domain.FuelVolumeEntry {
	return domain.FuelVolumeEntry{
		ID:             r.ID,
		SaleDate:       r.SaleDate.UTC(),
		FuelType:       domain.FuelType(r.FuelType),
		QuantityLiters: r.QuantityLiters,
	}
}

func (r commitRow) toDomain() domain.SaleCommit {
	return domain.SaleCommit{
		ID:        r.ID,
		Status:    domain.CommitStatus(r.Status),
		SaleDate:  r.SaleDate.UTC(),
		Lines:     r.Lines,
		Error:     r.Error,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
