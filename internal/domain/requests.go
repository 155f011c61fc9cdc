package domain

import "github.com/shopspring/decimal"

// Request payloads accepted by the HTTP layer. Dates are YYYY-MM-DD.

type SaleLineRequest struct {
	ArticleID string           `json:"article_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	Price     *decimal.Decimal `json:"price"`
	Location  SalesLocation    `json:"sales_location" validate:"omitempty,oneof=piste bosch"`
}

type SaleRequest struct {
	TerminalID string            `json:"terminal_id" validate:"required,max=64"`
	SaleDate   string            `json:"sale_date" validate:"omitempty,datetime=2006-01-02"`
	Lines      []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type EditSaleRequest struct {
	Quantity      int           `json:"quantity" validate:"gt=0"`
	SaleDate      string        `json:"sale_date" validate:"omitempty,datetime=2006-01-02"`
	SalesLocation SalesLocation `json:"sales_location" validate:"omitempty,oneof=piste bosch"`
}

type FuelSaleRequest struct {
	FuelType FuelType        `json:"fuel_type" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit" validate:"required"`
	SaleDate string          `json:"sale_date" validate:"omitempty,datetime=2006-01-02"`
}

type FuelDayRequest struct {
	SaleDate string          `json:"sale_date" validate:"required,datetime=2006-01-02"`
	Gasoil   decimal.Decimal `json:"gasoil"`
	SSP      decimal.Decimal `json:"ssp"`
}

type FuelBulkRequest struct {
	Days []FuelDayRequest `json:"days" validate:"required,min=1,dive"`
}

type HistoricalSaveRequest struct {
	Year  int              `json:"year" validate:"required,gte=2000,lte=2100"`
	Cells []HistoricalCell `json:"cells" validate:"dive"`
}

type CloseMonthRequest struct {
	Year  int `json:"year" validate:"required,gte=2000,lte=2100"`
	Month int `json:"month" validate:"required,gte=1,lte=12"`
}

type DeliveryItemRequest struct {
	ArticleID string `json:"article_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type DeliveryRequest struct {
	Date      string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference string                `json:"reference" validate:"required,max=64"`
	Supplier  string                `json:"supplier" validate:"max=128"`
	Items     []DeliveryItemRequest `json:"items" validate:"required,min=1,dive"`
}

type DeliveryReport struct {
	Reference string       `json:"reference"`
	State     CommitStatus `json:"state"`
	Lines     []CommitLine `json:"lines"`
}

type ManualMovementRequest struct {
	ArticleID string       `json:"article_id" validate:"required"`
	Type      MovementType `json:"type" validate:"required,oneof=in out"`
	Quantity  int          `json:"quantity" validate:"gt=0"`
	Notes     string       `json:"notes" validate:"max=256"`
}
