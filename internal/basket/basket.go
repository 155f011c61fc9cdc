package basket

import (
	"slices"

	"github.com/shopspring/decimal"

	"stationpos/backend/internal/catalog"
	"stationpos/backend/internal/domain"
)

// Line is one pending item of a sale. Price and location are captured at
// the moment the line is added.
type Line struct {
	ArticleID   string               `json:"article_id"`
	ArticleName string               `json:"article_name"`
	Category    string               `json:"category"`
	ArticleType domain.ArticleType   `json:"article_type"`
	Quantity    int                  `json:"quantity"`
	UnitPrice   decimal.Decimal      `json:"unit_price"`
	Location    domain.SalesLocation `json:"location,omitempty"`
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) Flags() catalog.Flags {
	return catalog.ClassifyKind(l.ArticleType, l.Category)
}

// Snapshot is an immutable copy of a basket handed to the commit pipeline.
type Snapshot struct {
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Basket is not safe for concurrent use; Draft serializes access.
type Basket struct {
	lines []Line
}

func New() *Basket {
	return &Basket{}
}

// AddLine appends a line or merges it into an existing line with the same
// article, location and price. It reports false and leaves the basket
// untouched when the input cannot form a valid line.
func (b *Basket) AddLine(article *domain.Article, qty int, price decimal.Decimal, location domain.SalesLocation) bool {
	if article == nil || article.ID == "" || qty <= 0 {
		return false
	}

	flags := catalog.Classify(*article)
	if !flags.IsService {
		price = article.Price
	}
	if price.IsNegative() {
		return false
	}

	if flags.IsLocationTagged {
		if location == "" {
			location = domain.LocationPiste
		}
		if !location.Valid() {
			return false
		}
	} else {
		location = ""
	}

	for i := range b.lines {
		line := &b.lines[i]
		if line.ArticleID == article.ID && line.Location == location && line.UnitPrice.Equal(price) {
			line.Quantity += qty
			return true
		}
	}

	b.lines = append(b.lines, Line{
		ArticleID:   article.ID,
		ArticleName: article.Name,
		Category:    article.Category,
		ArticleType: article.Type,
		Quantity:    qty,
		UnitPrice:   price,
		Location:    location,
	})
	return true
}

func (b *Basket) RemoveLine(index int) bool {
	if index < 0 || index >= len(b.lines) {
		return false
	}
	b.lines = slices.Delete(b.lines, index, index+1)
	return true
}

func (b *Basket) Lines() []Line {
	return slices.Clone(b.lines)
}

func (b *Basket) Len() int {
	return len(b.lines)
}

// Total is recomputed from the lines on every call.
func (b *Basket) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range b.lines {
		total = total.Add(line.Total())
	}
	return total
}

func (b *Basket) Snapshot() Snapshot {
	return Snapshot{Lines: slices.Clone(b.lines), Total: b.Total()}
}

func (b *Basket) Reset() {
	b.lines = nil
}
