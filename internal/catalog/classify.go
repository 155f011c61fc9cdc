package catalog

import (
	"strings"

	"stationpos/backend/internal/domain"
)

// Flags gate which entry fields are shown and which commit branch runs.
type Flags struct {
	IsService        bool `json:"is_service"`
	IsLocationTagged bool `json:"is_location_tagged"`
}

// nonInventoryCategories never decrement stock, whatever the article type.
var nonInventoryCategories = map[string]struct{}{
	domain.CategoryShop:            {},
	domain.CategoryCafe:            {},
	domain.CategoryBoschCarService: {},
	domain.CategoryLabor:           {},
	domain.CategoryTires:           {},
}

func Classify(article domain.Article) Flags {
	return ClassifyKind(article.Type, article.Category)
}

func ClassifyKind(articleType domain.ArticleType, category string) Flags {
	_, nonInventory := nonInventoryCategories[category]
	return Flags{
		IsService:        articleType == domain.ArticleTypeService || nonInventory,
		IsLocationTagged: category == domain.CategoryLubricants,
	}
}

// PriceEditable reports whether the operator may override the catalog price.
func PriceEditable(article domain.Article) bool {
	return Classify(article).IsService
}

// Reporting categories of the year comparison grid.
const (
	ReportShop         = "Shop"
	ReportCafe         = "Café"
	ReportBoschService = "Bosch Service"
	ReportLabor        = "Main d'oeuvre"
	ReportTires        = "Pneumatique"
	ReportLubePiste    = "Lubrifiant Piste"
	ReportLubeBosch    = "Lubrifiant Bosch"
	ReportOther        = "Autre"
)

var ReportingCategories = []string{
	ReportShop, ReportCafe, ReportBoschService, ReportLabor, ReportTires, ReportLubePiste, ReportLubeBosch,
}

// ReportingCategory maps a sale onto the comparison grid. Labor is matched
// on the article name first because labor lines are often filed under the
// workshop category.
func ReportingCategory(category string, location *domain.SalesLocation, articleName string) string {
	name := strings.ToLower(articleName)
	cat := strings.ToLower(strings.TrimSpace(category))

	switch {
	case strings.Contains(name, "main d'oeuvre"):
		return ReportLabor
	case cat == "shop":
		return ReportShop
	case cat == "café", cat == "cafe":
		return ReportCafe
	case strings.Contains(cat, "bosch service"), strings.Contains(cat, "bosch car service"), cat == "bosch_service":
		return ReportBoschService
	case strings.Contains(cat, "main d'oeuvre"):
		return ReportLabor
	case strings.Contains(cat, "pneumatique"):
		return ReportTires
	case strings.Contains(cat, "lubrifiant"):
		if (location != nil && *location == domain.LocationBosch) || strings.Contains(cat, "bosch") {
			return ReportLubeBosch
		}
		return ReportLubePiste
	}
	return ReportOther
}
