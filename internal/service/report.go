package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"stationpos/backend/internal/catalog"
	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/logx"
)

// Fuel volume rows written by a month closing, in liters.
const (
	ClosingGasoilVolume = "Gasoil Volume"
	ClosingSSPVolume    = "SSP Volume"
)

// ClosingCategories are the rows a month closing writes: every reporting
// category of the comparison grid plus the two fuel volumes.
var ClosingCategories = append(append([]string{}, catalog.ReportingCategories...), ClosingGasoilVolume, ClosingSSPVolume)

type monthCategory struct {
	month    int
	category string
}

// periodTotals is the sum of sales per (month, reporting category) and of
// fuel liters per month over a date range.
type periodTotals struct {
	revenue map[monthCategory]decimal.Decimal
	fuel    []domain.FuelMonth
}

func (s *Service) sumPeriod(ctx context.Context, from, to time.Time) (periodTotals, error) {
	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return periodTotals{}, err
	}
	articles, err := s.repo.ListArticles(ctx)
	if err != nil {
		return periodTotals{}, err
	}
	byID := make(map[string]domain.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}

	totals := periodTotals{revenue: make(map[monthCategory]decimal.Decimal)}
	for _, sale := range sales {
		article := byID[sale.ArticleID]
		category := catalog.ReportingCategory(article.Category, sale.SalesLocation, article.Name)
		key := monthCategory{month: int(sale.SaleDate.Month()), category: category}
		totals.revenue[key] = totals.revenue[key].Add(sale.TotalPrice)
		if category == catalog.ReportLubePiste || category == catalog.ReportLubeBosch {
			combined := monthCategory{month: key.month, category: HistoricalLubricants}
			totals.revenue[combined] = totals.revenue[combined].Add(sale.TotalPrice)
		}
	}

	fuel, err := s.repo.ListFuel(ctx, from, to)
	if err != nil {
		return periodTotals{}, err
	}
	totals.fuel = make([]domain.FuelMonth, 12)
	for i := range totals.fuel {
		totals.fuel[i].Month = i + 1
	}
	for _, e := range fuel {
		m := &totals.fuel[int(e.SaleDate.Month())-1]
		switch e.FuelType {
		case domain.FuelGasoil:
			m.Gasoil = m.Gasoil.Add(e.QuantityLiters)
		case domain.FuelSSP:
			m.SSP = m.SSP.Add(e.QuantityLiters)
		}
	}
	return totals, nil
}

// ComparisonReport sums a year's sales per month and reporting category,
// next to the amounts recorded for the previous year and the fuel volumes.
func (s *Service) ComparisonReport(ctx context.Context, year int) (domain.ComparisonReport, error) {
	if _, err := requireManager(ctx); err != nil {
		return domain.ComparisonReport{}, err
	}
	if year < 2000 || year > 2100 {
		return domain.ComparisonReport{}, invalid("year", "out of range")
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	totals, err := s.sumPeriod(ctx, from, from.AddDate(1, 0, 0))
	if err != nil {
		return domain.ComparisonReport{}, err
	}

	previous, err := s.repo.ListHistorical(ctx, year-1)
	if err != nil {
		return domain.ComparisonReport{}, err
	}
	history := make(map[monthCategory]decimal.Decimal, len(previous))
	for _, h := range previous {
		history[monthCategory{month: h.Month, category: h.Category}] = h.Amount
	}
	// a closed month stores piste and bosch apart; rebuild the combined row
	for month := 1; month <= 12; month++ {
		combined := monthCategory{month: month, category: HistoricalLubricants}
		if _, ok := history[combined]; ok {
			continue
		}
		piste, okPiste := history[monthCategory{month: month, category: catalog.ReportLubePiste}]
		bosch, okBosch := history[monthCategory{month: month, category: catalog.ReportLubeBosch}]
		if okPiste || okBosch {
			history[combined] = piste.Add(bosch)
		}
	}

	categories := append(append([]string{}, catalog.ReportingCategories...), HistoricalLubricants)
	report := domain.ComparisonReport{Year: year, Fuel: totals.fuel}
	for month := 1; month <= 12; month++ {
		for _, category := range categories {
			key := monthCategory{month: month, category: category}
			row := domain.ComparisonRow{Month: month, Category: category, Revenue: totals.revenue[key]}
			if amount, ok := history[key]; ok {
				prev := amount
				row.PreviousYearAmount = &prev
			}
			report.Rows = append(report.Rows, row)
		}
	}
	return report, nil
}

// CloseMonth freezes a month into the historical table: the revenue of
// every reporting category and the fuel liters, one row each. Only
// positive totals are written. Closing the same month again overwrites
// the earlier rows.
func (s *Service) CloseMonth(ctx context.Context, year int, month int) (domain.MonthClosing, error) {
	if _, err := requireManager(ctx); err != nil {
		return domain.MonthClosing{}, err
	}
	if year < 2000 || year > 2100 {
		return domain.MonthClosing{}, invalid("year", "out of range")
	}
	if month < 1 || month > 12 {
		return domain.MonthClosing{}, invalid("month", "must be 1..12")
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	totals, err := s.sumPeriod(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return domain.MonthClosing{}, err
	}

	amounts := make(map[string]decimal.Decimal, len(ClosingCategories))
	for _, category := range catalog.ReportingCategories {
		amounts[category] = totals.revenue[monthCategory{month: month, category: category}]
	}
	amounts[ClosingGasoilVolume] = totals.fuel[month-1].Gasoil
	amounts[ClosingSSPVolume] = totals.fuel[month-1].SSP

	closing := domain.MonthClosing{Year: year, Month: month, Entries: []domain.HistoricalSalesEntry{}}
	for _, category := range ClosingCategories {
		if amount := amounts[category]; amount.IsPositive() {
			closing.Entries = append(closing.Entries, domain.HistoricalSalesEntry{
				Year:     year,
				Month:    month,
				Category: category,
				Amount:   amount,
			})
		}
	}
	if len(closing.Entries) == 0 {
		return closing, nil
	}

	if err := s.repo.UpsertHistorical(ctx, closing.Entries); err != nil {
		logx.Error(s.logger, "service", "CloseMonth", "upsert historical", map[string]int{"year": year, "month": month}, err)
		return domain.MonthClosing{}, &WriteFailure{Step: "save month closing", Err: err}
	}
	s.logger.WithFields(logrus.Fields{"year": year, "month": month, "rows": len(closing.Entries)}).Info("month closed")
	return closing, nil
}
