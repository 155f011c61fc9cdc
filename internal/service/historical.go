package service

import (
	"context"
	"fmt"

	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/logx"
)

// Historical grid categories, as entered month by month for past years.
// Closed months write ClosingCategories instead; SaveMonth accepts only
// this grid so hand entry cannot overwrite a closing row.
const HistoricalLubricants = "Lubrifiants"

var HistoricalCategories = []string{"Shop", "Café", "Bosch Service", "Pneumatique", HistoricalLubricants}

func isHistoricalCategory(category string) bool {
	for _, c := range HistoricalCategories {
		if c == category {
			return true
		}
	}
	return false
}

// SaveMonth upserts every touched cell of the year grid. Untouched cells
// (nil amount) are skipped; an explicit zero is written.
func (s *Service) SaveMonth(ctx context.Context, year int, cells []domain.HistoricalCell) ([]domain.HistoricalSalesEntry, error) {
	if _, err := requireManager(ctx); err != nil {
		return nil, err
	}
	if year < 2000 || year > 2100 {
		return nil, invalid("year", "out of range")
	}

	entries := make([]domain.HistoricalSalesEntry, 0, len(cells))
	for i, cell := range cells {
		if cell.Amount == nil {
			continue
		}
		field := fmt.Sprintf("cells[%d]", i)
		if cell.Month < 1 || cell.Month > 12 {
			return nil, invalid(field, "month must be 1..12")
		}
		if !isHistoricalCategory(cell.Category) {
			return nil, invalid(field, fmt.Sprintf("unknown category %q", cell.Category))
		}
		if cell.Amount.IsNegative() {
			return nil, invalid(field, "amount cannot be negative")
		}
		entries = append(entries, domain.HistoricalSalesEntry{
			Year:     year,
			Month:    cell.Month,
			Category: cell.Category,
			Amount:   *cell.Amount,
		})
	}
	if len(entries) == 0 {
		return entries, nil
	}

	if err := s.repo.UpsertHistorical(ctx, entries); err != nil {
		logx.Error(s.logger, "service", "SaveMonth", "upsert historical", map[string]int{"year": year, "cells": len(entries)}, err)
		return nil, &WriteFailure{Step: "save historical sales", Err: err}
	}
	return entries, nil
}

func (s *Service) HistoricalYear(ctx context.Context, year int) ([]domain.HistoricalSalesEntry, error) {
	if _, err := requireManager(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListHistorical(ctx, year)
}
