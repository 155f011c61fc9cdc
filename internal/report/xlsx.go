// Package report renders the yearly comparison for download.
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"stationpos/backend/internal/domain"
)

const (
	ComparisonSheet = "Comparaison"
	FuelSheet       = "Carburant"
	ContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var hundred = decimal.NewFromInt(100)

var monthNames = [12]string{
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
}

func MonthName(month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprint(month)
	}
	return monthNames[month-1]
}

// Filename is the attachment name for a year's export.
func Filename(year int) string {
	return fmt.Sprintf("comparaison-%d.xlsx", year)
}

// WriteComparisonXLSX writes the revenue and fuel sheets of rep to w.
func WriteComparisonXLSX(w io.Writer, rep domain.ComparisonReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ComparisonSheet); err != nil {
		return err
	}
	headers := []any{"Mois", "Catégorie", fmt.Sprint(rep.Year), fmt.Sprint(rep.Year - 1), "Évolution %"}
	if err := f.SetSheetRow(ComparisonSheet, "A1", &headers); err != nil {
		return err
	}
	for i, row := range rep.Rows {
		values := []any{MonthName(row.Month), row.Category, row.Revenue.InexactFloat64(), "", ""}
		if prev := row.PreviousYearAmount; prev != nil {
			values[3] = prev.InexactFloat64()
			if !prev.IsZero() {
				change := row.Revenue.Sub(*prev).Div(*prev).Mul(hundred).Round(1)
				values[4] = change.InexactFloat64()
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ComparisonSheet, cell, &values); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(FuelSheet); err != nil {
		return err
	}
	fuelHeaders := []any{"Mois", "Gasoil (L)", "SSP (L)"}
	if err := f.SetSheetRow(FuelSheet, "A1", &fuelHeaders); err != nil {
		return err
	}
	for i, m := range rep.Fuel {
		values := []any{MonthName(m.Month), m.Gasoil.InexactFloat64(), m.SSP.InexactFloat64()}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(FuelSheet, cell, &values); err != nil {
			return err
		}
	}

	return f.Write(w)
}
