package report

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"stationpos/backend/internal/domain"
)

func TestWriteComparisonXLSX(t *testing.T) {
	prev := decimal.NewFromInt(200)
	rep := domain.ComparisonReport{
		Year: 2026,
		Rows: []domain.ComparisonRow{
			{Month: 1, Category: "Shop", Revenue: decimal.NewFromInt(250), PreviousYearAmount: &prev},
			{Month: 1, Category: "Café", Revenue: decimal.NewFromInt(40)},
		},
		Fuel: []domain.FuelMonth{
			{Month: 1, Gasoil: decimal.NewFromInt(1500), SSP: decimal.NewFromInt(800)},
		},
	}

	var buf bytes.Buffer
	if err := WriteComparisonXLSX(&buf, rep); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	cases := []struct {
		sheet string
		cell  string
		want  string
	}{
		{ComparisonSheet, "A1", "Mois"},
		{ComparisonSheet, "C1", "2026"},
		{ComparisonSheet, "D1", "2025"},
		{ComparisonSheet, "A2", "Janvier"},
		{ComparisonSheet, "C2", "250"},
		{ComparisonSheet, "D2", "200"},
		{ComparisonSheet, "E2", "25"},
		{ComparisonSheet, "B3", "Café"},
		{ComparisonSheet, "D3", ""},
		{FuelSheet, "B2", "1500"},
		{FuelSheet, "C2", "800"},
	}
	for _, tc := range cases {
		got, err := f.GetCellValue(tc.sheet, tc.cell)
		if err != nil {
			t.Fatalf("%s!%s: %v", tc.sheet, tc.cell, err)
		}
		if got != tc.want {
			t.Fatalf("%s!%s: expected %q, got %q", tc.sheet, tc.cell, tc.want, got)
		}
	}
}

func TestMonthName(t *testing.T) {
	if got := MonthName(8); got != "Août" {
		t.Fatalf("expected Août, got %s", got)
	}
	if got := MonthName(13); got != "13" {
		t.Fatalf("expected fallback 13, got %s", got)
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(2026); got != "comparaison-2026.xlsx" {
		t.Fatalf("unexpected filename %s", got)
	}
}
