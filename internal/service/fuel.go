package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/logx"
	"stationpos/backend/internal/xid"
)

var cubicMeterLiters = decimal.NewFromInt(1000)

// FuelDayInput is one row of the bulk entry form, in liters.
type FuelDayInput struct {
	Date   time.Time
	Gasoil decimal.Decimal
	SSP    decimal.Decimal
}

func normalizeFuelType(raw domain.FuelType) (domain.FuelType, bool) {
	switch strings.ToLower(strings.TrimSpace(string(raw))) {
	case "gasoil":
		return domain.FuelGasoil, true
	case "ssp":
		return domain.FuelSSP, true
	}
	return "", false
}

// ToLiters converts a metered quantity. Accepted units are m3 and L.
func ToLiters(quantity decimal.Decimal, unit string) (decimal.Decimal, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "m3", "m³":
		return quantity.Mul(cubicMeterLiters), nil
	case "l":
		return quantity, nil
	}
	return decimal.Zero, invalid("unit", "expected m3 or L")
}

// RecordVolume writes one fuel ledger row. Resubmitting writes a duplicate.
func (s *Service) RecordVolume(ctx context.Context, fuelType domain.FuelType, quantity decimal.Decimal, unit string, date time.Time) (domain.FuelVolumeEntry, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.FuelVolumeEntry{}, err
	}
	ft, ok := normalizeFuelType(fuelType)
	if !ok {
		return domain.FuelVolumeEntry{}, invalid("fuel_type", "expected Gasoil or SSP")
	}
	if !quantity.IsPositive() {
		return domain.FuelVolumeEntry{}, invalid("quantity", "must be greater than zero")
	}
	liters, err := ToLiters(quantity, unit)
	if err != nil {
		return domain.FuelVolumeEntry{}, err
	}
	if date.IsZero() {
		date = s.today()
	}

	entry := domain.FuelVolumeEntry{
		ID:             xid.New("fuel"),
		SaleDate:       date,
		FuelType:       ft,
		QuantityLiters: liters,
	}
	if err := s.repo.InsertFuel(ctx, entry); err != nil {
		logx.Error(s.logger, "service", "RecordVolume", "insert fuel", entry, err)
		return domain.FuelVolumeEntry{}, &WriteFailure{Step: "record fuel volume", Err: err}
	}
	s.metrics.FuelRecorded(string(ft), liters.InexactFloat64())
	return entry, nil
}

// RecordVolumes writes every positive cell of the bulk form in one batch.
func (s *Service) RecordVolumes(ctx context.Context, days []FuelDayInput) ([]domain.FuelVolumeEntry, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	entries := make([]domain.FuelVolumeEntry, 0, len(days)*2)
	for _, day := range days {
		if day.Date.IsZero() {
			return nil, invalid("sale_date", "required for every row")
		}
		for _, cell := range []struct {
			fuelType domain.FuelType
			liters   decimal.Decimal
		}{
			{domain.FuelGasoil, day.Gasoil},
			{domain.FuelSSP, day.SSP},
		} {
			if !cell.liters.IsPositive() {
				continue
			}
			entries = append(entries, domain.FuelVolumeEntry{
				ID:             xid.New("fuel"),
				SaleDate:       day.Date,
				FuelType:       cell.fuelType,
				QuantityLiters: cell.liters,
			})
		}
	}
	if len(entries) == 0 {
		return nil, invalid("days", "no positive volume entered")
	}

	if err := s.repo.InsertFuel(ctx, entries...); err != nil {
		logx.Error(s.logger, "service", "RecordVolumes", "insert fuel batch", map[string]int{"entries": len(entries)}, err)
		return nil, &WriteFailure{Step: "record fuel volumes", Err: err}
	}
	for _, e := range entries {
		s.metrics.FuelRecorded(string(e.FuelType), e.QuantityLiters.InexactFloat64())
	}
	return entries, nil
}
