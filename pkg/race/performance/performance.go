// Package performance computes the value a participant reaches in a lap.
package performance

import (
	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/boost"
	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
)

// each boost step adds 8 percent
const boostStepPercent = 8

func Multiplier(boostValue int) float64 {
	return 1.0 + float64(boostStepPercent*boostValue)/100.0
}

// Compute combines the stats of the car for the given lap characteristic, caps the
// sum at the sector ceiling and applies the boost multiplier.
//
//nolint:whitespace // can't make both editor and linter happy
func Compute(
	car *model.ValidatedCarData,
	lc model.LapCharacteristic,
	boostValue int,
	sector *model.Sector,
) (model.PerformanceBreakdown, error) {
	if !boost.ValidValue(boostValue) {
		return model.PerformanceBreakdown{},
			raceerr.New(raceerr.KindInvalidBoostValue, "", boostValue)
	}
	base := car.Engine.ValueFor(lc) + car.Body.ValueFor(lc) + car.Pilot.ValueFor(lc)
	capped := max(min(base, sector.MaxValue), 0)

	return model.PerformanceBreakdown{
		Characteristic:  lc,
		SectorIndex:     sector.Index,
		BaseValue:       base,
		SectorCeiling:   sector.MaxValue,
		CappedBaseValue: capped,
		BoostValue:      boostValue,
		Multiplier:      Multiplier(boostValue),
		FinalValue:      applyBoost(capped, boostValue),
	}, nil
}

// applyBoost rounds capped*multiplier half away from zero. The product is done in
// integer percent to keep the rounding exact.
func applyBoost(capped, boostValue int) int {
	scaled := capped * (100 + boostStepPercent*boostValue)
	return (scaled + 50) / 100
}
