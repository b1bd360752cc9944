// Package racedata provides sample tracks and cars for tests.
package racedata

import (
	"fmt"

	"github.com/mpapenbr/boostrace/pkg/model"
)

// ScenarioTrack has a limited middle sector with a single slot.
func ScenarioTrack() *model.Track {
	return mustTrack(1, "scenario", []model.Sector{
		{MinValue: 0, MaxValue: 10, Kind: "straight"},
		{MinValue: 8, MaxValue: 15, Capacity: model.Cap(1), Kind: "curve"},
		{MinValue: 20, MaxValue: 30, Kind: "straight"},
	})
}

// Oval is a five sector track with two limited sectors.
func Oval() *model.Track {
	return mustTrack(2, "oval", []model.Sector{
		{MinValue: 0, MaxValue: 20, Kind: "straight"},
		{MinValue: 18, MaxValue: 30, Capacity: model.Cap(2), Kind: "curve"},
		{MinValue: 28, MaxValue: 40, Capacity: model.Cap(2), Kind: "straight"},
		{MinValue: 38, MaxValue: 50, Capacity: model.Cap(1), Kind: "curve"},
		{MinValue: 48, MaxValue: 60, Kind: "straight"},
	})
}

func mustTrack(id int, name string, sectors []model.Sector) *model.Track {
	t, err := model.NewTrack(id, name, sectors)
	if err != nil {
		panic(err)
	}
	return t
}

// Car returns car data where every component contributes the same values.
func Car(id string, straight, curve int) *model.ValidatedCarData {
	comp := func(kind string) model.ComponentStats {
		return model.ComponentStats{
			ID:            fmt.Sprintf("%s-%s", id, kind),
			StraightValue: straight,
			CurveValue:    curve,
		}
	}
	return &model.ValidatedCarData{
		Car:    model.Car{ID: id, Name: "car " + id},
		Engine: comp("engine"),
		Body:   comp("body"),
		Pilot:  comp("pilot"),
	}
}

// CarWithBase returns car data whose straight and curve base value equals base.
func CarWithBase(id string, base int) *model.ValidatedCarData {
	ret := Car(id, 0, 0)
	ret.Engine.StraightValue = base
	ret.Engine.CurveValue = base
	return ret
}
