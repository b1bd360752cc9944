package simulate

import (
	"fmt"

	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/random"
)

type bot struct {
	id   string
	idle bool
	car  *model.ValidatedCarData
	rnd  random.Source
}

// newBots creates the players. The last idle players never submit.
func newBots(seed uint64, players, idle int) []*bot {
	rnd := random.New(seed + 1)
	ret := make([]*bot, players)
	for i := range players {
		id := fmt.Sprintf("bot-%d", i+1)
		ret[i] = &bot{
			id:   id,
			idle: i >= players-idle,
			car:  botCar(rnd, id),
			rnd:  rnd,
		}
	}
	return ret
}

func botCar(rnd random.Source, id string) *model.ValidatedCarData {
	comp := func(kind string) model.ComponentStats {
		return model.ComponentStats{
			ID:            fmt.Sprintf("%s-%s", id, kind),
			StraightValue: 2 + rnd.IntN(9),
			CurveValue:    2 + rnd.IntN(9),
		}
	}
	return &model.ValidatedCarData{
		Car:    model.Car{ID: "car-" + id, Name: "car of " + id},
		Engine: comp("engine"),
		Body:   comp("body"),
		Pilot:  comp("pilot"),
	}
}

// choose picks a random card of the available ones.
func (b *bot) choose(available []int) int {
	return available[b.rnd.IntN(len(available))]
}
