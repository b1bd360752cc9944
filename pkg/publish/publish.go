// Package publish defines how resolved laps and final results leave the service.
package publish

import (
	"context"

	"github.com/mpapenbr/boostrace/pkg/model"
)

type Publisher interface {
	PublishLap(ctx context.Context, raceID string, lap *model.LapResult) error
	PublishFinished(ctx context.Context, raceID string, standings []model.Standing) error
}

type noop struct{}

// Noop returns a publisher that drops everything.
func Noop() Publisher {
	return noop{}
}

func (noop) PublishLap(context.Context, string, *model.LapResult) error { return nil }

func (noop) PublishFinished(context.Context, string, []model.Standing) error {
	return nil
}
