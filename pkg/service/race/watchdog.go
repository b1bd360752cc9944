package race

import (
	"context"
	"errors"
	"time"

	"github.com/mpapenbr/boostrace/log"
	"github.com/mpapenbr/boostrace/pkg/model"
	"github.com/mpapenbr/boostrace/pkg/race/raceerr"
)

// Sweep auto-submits the lowest available card for every race whose current lap
// is pending longer than the lap timeout. It returns the number of races that
// got auto submissions. Nothing happens if no lap timeout is configured.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	if s.lapTimeout <= 0 {
		return 0, nil
	}
	ids, err := s.repos.Race().LoadIDs(ctx, model.StatusInProgress)
	if err != nil {
		return 0, err
	}
	l := s.log.Named("watchdog")
	count := 0
	for _, id := range ids {
		if !s.lapExpired(id) {
			continue
		}
		players, err := s.AutoSubmit(ctx, id)
		if err != nil {
			// the race may have ended since the ids were loaded
			if errors.Is(err, raceerr.ErrRaceNotInProgress) {
				continue
			}
			l.Warn("auto submit failed", log.String("race", id), log.ErrorField(err))
			continue
		}
		l.Info("lap timed out",
			log.String("race", id),
			log.Any("autoSubmitted", players))
		count++
	}
	return count, nil
}

// lapExpired reports if the current lap of the race is pending too long. Races
// not seen before start their timer now.
func (s *Service) lapExpired(raceID string) bool {
	e := s.lookup.get(raceID)
	e.mutex.Lock()
	defer e.mutex.Unlock()
	now := s.clock()
	if e.lapStarted.IsZero() {
		e.lapStarted = now
		return false
	}
	return now.Sub(e.lapStarted) >= s.lapTimeout
}

// RunWatchdog calls Sweep every interval until ctx is done.
func (s *Service) RunWatchdog(ctx context.Context, interval time.Duration) {
	if s.lapTimeout <= 0 || interval <= 0 {
		return
	}
	l := s.log.Named("watchdog")
	l.Info("watchdog started",
		log.Duration("interval", interval),
		log.Duration("lapTimeout", s.lapTimeout))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Debug("watchdog stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				l.Warn("sweep failed", log.ErrorField(err))
			}
		}
	}
}
