package model

import "fmt"

type RaceStatus int

const (
	StatusWaiting RaceStatus = iota
	StatusInProgress
	StatusFinished
	StatusCancelled
)

var raceStatusNames = [...]string{"waiting", "in_progress", "finished", "cancelled"}

func (s RaceStatus) String() string {
	if int(s) >= 0 && int(s) < len(raceStatusNames) {
		return raceStatusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s RaceStatus) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

func (s RaceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RaceStatus) UnmarshalText(b []byte) error {
	for i, n := range raceStatusNames {
		if n == string(b) {
			*s = RaceStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown race status %q", string(b))
}

type MovementKind int

const (
	StayedInSector MovementKind = iota
	MovedUp
	MovedDown
	FinishedLap
	FinishedRace
)

var movementKindNames = [...]string{
	"stayed_in_sector", "moved_up", "moved_down", "finished_lap", "finished_race",
}

func (k MovementKind) String() string {
	if int(k) >= 0 && int(k) < len(movementKindNames) {
		return movementKindNames[k]
	}
	return fmt.Sprintf("movement(%d)", int(k))
}

func (k MovementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MovementKind) UnmarshalText(b []byte) error {
	for i, n := range movementKindNames {
		if n == string(b) {
			*k = MovementKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown movement kind %q", string(b))
}
