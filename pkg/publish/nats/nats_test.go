package nats

import (
	"testing"
)

func TestSubjects(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		raceID   string
		lap      string
		finished string
	}{
		{
			name:     "default prefix",
			prefix:   DefaultPrefix,
			raceID:   "r1",
			lap:      "brace.race.r1.lap",
			finished: "brace.race.r1.finished",
		},
		{
			name:     "custom prefix",
			prefix:   "test.brace",
			raceID:   "6f1c",
			lap:      "test.brace.race.6f1c.lap",
			finished: "test.brace.race.6f1c.finished",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LapSubject(tt.prefix, tt.raceID); got != tt.lap {
				t.Errorf("LapSubject() = %v, want %v", got, tt.lap)
			}
			if got := FinishedSubject(tt.prefix, tt.raceID); got != tt.finished {
				t.Errorf("FinishedSubject() = %v, want %v", got, tt.finished)
			}
		})
	}
}
