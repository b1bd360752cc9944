package model

type Movement struct {
	PlayerID   string       `json:"playerId"`
	FromSector int          `json:"fromSector"`
	ToSector   int          `json:"toSector"`
	Kind       MovementKind `json:"kind"`
}

// SectorPosition lists the occupants of a sector ordered by their position.
type SectorPosition struct {
	SectorIndex int      `json:"sectorIndex"`
	Players     []string `json:"players"`
}

type LapResult struct {
	LapNumber       int                    `json:"lapNumber"`
	Characteristic  LapCharacteristic      `json:"characteristic"`
	SectorPositions []SectorPosition       `json:"sectorPositions"`
	Movements       []Movement             `json:"movements"`
	Performances    []PerformanceBreakdown `json:"performances"`
	RaceFinished    bool                   `json:"raceFinished"`
}

// Standing is an entry of the final (or intermediate) classification.
type Standing struct {
	Position         int    `json:"position"`
	PlayerID         string `json:"playerId"`
	Finished         bool   `json:"finished"`
	SectorIndex      int    `json:"sectorIndex"`
	PositionInSector int    `json:"positionInSector"`
	CumulativeValue  int    `json:"cumulativeValue"`
}

// SubmitResult is either an ActionRecorded (Lap == nil) or a LapProcessed outcome.
type SubmitResult struct {
	Predicted  PerformanceBreakdown `json:"predicted"`
	WaitingFor []string             `json:"waitingFor,omitempty"`
	Lap        *LapResult           `json:"lap,omitempty"`
}

func (r *SubmitResult) LapProcessed() bool {
	return r.Lap != nil
}
