package model

import "github.com/mpapenbr/boostrace/pkg/race/boost"

// UsageRecord is an append-only log entry of a used boost card.
type UsageRecord struct {
	Lap                   int  `json:"lap"`
	BoostValue            int  `json:"boostValue"`
	CycleNumber           int  `json:"cycleNumber"`
	CardsRemainingAfter   int  `json:"cardsRemainingAfter"`
	ReplenishmentOccurred bool `json:"replenishmentOccurred"`
}

type Participant struct {
	PlayerID         string          `json:"playerId"`
	CarID            string          `json:"carId"`
	PilotID          string          `json:"pilotId"`
	SectorIndex      int             `json:"currentSectorIndex"`
	PositionInSector int             `json:"positionInSector"`
	CurrentLap       int             `json:"currentLap"`
	CumulativeValue  int             `json:"cumulativeValue"`
	Finished         bool            `json:"finished"`
	FinishPosition   *int            `json:"finishPosition,omitempty"`
	BoostHand        *boost.Resource `json:"boostHand"`
	BoostHistory     []UsageRecord   `json:"boostHistory"`
}

func NewParticipant(playerID, carID, pilotID string, sector int) *Participant {
	return &Participant{
		PlayerID:     playerID,
		CarID:        carID,
		PilotID:      pilotID,
		SectorIndex:  sector,
		CurrentLap:   1,
		BoostHand:    boost.NewResource(),
		BoostHistory: make([]UsageRecord, 0),
	}
}

// PerformanceBreakdown keeps every intermediate value of a performance computation.
type PerformanceBreakdown struct {
	PlayerID        string            `json:"playerId"`
	Characteristic  LapCharacteristic `json:"characteristic"`
	SectorIndex     int               `json:"sectorIndex"`
	BaseValue       int               `json:"baseValue"`
	SectorCeiling   int               `json:"sectorCeiling"`
	CappedBaseValue int               `json:"cappedBaseValue"`
	BoostValue      int               `json:"boostValue"`
	Multiplier      float64           `json:"multiplier"`
	FinalValue      int               `json:"finalValue"`
}
