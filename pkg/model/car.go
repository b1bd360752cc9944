package model

import "fmt"

// LapCharacteristic decides whether the straight or the curve value of a component
// counts for a lap.
type LapCharacteristic int

const (
	Straight LapCharacteristic = iota + 1
	Curve
)

func (c LapCharacteristic) String() string {
	switch c {
	case Straight:
		return "straight"
	case Curve:
		return "curve"
	}
	return "unknown"
}

func (c LapCharacteristic) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *LapCharacteristic) UnmarshalText(b []byte) error {
	switch string(b) {
	case "straight":
		*c = Straight
	case "curve":
		*c = Curve
	case "unknown":
		// races that have not started yet
		*c = 0
	default:
		return fmt.Errorf("unknown lap characteristic %q", string(b))
	}
	return nil
}

// ComponentStats are the values of one car component (engine, body or pilot).
type ComponentStats struct {
	ID            string `json:"id"`
	StraightValue int    `json:"straightValue"`
	CurveValue    int    `json:"curveValue"`
}

func (c ComponentStats) ValueFor(lc LapCharacteristic) int {
	if lc == Curve {
		return c.CurveValue
	}
	return c.StraightValue
}

type Car struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ValidatedCarData is supplied by the caller after ownership and completeness of
// the car have been checked. The engine trusts these values.
type ValidatedCarData struct {
	Car    Car            `json:"car"`
	Engine ComponentStats `json:"engine"`
	Body   ComponentStats `json:"body"`
	Pilot  ComponentStats `json:"pilot"`
}
