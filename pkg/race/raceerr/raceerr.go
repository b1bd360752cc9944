// Package raceerr holds the error kinds reported by the race engine.
package raceerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInvalidBoostValue Kind = iota + 1
	KindCardUnavailable
	KindPlayerNotInRace
	KindPlayerAlreadyFinished
	KindDuplicateSubmission
	KindRaceNotInProgress
	KindRaceAlreadyStarted
	KindEmptyRosterOnStart
	KindDuplicatePlayer
	KindTrackInvalid
)

var kindNames = map[Kind]string{
	KindInvalidBoostValue:     "invalid boost value",
	KindCardUnavailable:       "card unavailable",
	KindPlayerNotInRace:       "player not in race",
	KindPlayerAlreadyFinished: "player already finished",
	KindDuplicateSubmission:   "duplicate submission",
	KindRaceNotInProgress:     "race not in progress",
	KindRaceAlreadyStarted:    "race already started",
	KindEmptyRosterOnStart:    "empty roster on start",
	KindDuplicatePlayer:       "duplicate player",
	KindTrackInvalid:          "track invalid",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// sentinels to be used with errors.Is
var (
	ErrInvalidBoostValue     = &Error{Kind: KindInvalidBoostValue}
	ErrCardUnavailable       = &Error{Kind: KindCardUnavailable}
	ErrPlayerNotInRace       = &Error{Kind: KindPlayerNotInRace}
	ErrPlayerAlreadyFinished = &Error{Kind: KindPlayerAlreadyFinished}
	ErrDuplicateSubmission   = &Error{Kind: KindDuplicateSubmission}
	ErrRaceNotInProgress     = &Error{Kind: KindRaceNotInProgress}
	ErrRaceAlreadyStarted    = &Error{Kind: KindRaceAlreadyStarted}
	ErrEmptyRosterOnStart    = &Error{Kind: KindEmptyRosterOnStart}
	ErrDuplicatePlayer       = &Error{Kind: KindDuplicatePlayer}
	ErrTrackInvalid          = &Error{Kind: KindTrackInvalid}
)

// Error carries the kind and the context needed to build a user facing message.
// Value is the offending input (boost value, status, sector index) if any.
type Error struct {
	Kind     Kind
	PlayerID string
	Value    any
	Detail   string
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.PlayerID != "" {
		msg = fmt.Sprintf("%s: player %s", msg, e.PlayerID)
	}
	if e.Value != nil {
		msg = fmt.Sprintf("%s (value: %v)", msg, e.Value)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// Is matches on the kind only, so errors.Is(err, ErrCardUnavailable) works for
// every instance carrying that kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, playerID string, value any) *Error {
	return &Error{Kind: kind, PlayerID: playerID, Value: value}
}

func Track(detail string, value any) *Error {
	return &Error{Kind: KindTrackInvalid, Value: value, Detail: detail}
}

// KindOf returns the kind of err or 0 if err is not a race error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
