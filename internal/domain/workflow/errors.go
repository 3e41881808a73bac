package workflow

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidState      = errors.New("invalid state")
	ErrGuardFailed       = errors.New("guard condition failed")

	// ErrUnknownTrigger is returned for an action outside the enumerated set
	ErrUnknownTrigger = errors.New("unknown workflow action")

	// ErrDuplicateEdge is returned by Build when a state has two edges for one trigger
	ErrDuplicateEdge = errors.New("duplicate transition")

	// ErrInconsistent is returned when a status disagrees with its approval records
	ErrInconsistent = errors.New("status inconsistent with approval records")
)
