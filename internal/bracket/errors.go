package bracket

import "errors"

var (
	ErrUnknownMatch = errors.New("unknown match")

	// ErrAlreadyAdvanced is returned when a match output is already set. A
	// duplicate advance is a no-op apart from this error.
	ErrAlreadyAdvanced = errors.New("match already advanced")

	ErrMatchNotReady   = errors.New("match is not ready")
	ErrNotInMatch      = errors.New("player is not part of this match")
	ErrAlreadyLinked   = errors.New("match already has a challenge")
	ErrSlotTaken       = errors.New("match slot already filled")
	ErrInvalidTopology = errors.New("invalid bracket topology")
)
