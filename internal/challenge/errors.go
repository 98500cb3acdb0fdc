package challenge

import "errors"

var (
	// ErrInvalidChallenge rejects create parameters that can never be valid.
	ErrInvalidChallenge = errors.New("invalid challenge")

	// ErrInvalidTransition means the challenge is in the wrong state for the
	// requested operation, or the caller is not allowed to perform it.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrExpiredChallenge is returned once the challenge passed its expiry
	// before being played.
	ErrExpiredChallenge = errors.New("challenge expired")

	ErrOutOfOrderRack     = errors.New("rack reported out of order")
	ErrInconsistentTotals = errors.New("rack totals are inconsistent")
)
