package ensemble

import "errors"

var (
	// ErrInvalidPoolSize is returned when the pool would hold no arms.
	ErrInvalidPoolSize = errors.New("pool size must be at least 1")
	// ErrUnknownStrategy is returned for an unrecognised acquisition function.
	ErrUnknownStrategy = errors.New("unknown acquisition strategy")
	// ErrUnknownReward is returned for an unrecognised reward strategy.
	ErrUnknownReward = errors.New("unknown reward strategy")
	// ErrNoVariants is returned when no scorer variant may be drawn.
	ErrNoVariants = errors.New("no detector variants enabled")
	// ErrSnapshotMismatch is returned when a snapshot does not fit the ensemble.
	ErrSnapshotMismatch = errors.New("snapshot does not match ensemble")
)
