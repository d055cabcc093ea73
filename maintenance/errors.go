package maintenance

import "errors"

// Errors returned by the maintenance package.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("retention service already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("retention service not started")
)
