package stimulus

import "errors"

var (
	// ErrDiscoveryFailed is returned when a source cannot list its items.
	ErrDiscoveryFailed = errors.New("stimulus discovery failed")
	// ErrNoSource is returned by a Builder without a source.
	ErrNoSource = errors.New("no stimulus source configured")
)
