package host

import "errors"

// Common errors returned by host graph queries.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, host.ErrNodeNotFound) {
//	    // The node vanished before the event was processed
//	}
var (
	// ErrNodeNotFound is returned when a handle no longer refers to a live node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrPlugNotFound is returned when a node has no attribute with the given name.
	ErrPlugNotFound = errors.New("plug not found")

	// ErrPlugType is returned when a plug holds a value of a different type
	// than the one requested.
	ErrPlugType = errors.New("plug type mismatch")

	// ErrNotConnected is returned when disconnecting plugs that are not connected.
	ErrNotConnected = errors.New("plugs not connected")

	// ErrAlreadyConnected is returned when a destination plug already has a source.
	ErrAlreadyConnected = errors.New("destination plug already connected")

	// ErrSubscriptionFailed is returned when the host refuses an event subscription.
	ErrSubscriptionFailed = errors.New("event subscription failed")

	// ErrUnknownCallback is returned when revoking a callback id that is not live.
	ErrUnknownCallback = errors.New("unknown callback id")

	// ErrNoCanceler is returned when a Subscription was built without a cancel function.
	ErrNoCanceler = errors.New("subscription has no canceler")
)

// IsStale returns true if the error means the node or plug vanished while
// an event was in flight. Callers drop such events.
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNodeNotFound)
}
