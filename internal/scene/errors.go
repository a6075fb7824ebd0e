package scene

import "errors"

// Common errors returned by the synchronizer and session.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, scene.ErrSetup) {
//	    // Activation failed; nothing is subscribed
//	}
var (
	// ErrSetup is returned when activation could not register an event
	// subscription. Activation is aborted and every subscription already
	// made is revoked.
	ErrSetup = errors.New("scene synchronizer setup failed")

	// ErrAlreadyActive is returned when activating an active synchronizer.
	ErrAlreadyActive = errors.New("scene synchronizer already active")

	// ErrNotActive is returned when deactivating an inactive synchronizer
	// or using a closed session.
	ErrNotActive = errors.New("scene synchronizer not active")

	// ErrMissingDependency is returned when a collaborator is not set.
	ErrMissingDependency = errors.New("missing scene dependency")
)

// IsSetupFailure returns true if err means activation was aborted.
func IsSetupFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrSetup)
}
