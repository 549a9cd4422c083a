package identity

import "errors"

var (
	// ErrNoIdentity is returned when no verified identity is present in the
	// context.
	ErrNoIdentity = errors.New("identity: no verified identity in context")

	// ErrUnknownRole is returned when a capability check names a role that
	// is not defined.
	ErrUnknownRole = errors.New("identity: unknown role")

	// ErrCapabilityDenied is returned when a role does not hold a required
	// capability.
	ErrCapabilityDenied = errors.New("identity: capability denied")
)
