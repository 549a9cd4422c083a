package registry

import "errors"

var (
	// ErrTenantNotFound is returned when no tenant matches the identifier.
	ErrTenantNotFound = errors.New("registry: tenant not found")

	// ErrRegistryUnavailable is returned (wrapped) when the control-plane
	// store cannot be reached. Callers may retry at their own discretion;
	// the store itself never retries reads.
	ErrRegistryUnavailable = errors.New("registry: control-plane store unavailable")

	// ErrInvalidIdentifier is returned when the identifier is empty.
	ErrInvalidIdentifier = errors.New("registry: invalid tenant identifier")

	// ErrFailedToConnect is returned when the control-plane connection
	// cannot be established at startup.
	ErrFailedToConnect = errors.New("registry: failed to connect to control-plane store")

	// ErrFailedToParseConfig is returned when the control-plane connection
	// string cannot be parsed.
	ErrFailedToParseConfig = errors.New("registry: failed to parse control-plane config")

	// ErrFailedToApplyMigrations is returned when control-plane schema
	// migrations fail.
	ErrFailedToApplyMigrations = errors.New("registry: failed to apply control-plane migrations")

	// ErrHealthcheckFailed is returned when the control-plane connection
	// does not answer a ping.
	ErrHealthcheckFailed = errors.New("registry: healthcheck failed")
)
