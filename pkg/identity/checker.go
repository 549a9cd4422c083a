package identity

import "slices"

// Checker answers capability questions about a role. It exists so tenant
// resolution can consult access policy without the policy logic living in
// the connection-routing path.
type Checker interface {
	// Allow returns ErrCapabilityDenied if the role does not hold the
	// capability, ErrUnknownRole if the role is not defined.
	Allow(role, capability string) error
}

// staticChecker is an immutable role→capabilities table. The map is copied
// at construction and never mutated, so lookups need no locking.
type staticChecker struct {
	capabilities map[string][]string
}

// NewStaticChecker builds a Checker from a role→capabilities map. Input
// slices are copied defensively.
func NewStaticChecker(roles map[string][]string) Checker {
	caps := make(map[string][]string, len(roles))
	for role, list := range roles {
		caps[role] = slices.Clone(list)
	}
	return &staticChecker{capabilities: caps}
}

func (c *staticChecker) Allow(role, capability string) error {
	list, ok := c.capabilities[role]
	if !ok {
		return ErrUnknownRole
	}
	if !slices.Contains(list, capability) {
		return ErrCapabilityDenied
	}
	return nil
}
