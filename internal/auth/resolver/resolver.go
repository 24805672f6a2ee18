package resolver

import (
	"context"

	"signin-service/internal/auth"
)

// Resolver determines which internal user an external identity belongs to,
// and records provider identities linked to a backend account.
type Resolver interface {
	Resolve(
		ctx context.Context,
		identity *auth.Identity,
	) (userID string, err error)

	// Link attaches identity to the user owning backend account accountID,
	// moving it if another user held it.
	Link(
		ctx context.Context,
		accountID string,
		identity *auth.Identity,
	) error
}
