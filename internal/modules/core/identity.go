package core

import (
	"context"

	"github.com/google/uuid"
)

type ContextKey string

const IdentityContextKey ContextKey = "identity"

// ContextIdentity is the authenticated caller attached to every connection
// by the identity collaborator. The orchestrator trusts it as-is.
type ContextIdentity struct {
	UserID      uuid.UUID
	DisplayName string
}

func Identity(ctx context.Context) ContextIdentity {
	rawVal := ctx.Value(IdentityContextKey)

	if rawVal == nil {
		return ContextIdentity{}
	}

	identity, ok := rawVal.(ContextIdentity)
	if !ok {
		return ContextIdentity{}
	}

	return identity
}
