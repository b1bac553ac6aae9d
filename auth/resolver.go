// Package auth resolves opaque bearer tokens into verified identities.
package auth

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
)

// Identity is the verified result attached to a connection for its whole
// lifetime.
type Identity struct {
	UserID      string
	DisplayName string
	Role        domain.Role
}

// Resolver gates every new connection. A missing token is rejected before
// any verification work; any verifier failure maps to ErrUnauthenticated
// with the raw cause logged, never leaked to the client.
type Resolver struct {
	verifier contract.AuthVerifier
	profiles contract.ProfileStore
	log      *slog.Logger
}

func NewResolver(verifier contract.AuthVerifier, profiles contract.ProfileStore, log *slog.Logger) *Resolver {
	return &Resolver{verifier: verifier, profiles: profiles, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, errors.ErrUnauthenticated
	}

	userID, email, err := r.verifier.VerifyToken(ctx, token)
	if err != nil {
		r.log.Debug("Token verification failed", "error", err)
		return Identity{}, errors.ErrUnauthenticated
	}

	// Defaults when no profile row exists: lowest-privilege tier, contact
	// address as display name. A profile fetch failure degrades the same
	// way rather than refusing the connection.
	identity := Identity{
		UserID:      userID,
		DisplayName: email,
		Role:        domain.RoleMember,
	}

	profile, err := r.profiles.GetProfile(ctx, userID)
	if err != nil {
		r.log.Warn("Profile fetch failed, using defaults", "user_id", userID, "error", err)
		return identity, nil
	}
	if profile != nil {
		if profile.DisplayName != "" {
			identity.DisplayName = profile.DisplayName
		}
		if profile.Role != "" {
			identity.Role = profile.Role
		}
	}

	return identity, nil
}
