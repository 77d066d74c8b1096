package identity

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/audit"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/util"
)

// Resolver turns a handshake credential into an Identity. Missing or invalid
// credentials are admitted as a fresh guest rather than rejected.
type Resolver struct {
	verifier   CredentialVerifier
	newGuestID func() (string, error)
}

func NewResolver(verifier CredentialVerifier) *Resolver {
	return &Resolver{verifier: verifier, newGuestID: util.GenerateGuestID}
}

func (r *Resolver) Resolve(ctx context.Context, credential string) (model.Identity, error) {
	if credential != "" {
		if id, ok := r.verifier.Verify(credential); ok {
			return model.Authenticated(id), nil
		}
	}

	guestID, err := r.newGuestID()
	if err != nil {
		return model.Identity{}, err
	}

	if credential != "" {
		audit.Log(ctx, audit.Event{
			Type:       audit.EventGuestFallback,
			IdentityID: guestID,
			Details:    map[string]interface{}{"credential": util.TokenFingerprint(credential)},
		})
	} else {
		log.Debug().Str("identityId", guestID).Msg("no credential, admitting guest")
	}

	return model.Guest(guestID), nil
}
