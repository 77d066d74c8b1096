package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jojo-app/realtime-server-go/internal/audit"
	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/httputil"
	"github.com/jojo-app/realtime-server-go/internal/identity"
	"github.com/jojo-app/realtime-server-go/internal/model"
	"github.com/jojo-app/realtime-server-go/internal/util"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

func GetIdentity(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(model.Identity)
	return id, ok
}

// AuthMiddleware requires a valid credential. Unlike the realtime handshake
// it never falls back to a guest identity.
type AuthMiddleware struct {
	verifier identity.CredentialVerifier
}

func NewAuthMiddleware(verifier identity.CredentialVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		id, ok := m.verifier.Verify(token)
		if !ok {
			log.Warn().Str("path", r.URL.Path).Msg("auth middleware: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"tokenFingerprint": util.TokenFingerprint(token)},
			})
			httputil.WriteError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		ctx := WithIdentity(r.Context(), model.Authenticated(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractToken reads the credential from ?token= or a Bearer header.
func ExtractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
