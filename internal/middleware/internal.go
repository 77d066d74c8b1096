package middleware

import (
	"net/http"

	"github.com/jojo-app/realtime-server-go/internal/audit"
	apperrors "github.com/jojo-app/realtime-server-go/internal/errors"
	"github.com/jojo-app/realtime-server-go/internal/httputil"
	"github.com/jojo-app/realtime-server-go/internal/util"
)

const InternalSecretHeader = "X-Internal-Secret"

// InternalSecretMiddleware guards service-to-service callbacks with a shared
// secret. An empty secret disables the routes entirely.
type InternalSecretMiddleware struct {
	secret string
}

func NewInternalSecretMiddleware(secret string) *InternalSecretMiddleware {
	return &InternalSecretMiddleware{secret: secret}
}

func (m *InternalSecretMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(InternalSecretHeader)
		if m.secret == "" || provided == "" || !util.ConstantTimeEqual(provided, m.secret) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventInternalForbidden,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			httputil.WriteError(w, apperrors.Forbidden("Invalid internal secret"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
