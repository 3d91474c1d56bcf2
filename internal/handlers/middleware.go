package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/prudhvinik1/cardsync/internal/services"
)

type ownerKeyCtx struct{}

// TokenVerifier resolves a bearer token to its claims.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*services.TokenClaims, error)
}

// OwnerMiddleware rejects requests without a valid token and stores the
// owner key in the request context. Browsers cannot set headers on
// EventSource or WebSocket requests, so the access_token query parameter is
// accepted as well.
func OwnerMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), ownerKeyCtx{}, claims.OwnerID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// OwnerFromContext returns the owner key set by OwnerMiddleware.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKeyCtx{}).(string)
	return owner, ok && owner != ""
}
