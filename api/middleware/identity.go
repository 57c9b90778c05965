package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-cart/api/responses"
	"github.com/angelmondragon/packfinderz-cart/pkg/auth"
	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

// UserIDHeader carries the caller identity resolved by the upstream auth gateway.
const UserIDHeader = "X-User-Id"

const maxUserIDLength = 128

// Identity resolves the cart owner and attaches it to the request context.
// A bearer token wins over the gateway header when JWT verification is enabled.
func Identity(logg *logger.Logger, jwtCfg config.JWTConfig) func(http.Handler) http.Handler {
	var verifier *auth.Verifier
	if jwtCfg.Enabled() {
		// NewVerifier only fails without a secret, which Enabled already rules out.
		verifier, _ = auth.NewVerifier(jwtCfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID, err := resolveUserID(r, verifier)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = WithUserID(ctx, userID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveUserID(r *http.Request, verifier *auth.Verifier) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok && verifier != nil {
		claims, err := verifier.Verify(token)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
		}
		userID = strings.TrimSpace(claims.Identity())
	}

	switch {
	case userID == "":
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	case len(userID) > maxUserIDLength:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user identity too long")
	}
	return userID, nil
}
