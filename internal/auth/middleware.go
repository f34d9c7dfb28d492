package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type contextKey string

const principalKey contextKey = "principal"

// NewVerifier picks OIDC when an issuer is configured and HS256 otherwise.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	if cfg.OIDCIssuer != "" {
		return NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	}
	if cfg.JWTSecret != "" {
		return NewHMACVerifier(cfg.JWTSecret)
	}
	return nil, errors.New("neither OIDC_ISSUER nor JWT_SECRET is set")
}

// Middleware rejects requests without a valid bearer token and stores the caller's principal.
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", err.Error()))
				return
			}
			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid or expired token"))
				return
			}
			principal, err := claims.Principal()
			if err != nil {
				log.LogSecurity("INVALID_CLAIMS", err.Error())
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid token claims"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin must run after Middleware.
func RequireAdmin(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || !p.IsAdmin() {
				log.LogSecurity("ADMIN_REQUIRED", fmt.Sprintf("user %q denied %s %s", p.ID, r.Method, r.URL.Path))
				utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

// UserID is a shortcut for handlers that only need the caller's id.
func UserID(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.ID
}
