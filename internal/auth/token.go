package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ms-booking/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authorization header is missing")
	ErrInvalidToken = errors.New("invalid token")
)

// ExtractTokenFromRequest extracts a bearer token from the Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// Claims covers both flat tokens ({sub, role}) and tokens that nest the user ({user: {id, role}}).
type Claims struct {
	Sub         string      `json:"sub"`
	Role        string      `json:"role"`
	User        UserClaim   `json:"user"`
	RealmAccess RealmAccess `json:"realm_access"`
}

type UserClaim struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type RealmAccess struct {
	Roles []string `json:"roles"`
}

// Principal resolves the caller, preferring the nested user object.
func (c Claims) Principal() (models.Principal, error) {
	p := models.Principal{ID: c.User.ID, Role: c.User.Role}
	if p.ID == "" {
		p.ID = c.Sub
	}
	if p.Role == "" {
		p.Role = c.Role
	}
	if p.Role == "" {
		p.Role = models.RoleUser
		for _, r := range c.RealmAccess.Roles {
			if r == models.RoleAdmin {
				p.Role = models.RoleAdmin
				break
			}
		}
	}
	if p.ID == "" {
		return models.Principal{}, fmt.Errorf("%w: subject claim not found", ErrInvalidToken)
	}
	return p, nil
}

// Verifier turns a raw bearer token into verified claims.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

// OIDCVerifier checks tokens against an OpenID Connect issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	// SkipClientIDCheck: tokens are issued to the frontend client, not to this service
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return Claims{}, fmt.Errorf("%w: failed to parse claims: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// HMACVerifier checks HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is empty")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

type hmacClaims struct {
	jwt.RegisteredClaims
	Role        string      `json:"role"`
	User        UserClaim   `json:"user"`
	RealmAccess RealmAccess `json:"realm_access"`
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (Claims, error) {
	var claims hmacClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return Claims{
		Sub:         claims.Subject,
		Role:        claims.Role,
		User:        claims.User,
		RealmAccess: claims.RealmAccess,
	}, nil
}

// SignHMAC issues an HS256 token. It exists for local tooling and tests; production tokens
// come from the identity provider.
func SignHMAC(secret string, claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
