package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the part of a bearer token the admin API cares about.
type Claims struct {
	Subject string
	Roles   []string
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// roleClaims covers Keycloak's realm_access.roles and a flat roles claim.
type roleClaims struct {
	Roles       []string `json:"roles"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (rc roleClaims) all() []string {
	return append(append([]string{}, rc.Roles...), rc.RealmAccess.Roles...)
}

// OIDCVerifier checks tokens against the issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider for %s: %w", issuer, err)
	}
	// SkipClientIDCheck: tokens are issued to the admin UI, not to this service
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var rc roleClaims
	if err := idToken.Claims(&rc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &Claims{Subject: idToken.Subject, Roles: rc.all()}, nil
}

// HMACVerifier accepts HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

type hmacClaims struct {
	roleClaims
	jwt.RegisteredClaims
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	var claims hmacClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject claim not found in token", ErrInvalidToken)
	}
	return &Claims{Subject: claims.Subject, Roles: claims.all()}, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	err := ErrInvalidToken
	for _, v := range c {
		claims, verr := v.Verify(ctx, rawToken)
		if verr == nil {
			return claims, nil
		}
		err = verr
	}
	return nil, err
}
