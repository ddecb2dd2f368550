// Package auth verifies the identity provider's access tokens on API requests.
package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/usememos/saaskit/internal/apperr"
)

// AccessTokenCookie is the cookie browsers may carry the access token in.
const AccessTokenCookie = "sb-access-token"

// Audience is the audience GoTrue issues access tokens for.
const Audience = "authenticated"

// Claims is the payload of a GoTrue access token.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the caller behind a verified access token.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

type Authenticator struct {
	secret []byte
}

// NewAuthenticator verifies HS256 tokens signed with the project's JWT secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate resolves the principal from an Authorization or Cookie header.
func (a *Authenticator) Authenticate(authHeader, cookieHeader string) (*Principal, error) {
	token := extractBearerToken(authHeader)
	if token == "" {
		token = extractCookieToken(cookieHeader)
	}
	if token == "" {
		return nil, apperr.Authentication("missing access token")
	}
	return a.Verify(token)
}

// Verify checks the signature, expiry and audience of token.
func (a *Authenticator) Verify(token string) (*Principal, error) {
	if len(a.secret) == 0 {
		return nil, apperr.Authentication("token verification is not configured")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, &apperr.Error{
			Kind:    apperr.KindAuthentication,
			Message: "invalid access token",
			Cause:   errors.Wrap(err, "failed to parse access token"),
		}
	}
	if claims.Subject == "" {
		return nil, apperr.Authentication("access token has no subject")
	}
	return &Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

func extractBearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func extractCookieToken(cookieHeader string) string {
	if cookieHeader == "" {
		return ""
	}
	header := http.Header{}
	header.Add("Cookie", cookieHeader)
	req := http.Request{Header: header}
	cookie, err := req.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
