package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usememos/saaskit/internal/apperr"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() Claims {
	return Claims{
		Email: "a@b.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(testSecret)
	token := sign(t, testSecret, validClaims())

	principal, err := a.Authenticate("Bearer "+token, "")
	require.NoError(t, err)
	assert.Equal(t, &Principal{UserID: "u1", Email: "a@b.com", Role: "authenticated"}, principal)

	principal, err = a.Authenticate("", "theme=dark; "+AccessTokenCookie+"="+token)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.UserID)
}

func TestAuthenticateRejects(t *testing.T) {
	a := NewAuthenticator(testSecret)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}
	noSubject := validClaims()
	noSubject.Subject = ""

	for name, header := range map[string]string{
		"missing":        "",
		"basic scheme":   "Basic dXNlcjpwYXNz",
		"wrong secret":   "Bearer " + sign(t, "another-secret", validClaims()),
		"expired":        "Bearer " + sign(t, testSecret, expired),
		"wrong audience": "Bearer " + sign(t, testSecret, wrongAudience),
		"no subject":     "Bearer " + sign(t, testSecret, noSubject),
		"garbage":        "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Authenticate(header, "")
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))
		})
	}

	_, err := NewAuthenticator("").Authenticate("Bearer "+sign(t, testSecret, validClaims()), "")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))
}
