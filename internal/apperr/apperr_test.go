package apperr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(Upstream(500, "Internal Server Error", "boom"), "agno streaming error")

	require.Equal(t, KindUpstream, KindOf(err))
	assert.True(t, errors.Is(err, &Error{Kind: KindUpstream}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNetwork}))
	assert.Equal(t, "boom", Message(err))
	assert.Equal(t, "agno streaming error: boom", err.Error())
}

func TestNetworkErrorHasNoStatus(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Network("Cannot connect", cause)

	assert.Equal(t, 0, err.StatusCode)
	assert.Equal(t, "Cannot connect", err.Hint)
	assert.True(t, errors.Is(err, cause))
}

func TestAuthenticationDefaultMessage(t *testing.T) {
	assert.Equal(t, "Authentication failed", Authentication("").Error())
	assert.Equal(t, "Invalid login credentials", Authentication("Invalid login credentials").Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		InvalidInput("x"):         http.StatusBadRequest,
		Authentication("x"):       http.StatusUnauthorized,
		Upstream(404, "", "x"):    http.StatusBadGateway,
		Network("x", nil):         http.StatusServiceUnavailable,
		errors.New("unclassified"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestMessageOfPlainError(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "plain", Message(errors.New("plain")))
}
