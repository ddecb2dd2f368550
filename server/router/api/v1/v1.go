package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/profile"
	"github.com/usememos/saaskit/internal/provider"
	"github.com/usememos/saaskit/plugin/agno"
	"github.com/usememos/saaskit/plugin/vectorstore"
	"github.com/usememos/saaskit/server/auth"
	"github.com/usememos/saaskit/store"
)

// AgentLister lists the agents of an agent endpoint.
type AgentLister interface {
	ListAgents(ctx context.Context) ([]agno.Agent, error)
}

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	// Secret verifies the identity provider's access tokens.
	Secret    string
	Providers *provider.Registry
	// VectorStore is nil when no embedding endpoint is configured.
	VectorStore *vectorstore.Store
	// Agents is nil when no agent endpoint is configured.
	Agents AgentLister

	authenticator *auth.Authenticator
}

func NewAPIV1Service(secret string, profile *profile.Profile, store *store.Store, providers *provider.Registry) *APIV1Service {
	s := &APIV1Service{
		Profile:       profile,
		Store:         store,
		Secret:        secret,
		Providers:     providers,
		authenticator: auth.NewAuthenticator(secret),
	}
	if providers != nil && providers.Agno != nil {
		s.Agents = providers.Agno
	}
	return s
}

// RegisterGateway registers the API routes on echo.
func (s *APIV1Service) RegisterGateway(_ context.Context, e *echo.Echo) {
	e.GET("/healthz", s.healthz)
	s.registerChatRoutes(e)
}

func (*APIV1Service) healthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth resolves the caller from the bearer token or the access token cookie.
func (s *APIV1Service) requireAuth(c *echo.Context) (*auth.Principal, error) {
	principal, err := s.authenticator.Authenticate(
		c.Request().Header.Get("Authorization"),
		c.Request().Header.Get("Cookie"),
	)
	if err != nil || principal == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return principal, nil
}

// toHTTPError maps domain errors to the status their kind calls for.
func toHTTPError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
}
