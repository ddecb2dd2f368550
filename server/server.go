package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/usememos/saaskit/internal/profile"
	"github.com/usememos/saaskit/internal/provider"
	"github.com/usememos/saaskit/plugin/vectorstore"
	apiv1 "github.com/usememos/saaskit/server/router/api/v1"
	"github.com/usememos/saaskit/store"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	httpServer *http.Server
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, providers *provider.Registry, vectorStore *vectorstore.Store) (*Server, error) {
	s := &Server{
		Store:   store,
		Profile: profile,
		Secret:  profile.AuthJWTSecret,
	}
	if s.Secret == "" {
		return nil, errors.New("an auth JWT secret is required to serve the API")
	}

	echoServer := echo.New()
	echoServer.Use(middleware.Recover())
	echoServer.Use(requestLogger)
	s.echoServer = echoServer

	apiV1Service := apiv1.NewAPIV1Service(s.Secret, profile, store, providers)
	apiV1Service.VectorStore = vectorStore
	apiV1Service.RegisterGateway(ctx, echoServer)

	return s, nil
}

// Handler exposes the routes, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	s.httpServer = &http.Server{
		Handler:           s.echoServer,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", listener.Addr().String(), "mode", s.Profile.Mode)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to serve")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.Shutdown(context.WithoutCancel(ctx))
		return nil
	})
	return g.Wait()
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown server", slog.String("error", err.Error()))
		}
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
	slog.Info("server stopped properly")
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		requestID := c.Request().Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Response().Header().Set("X-Request-Id", requestID)
		start := time.Now()
		err := next(c)
		slog.Debug("request served",
			"id", requestID,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"elapsed", time.Since(start),
			"err", err,
		)
		return err
	}
}
