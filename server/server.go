package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dnmnsmith/Grbl-Esp32/service/userio"
)

var maskAny = errors.WithStack

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
}

// Server runs the HTTP surface of the worker: health, metrics, and a
// small channel command/query API.
type Server interface {
	// Run the HTTP server until the given context is canceled.
	Run(ctx context.Context) error
}

// NewServer creates a new server around the given dispatcher and
// registry.
func NewServer(conf Config, dispatcher *userio.Dispatcher, registry *userio.Registry, log zerolog.Logger) (Server, error) {
	return &server{
		Config:     conf,
		log:        log.With().Str("component", "server").Logger(),
		dispatcher: dispatcher,
		registry:   registry,
		started:    time.Now(),
	}, nil
}

type server struct {
	Config
	log        zerolog.Logger
	dispatcher *userio.Dispatcher
	registry   *userio.Registry
	started    time.Time
}

// Run the HTTP server until the given context is canceled.
func (s *server) Run(ctx context.Context) error {
	httpRouter := echo.New()
	httpRouter.HideBanner = true
	httpRouter.HidePort = true
	httpRouter.GET("/healthz", s.handleHealthz)
	httpRouter.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	httpRouter.GET("/v1/channels", s.handleListChannels)
	httpRouter.GET("/v1/channels/:channel", s.handleGetChannel)
	httpRouter.POST("/v1/channels/:channel", s.handleSetChannel)

	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	s.log.Info().Str("address", addr).Msg("HTTP server listening")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpRouter.Start(addr); err != nil && err != http.ErrServerClosed {
			return maskAny(err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return httpRouter.Shutdown(sctx)
	})
	return g.Wait()
}
