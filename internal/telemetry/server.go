package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/livecaption/internal/datastore"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
)

const (
	metricsPath      = "/metrics"
	defaultLatest    = 10
	maxLatest        = 100
	shutdownDeadline = 5 * time.Second
)

// StatusProvider reports the live session state
type StatusProvider interface {
	Status() Status
}

// UtteranceLister returns the most recent stored utterances
type UtteranceLister interface {
	Latest(limit int) ([]datastore.Utterance, error)
}

// Server serves metrics and session status over HTTP
type Server struct {
	echo       *echo.Echo
	listen     string
	status     StatusProvider
	utterances UtteranceLister
}

// GetLogger returns the telemetry package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// NewServer builds the HTTP server. utterances may be nil when no store is
// configured.
func NewServer(listen string, metrics *Metrics, status StatusProvider, utterances UtteranceLister) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, listen: listen, status: status, utterances: utterances}

	if reg := metrics.Registry(); reg != nil {
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	api := e.Group("/api/v1")
	api.GET("/health", s.getHealth)
	api.GET("/status", s.getStatus)
	api.GET("/utterances/latest", s.getLatestUtterances)
	return s
}

// Handler exposes the router for in-process tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("telemetry endpoint listening", logger.String("listen", s.listen))
		errCh <- s.echo.Start(s.listen)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New(err).
				Component("telemetry").
				Category(errors.CategoryNetwork).
				Context("operation", "listen").
				Context("listen", s.listen).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		GetLogger().Warn("telemetry shutdown failed", logger.Error(err))
	}
	<-errCh
	return nil
}

func (s *Server) getHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	if s.status == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "session not running")
	}
	return c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) getLatestUtterances(c echo.Context) error {
	if s.utterances == nil {
		return echo.NewHTTPError(http.StatusNotFound, "utterance store is not enabled")
	}

	limit := defaultLatest
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxLatest)
	}

	utterances, err := s.utterances.Latest(limit)
	if err != nil {
		GetLogger().Error("failed to list utterances", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list utterances")
	}
	if utterances == nil {
		utterances = []datastore.Utterance{}
	}
	return c.JSON(http.StatusOK, utterances)
}
