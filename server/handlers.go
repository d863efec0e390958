package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/dnmnsmith/Grbl-Esp32/model"
)

type healthzResponse struct {
	Status  string    `json:"status"`
	Started time.Time `json:"started"`
	Uptime  string    `json:"uptime"`
}

type setChannelRequest struct {
	On         bool   `json:"on"`
	DurationMs uint32 `json:"duration-ms,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, healthzResponse{
		Status:  "up",
		Started: s.started,
		Uptime:  humanize.Time(s.started),
	})
}

func (s *server) handleListChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Actuals())
}

func (s *server) handleGetChannel(c echo.Context) error {
	nr, err := strconv.Atoi(c.Param("channel"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "channel must be a number"})
	}
	ctrl, found := s.registry.ControllerByChannel(nr)
	if !found {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "channel is not configured"})
	}
	return c.JSON(http.StatusOK, ctrl.Actual())
}

func (s *server) handleSetChannel(c echo.Context) error {
	nr, err := strconv.Atoi(c.Param("channel"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "channel must be a number"})
	}
	var req setChannelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := s.dispatcher.SetAuxiliaryOutput(c.Request().Context(), nr, req.On, req.DurationMs); err != nil {
		if errors.Cause(err) == model.ValidationError {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		s.log.Error().Err(err).Int("channel", nr).Msg("channel command failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "channel command failed"})
	}
	ctrl, found := s.registry.ControllerByChannel(nr)
	if !found {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, ctrl.Actual())
}
