package keys

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/myhealthchain/api/internal/platform/auth"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	pin := api.Group("/keys", auth.RequireRole(auth.RolePatient))
	pin.POST("/pin", h.SetPIN)
	pin.GET("/pin", h.PINStatus)
	pin.POST("/pin/verify", h.VerifyPIN)
}

type setPINRequest struct {
	PIN string `json:"pin"`
}

// SetPIN sets or replaces the caller's PIN. The PIN is read from the request
// body, used for derivation, and never echoed back or logged.
func (h *Handler) SetPIN(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	var req setPINRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := h.mgr.SetPIN(c.Request().Context(), actor.Role, actor.ID, req.PIN)
	switch {
	case errors.Is(err, ErrInvalidPIN):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set PIN")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// VerifyPIN checks the caller's own PIN. The unwrapped key is discarded
// immediately; the endpoint only answers yes or no.
func (h *Handler) VerifyPIN(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	var req setPINRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	dek, err := h.mgr.VerifyAndUnwrap(c.Request().Context(), actor.ID, req.PIN)
	switch {
	case errors.Is(err, ErrInvalidPIN):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrWrongPIN):
		return c.JSON(http.StatusOK, map[string]any{"valid": false})
	case errors.Is(err, ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrNoPIN):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to verify PIN")
	}
	for i := range dek {
		dek[i] = 0
	}
	return c.JSON(http.StatusOK, map[string]any{"valid": true})
}

// PINStatus reports whether the caller has a PIN set, without revealing
// anything about the key material.
func (h *Handler) PINStatus(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	has, err := h.mgr.HasPIN(c.Request().Context(), actor.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to check PIN status")
	}
	return c.JSON(http.StatusOK, map[string]any{"pin_set": has})
}
