package consent

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/myhealthchain/api/internal/domain/identity"
	"github.com/myhealthchain/api/internal/domain/keys"
	"github.com/myhealthchain/api/internal/platform/auth"
	"github.com/myhealthchain/api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/grants", h.RequestGrant, auth.RequireRole(auth.RoleDoctor, auth.RoleHospital))
	api.POST("/grants/:id/approve", h.ApproveGrant, auth.RequireRole(auth.RolePatient, auth.RoleHospital))
	api.POST("/grants/:id/reject", h.RejectGrant, auth.RequireRole(auth.RolePatient, auth.RoleHospital))
	api.GET("/grants", h.ListGrants, auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleHospital))
	api.GET("/grants/:id", h.GetGrant, auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleHospital))
}

// grantResponse is the {success, error?} envelope fixed by the external
// contract, carrying the grant on success.
type grantResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Grant   *Grant `json:"grant,omitempty"`
}

func (h *Handler) RequestGrant(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	var in RequestGrantInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, grantResponse{Error: "invalid request body"})
	}

	g, err := h.svc.RequestGrant(c.Request().Context(), actor, in)
	if err != nil {
		return c.JSON(grantErrorStatus(err), grantResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, grantResponse{Success: true, Grant: g})
}

type decideGrantRequest struct {
	PIN string `json:"pin,omitempty"`
}

func (h *Handler) ApproveGrant(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, grantResponse{Error: "invalid grant id"})
	}
	var req decideGrantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, grantResponse{Error: "invalid request body"})
	}

	g, err := h.svc.Approve(c.Request().Context(), actor, id, req.PIN)
	if err != nil {
		return c.JSON(grantErrorStatus(err), grantResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, grantResponse{Success: true, Grant: g})
}

func (h *Handler) RejectGrant(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, grantResponse{Error: "invalid grant id"})
	}

	g, err := h.svc.Reject(c.Request().Context(), actor, id)
	if err != nil {
		return c.JSON(grantErrorStatus(err), grantResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, grantResponse{Success: true, Grant: g})
}

func (h *Handler) GetGrant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grant id")
	}
	actor := auth.ActorFromContext(c.Request().Context())
	g, err := h.svc.GetGrant(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "grant not found")
	}
	// Only parties to the grant may see it.
	if actor.Role != auth.RoleAdmin && actor.ID != g.PatientID && actor.ID != g.GranteeID &&
		(g.HospitalID == nil || actor.ID != *g.HospitalID) {
		return echo.NewHTTPError(http.StatusNotFound, "grant not found")
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) ListGrants(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListGrants(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// grantErrorStatus maps ledger errors to HTTP statuses. Authorization
// failures look like missing grants so callers cannot enumerate.
func grantErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrInvalidTTL),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, identity.ErrInvalidUHID),
		errors.Is(err, keys.ErrInvalidPIN):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrUnknownPatient):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateActiveGrant), errors.Is(err, ErrNotPending),
		errors.Is(err, keys.ErrNoPIN):
		return http.StatusConflict
	case errors.Is(err, keys.ErrWrongPIN):
		return http.StatusUnauthorized
	case errors.Is(err, keys.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotAuthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
