package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	api.POST("/patients", h.RegisterPatient, auth.RequireRole(auth.RolePatient))
	api.GET("/patients/:id", h.GetPatient, auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleHospital))
	api.GET("/patients", h.ListPatients, auth.RequireRole(auth.RoleAdmin))
	api.GET("/patients/lookup/:uhid", h.LookupPatient, auth.RequireRole(auth.RoleDoctor, auth.RoleHospital))

	api.POST("/doctors", h.RegisterDoctor, auth.RequireRole(auth.RoleDoctor))
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors", h.ListDoctors)

	api.POST("/hospitals", h.RegisterHospital, auth.RequireRole(auth.RoleHospital))
	api.GET("/hospitals/:id", h.GetHospital)
	api.GET("/hospitals", h.ListHospitals)

	api.POST("/memberships", h.RequestMembership, auth.RequireRole(auth.RoleDoctor))
	api.POST("/memberships/:id/approve", h.ApproveMembership, auth.RequireRole(auth.RoleHospital))
	api.POST("/memberships/:id/reject", h.RejectMembership, auth.RequireRole(auth.RoleHospital))
	api.GET("/memberships", h.ListMemberships, auth.RequireRole(auth.RoleHospital))
}

type registerPatientRequest struct {
	FullName string `json:"full_name"`
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	var req registerPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.RegisterPatient(c.Request().Context(), actor.ID, req.FullName)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// LookupPatient resolves a UHID to a minimal patient identity. The handle is
// untrusted input; malformed handles are a 400, unknown ones a 404.
func (h *Handler) LookupPatient(c echo.Context) error {
	p, err := h.svc.ResolveUHID(c.Request().Context(), c.Param("uhid"))
	switch {
	case errors.Is(err, ErrInvalidUHID):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid UHID format")
	case errors.Is(err, ErrUnknownPatient):
		return echo.NewHTTPError(http.StatusNotFound, "unknown patient")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":        p.ID,
		"uhid":      p.UHID,
		"full_name": p.FullName,
	})
}

type registerDoctorRequest struct {
	FullName  string `json:"full_name"`
	Specialty string `json:"specialty"`
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	var req registerDoctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.RegisterDoctor(c.Request().Context(), actor.ID, req.FullName, req.Specialty)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type registerHospitalRequest struct {
	Name string `json:"name"`
}

func (h *Handler) RegisterHospital(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	var req registerHospitalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hosp, err := h.svc.RegisterHospital(c.Request().Context(), actor.ID, req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, hosp)
}

func (h *Handler) GetHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	hosp, err := h.svc.GetHospital(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	}
	return c.JSON(http.StatusOK, hosp)
}

func (h *Handler) ListHospitals(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListHospitals(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type requestMembershipRequest struct {
	HospitalID uuid.UUID `json:"hospital_id"`
}

func (h *Handler) RequestMembership(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	var req requestMembershipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.RequestMembership(c.Request().Context(), actor, req.HospitalID)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	case errors.Is(err, ErrDuplicateMembership):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ApproveMembership(c echo.Context) error {
	return h.decideMembership(c, true)
}

func (h *Handler) RejectMembership(c echo.Context) error {
	return h.decideMembership(c, false)
}

func (h *Handler) decideMembership(c echo.Context, approve bool) error {
	actor := auth.ActorFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.DecideMembership(c.Request().Context(), actor, id, approve)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "membership not found")
	case errors.Is(err, ErrNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMemberships(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMemberships(c.Request().Context(), actor.ID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
