package records

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/myhealthchain/api/internal/domain/keys"
	"github.com/myhealthchain/api/internal/platform/auth"
	"github.com/myhealthchain/api/internal/platform/crypto"
	"github.com/myhealthchain/api/pkg/pagination"
)

type Handler struct {
	gw *Gateway
}

func NewHandler(gw *Gateway) *Handler {
	return &Handler{gw: gw}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	actors := auth.RequireRole(auth.RolePatient, auth.RoleDoctor, auth.RoleHospital)
	api.POST("/records", h.CreateRecord, actors)
	api.POST("/records/:id/read", h.ReadRecord, actors)
	api.GET("/records", h.ListRecords, actors)
	api.DELETE("/records/:id", h.DeleteRecord, auth.RequireRole(auth.RolePatient))
}

type createRecordRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Title     string    `json:"title"`
	// Content is base64; records are opaque bytes to this service.
	Content string `json:"content"`
	PIN     string `json:"pin"`
}

type recordResponse struct {
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Record  *Record `json:"record,omitempty"`
	Content string  `json:"content,omitempty"`
}

func (h *Handler) CreateRecord(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, recordResponse{Error: "invalid request body"})
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return c.JSON(http.StatusBadRequest, recordResponse{Error: "content must be base64"})
	}

	rec, err := h.gw.WriteRecord(c.Request().Context(), actor, req.PatientID, req.Title, content, req.PIN)
	if err != nil {
		return c.JSON(recordErrorStatus(err), recordResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, recordResponse{Success: true, Record: rec})
}

type readRecordRequest struct {
	PIN string `json:"pin"`
}

// ReadRecord is a POST: the PIN travels in the body, never in a URL that
// would land in access logs.
func (h *Handler) ReadRecord(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, recordResponse{Error: "invalid record id"})
	}
	var req readRecordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, recordResponse{Error: "invalid request body"})
	}

	plaintext, rec, err := h.gw.ReadRecord(c.Request().Context(), actor, id, req.PIN)
	if err != nil {
		return c.JSON(recordErrorStatus(err), recordResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, recordResponse{
		Success: true,
		Record:  rec,
		Content: base64.StdEncoding.EncodeToString(plaintext),
	})
}

func (h *Handler) ListRecords(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.gw.ListRecords(c.Request().Context(), actor, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(recordErrorStatus(err), recordResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	actor := auth.ActorFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, recordResponse{Error: "invalid record id"})
	}
	if err := h.gw.DeleteRecord(c.Request().Context(), actor, id); err != nil {
		return c.JSON(recordErrorStatus(err), recordResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, recordResponse{Success: true})
}

func recordErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrTitleTooLong),
		errors.Is(err, keys.ErrInvalidPIN):
		return http.StatusBadRequest
	case errors.Is(err, keys.ErrWrongPIN), errors.Is(err, keys.ErrNoPIN):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, crypto.ErrCiphertextTampered):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
