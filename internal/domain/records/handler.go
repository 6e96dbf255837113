package records

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/records/:patient_id", h.GetRecord)
	api.PUT("/records/:patient_id", h.UpsertRecord, auth.RequireRole(auth.RolePhysician))
}

func (h *Handler) GetRecord(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	view, err := h.svc.View(c.Request().Context(), actor, patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) UpsertRecord(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	var in UpsertInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := h.svc.Upsert(c.Request().Context(), actor, patientID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}
