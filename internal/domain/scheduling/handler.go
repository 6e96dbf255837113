package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard", h.Dashboard)

	appts := api.Group("/appointments")
	appts.GET("", h.ListAppointments)
	appts.POST("", h.CreateAppointment)
	appts.GET("/:id", h.GetAppointment)
	appts.PUT("/:id", h.EditAppointment)
	appts.POST("/:id/cancel", h.CancelAppointment)

	physicianOnly := auth.RequireRole(auth.RolePhysician)
	appts.GET("/upcoming", h.Upcoming, physicianOnly)
	appts.GET("/concluded", h.Concluded, physicianOnly)

	api.GET("/physicians/me/patients", h.MyPatients, physicianOnly)
	api.GET("/physicians/:id", h.PhysicianCalendar)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Create(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) EditAppointment(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in EditInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Edit(c.Request().Context(), actor, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	result, err := h.svc.Cancel(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	appts, total, err := h.svc.List(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewPage(appts, total, pg))
}

func (h *Handler) Upcoming(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &id
	}
	appts, err := h.svc.Upcoming(c.Request().Context(), actor, patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": nonNil(appts)})
}

func (h *Handler) Concluded(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	appts, err := h.svc.Concluded(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": nonNil(appts)})
}

func (h *Handler) Dashboard(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	d.Appointments = nonNil(d.Appointments)
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) PhysicianCalendar(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cal, err := h.svc.PhysicianCalendar(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	cal.Appointments = nonNil(cal.Appointments)
	return c.JSON(http.StatusOK, cal)
}

func (h *Handler) MyPatients(c echo.Context) error {
	actor, err := auth.MustActor(c)
	if err != nil {
		return err
	}
	patients, err := h.svc.MyPatients(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": patients})
}

// nonNil keeps empty results rendering as [] rather than null.
func nonNil(appts []*Appointment) []*Appointment {
	if appts == nil {
		return []*Appointment{}
	}
	return appts
}
