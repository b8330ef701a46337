package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/opd/internal/platform/auth"
	"github.com/hms/opd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, physician, nurse, registrar
	readGroup := api.Group("", auth.RequireRole(auth.OPDStaff...))
	readGroup.GET("/doctors", h.ListDoctors)
	readGroup.GET("/doctors/:id", h.GetDoctor)
	readGroup.GET("/doctors/:id/availability", h.ListAvailability)
	readGroup.GET("/doctors/:id/slots", h.GetDayPlan)
	readGroup.GET("/doctors/:id/slots/available", h.GetAvailableSlots)
}

// availableResponse is the body of GET /doctors/:id/slots/available.
type availableResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Slots     []Slot    `json:"slots"`
	Locations []string  `json:"locations"`
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL.Path))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	doc, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	blocks, err := h.svc.ListAvailability(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, blocks)
}

func (h *Handler) GetDayPlan(c echo.Context) error {
	id, date, err := planParams(c)
	if err != nil {
		return err
	}
	plan, err := h.svc.DayPlan(c.Request().Context(), id, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *Handler) GetAvailableSlots(c echo.Context) error {
	id, date, err := planParams(c)
	if err != nil {
		return err
	}
	plan, err := h.svc.DayPlan(c.Request().Context(), id, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, availableResponse{
		DoctorID:  plan.DoctorID,
		Date:      plan.Date.Format(time.DateOnly),
		Slots:     plan.Available,
		Locations: plan.Locations,
	})
}

func planParams(c echo.Context) (uuid.UUID, time.Time, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	raw := c.QueryParam("date")
	if raw == "" {
		return uuid.Nil, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date query parameter is required")
	}
	date, err := ParseDate(raw)
	if err != nil {
		return uuid.Nil, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return id, date, nil
}

func toHTTPError(err error) error {
	if errors.Is(err, ErrDoctorNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	// Malformed stored schedule data is a server fault, not a bad request.
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
