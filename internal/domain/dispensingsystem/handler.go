package dispensingsystem

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dispensing/internal/platform/auth"
	"github.com/ehr/dispensing/internal/platform/httputil"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/dispensing-systems", auth.CanRead())
	read.GET("", h.ListByFacility)
	read.GET("/:key", h.GetSystem)

	write := api.Group("/dispensing-systems", auth.CanWrite())
	write.POST("", h.CreateSystem)
	write.PUT("/:key", h.UpdateSystem)
	write.DELETE("/:key", h.DeleteSystem)
	write.PUT("/:key/contacts", h.UpdateSystemContacts)
}

func (h *Handler) ListByFacility(c echo.Context) error {
	facilityKey, err := httputil.RequireQueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	systems, err := h.svc.ListByFacility(c.Request().Context(), facilityKey)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, systems)
}

func (h *Handler) GetSystem(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	s, err := h.svc.GetSystem(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) CreateSystem(c echo.Context) error {
	var s System
	if err := httputil.Bind(c, &s); err != nil {
		return err
	}
	if err := h.svc.CreateSystem(c.Request().Context(), &s); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateSystem(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var s System
	if err := httputil.Bind(c, &s); err != nil {
		return err
	}
	s.Key = key
	if err := h.svc.UpdateSystem(c.Request().Context(), &s); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSystem(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSystem(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateSystemContacts(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var contacts []Contact
	if err := httputil.Bind(c, &contacts); err != nil {
		return err
	}
	summary, err := h.svc.UpdateSystemContacts(c.Request().Context(), key, contacts)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}
