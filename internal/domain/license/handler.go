package license

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
	read := api.Group("/licenses", auth.CanRead())
	read.GET("", h.ListByFacility)
	read.GET("/expiring", h.ListExpiring)
	read.GET("/:key", h.GetLicense)

	write := api.Group("/licenses", auth.CanWrite())
	write.POST("", h.CreateLicense)
	write.PUT("/:key", h.UpdateLicense)
	write.DELETE("/:key", h.DeleteLicense)
}

func (h *Handler) ListByFacility(c echo.Context) error {
	facilityKey, err := httputil.RequireQueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	licenses, err := h.svc.ListByFacility(c.Request().Context(), facilityKey)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, licenses)
}

func (h *Handler) ListExpiring(c echo.Context) error {
	before, err := httputil.QueryDate(c, "before")
	if err != nil {
		return err
	}
	licenses, err := h.svc.ListExpiring(c.Request().Context(), before)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, licenses)
}

func (h *Handler) GetLicense(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	l, err := h.svc.GetLicense(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) CreateLicense(c echo.Context) error {
	var l License
	if err := httputil.Bind(c, &l); err != nil {
		return err
	}
	if err := h.svc.CreateLicense(c.Request().Context(), &l); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) UpdateLicense(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var l License
	if err := httputil.Bind(c, &l); err != nil {
		return err
	}
	l.Key = key
	if err := h.svc.UpdateLicense(c.Request().Context(), &l); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLicense(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLicense(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
