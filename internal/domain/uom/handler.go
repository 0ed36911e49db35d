package uom

import (
	"net/http"
	"strings"

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
	read := api.Group("/units-of-measure", auth.CanRead())
	read.GET("", h.List)
	read.GET("/:key", h.Get)
	read.GET("/by-code/:code", h.GetByCode)

	write := api.Group("/units-of-measure", auth.CanWrite())
	write.POST("", h.Create)
	write.PUT("/:key", h.Update)
	write.DELETE("/:key", h.Delete)
	write.PUT("/:key/roles", h.UpdateRoles)
}

func (h *Handler) List(c echo.Context) error {
	var filter ListFilter
	if raw := c.QueryParam("role"); raw != "" {
		role := Role(strings.ToUpper(raw))
		filter.Role = &role
	}
	active, err := httputil.QueryBool(c, "active")
	if err != nil {
		return err
	}
	filter.Active = active

	units, err := h.svc.ListUnitsOfMeasure(c.Request().Context(), filter)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, units)
}

func (h *Handler) Get(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	u, err := h.svc.GetUnitOfMeasure(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) GetByCode(c echo.Context) error {
	u, err := h.svc.GetUnitOfMeasureByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Create(c echo.Context) error {
	var u UnitOfMeasure
	if err := httputil.Bind(c, &u); err != nil {
		return err
	}
	if err := h.svc.CreateUnitOfMeasure(c.Request().Context(), &u); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Update(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var u UnitOfMeasure
	if err := httputil.Bind(c, &u); err != nil {
		return err
	}
	u.Key = key
	if err := h.svc.UpdateUnitOfMeasure(c.Request().Context(), &u); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Delete(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUnitOfMeasure(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateRoles(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var rs []Role
	if err := httputil.Bind(c, &rs); err != nil {
		return err
	}
	summary, err := h.svc.UpdateUnitOfMeasureRoles(c.Request().Context(), key, rs)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}
