package repeatpattern

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/dispensing/internal/platform/auth"
	"github.com/ehr/dispensing/internal/platform/httputil"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
	"github.com/ehr/dispensing/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.CanRead())
	read.GET("/repeat-patterns", h.ListPatterns)
	read.GET("/repeat-patterns/:key", h.GetPattern)
	read.GET("/units/:key/repeat-patterns", h.ListForUnit)
	read.GET("/units/:key/repeat-pattern-keys", h.GetLocationPatterns)

	write := api.Group("", auth.CanWrite())
	write.POST("/repeat-patterns", h.CreatePattern)
	write.PUT("/repeat-patterns/:key", h.UpdatePattern)
	write.DELETE("/repeat-patterns/:key", h.DeletePattern)
	write.PUT("/units/:key/repeat-patterns", h.UpdateLocationPatterns)
}

func (h *Handler) ListPatterns(c echo.Context) error {
	p := pagination.FromContext(c)
	facilityKey, err := httputil.RequireQueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	patterns, total, err := h.svc.ListByFacility(c.Request().Context(), facilityKey, p.Limit, p.Offset)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patterns, total, p.Limit, p.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetPattern(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPattern(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePattern(c echo.Context) error {
	var p Pattern
	if err := httputil.Bind(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePattern(c.Request().Context(), &p); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePattern(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var p Pattern
	if err := httputil.Bind(c, &p); err != nil {
		return err
	}
	p.Key = key
	if err := h.svc.UpdatePattern(c.Request().Context(), &p); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePattern(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	version, err := httputil.QueryVersion(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePattern(c.Request().Context(), key, version); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListForUnit(c echo.Context) error {
	unit, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	patterns, err := h.svc.ListForUnit(c.Request().Context(), unit)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, patterns)
}

func (h *Handler) GetLocationPatterns(c echo.Context) error {
	unit, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	keys, err := h.svc.GetLocationRepeatPatterns(c.Request().Context(), unit)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	if keys == nil {
		keys = []uuid.UUID{}
	}
	return c.JSON(http.StatusOK, keys)
}

func (h *Handler) UpdateLocationPatterns(c echo.Context) error {
	unit, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var keys []uuid.UUID
	if err := httputil.Bind(c, &keys); err != nil {
		return err
	}
	summary, err := h.svc.UpdateLocationRepeatPatterns(c.Request().Context(), unit, keys)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}
