package medclass

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
	read := api.Group("/med-class-groups", auth.CanRead())
	read.GET("", h.ListGroups)
	read.GET("/by-code/:code", h.GetGroupByCode)
	read.GET("/:key", h.GetGroup)

	write := api.Group("/med-class-groups", auth.CanWrite())
	write.POST("", h.CreateGroup)
	write.PUT("/:key", h.UpdateGroup)
	write.DELETE("/:key", h.DeleteGroup)
	write.PUT("/:key/classes", h.UpdateGroupMedClasses)
}

func (h *Handler) ListGroups(c echo.Context) error {
	groups, err := h.svc.ListGroups(c.Request().Context())
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) GetGroup(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	g, err := h.svc.GetGroup(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) GetGroupByCode(c echo.Context) error {
	g, err := h.svc.GetGroupByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) CreateGroup(c echo.Context) error {
	var g Group
	if err := httputil.Bind(c, &g); err != nil {
		return err
	}
	if err := h.svc.CreateGroup(c.Request().Context(), &g); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) UpdateGroup(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var g Group
	if err := httputil.Bind(c, &g); err != nil {
		return err
	}
	g.Key = key
	if err := h.svc.UpdateGroup(c.Request().Context(), &g); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) DeleteGroup(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteGroup(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateGroupMedClasses(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var codes []string
	if err := httputil.Bind(c, &codes); err != nil {
		return err
	}
	summary, err := h.svc.UpdateGroupMedClasses(c.Request().Context(), key, codes)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}
