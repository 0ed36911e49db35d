package codemap

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
	read := api.Group("/code-mappings", auth.CanRead())
	read.GET("", h.List)
	read.GET("/resolve", h.Resolve)

	write := api.Group("/code-mappings", auth.CanWrite())
	write.PUT("", h.Upsert)
	write.POST("/import", h.Import)
	write.DELETE("/:key", h.Delete)
}

func (h *Handler) List(c echo.Context) error {
	mappings, err := h.svc.ListMappings(c.Request().Context(), c.QueryParam("category"), c.QueryParam("system"))
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, mappings)
}

func (h *Handler) Resolve(c echo.Context) error {
	m, err := h.svc.Resolve(c.Request().Context(),
		c.QueryParam("system"), c.QueryParam("category"), c.QueryParam("code"))
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Upsert(c echo.Context) error {
	var m Mapping
	if err := httputil.Bind(c, &m); err != nil {
		return err
	}
	inserted, err := h.svc.UpsertMapping(c.Request().Context(), &m)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	if inserted {
		return c.JSON(http.StatusCreated, m)
	}
	return c.JSON(http.StatusOK, m)
}

// Import takes the YAML document as the raw request body.
func (h *Handler) Import(c echo.Context) error {
	res, err := h.svc.Import(c.Request().Context(), c.Request().Body)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMapping(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
