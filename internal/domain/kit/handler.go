package kit

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
	read := api.Group("/kits", auth.CanRead())
	read.GET("", h.ListByFacility)
	read.GET("/:key", h.GetKit)

	write := api.Group("/kits", auth.CanWrite())
	write.POST("", h.CreateKit)
	write.PUT("/:key", h.UpdateKit)
	write.DELETE("/:key", h.DeleteKit)
	write.PUT("/:key/items", h.UpdateKitItems)
}

func (h *Handler) ListByFacility(c echo.Context) error {
	facilityKey, err := httputil.RequireQueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	activeOnly, err := httputil.QueryBool(c, "active")
	if err != nil {
		return err
	}
	kits, err := h.svc.ListByFacility(c.Request().Context(), facilityKey, activeOnly != nil && *activeOnly)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, kits)
}

func (h *Handler) GetKit(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	k, err := h.svc.GetKit(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, k)
}

func (h *Handler) CreateKit(c echo.Context) error {
	var k Kit
	if err := httputil.Bind(c, &k); err != nil {
		return err
	}
	if err := h.svc.CreateKit(c.Request().Context(), &k); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, k)
}

func (h *Handler) UpdateKit(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var k Kit
	if err := httputil.Bind(c, &k); err != nil {
		return err
	}
	k.Key = key
	if err := h.svc.UpdateKit(c.Request().Context(), &k); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, k)
}

func (h *Handler) DeleteKit(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteKit(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateKitItems(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var items []Item
	if err := httputil.Bind(c, &items); err != nil {
		return err
	}
	summary, err := h.svc.UpdateKitItems(c.Request().Context(), key, items)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}
