package pharmacyorder

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dispensing/internal/platform/auth"
	"github.com/ehr/dispensing/internal/platform/httputil"
	"github.com/ehr/dispensing/internal/platform/sqlerr"
	"github.com/ehr/dispensing/internal/platform/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/pharmacy-orders", auth.CanRead())
	read.GET("", h.ListOrders)
	read.GET("/by-order-id/:orderID", h.GetOrderByOrderID)
	read.GET("/:key", h.GetOrder)

	write := api.Group("/pharmacy-orders", auth.CanWrite())
	write.POST("", h.CreateOrder)
	write.PUT("/:key", h.UpdateOrder)
	write.PUT("/:key/status", h.UpdateStatus)
	write.DELETE("/:key", h.DeleteOrder)
}

// ListOrders answers ?encounter_key= for one encounter or
// ?encounter_keys=a,b for several.
func (h *Handler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	keys, err := httputil.QueryKeys(c, "encounter_keys")
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		orders, err := h.svc.ListByEncounters(ctx, keys)
		if err != nil {
			return sqlerr.HandleError(err)
		}
		return c.JSON(http.StatusOK, orders)
	}

	encounterKey, err := httputil.RequireQueryKey(c, "encounter_key")
	if err != nil {
		return err
	}
	orders, err := h.svc.ListByEncounter(ctx, encounterKey)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrder(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetOrderByOrderID(c echo.Context) error {
	facilityKey, err := httputil.RequireQueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrderByOrderID(c.Request().Context(), facilityKey, c.Param("orderID"))
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var o Order
	if err := httputil.Bind(c, &o); err != nil {
		return err
	}
	if err := h.svc.CreateOrder(c.Request().Context(), &o); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

type updateResponse struct {
	Order   *Order  `json:"order"`
	Changes Changes `json:"changes"`
}

func (h *Handler) UpdateOrder(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var o Order
	if err := httputil.Bind(c, &o); err != nil {
		return err
	}
	o.Key = key
	changes, err := h.svc.UpdateOrder(c.Request().Context(), &o)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, updateResponse{Order: &o, Changes: changes})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := httputil.Bind(c, &req); err != nil {
		return err
	}
	if req.Status == "" {
		return validation.From(validation.Field("status", "is required"))
	}
	o, err := h.svc.UpdateStatus(c.Request().Context(), key, req.Status)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) DeleteOrder(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteOrder(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
