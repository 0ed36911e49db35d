package invoicetype

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
	read := api.Group("/invoice-types", auth.CanRead())
	read.GET("", h.ListInvoiceTypes)
	read.GET("/:key", h.GetInvoiceType)

	write := api.Group("/invoice-types", auth.CanWrite())
	write.POST("", h.CreateInvoiceType)
	write.PUT("/:key", h.UpdateInvoiceType)
	write.DELETE("/:key", h.DeleteInvoiceType)
}

func (h *Handler) ListInvoiceTypes(c echo.Context) error {
	active, err := httputil.QueryBool(c, "active")
	if err != nil {
		return err
	}
	types, err := h.svc.ListInvoiceTypes(c.Request().Context(), active != nil && *active)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, types)
}

func (h *Handler) GetInvoiceType(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	it, err := h.svc.GetInvoiceType(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) CreateInvoiceType(c echo.Context) error {
	var it InvoiceType
	if err := httputil.Bind(c, &it); err != nil {
		return err
	}
	if err := h.svc.CreateInvoiceType(c.Request().Context(), &it); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) UpdateInvoiceType(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var it InvoiceType
	if err := httputil.Bind(c, &it); err != nil {
		return err
	}
	it.Key = key
	if err := h.svc.UpdateInvoiceType(c.Request().Context(), &it); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) DeleteInvoiceType(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInvoiceType(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
