package facility

import (
	"net/http"

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
	read := api.Group("/facilities", auth.CanRead())
	read.GET("", h.ListFacilities)
	read.GET("/:key", h.GetFacility)
	read.GET("/by-code/:code", h.GetFacilityByCode)
	read.GET("/:key/history", h.FacilityHistory)

	write := api.Group("/facilities", auth.CanWrite())
	write.POST("", h.CreateFacility)
	write.PUT("/:key", h.UpdateFacility)
	write.DELETE("/:key", h.DeleteFacility)
	write.PUT("/:key/contacts", h.UpdateContacts)
	write.PUT("/:key/notice-types", h.UpdateNoticeTypes)
	write.PUT("/:key/sheet-configs", h.UpdateSheetConfigs)
}

func (h *Handler) ListFacilities(c echo.Context) error {
	p := pagination.FromContext(c)
	active, err := httputil.QueryBool(c, "active")
	if err != nil {
		return err
	}
	filter := ListFilter{Name: c.QueryParam("name"), Active: active}
	facilities, total, err := h.svc.ListFacilities(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(facilities, total, p.Limit, p.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetFacility(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	f, err := h.svc.GetFacility(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) GetFacilityByCode(c echo.Context) error {
	f, err := h.svc.GetFacilityByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) FacilityHistory(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	versions, err := h.svc.FacilityHistory(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, versions)
}

func (h *Handler) CreateFacility(c echo.Context) error {
	var f Facility
	if err := httputil.Bind(c, &f); err != nil {
		return err
	}
	if err := h.svc.CreateFacility(c.Request().Context(), &f); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) UpdateFacility(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var f Facility
	if err := httputil.Bind(c, &f); err != nil {
		return err
	}
	f.Key = key
	if err := h.svc.UpdateFacility(c.Request().Context(), &f); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteFacility(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	version, err := httputil.QueryVersion(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteFacility(c.Request().Context(), key, version); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateContacts(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var contacts []Contact
	if err := httputil.Bind(c, &contacts); err != nil {
		return err
	}
	summary, err := h.svc.UpdateFacilityContacts(c.Request().Context(), key, contacts)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) UpdateNoticeTypes(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var types []NoticeType
	if err := httputil.Bind(c, &types); err != nil {
		return err
	}
	summary, err := h.svc.UpdateFacilityNoticeTypes(c.Request().Context(), key, types)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) UpdateSheetConfigs(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var configs []SheetConfig
	if err := httputil.Bind(c, &configs); err != nil {
		return err
	}
	summary, err := h.svc.UpdateFacilitySheetConfigs(c.Request().Context(), key, configs)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}
