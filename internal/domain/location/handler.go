package location

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
	read.GET("/units", h.ListUnits)
	read.GET("/units/:key", h.GetUnit)
	read.GET("/areas", h.ListAreas)
	read.GET("/areas/:key", h.GetArea)

	write := api.Group("", auth.CanWrite())
	write.POST("/units", h.CreateUnit)
	write.PUT("/units/:key", h.UpdateUnit)
	write.DELETE("/units/:key", h.DeleteUnit)
	write.PUT("/units/:key/rooms", h.UpdateUnitRooms)
	write.PUT("/units/:key/areas", h.UpdateUnitAreas)
	write.POST("/areas", h.CreateArea)
	write.PUT("/areas/:key", h.UpdateArea)
	write.DELETE("/areas/:key", h.DeleteArea)
}

// -- Unit Handlers --

func (h *Handler) ListUnits(c echo.Context) error {
	p := pagination.FromContext(c)
	facilityKey, err := httputil.QueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	active, err := httputil.QueryBool(c, "active")
	if err != nil {
		return err
	}
	units, total, err := h.svc.ListUnits(c.Request().Context(),
		UnitFilter{FacilityKey: facilityKey, Active: active}, p.Limit, p.Offset)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(units, total, p.Limit, p.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetUnit(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	u, err := h.svc.GetUnit(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) CreateUnit(c echo.Context) error {
	var u Unit
	if err := httputil.Bind(c, &u); err != nil {
		return err
	}
	if err := h.svc.CreateUnit(c.Request().Context(), &u); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) UpdateUnit(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var u Unit
	if err := httputil.Bind(c, &u); err != nil {
		return err
	}
	u.Key = key
	if err := h.svc.UpdateUnit(c.Request().Context(), &u); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUnit(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	version, err := httputil.QueryVersion(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUnit(c.Request().Context(), key, version); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateUnitRooms(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var rooms []Room
	if err := httputil.Bind(c, &rooms); err != nil {
		return err
	}
	summary, err := h.svc.UpdateUnitRooms(c.Request().Context(), key, rooms)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) UpdateUnitAreas(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var areaKeys []uuid.UUID
	if err := httputil.Bind(c, &areaKeys); err != nil {
		return err
	}
	summary, err := h.svc.UpdateUnitAreas(c.Request().Context(), key, areaKeys)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// -- Area Handlers --

func (h *Handler) ListAreas(c echo.Context) error {
	facilityKey, err := httputil.RequireQueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	areas, err := h.svc.ListAreas(c.Request().Context(), facilityKey)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, areas)
}

func (h *Handler) GetArea(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	a, err := h.svc.GetArea(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateArea(c echo.Context) error {
	var a Area
	if err := httputil.Bind(c, &a); err != nil {
		return err
	}
	if err := h.svc.CreateArea(c.Request().Context(), &a); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateArea(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var a Area
	if err := httputil.Bind(c, &a); err != nil {
		return err
	}
	a.Key = key
	if err := h.svc.UpdateArea(c.Request().Context(), &a); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteArea(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteArea(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
