package directory

import (
	"net/http"

	"github.com/google/uuid"
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
	read := api.Group("/directory", auth.CanRead())
	read.GET("/domains", h.ListDomains)
	read.GET("/domains/:key", h.GetDomain)
	read.GET("/domains/by-name/:name", h.GetDomainByName)
	read.GET("/domains/:key/groups", h.ListGroups)
	read.GET("/groups", h.GetGroupsByKeys)
	read.GET("/users/:key/groups", h.GetUserGroups)

	write := api.Group("/directory", auth.CanWrite())
	write.POST("/domains", h.CreateDomain)
	write.PUT("/domains/:key", h.UpdateDomain)
	write.DELETE("/domains/:key", h.DeleteDomain)
	write.POST("/domains/:key/groups", h.CreateGroup)
	write.DELETE("/groups/:key", h.DeleteGroup)
	write.PUT("/users/:key/groups", h.UpdateUserGroups)
}

// -- Domain Handlers --

func (h *Handler) ListDomains(c echo.Context) error {
	domains, err := h.svc.ListDomains(c.Request().Context())
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, domains)
}

func (h *Handler) GetDomain(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDomain(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDomainByName(c echo.Context) error {
	d, err := h.svc.GetDomainByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreateDomain(c echo.Context) error {
	var d Domain
	if err := httputil.Bind(c, &d); err != nil {
		return err
	}
	if err := h.svc.CreateDomain(c.Request().Context(), &d); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDomain(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var d Domain
	if err := httputil.Bind(c, &d); err != nil {
		return err
	}
	d.Key = key
	if err := h.svc.UpdateDomain(c.Request().Context(), &d); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDomain(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDomain(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Group Handlers --

func (h *Handler) ListGroups(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	groups, err := h.svc.ListGroups(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) GetGroupsByKeys(c echo.Context) error {
	keys, err := httputil.QueryKeys(c, "keys")
	if err != nil {
		return err
	}
	groups, err := h.svc.GetGroupsByKeys(c.Request().Context(), keys)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) CreateGroup(c echo.Context) error {
	domainKey, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var g Group
	if err := httputil.Bind(c, &g); err != nil {
		return err
	}
	g.DomainKey = domainKey
	if err := h.svc.CreateGroup(c.Request().Context(), &g); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, g)
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

// -- User Membership Handlers --

func (h *Handler) GetUserGroups(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	groups, err := h.svc.GetUserDirectoryGroups(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) UpdateUserGroups(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var groupKeys []uuid.UUID
	if err := httputil.Bind(c, &groupKeys); err != nil {
		return err
	}
	summary, err := h.svc.UpdateUserDirectoryGroups(c.Request().Context(), key, groupKeys)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}
