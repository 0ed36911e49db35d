package clinicaldata

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
	g := api.Group("/clinical-data")

	read := g.Group("", auth.CanRead())
	read.GET("/subjects", h.ListSubjects)
	read.GET("/subjects/:key", h.GetSubject)
	read.GET("/user-types", h.ListUserTypes)

	write := g.Group("", auth.CanWrite())
	write.POST("/subjects", h.CreateSubject)
	write.PUT("/subjects/:key", h.UpdateSubject)
	write.DELETE("/subjects/:key", h.DeleteSubject)
	write.PUT("/subjects/:key/responses", h.UpdateSubjectResponses)
	write.PUT("/subjects/:key/user-types", h.UpdateSubjectUserTypes)
	write.POST("/user-types", h.CreateUserType)
	write.DELETE("/user-types/:key", h.DeleteUserType)
}

func (h *Handler) ListSubjects(c echo.Context) error {
	p := pagination.FromContext(c)
	facilityKey, err := httputil.RequireQueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	subjects, total, err := h.svc.ListSubjects(c.Request().Context(), facilityKey, p.Limit, p.Offset)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(subjects, total, p.Limit, p.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetSubject(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	s, err := h.svc.GetSubject(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) CreateSubject(c echo.Context) error {
	var s Subject
	if err := httputil.Bind(c, &s); err != nil {
		return err
	}
	if err := h.svc.CreateSubject(c.Request().Context(), &s); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateSubject(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var s Subject
	if err := httputil.Bind(c, &s); err != nil {
		return err
	}
	s.Key = key
	if err := h.svc.UpdateSubject(c.Request().Context(), &s); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSubject(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSubject(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateSubjectResponses(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var responses []Response
	if err := httputil.Bind(c, &responses); err != nil {
		return err
	}
	summary, err := h.svc.UpdateSubjectResponses(c.Request().Context(), key, responses)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) UpdateSubjectUserTypes(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var keys []uuid.UUID
	if err := httputil.Bind(c, &keys); err != nil {
		return err
	}
	summary, err := h.svc.UpdateSubjectUserTypes(c.Request().Context(), key, keys)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListUserTypes(c echo.Context) error {
	types, err := h.svc.ListUserTypes(c.Request().Context())
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, types)
}

func (h *Handler) CreateUserType(c echo.Context) error {
	var u UserType
	if err := httputil.Bind(c, &u); err != nil {
		return err
	}
	if err := h.svc.CreateUserType(c.Request().Context(), &u); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) DeleteUserType(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUserType(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
