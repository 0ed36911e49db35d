package adt

import (
	"net/http"
	"time"

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
	read.GET("/patients", h.SearchPatients)
	read.GET("/patients/batch", h.GetPatientsByKeys)
	read.GET("/patients/:key", h.GetPatient)
	read.GET("/patients/:key/encounters", h.ListEncountersByPatient)
	read.GET("/encounters/:key", h.GetEncounter)
	read.GET("/physicians", h.ListPhysicians)
	read.GET("/physicians/:key", h.GetPhysician)
	read.GET("/physicians/by-external-id/:id", h.GetPhysicianByExternalID)

	write := api.Group("", auth.CanWrite())
	write.POST("/patients", h.CreatePatient)
	write.PUT("/patients/:key", h.UpdatePatient)
	write.DELETE("/patients/:key", h.DeletePatient)
	write.PUT("/patients/:key/allergies", h.UpdatePatientAllergies)
	write.POST("/encounters", h.CreateEncounter)
	write.PUT("/encounters/:key", h.UpdateEncounter)
	write.DELETE("/encounters/:key", h.DeleteEncounter)
	write.PUT("/encounters/:key/physicians", h.UpdateEncounterPhysicians)
	write.POST("/encounters/:key/discharge", h.DischargeEncounter)
	write.POST("/physicians", h.CreatePhysician)
	write.PUT("/physicians/:key", h.UpdatePhysician)
	write.DELETE("/physicians/:key", h.DeletePhysician)
}

// -- Patient Handlers --

func (h *Handler) SearchPatients(c echo.Context) error {
	p := pagination.FromContext(c)
	facilityKey, err := httputil.QueryKey(c, "facility_key")
	if err != nil {
		return err
	}
	search := PatientSearch{
		FacilityKey: facilityKey,
		Name:        c.QueryParam("name"),
		ExternalID:  c.QueryParam("external_id"),
	}
	patients, total, err := h.svc.SearchPatients(c.Request().Context(), search, p.Limit, p.Offset)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, p.Limit, p.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetPatientsByKeys(c echo.Context) error {
	keys, err := httputil.QueryKeys(c, "keys")
	if err != nil {
		return err
	}
	patients, err := h.svc.GetPatientsByKeys(c.Request().Context(), keys)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) GetPatient(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := httputil.Bind(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var p Patient
	if err := httputil.Bind(c, &p); err != nil {
		return err
	}
	p.Key = key
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdatePatientAllergies(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var allergies []Allergy
	if err := httputil.Bind(c, &allergies); err != nil {
		return err
	}
	summary, err := h.svc.UpdatePatientAllergies(c.Request().Context(), key, allergies)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

// -- Encounter Handlers --

func (h *Handler) ListEncountersByPatient(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	encounters, err := h.svc.ListEncountersByPatient(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, encounters)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	e, err := h.svc.GetEncounter(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) CreateEncounter(c echo.Context) error {
	var e Encounter
	if err := httputil.Bind(c, &e); err != nil {
		return err
	}
	if err := h.svc.CreateEncounter(c.Request().Context(), &e); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) UpdateEncounter(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var e Encounter
	if err := httputil.Bind(c, &e); err != nil {
		return err
	}
	e.Key = key
	if err := h.svc.UpdateEncounter(c.Request().Context(), &e); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteEncounter(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteEncounter(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateEncounterPhysicians(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var physicians []EncounterPhysician
	if err := httputil.Bind(c, &physicians); err != nil {
		return err
	}
	summary, err := h.svc.UpdateEncounterPhysicians(c.Request().Context(), key, physicians)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type dischargeRequest struct {
	DischargeUTC *time.Time `json:"discharge_utc"`
}

func (h *Handler) DischargeEncounter(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var req dischargeRequest
	if c.Request().ContentLength != 0 {
		if err := httputil.Bind(c, &req); err != nil {
			return err
		}
	}
	e, err := h.svc.DischargeEncounter(c.Request().Context(), key, req.DischargeUTC)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, e)
}

// -- Physician Handlers --

func (h *Handler) ListPhysicians(c echo.Context) error {
	p := pagination.FromContext(c)
	active, err := httputil.QueryBool(c, "active")
	if err != nil {
		return err
	}
	physicians, total, err := h.svc.ListPhysicians(c.Request().Context(), active != nil && *active, p.Limit, p.Offset)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(physicians, total, p.Limit, p.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetPhysician(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPhysician(c.Request().Context(), key)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPhysicianByExternalID(c echo.Context) error {
	p, err := h.svc.GetPhysicianByExternalID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePhysician(c echo.Context) error {
	var p Physician
	if err := httputil.Bind(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePhysician(c.Request().Context(), &p); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePhysician(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	var p Physician
	if err := httputil.Bind(c, &p); err != nil {
		return err
	}
	p.Key = key
	if err := h.svc.UpdatePhysician(c.Request().Context(), &p); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePhysician(c echo.Context) error {
	key, err := httputil.ParamKey(c, "key")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePhysician(c.Request().Context(), key); err != nil {
		return sqlerr.HandleError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
