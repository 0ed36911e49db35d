package facility

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/errs"
	"github.com/ehr/dispensing/internal/platform/reconcile"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService())
	e := echo.New()
	e.HTTPErrorHandler = errs.ErrorHandler(zerolog.Nop())
	return h, e
}

func TestHandler_CreateFacility(t *testing.T) {
	h, e := newTestHandler()

	body := `{"code":"gen","name":"General Hospital","notice_types":["RECALL"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/facilities", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateFacility(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var f Facility
	json.Unmarshal(rec.Body.Bytes(), &f)
	if f.Code != "GEN" || f.Version != 1 {
		t.Errorf("unexpected facility %+v", f)
	}
}

func TestHandler_CreateFacility_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/facilities", strings.NewReader(`{"code":"X"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	requireStatus(t, h.CreateFacility(c), http.StatusBadRequest)
}

func TestHandler_GetFacility_NotFound(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("key")
	c.SetParamValues("00000000-0000-0000-0000-000000000001")

	requireStatus(t, h.GetFacility(c), http.StatusNotFound)
}

func TestHandler_GetFacility_InvalidKey(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("key")
	c.SetParamValues("not-a-uuid")

	requireStatus(t, h.GetFacility(c), http.StatusBadRequest)
}

func TestHandler_UpdateFacility_Conflict(t *testing.T) {
	h, e := newTestHandler()
	f := &Facility{Code: "GEN", Name: "General"}
	_ = h.svc.CreateFacility(context.Background(), f)
	_ = h.svc.UpdateFacility(context.Background(), &Facility{Key: f.Key, Code: "GEN", Name: "v2", Version: 1})

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"code":"GEN","name":"stale","version":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("key")
	c.SetParamValues(f.Key.String())

	requireStatus(t, h.UpdateFacility(c), http.StatusConflict)
}

func TestHandler_UpdateNoticeTypes(t *testing.T) {
	h, e := newTestHandler()
	f := &Facility{Code: "GEN", Name: "General", NoticeTypes: []NoticeType{NoticeRecall}}
	_ = h.svc.CreateFacility(context.Background(), f)

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`["RECALL","OUTDATE"]`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("key")
	c.SetParamValues(f.Key.String())

	if err := h.UpdateNoticeTypes(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var summary reconcile.Summary
	json.Unmarshal(rec.Body.Bytes(), &summary)
	if summary.Added != 1 || summary.Removed != 0 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestHandler_DeleteFacility_BadVersion(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/?version=abc", nil), httptest.NewRecorder())
	c.SetParamNames("key")
	c.SetParamValues("00000000-0000-0000-0000-000000000001")

	requireStatus(t, h.DeleteFacility(c), http.StatusBadRequest)
}

func TestHandler_ListFacilities(t *testing.T) {
	h, e := newTestHandler()
	for _, code := range []string{"A", "B", "C"} {
		_ = h.svc.CreateFacility(context.Background(), &Facility{Code: code, Name: code})
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/facilities?limit=2", nil), rec)

	if err := h.ListFacilities(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 3 || !resp.HasMore {
		t.Errorf("unexpected page %+v", resp)
	}
}
