package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestMakeUpperCaseWithUnderscores(t *testing.T) {
	if got := MakeUpperCaseWithUnderscores("Not Found"); got != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %s", got)
	}
}

func TestNewBadRequestError_CustomCode(t *testing.T) {
	code := "FACILITY_ALREADY_EXISTS"
	err := NewBadRequestError("dup", true, &code, nil)
	if err.Code != code {
		t.Errorf("expected %s, got %s", code, err.Code)
	}
	if err.Status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", err.Status)
	}
}

func TestHTTPError_IsMatchesWrapped(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewNotFoundError("missing", false, nil))
	if !errors.Is(wrapped, &HTTPError{}) {
		t.Error("expected wrapped HTTPError to match")
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"http error", NewNotFoundError("facility not found", true, nil), http.StatusNotFound, "NOT_FOUND"},
		{"echo error", echo.NewHTTPError(http.StatusForbidden, "nope"), http.StatusForbidden, "FORBIDDEN"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body HTTPError
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Code)
			}
		})
	}
}

func TestErrorHandler_InternalHidesCause(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	ErrorHandler(zerolog.Nop())(errors.New("password=hunter2"), c)

	var body HTTPError
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Message != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("expected generic message, got %q", body.Message)
	}
}
