package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/action"
)

func TestActionsCreate_RejectsInvalidBody(t *testing.T) {
	t.Parallel()
	e := echo.New()
	h := NewActionsHandler(nil, action.NewRegistry(nil, nil))

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{not json`},
		{name: "missing name", body: `{"kind":"local","function_key":"fn"}`},
		{name: "bad kind", body: `{"name":"x","kind":"weird"}`},
		{name: "bad url", body: `{"name":"x","kind":"remote","url":"not a url"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/actions", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h.Create(c)
			var httpErr *echo.HTTPError
			if !errors.As(err, &httpErr) || httpErr.Code != http.StatusBadRequest {
				t.Fatalf("err = %v, want 400 HTTPError", err)
			}
		})
	}
}

func TestActionsList_EmptyCatalog(t *testing.T) {
	t.Parallel()
	e := echo.New()
	h := NewActionsHandler(nil, action.NewRegistry(nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/actions", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("body = %q, want empty array", rec.Body.String())
	}
}

func TestActionsDelete_UnknownName(t *testing.T) {
	t.Parallel()
	e := echo.New()
	h := NewActionsHandler(nil, action.NewRegistry(nil, nil))

	req := httptest.NewRequest(http.MethodDelete, "/actions/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("missing")

	err := h.Delete(c)
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 HTTPError", err)
	}
}
