package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_Register(t *testing.T) {
	h, e := newTestHandler()

	body := `{"name":"Ana","surname":"Lopez","email":"ana@example.com","password":"secret-pass","role":"PHYSICIAN","specialty":"Cardiology"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/register", body), rec)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Error("password hash must not be serialized")
	}

	var p Profile
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Physician == nil || p.Physician.Specialty != "Cardiology" {
		t.Errorf("expected physician profile, got %+v", p.Physician)
	}
}

func TestHandler_Register_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/register", `{"name":"Ana"}`), httptest.NewRecorder())
	err := h.Register(c)
	if !apperr.Is(err, apperr.KindInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestHandler_LoginAndMe(t *testing.T) {
	h, e := newTestHandler()
	reg, err := h.svc.Register(context.Background(), Registration{
		Name: "Ana", Surname: "Lopez", Email: "ana@example.com", Password: "secret-pass",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"ana@example.com","password":"secret-pass"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	var resp LoginResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.AccessToken == "" {
		t.Fatal("expected access token")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req = req.WithContext(auth.WithActor(req.Context(), auth.Actor{UserID: reg.User.ID, Role: auth.RolePatient}))
	rec = httptest.NewRecorder()
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatalf("me: %v", err)
	}
	var p Profile
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.User == nil || p.User.ID != reg.User.ID {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestHandler_Me_Unauthenticated(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), httptest.NewRecorder())

	err := h.Me(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_ListPatients(t *testing.T) {
	h, e := newTestHandler()
	for _, name := range []string{"Ana", "Luis"} {
		if _, _, err := h.svc.CreatePatient(context.Background(), NewPatient{Name: name, Surname: "Diaz"}); err != nil {
			t.Fatalf("create patient: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?limit=10", nil), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 2 || body.Limit != 10 {
		t.Errorf("unexpected page: %+v", body)
	}
}

func TestHandler_RoutesRequireStaff(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithActor(c.Request().Context(), auth.Actor{UserID: uuid.New(), Role: auth.RolePatient})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/physicians", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for patient, got %d", rec.Code)
	}
}
